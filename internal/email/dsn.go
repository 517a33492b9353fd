package email

// DSN carries delivery status notification parameters that a transport
// passes through to the SMTP envelope. The composer never reads it.
type DSN struct {
	EnvelopeID string    `json:"envelopeId,omitempty" yaml:"envelopeId,omitempty"`
	Ret        DSNRet    `json:"RET" yaml:"RET"`
	Notify     DSNNotify `json:"NOTIFY" yaml:"NOTIFY"`
}

// DSNRet selects how much of the message a bounce returns.
type DSNRet struct {
	Headers bool `json:"HEADERS,omitempty" yaml:"HEADERS,omitempty"`
	Full    bool `json:"FULL,omitempty" yaml:"FULL,omitempty"`
}

// DSNNotify selects the events that produce a notification.
type DSNNotify struct {
	Delay   bool `json:"DELAY,omitempty" yaml:"DELAY,omitempty"`
	Failure bool `json:"FAILURE,omitempty" yaml:"FAILURE,omitempty"`
	Success bool `json:"SUCCESS,omitempty" yaml:"SUCCESS,omitempty"`
}
