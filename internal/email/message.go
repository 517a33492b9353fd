// Package email composes RFC 5322 / MIME payloads from a message description.
//
// A Message is built once with New and is immutable afterwards, apart from
// its one-shot delivery result. Payload renders the full multipart/mixed
// message ready for an SMTP DATA command.
package email

import (
	"maps"
	"strings"

	"github.com/google/uuid"
)

// Attachment is a file carried by the message. Content is already base64
// encoded by the caller.
type Attachment struct {
	Filename string `json:"filename" yaml:"filename"`
	Content  string `json:"content" yaml:"content"`
	MIMEType string `json:"mimeType,omitempty" yaml:"mimeType,omitempty"`
}

// Options describes a message to compose.
type Options struct {
	From        Address           `json:"from" yaml:"from"`
	To          AddressList       `json:"to" yaml:"to"`
	Reply       *Address          `json:"reply,omitempty" yaml:"reply,omitempty"`
	CC          AddressList       `json:"cc,omitempty" yaml:"cc,omitempty"`
	BCC         AddressList       `json:"bcc,omitempty" yaml:"bcc,omitempty"`
	Subject     string            `json:"subject" yaml:"subject"`
	Text        string            `json:"text,omitempty" yaml:"text,omitempty"`
	HTML        string            `json:"html,omitempty" yaml:"html,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty" yaml:"attachments,omitempty"`
	DSNOverride *DSN              `json:"dsnOverride,omitempty" yaml:"dsnOverride,omitempty"`
}

// Message is a validated, immutable message description.
type Message struct {
	from        Address
	to          AddressList
	reply       *Address
	cc          AddressList
	bcc         AddressList
	subject     string
	text        string
	html        string
	headers     map[string]string
	messageID   string
	attachments []Attachment
	dsn         *DSN

	result *result
}

// New validates opts and builds a Message. It fails with ErrNoBody when both
// text and html are empty and with ErrNoRecipients when to is empty.
func New(opts Options) (*Message, error) {
	if opts.Text == "" && opts.HTML == "" {
		return nil, ErrNoBody
	}

	to := Normalize(opts.To)
	if len(to) == 0 {
		return nil, ErrNoRecipients
	}

	m := &Message{
		from:        opts.From,
		to:          to,
		cc:          Normalize(opts.CC),
		bcc:         Normalize(opts.BCC),
		subject:     opts.Subject,
		text:        opts.Text,
		html:        opts.HTML,
		headers:     make(map[string]string, len(opts.Headers)),
		attachments: append([]Attachment(nil), opts.Attachments...),
		result:      newResult(),
	}

	if opts.Reply != nil && !opts.Reply.IsZero() {
		reply := *opts.Reply
		m.reply = &reply
	}

	if opts.DSNOverride != nil {
		dsn := *opts.DSNOverride
		m.dsn = &dsn
	}

	for k, v := range opts.Headers {
		if strings.EqualFold(k, HeaderMessageID) {
			m.messageID = v
			continue
		}
		m.headers[k] = v
	}

	if m.messageID == "" {
		m.messageID = generateMessageID(m.from.Email)
	}

	return m, nil
}

// generateMessageID builds "<uuid@domain>" where domain is everything after
// the last '@' of the sender.
func generateMessageID(from string) string {
	domain := from
	if i := strings.LastIndexByte(from, '@'); i >= 0 {
		domain = from[i+1:]
	}

	return "<" + uuid.NewString() + "@" + domain + ">"
}

func (m *Message) From() Address { return m.from }

func (m *Message) To() AddressList { return append(AddressList(nil), m.to...) }

// Reply returns the Reply-To address, or nil when none was given.
func (m *Message) Reply() *Address {
	if m.reply == nil {
		return nil
	}
	r := *m.reply

	return &r
}

func (m *Message) CC() AddressList { return append(AddressList(nil), m.cc...) }

// BCC returns the blind copy recipients. They never appear in the payload;
// transports add them to the envelope.
func (m *Message) BCC() AddressList { return append(AddressList(nil), m.bcc...) }

func (m *Message) Subject() string { return m.subject }

func (m *Message) Text() string { return m.text }

func (m *Message) HTML() string { return m.html }

// MessageID returns the caller supplied or generated Message-ID.
func (m *Message) MessageID() string { return m.messageID }

// CustomHeaders returns a copy of the caller supplied headers, excluding
// Message-ID.
func (m *Message) CustomHeaders() map[string]string { return maps.Clone(m.headers) }

func (m *Message) Attachments() []Attachment { return append([]Attachment(nil), m.attachments...) }

// DSNOverride returns the per-message DSN parameters, or nil.
func (m *Message) DSNOverride() *DSN {
	if m.dsn == nil {
		return nil
	}
	d := *m.dsn

	return &d
}

// Recipients returns every envelope recipient: to, then cc, then bcc.
func (m *Message) Recipients() []string {
	out := make([]string, 0, len(m.to)+len(m.cc)+len(m.bcc))
	out = append(out, m.to.Emails()...)
	out = append(out, m.cc.Emails()...)

	return append(out, m.bcc.Emails()...)
}
