package email

// Error is a constant error type for the package's sentinel errors.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrNoBody is returned by New when neither text nor html is set.
	ErrNoBody Error = "email: message must have text or html content"

	// ErrNoRecipients is returned by New when the to list is empty.
	ErrNoRecipients Error = "email: message must have at least one to recipient"

	// ErrAlreadySettled is returned when a message's result is settled twice.
	ErrAlreadySettled Error = "email: result already settled"
)
