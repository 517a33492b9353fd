// Package resend implements a Transport backed by the Resend API.
package resend

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"

	"github.com/wujiyu305/worker-mailer/internal/email"
	"github.com/wujiyu305/worker-mailer/internal/encoding"
)

// Sender is the subset of the Resend emails service used by Transport.
type Sender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Transport sends messages through Resend.
type Transport struct {
	emails Sender
}

// New creates a Transport authenticated with apiKey.
func New(apiKey string) *Transport {
	return NewWithSender(resend.NewClient(apiKey).Emails)
}

// NewWithSender creates a Transport around a custom sender, used for testing.
func NewWithSender(s Sender) *Transport {
	return &Transport{emails: s}
}

// Send maps the message onto a Resend request. Resend renders its own MIME,
// so payload is not used.
func (t *Transport) Send(ctx context.Context, msg *email.Message, _ []byte) error {
	req, err := buildRequest(msg)
	if err != nil {
		return err
	}

	resp, err := t.emails.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("resend: sending email: %w", err)
	}
	if resp != nil {
		slog.DebugContext(ctx, "resend accepted message", "resend_id", resp.Id)
	}

	return nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "resend"
}

func buildRequest(msg *email.Message) (*resend.SendEmailRequest, error) {
	headers := msg.CustomHeaders()
	headers[email.HeaderMessageID] = msg.MessageID()

	req := &resend.SendEmailRequest{
		From:        msg.From().String(),
		To:          addresses(msg.To()),
		Cc:          addresses(msg.CC()),
		Bcc:         addresses(msg.BCC()),
		Subject:     msg.Subject(),
		Html:        msg.HTML(),
		Text:        msg.Text(),
		Headers:     headers,
		Attachments: make([]*resend.Attachment, 0, len(msg.Attachments())),
	}

	if reply := msg.Reply(); reply != nil {
		req.ReplyTo = reply.String()
	}

	for _, att := range msg.Attachments() {
		content, err := base64.StdEncoding.DecodeString(att.Content)
		if err != nil {
			return nil, fmt.Errorf("resend: attachment %q is not valid base64: %w", att.Filename, err)
		}

		contentType := att.MIMEType
		if contentType == "" {
			contentType = encoding.MIMEType(att.Filename)
		}

		req.Attachments = append(req.Attachments, &resend.Attachment{
			Content:     content,
			Filename:    att.Filename,
			ContentType: contentType,
		})
	}

	return req, nil
}

func addresses(list email.AddressList) []string {
	if len(list) == 0 {
		return nil
	}

	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.String()
	}

	return out
}
