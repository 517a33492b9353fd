package resend

import (
	"context"
	"errors"
	"testing"

	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wujiyu305/worker-mailer/internal/email"
)

type mockSender struct {
	req *resend.SendEmailRequest
	err error
}

func (m *mockSender) SendWithContext(_ context.Context, req *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	m.req = req
	if m.err != nil {
		return nil, m.err
	}
	return &resend.SendEmailResponse{Id: "re_123"}, nil
}

func newMessage(t *testing.T, atts ...email.Attachment) *email.Message {
	t.Helper()

	msg, err := email.New(email.Options{
		From:        email.Address{Name: "Sender", Email: "sender@example.com"},
		To:          email.AddressList{{Email: "to@example.com"}},
		BCC:         email.AddressList{{Email: "bcc@example.com"}},
		Reply:       &email.Address{Email: "reply@example.com"},
		Subject:     "Hello",
		Text:        "text body",
		HTML:        "<p>html body</p>",
		Headers:     map[string]string{"X-Campaign": "launch"},
		Attachments: atts,
	})
	require.NoError(t, err)

	return msg
}

func TestSend(t *testing.T) {
	t.Parallel()

	m := &mockSender{}
	tr := NewWithSender(m)
	msg := newMessage(t, email.Attachment{Filename: "a.txt", Content: "aGVsbG8="})

	require.NoError(t, tr.Send(context.Background(), msg, nil))

	req := m.req
	require.NotNil(t, req)
	assert.Equal(t, "Sender <sender@example.com>", req.From)
	assert.Equal(t, []string{"to@example.com"}, req.To)
	assert.Equal(t, []string{"bcc@example.com"}, req.Bcc)
	assert.Nil(t, req.Cc)
	assert.Equal(t, "reply@example.com", req.ReplyTo)
	assert.Equal(t, "<p>html body</p>", req.Html)
	assert.Equal(t, "launch", req.Headers["X-Campaign"])
	assert.Equal(t, msg.MessageID(), req.Headers[email.HeaderMessageID])
	require.Len(t, req.Attachments, 1)
	assert.Equal(t, []byte("hello"), req.Attachments[0].Content)
	assert.Equal(t, "text/plain", req.Attachments[0].ContentType)
}

func TestSendInvalidAttachment(t *testing.T) {
	t.Parallel()

	m := &mockSender{}
	err := NewWithSender(m).Send(context.Background(), newMessage(t, email.Attachment{Filename: "a.bin", Content: "!!!"}), nil)

	require.Error(t, err)
	assert.Nil(t, m.req)
}

func TestSendAPIError(t *testing.T) {
	t.Parallel()

	apiErr := errors.New("rate limited")
	err := NewWithSender(&mockSender{err: apiErr}).Send(context.Background(), newMessage(t), nil)

	assert.ErrorIs(t, err, apiErr)
}
