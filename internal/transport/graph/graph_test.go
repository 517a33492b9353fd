package graph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wujiyu305/worker-mailer/internal/email"
	"github.com/wujiyu305/worker-mailer/internal/transport"
)

var fastRetry = transport.Retry{Attempts: 3, BaseDelay: time.Millisecond}

func newMessage(t *testing.T, opts email.Options) *email.Message {
	t.Helper()

	if opts.To == nil {
		opts.To = email.AddressList{{Email: "user@example.com"}}
	}
	if opts.Text == "" && opts.HTML == "" {
		opts.Text = "Body"
	}

	msg, err := email.New(opts)
	require.NoError(t, err)

	return msg
}

func TestBuildSendMailRequest(t *testing.T) {
	t.Parallel()

	msg := newMessage(t, email.Options{
		From:    email.Address{Name: "Sender", Email: "sender@example.com"},
		To:      email.AddressList{{Email: "alice@example.com"}, {Name: "Bob", Email: "bob@example.com"}},
		CC:      email.AddressList{{Email: "carol@example.com"}},
		BCC:     email.AddressList{{Email: "dave@example.com"}},
		Reply:   &email.Address{Email: "reply@example.com"},
		Subject: "Test Subject",
		Text:    "Plain text",
		HTML:    "<p>HTML content</p>",
		Headers: map[string]string{"X-Campaign": "launch", "List-Unsubscribe": "<mailto:u@example.com>"},
		Attachments: []email.Attachment{
			{Filename: "report.pdf", Content: "SGVsbG8="},
		},
	})

	req := buildSendMailRequest(msg, true)
	m := req.Message

	assert.Equal(t, messageBody{ContentType: "html", Content: "<p>HTML content</p>"}, m.Body)
	require.Len(t, m.ToRecipients, 2)
	assert.Equal(t, "Bob", m.ToRecipients[1].EmailAddress.Name)
	assert.Len(t, m.CcRecipients, 1)
	assert.Len(t, m.BccRecipients, 1)
	require.Len(t, m.ReplyTo, 1)
	assert.Equal(t, "reply@example.com", m.ReplyTo[0].EmailAddress.Address)
	require.NotNil(t, m.From)
	assert.Equal(t, "sender@example.com", m.From.EmailAddress.Address)
	assert.Equal(t, []messageHeader{{Name: "X-Campaign", Value: "launch"}}, m.InternetMessageHeaders)
	assert.Equal(t, msg.MessageID(), m.InternetMessageID)

	require.Len(t, m.Attachments, 1)
	assert.Equal(t, "SGVsbG8=", m.Attachments[0].ContentBytes)
	assert.Equal(t, "application/pdf", m.Attachments[0].ContentType)
	assert.True(t, req.SaveToSentItems)
}

func TestBuildSendMailRequest_TextOnly(t *testing.T) {
	t.Parallel()

	req := buildSendMailRequest(newMessage(t, email.Options{Text: "Hello"}), false)
	assert.Equal(t, messageBody{ContentType: "text", Content: "Hello"}, req.Message.Body)

	raw, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	message := decoded["message"].(map[string]any)
	assert.NotContains(t, message, "bccRecipients")
}

func TestDroppedHeaders(t *testing.T) {
	t.Parallel()

	msg := newMessage(t, email.Options{
		Headers: map[string]string{
			"X-Campaign":       "launch",
			"x-lower":          "kept",
			"List-Unsubscribe": "<mailto:u@example.com>",
			"Auto-Submitted":   "auto-generated",
		},
	})

	assert.Equal(t, []string{"Auto-Submitted", "List-Unsubscribe"}, droppedHeaders(msg))
	assert.Len(t, buildSendMailRequest(msg, false).Message.InternetMessageHeaders, 2)

	assert.Empty(t, droppedHeaders(newMessage(t, email.Options{Headers: map[string]string{"X-Only": "1"}})))
}

func newTestTransport(t *testing.T, graph http.HandlerFunc) (*Transport, *atomic.Int32) {
	t.Helper()

	var tokenCalls atomic.Int32
	tokens := tokenServer(t, &tokenCalls, 3600)

	srv := httptest.NewServer(graph)
	t.Cleanup(srv.Close)

	return newWithOverrides(
		Config{TenantID: "t", ClientID: "c", ClientSecret: "s", Sender: "sender@example.com"},
		srv.URL, tokens.URL, srv.Client(), fastRetry,
	), &tokenCalls
}

func TestTransport_SendSuccess(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		var body sendMailRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Test", body.Message.Subject)
		w.WriteHeader(http.StatusAccepted)
	})

	require.NoError(t, tr.Send(context.Background(), newMessage(t, email.Options{Subject: "Test"}), nil))
}

func TestTransport_SendDropsNonInternetHeaders(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		var body sendMailRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []messageHeader{{Name: "X-Trace", Value: "abc"}}, body.Message.InternetMessageHeaders)
		w.WriteHeader(http.StatusAccepted)
	})

	msg := newMessage(t, email.Options{Headers: map[string]string{"X-Trace": "abc", "Precedence": "bulk"}})
	require.NoError(t, tr.Send(context.Background(), msg, nil))
}

func TestTransport_PermanentError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"ErrorInvalidRecipients","message":"bad recipient"}}`))
	})

	err := tr.Send(context.Background(), newMessage(t, email.Options{}), nil)

	var se *sendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "bad recipient", se.message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTransport_RetryOn5xx(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	require.NoError(t, tr.Send(context.Background(), newMessage(t, email.Options{}), nil))
	assert.Equal(t, int32(3), calls.Load())
}

func TestTransport_RetryOn401WithTokenRenewal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	tr, tokenCalls := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer token-2", r.Header.Get("Authorization"), "renewed token")
		w.WriteHeader(http.StatusAccepted)
	})

	require.NoError(t, tr.Send(context.Background(), newMessage(t, email.Options{}), nil))
	assert.Equal(t, int32(2), tokenCalls.Load())
}

func TestTransport_RetriesExhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	require.Error(t, tr.Send(context.Background(), newMessage(t, email.Options{}), nil))
	assert.Equal(t, int32(fastRetry.Attempts+1), calls.Load())
}

func TestTransport_ContextCancellation(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := tr.Send(ctx, newMessage(t, email.Options{}), nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "error: %v", err)
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
		{http.StatusUnauthorized, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.transient, classifyError(tt.status, "msg", "").transient, "classifyError(%d)", tt.status)
	}
}

func TestRetryAfterDelay(t *testing.T) {
	t.Parallel()

	tr := newWithOverrides(Config{}, "", "", http.DefaultClient, transport.DefaultRetry)

	assert.Equal(t, 7*time.Second, tr.retryAfterDelay("7", 0))
	assert.Equal(t, 2*time.Second, tr.retryAfterDelay("", 1))
}
