package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wujiyu305/worker-mailer/internal/email"
)

type fakeTransport struct {
	mu      sync.Mutex
	err     error
	sent    []*email.Message
	payload []byte
}

func (f *fakeTransport) Send(_ context.Context, msg *email.Message, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	f.payload = payload
	return f.err
}

func (f *fakeTransport) Name() string { return "fake" }

const validMessage = `{
	"from": {"name": "Alice", "email": "alice@example.com"},
	"to": ["bob@example.com", {"name": "Carol", "email": "carol@example.com"}],
	"bcc": "hidden@example.com",
	"subject": "Quarterly report",
	"text": "See attached.",
	"attachments": [{"filename": "report.csv", "content": "YSxiCjEsMgo="}],
	"dsnOverride": {"NOTIFY": {"FAILURE": true}}
}`

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestSend(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	rec := do(t, NewRouter(ft), http.MethodPost, "/send", validMessage)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var resp sendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "fake", resp.Transport)
	assert.Equal(t, []string{"bob@example.com", "carol@example.com", "hidden@example.com"}, resp.Recipients)
	assert.Equal(t, rec.Header().Get(messageIDHeader), resp.MessageID)

	require.Len(t, ft.sent, 1)
	msg := ft.sent[0]
	assert.True(t, msg.Settled())
	assert.Equal(t, resp.MessageID, msg.MessageID())
	require.NotNil(t, msg.DSNOverride())
	assert.True(t, msg.DSNOverride().Notify.Failure)
	assert.Contains(t, string(ft.payload), `filename="report.csv"`)
	assert.NotContains(t, string(ft.payload), "hidden@example.com")
}

func TestSendDeliveryFailure(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{err: errors.New("relay unavailable")}
	rec := do(t, NewRouter(ft), http.MethodPost, "/send", validMessage)

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "relay unavailable")
}

func TestSendValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{"from":`, "unexpected EOF"},
		{"unknown field", `{"from": "a@example.com", "to": "b@example.com", "text": "x", "priority": 1}`, "unknown field"},
		{"no body", `{"from": "a@example.com", "to": "b@example.com", "subject": "s"}`, email.ErrNoBody.Error()},
		{"no recipients", `{"from": "a@example.com", "text": "x"}`, email.ErrNoRecipients.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ft := &fakeTransport{}
			rec := do(t, NewRouter(ft), http.MethodPost, "/send", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			assert.Empty(t, ft.sent)
		})
	}
}

func TestCompose(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	rec := do(t, NewRouter(ft), http.MethodPost, "/compose", validMessage)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "message/rfc822", rec.Header().Get("Content-Type"))
	assert.Empty(t, ft.sent)

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "From: Alice <alice@example.com>\r\n"))
	assert.Contains(t, body, "Message-ID: "+rec.Header().Get(messageIDHeader))
	assert.False(t, strings.HasSuffix(body, "\r\n.\r\n"))
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	h := NewRouter(&fakeTransport{})

	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","transport":"fake"}`, rec.Body.String())

	do(t, h, http.MethodPost, "/send", validMessage)

	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mailer_deliveries_total{transport="fake",status="ok"}`)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="/healthz",code="200"}`)
}

func TestRequestIDPropagated(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "caller-id")
	rec := httptest.NewRecorder()
	NewRouter(&fakeTransport{}).ServeHTTP(rec, req)

	assert.Equal(t, "caller-id", rec.Header().Get(requestIDHeader))
}

func TestCORS(t *testing.T) {
	t.Parallel()

	h := NewRouter(&fakeTransport{}, WithAllowedOrigins("https://app.example.com"))

	req := httptest.NewRequest(http.MethodOptions, "/send", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServerShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer("", NewRouter(&fakeTransport{}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	require.NoError(t, <-done)
}
