package smtp

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wujiyu305/worker-mailer/internal/email"
	"github.com/wujiyu305/worker-mailer/internal/sink"
	mailtls "github.com/wujiyu305/worker-mailer/internal/tls"
	"github.com/wujiyu305/worker-mailer/internal/transport"
)

type recorder struct {
	mu   sync.Mutex
	envs []*sink.Envelope
}

func (r *recorder) Receive(_ context.Context, env *sink.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return nil
}

func (r *recorder) last(t *testing.T) *sink.Envelope {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.envs)
	return r.envs[len(r.envs)-1]
}

func startSink(t *testing.T, cfg sink.Config) (*recorder, string, int) {
	t.Helper()

	rec := &recorder{}
	cfg.ListenAddr = "127.0.0.1:0"
	s := sink.New(cfg, rec)
	require.NoError(t, s.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.ListenAndServe(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	host, portStr, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return rec, host, port
}

func newMessage(t *testing.T, dsn *email.DSN) *email.Message {
	t.Helper()

	msg, err := email.New(email.Options{
		From:        email.Address{Name: "Sender", Email: "sender@example.com"},
		To:          email.AddressList{{Email: "to@example.com"}},
		CC:          email.AddressList{{Email: "cc@example.com"}},
		BCC:         email.AddressList{{Email: "bcc@example.com"}},
		Subject:     "Hello",
		Text:        "first line\n.leading dot line",
		HTML:        "<p>hello</p>",
		DSNOverride: dsn,
	})
	require.NoError(t, err)

	return msg
}

func TestSendDeliversPayload(t *testing.T) {
	t.Parallel()

	rec, host, port := startSink(t, sink.Config{})
	tr := New(Config{Host: host, Port: port, Timeout: 5 * time.Second})
	msg := newMessage(t, nil)
	payload := msg.Payload()

	require.NoError(t, tr.Send(context.Background(), msg, payload))

	env := rec.last(t)
	assert.Equal(t, "sender@example.com", env.From)
	assert.Equal(t, []string{"to@example.com", "cc@example.com", "bcc@example.com"}, env.Addresses())
	assert.Equal(t, string(email.StripTerminator(payload)), string(env.Data))
	assert.Empty(t, env.Return)
	assert.Empty(t, env.Recipients[0].Notify)
}

func TestSendWithDSN(t *testing.T) {
	t.Parallel()

	rec, host, port := startSink(t, sink.Config{})
	tr := New(Config{
		Host: host,
		Port: port,
		DSN:  &email.DSN{Ret: email.DSNRet{Full: true}, Notify: email.DSNNotify{Success: true}},
	})

	override := &email.DSN{
		EnvelopeID: "env-42",
		Ret:        email.DSNRet{Headers: true},
		Notify:     email.DSNNotify{Failure: true, Delay: true},
	}
	require.NoError(t, tr.Send(context.Background(), newMessage(t, override), newMessage(t, override).Payload()))

	env := rec.last(t)
	assert.Equal(t, "HDRS", env.Return)
	assert.Equal(t, "env-42", env.EnvelopeID)
	for _, r := range env.Recipients {
		assert.Equal(t, []string{"FAILURE", "DELAY"}, r.Notify)
	}

	require.NoError(t, tr.Send(context.Background(), newMessage(t, nil), newMessage(t, nil).Payload()))
	env = rec.last(t)
	assert.Equal(t, "FULL", env.Return)
	assert.Equal(t, []string{"SUCCESS"}, env.Recipients[0].Notify)
}

func TestSendWithAuth(t *testing.T) {
	t.Parallel()

	rec, host, port := startSink(t, sink.Config{AuthUsername: "user", AuthPassword: "secret"})

	bad := New(Config{Host: host, Port: port, Username: "user", Password: "wrong"})
	require.Error(t, bad.Send(context.Background(), newMessage(t, nil), newMessage(t, nil).Payload()))

	good := New(Config{Host: host, Port: port, Username: "user", Password: "secret"})
	require.NoError(t, good.Send(context.Background(), newMessage(t, nil), newMessage(t, nil).Payload()))
	assert.Equal(t, "sender@example.com", rec.last(t).From)
}

func TestSendWithStartTLS(t *testing.T) {
	t.Parallel()

	serverTLS, err := mailtls.LoadOrGenerateTLS("", "", "127.0.0.1")
	require.NoError(t, err)
	clientTLS, err := mailtls.ClientConfig("", &serverTLS.Certificates[0])
	require.NoError(t, err)

	rec, host, port := startSink(t, sink.Config{
		TLSConfig:    serverTLS,
		AuthUsername: "user",
		AuthPassword: "secret",
	})

	tr := New(Config{
		Host:      host,
		Port:      port,
		StartTLS:  true,
		TLSConfig: clientTLS,
		Username:  "user",
		Password:  "secret",
	})
	require.NoError(t, tr.Send(context.Background(), newMessage(t, nil), newMessage(t, nil).Payload()))
	assert.Equal(t, "sender@example.com", rec.last(t).From)
}

func TestSendStartTLSRequired(t *testing.T) {
	t.Parallel()

	rec, host, port := startSink(t, sink.Config{AuthUsername: "user", AuthPassword: "secret"})

	tr := New(Config{
		Host:     host,
		Port:     port,
		StartTLS: true,
		Username: "user",
		Password: "secret",
		Timeout:  5 * time.Second,
	})
	err := tr.Send(context.Background(), newMessage(t, nil), newMessage(t, nil).Payload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STARTTLS")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.envs)
}

func TestSendCanceledContext(t *testing.T) {
	t.Parallel()

	rec, host, port := startSink(t, sink.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(Config{Host: host, Port: port}).Send(ctx, newMessage(t, nil), newMessage(t, nil).Payload())
	require.Error(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.envs)
}

func TestDeliverSettlesResult(t *testing.T) {
	t.Parallel()

	_, host, port := startSink(t, sink.Config{})
	msg := newMessage(t, nil)

	require.NoError(t, transport.Deliver(context.Background(), New(Config{Host: host, Port: port}), msg))
	assert.NoError(t, msg.Wait(context.Background()))
}

func TestSendConnectionRefused(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	msg := newMessage(t, nil)
	err = transport.Deliver(context.Background(), New(Config{Host: "127.0.0.1", Port: port, Timeout: time.Second}), msg)
	require.Error(t, err)
	assert.Error(t, msg.Wait(context.Background()))
}

func TestMapDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		dsn        email.DSN
		wantReturn smtp.DSNReturn
		wantNotify []smtp.DSNNotify
	}{
		{
			name:       "headers wins over full",
			dsn:        email.DSN{Ret: email.DSNRet{Headers: true, Full: true}},
			wantReturn: smtp.DSNReturnHeaders,
			wantNotify: []smtp.DSNNotify{smtp.DSNNotifyNever},
		},
		{
			name:       "full",
			dsn:        email.DSN{Ret: email.DSNRet{Full: true}, Notify: email.DSNNotify{Success: true}},
			wantReturn: smtp.DSNReturnFull,
			wantNotify: []smtp.DSNNotify{smtp.DSNNotifySuccess},
		},
		{
			name:       "all notify",
			dsn:        email.DSN{Notify: email.DSNNotify{Success: true, Failure: true, Delay: true}},
			wantNotify: []smtp.DSNNotify{smtp.DSNNotifySuccess, smtp.DSNNotifyFailure, smtp.DSNNotifyDelayed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts, notify := MapDSN(&tt.dsn)
			assert.Equal(t, tt.wantReturn, opts.Return)
			assert.Equal(t, tt.wantNotify, notify)
		})
	}
}

func TestAuthClientSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		authType   string
		advertised string
		wantMech   string
		wantErr    error
	}{
		{"", "LOGIN PLAIN", "PLAIN", nil},
		{"", "LOGIN", "LOGIN", nil},
		{"", "CRAM-MD5", "CRAM-MD5", nil},
		{"login", "PLAIN", "LOGIN", nil},
		{"", "XOAUTH2", "", ErrAuthUnsupported},
	}

	for _, tt := range tests {
		client, err := authClient(tt.authType, tt.advertised, "u", "p")
		if tt.wantErr != nil {
			assert.True(t, errors.Is(err, tt.wantErr), "authClient(%q, %q): %v", tt.authType, tt.advertised, err)
			continue
		}
		require.NoError(t, err)
		mech, _, err := client.Start()
		require.NoError(t, err)
		assert.Equal(t, tt.wantMech, mech)
	}
}

func TestCRAMMD5(t *testing.T) {
	t.Parallel()

	c := newCRAMMD5Client("tim", "tanstaaftanstaaf")
	resp, err := c.Next([]byte("<1896.697170952@postoffice.reston.mci.net>"))
	require.NoError(t, err)
	assert.Equal(t, "tim b913a602c7eda7a495b4e6e7334d3890", string(resp))
}
