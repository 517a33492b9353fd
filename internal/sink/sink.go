// Package sink runs a local SMTP server that captures submitted messages
// and hands them to a Handler, for development and tests.
package sink

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// shutdownTimeout bounds the wait for in-flight sessions on shutdown.
const shutdownTimeout = 30 * time.Second

// Recipient is one RCPT TO with its DSN NOTIFY values.
type Recipient struct {
	Address string
	Notify  []string
}

// Envelope is one received transaction.
type Envelope struct {
	From       string
	Return     string
	EnvelopeID string
	Recipients []Recipient
	Data       []byte
}

// Addresses returns the recipient addresses.
func (e *Envelope) Addresses() []string {
	out := make([]string, len(e.Recipients))
	for i, r := range e.Recipients {
		out[i] = r.Address
	}

	return out
}

// Handler consumes received envelopes. A returned error is reported to the
// client as a temporary failure.
type Handler interface {
	Receive(ctx context.Context, env *Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env *Envelope) error

func (f HandlerFunc) Receive(ctx context.Context, env *Envelope) error { return f(ctx, env) }

// Config holds the sink server settings.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":2525").
	ListenAddr string
	// Hostname is announced in the greeting. Defaults to "localhost".
	Hostname string
	// TLSConfig enables STARTTLS when set.
	TLSConfig *tls.Config
	// AuthUsername and AuthPassword require AUTH PLAIN when both are set.
	AuthUsername string
	AuthPassword string
	// MaxMessageBytes limits DATA size. Zero means 25 MiB.
	MaxMessageBytes int64
}

// Server is the capture SMTP server.
type Server struct {
	cfg     Config
	auth    authenticator
	handler Handler

	srv *smtp.Server

	mu       sync.Mutex
	listener net.Listener
	ctx      context.Context
}

// New creates a Server that passes every accepted message to h.
func New(cfg Config, h Handler) *Server {
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	if cfg.MaxMessageBytes == 0 {
		cfg.MaxMessageBytes = 25 << 20
	}

	s := &Server{
		cfg:     cfg,
		auth:    authenticator{username: cfg.AuthUsername, password: cfg.AuthPassword},
		handler: h,
		ctx:     context.Background(),
	}

	srv := smtp.NewServer(s)
	srv.Domain = cfg.Hostname
	srv.TLSConfig = cfg.TLSConfig
	srv.AllowInsecureAuth = cfg.TLSConfig == nil
	srv.MaxMessageBytes = cfg.MaxMessageBytes
	srv.ReadTimeout = 5 * time.Minute
	srv.WriteTimeout = time.Minute
	srv.EnableDSN = true
	s.srv = srv

	return s
}

// Listen binds the listen address. It is called by ListenAndServe and may be
// called first to learn the bound address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("sink: listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	return nil
}

// ListenAndServe listens if needed and serves until ctx is cancelled, then
// waits up to 30 seconds for in-flight sessions.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.ctx = ctx
	s.mu.Unlock()

	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		ln = s.listener
	}

	slog.Info("SMTP sink listening",
		"addr", ln.Addr().String(),
		"auth_enabled", s.auth.enabled(),
		"tls_enabled", s.cfg.TLSConfig != nil,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, smtp.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down SMTP sink")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown timeout reached, forcing close", "error", err)
		return s.srv.Close()
	}

	return nil
}

// Addr returns the listener address, or empty string if not listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}

	return ""
}

// NewSession implements smtp.Backend.
func (s *Server) NewSession(c *smtp.Conn) (smtp.Session, error) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	return &session{server: s, ctx: ctx, remote: c.Conn().RemoteAddr().String()}, nil
}

type session struct {
	server *Server
	ctx    context.Context
	remote string
	authed bool
	env    Envelope
}

func (s *session) AuthMechanisms() []string {
	if !s.server.auth.enabled() {
		return nil
	}

	return []string{sasl.Plain}
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, smtp.ErrAuthUnsupported
	}

	return sasl.NewPlainServer(func(_, username, password string) error {
		if err := s.server.auth.verify(username, password); err != nil {
			slog.Warn("sink authentication failed", "remote", s.remote, "username", username)
			return err
		}
		s.authed = true
		return nil
	}), nil
}

func (s *session) Mail(from string, opts *smtp.MailOptions) error {
	if s.server.auth.enabled() && !s.authed {
		return smtp.ErrAuthRequired
	}

	s.env = Envelope{From: from}
	if opts != nil {
		s.env.Return = string(opts.Return)
		s.env.EnvelopeID = opts.EnvelopeID
	}

	return nil
}

func (s *session) Rcpt(to string, opts *smtp.RcptOptions) error {
	r := Recipient{Address: to}
	if opts != nil {
		for _, n := range opts.Notify {
			r.Notify = append(r.Notify, string(n))
		}
	}
	s.env.Recipients = append(s.env.Recipients, r)

	return nil
}

func (s *session) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	env := s.env
	env.Data = data

	if err := s.server.handler.Receive(s.ctx, &env); err != nil {
		slog.Error("sink handler failed", "from", env.From, "error", err)
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Temporary failure, please try again later",
		}
	}

	return nil
}

func (s *session) Reset() {
	s.env = Envelope{}
}

func (s *session) Logout() error {
	return nil
}
