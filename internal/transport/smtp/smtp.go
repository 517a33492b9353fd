// Package smtp implements a Transport that submits composed payloads to an
// SMTP relay, with optional TLS, authentication and DSN parameters.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/wujiyu305/worker-mailer/internal/email"
	mailtls "github.com/wujiyu305/worker-mailer/internal/tls"
)

// Authentication mechanisms.
const (
	AuthPlain   = "plain"
	AuthLogin   = "login"
	AuthCRAMMD5 = "cram-md5"
)

// ErrAuthUnsupported is returned when the server offers none of the usable
// mechanisms.
var ErrAuthUnsupported = errors.New("smtp: no supported authentication mechanism")

// Config holds the relay connection settings.
type Config struct {
	Host string
	Port int
	// Secure dials with implicit TLS (usually port 465).
	Secure bool
	// StartTLS upgrades a plain connection before authenticating. The server
	// must offer STARTTLS.
	StartTLS bool
	// TLSConfig overrides the TLS client settings. ServerName defaults to Host.
	TLSConfig *tls.Config

	Username string
	Password string
	// AuthType forces one of AuthPlain, AuthLogin or AuthCRAMMD5. When empty
	// the first mechanism the server offers, in that order, is used.
	AuthType string

	// LocalName is sent in EHLO on plain and implicit TLS connections.
	// Defaults to "localhost".
	LocalName string
	// Timeout bounds each command and the data submission.
	Timeout time.Duration

	// DSN is the default delivery status notification request, replaced by a
	// message's own override.
	DSN *email.DSN
}

// Transport submits messages to a single relay. A new connection is opened
// for every message.
type Transport struct {
	cfg Config
}

// New creates a Transport.
func New(cfg Config) *Transport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &Transport{cfg: cfg}
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "smtp"
}

// Send runs one SMTP transaction: MAIL FROM the sender, RCPT TO every to, cc
// and bcc recipient, then DATA with the payload.
func (t *Transport) Send(ctx context.Context, msg *email.Message, payload []byte) error {
	d := net.Dialer{Timeout: t.cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", t.address())
	if err != nil {
		return fmt.Errorf("smtp: connect %s: %w", t.address(), err)
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := t.handshake(conn)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	mailOpts, notify := t.dsnOptions(c, msg)

	if err := c.Mail(msg.From().Email, mailOpts); err != nil {
		return fmt.Errorf("smtp: MAIL FROM: %w", err)
	}

	for _, rcpt := range msg.Recipients() {
		var rcptOpts *smtp.RcptOptions
		if len(notify) > 0 {
			rcptOpts = &smtp.RcptOptions{Notify: notify}
		}
		if err := c.Rcpt(rcpt, rcptOpts); err != nil {
			return fmt.Errorf("smtp: RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp: DATA: %w", err)
	}
	if _, err := w.Write(email.StripTerminator(payload)); err != nil {
		w.Close()
		return fmt.Errorf("smtp: write data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp: end data: %w", err)
	}

	if err := c.Quit(); err != nil {
		slog.DebugContext(ctx, "smtp quit failed", "error", err)
	}

	return nil
}

func (t *Transport) address() string {
	return net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
}

func (t *Transport) tlsConfig() *tls.Config {
	if t.cfg.TLSConfig != nil {
		cfg := t.cfg.TLSConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = t.cfg.Host
		}
		return cfg
	}

	cfg, _ := mailtls.ClientConfig(t.cfg.Host, nil)
	return cfg
}

// handshake greets the server over conn, upgrades it to TLS when configured
// and authenticates.
func (t *Transport) handshake(conn net.Conn) (*smtp.Client, error) {
	var (
		c   *smtp.Client
		err error
	)

	switch {
	case t.cfg.Secure:
		c, err = t.hello(tls.Client(conn, t.tlsConfig()))
	case t.cfg.StartTLS:
		// NewClientStartTLS sends its own EHLO, so LocalName is not used here.
		// A server without STARTTLS is rejected before any credentials are sent.
		c, err = smtp.NewClientStartTLS(conn, t.tlsConfig())
		if err != nil {
			return nil, fmt.Errorf("smtp: STARTTLS: %w", err)
		}
	default:
		c, err = t.hello(conn)
	}
	if err != nil {
		return nil, err
	}

	c.CommandTimeout = t.cfg.Timeout
	c.SubmissionTimeout = t.cfg.Timeout

	if t.cfg.Username == "" {
		return c, nil
	}

	_, advertised := c.Extension("AUTH")
	client, err := authClient(t.cfg.AuthType, advertised, t.cfg.Username, t.cfg.Password)
	if err != nil {
		c.Close()
		return nil, err
	}
	if err := c.Auth(client); err != nil {
		c.Close()
		return nil, fmt.Errorf("smtp: AUTH: %w", err)
	}

	return c, nil
}

func (t *Transport) hello(conn net.Conn) (*smtp.Client, error) {
	localName := t.cfg.LocalName
	if localName == "" {
		localName = "localhost"
	}

	c := smtp.NewClient(conn)
	c.CommandTimeout = t.cfg.Timeout
	if err := c.Hello(localName); err != nil {
		c.Close()
		return nil, fmt.Errorf("smtp: EHLO: %w", err)
	}

	return c, nil
}

// authClient picks the SASL client for the configured or best advertised
// mechanism.
func authClient(authType, advertised, username, password string) (sasl.Client, error) {
	mech := strings.ToLower(authType)
	if mech == "" {
		offered := strings.Fields(strings.ToLower(advertised))
		for _, candidate := range []string{AuthPlain, AuthLogin, AuthCRAMMD5} {
			if contains(offered, candidate) {
				mech = candidate
				break
			}
		}
	}

	switch mech {
	case AuthPlain:
		return sasl.NewPlainClient("", username, password), nil
	case AuthLogin:
		return sasl.NewLoginClient(username, password), nil
	case AuthCRAMMD5:
		return newCRAMMD5Client(username, password), nil
	default:
		return nil, fmt.Errorf("%w: server offers %q", ErrAuthUnsupported, advertised)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}

// dsnOptions builds the MAIL and RCPT DSN parameters from the message override
// or the transport default. They are dropped when the server lacks DSN.
func (t *Transport) dsnOptions(c *smtp.Client, msg *email.Message) (*smtp.MailOptions, []smtp.DSNNotify) {
	dsn := msg.DSNOverride()
	if dsn == nil {
		dsn = t.cfg.DSN
	}
	if dsn == nil {
		return nil, nil
	}

	if ok, _ := c.Extension("DSN"); !ok {
		slog.Warn("smtp server does not support DSN, ignoring DSN parameters",
			"host", t.cfg.Host,
			"message_id", msg.MessageID(),
		)
		return nil, nil
	}

	return MapDSN(dsn)
}

// MapDSN converts DSN settings to go-smtp parameters. RET=HDRS wins over
// RET=FULL, and an empty NOTIFY set becomes NEVER.
func MapDSN(dsn *email.DSN) (*smtp.MailOptions, []smtp.DSNNotify) {
	opts := &smtp.MailOptions{EnvelopeID: dsn.EnvelopeID}

	switch {
	case dsn.Ret.Headers:
		opts.Return = smtp.DSNReturnHeaders
	case dsn.Ret.Full:
		opts.Return = smtp.DSNReturnFull
	}

	var notify []smtp.DSNNotify
	if dsn.Notify.Success {
		notify = append(notify, smtp.DSNNotifySuccess)
	}
	if dsn.Notify.Failure {
		notify = append(notify, smtp.DSNNotifyFailure)
	}
	if dsn.Notify.Delay {
		notify = append(notify, smtp.DSNNotifyDelayed)
	}
	if len(notify) == 0 {
		notify = []smtp.DSNNotify{smtp.DSNNotifyNever}
	}

	return opts, notify
}
