// Package sentcopy wraps a Transport so that every delivered message is also
// appended to a "Sent" mailbox over IMAP.
package sentcopy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/wujiyu305/worker-mailer/internal/email"
	"github.com/wujiyu305/worker-mailer/internal/transport"
)

// DefaultMailbox is used when Config.Mailbox is empty.
const DefaultMailbox = "Sent"

// Config holds the IMAP account that receives the copies.
type Config struct {
	Address  string // host:port of an implicit-TLS IMAP server
	Username string
	Password string
	Mailbox  string
}

// Appender stores a raw message in a mailbox.
type Appender interface {
	Append(ctx context.Context, mailbox string, data []byte) error
}

// Transport delivers through an inner Transport and files a copy of each
// successfully delivered message.
type Transport struct {
	inner    transport.Transport
	appender Appender
	mailbox  string
}

// New wraps inner with an IMAP appender built from cfg.
func New(inner transport.Transport, cfg Config) *Transport {
	return NewWithAppender(inner, &imapAppender{cfg: cfg}, cfg.Mailbox)
}

// NewWithAppender wraps inner with a custom Appender.
func NewWithAppender(inner transport.Transport, appender Appender, mailbox string) *Transport {
	if mailbox == "" {
		mailbox = DefaultMailbox
	}

	return &Transport{inner: inner, appender: appender, mailbox: mailbox}
}

// Name returns the inner transport's name.
func (t *Transport) Name() string {
	return t.inner.Name()
}

// Send delivers through the inner transport. A failed append is logged and
// does not fail the delivery.
func (t *Transport) Send(ctx context.Context, msg *email.Message, payload []byte) error {
	if err := t.inner.Send(ctx, msg, payload); err != nil {
		return err
	}

	if err := t.appender.Append(ctx, t.mailbox, email.StripTerminator(payload)); err != nil {
		slog.WarnContext(ctx, "failed to save sent copy",
			"mailbox", t.mailbox,
			"message_id", msg.MessageID(),
			"error", err,
		)
		return nil
	}

	slog.DebugContext(ctx, "sent copy saved", "mailbox", t.mailbox, "message_id", msg.MessageID())
	return nil
}

type imapAppender struct {
	cfg Config
}

// Append opens one IMAP session per call.
func (a *imapAppender) Append(ctx context.Context, mailbox string, data []byte) (err error) {
	c, err := imapclient.DialTLS(a.cfg.Address, &imapclient.Options{
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{},
	})
	if err != nil {
		return fmt.Errorf("dial %s: %w", a.cfg.Address, err)
	}
	defer c.Close()

	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	if err := c.Login(a.cfg.Username, a.cfg.Password).Wait(); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	cmd := c.Append(mailbox, int64(len(data)), &imap.AppendOptions{
		Flags: []imap.Flag{imap.FlagSeen},
		Time:  time.Now(),
	})
	if _, err := cmd.Write(data); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("append: %w", err)
	}

	if err := c.Logout().Wait(); err != nil {
		slog.DebugContext(ctx, "imap logout failed", "error", err)
	}

	return nil
}
