// Package stdout implements a Transport that prints messages instead of
// delivering them.
package stdout

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"jaytaylor.com/html2text"

	"github.com/wujiyu305/worker-mailer/internal/email"
)

const separator = "========================================\n"

// Transport prints messages in a readable summary, or the raw composed
// payload when Raw is set.
type Transport struct {
	mu  sync.Mutex
	w   io.Writer
	raw bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithWriter sets the output destination. Defaults to os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(t *Transport) { t.w = w }
}

// WithRaw prints the composed payload instead of a summary.
func WithRaw(raw bool) Option {
	return func(t *Transport) { t.raw = raw }
}

// New creates a stdout Transport.
func New(options ...Option) *Transport {
	t := &Transport{w: os.Stdout}
	for _, option := range options {
		option(t)
	}

	return t
}

// Send writes msg to the output. Concurrent sends do not interleave.
func (t *Transport) Send(_ context.Context, msg *email.Message, payload []byte) error {
	out := []byte(Summary(msg))
	if t.raw {
		out = email.StripTerminator(payload)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.w.Write(out); err != nil {
		return fmt.Errorf("stdout: write: %w", err)
	}

	return nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "stdout"
}

// Summary renders a human-readable block for msg. HTML-only messages are
// converted to plain text.
func Summary(msg *email.Message) string {
	var b strings.Builder

	b.WriteString(separator)
	fmt.Fprintf(&b, "From: %s\n", msg.From())
	fmt.Fprintf(&b, "To: %s\n", msg.To().Join())
	if cc := msg.CC(); len(cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\n", cc.Join())
	}
	if bcc := msg.BCC(); len(bcc) > 0 {
		fmt.Fprintf(&b, "Bcc: %s\n", bcc.Join())
	}
	if reply := msg.Reply(); reply != nil {
		fmt.Fprintf(&b, "Reply-To: %s\n", reply)
	}
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject())
	fmt.Fprintf(&b, "Message-ID: %s\n", msg.MessageID())
	b.WriteString("Body:\n")
	b.WriteString(previewBody(msg) + "\n")

	if atts := msg.Attachments(); len(atts) > 0 {
		names := make([]string, 0, len(atts))
		for _, att := range atts {
			names = append(names, fmt.Sprintf("%s (%s)", att.Filename, formatSize(decodedSize(att.Content))))
		}
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(names, ", "))
	}

	b.WriteString(separator)

	return b.String()
}

func previewBody(msg *email.Message) string {
	if msg.Text() != "" {
		return msg.Text()
	}

	text, err := html2text.FromString(msg.HTML(), html2text.Options{TextOnly: true})
	if err != nil {
		return msg.HTML()
	}

	return text
}

func decodedSize(content string) int {
	if b, err := base64.StdEncoding.DecodeString(content); err == nil {
		return len(b)
	}

	return base64.StdEncoding.DecodedLen(len(content))
}

// formatSize formats a byte count into a human-readable string.
func formatSize(n int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case n >= mb:
		return fmt.Sprintf("%.1f MB", float64(n)/float64(mb))
	case n >= kb:
		return fmt.Sprintf("%.1f KB", float64(n)/float64(kb))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
