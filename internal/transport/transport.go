// Package transport defines the delivery backends that hand composed
// messages to a mail system, and Deliver, which drives one delivery and
// settles the message's result.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/wujiyu305/worker-mailer/internal/email"
)

// Transport is implemented by every delivery backend (SMTP relay, SES,
// Graph, Resend, stdout).
type Transport interface {
	// Send delivers msg. payload is msg composed once for this delivery and
	// ends with the SMTP data terminator.
	Send(ctx context.Context, msg *email.Message, payload []byte) error

	// Name returns the human-readable name of this transport.
	Name() string
}

// Deliver composes msg, sends it through t and settles the message result
// with the outcome. The delivery error is also returned.
func Deliver(ctx context.Context, t Transport, msg *email.Message) error {
	start := time.Now()
	payload := msg.Payload()

	err := t.Send(ctx, msg, payload)
	observe(t.Name(), start, err)

	if err != nil {
		err = fmt.Errorf("%s: delivery failed: %w", t.Name(), err)
		slog.ErrorContext(ctx, "message delivery failed",
			"transport", t.Name(),
			"message_id", msg.MessageID(),
			"error", err,
		)
	} else {
		slog.InfoContext(ctx, "message delivered",
			"transport", t.Name(),
			"message_id", msg.MessageID(),
			"recipients", len(msg.Recipients()),
			"bytes", len(payload),
		)
	}

	if settleErr := msg.Settle(err); settleErr != nil {
		slog.WarnContext(ctx, "message already settled", "message_id", msg.MessageID())
	}

	return err
}

func observe(name string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}

	metrics.GetOrCreateCounter(fmt.Sprintf(`mailer_deliveries_total{transport=%q,status=%q}`, name, status)).Inc()
	metrics.GetOrCreateSummary(fmt.Sprintf(`mailer_delivery_duration_seconds{transport=%q}`, name)).UpdateDuration(start)
}
