package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/wujiyu305/worker-mailer/internal/email"
	"github.com/wujiyu305/worker-mailer/internal/parser"
	"github.com/wujiyu305/worker-mailer/internal/transport"
)

// Forward returns a Handler that parses every received message, recomposes
// it and delivers it through t. Envelope values fill in a missing sender or
// recipient list, and envelope recipients absent from To and Cc become Bcc.
func Forward(t transport.Transport) Handler {
	return HandlerFunc(func(ctx context.Context, env *Envelope) error {
		opts, err := parser.Parse(env.Data)
		if err != nil {
			return err
		}

		applyEnvelope(opts, env)

		msg, err := email.New(*opts)
		if err != nil {
			return fmt.Errorf("sink: recompose: %w", err)
		}

		return transport.Deliver(ctx, t, msg)
	})
}

func applyEnvelope(opts *email.Options, env *Envelope) {
	if opts.From.IsZero() {
		opts.From = email.Address{Email: env.From}
	}

	if len(opts.To) == 0 {
		opts.To = email.Normalize(env.Addresses())
	} else {
		visible := make(map[string]struct{})
		for _, list := range []email.AddressList{opts.To, opts.CC, opts.BCC} {
			for _, a := range list {
				visible[strings.ToLower(a.Email)] = struct{}{}
			}
		}
		for _, rcpt := range env.Addresses() {
			if _, ok := visible[strings.ToLower(rcpt)]; !ok {
				opts.BCC = append(opts.BCC, email.Address{Email: rcpt})
			}
		}
	}

	if opts.DSNOverride == nil && (env.Return != "" || env.EnvelopeID != "" || hasNotify(env)) {
		opts.DSNOverride = envelopeDSN(env)
	}
}

func hasNotify(env *Envelope) bool {
	for _, r := range env.Recipients {
		if len(r.Notify) > 0 {
			return true
		}
	}

	return false
}

// envelopeDSN carries the received DSN parameters over to the message so a
// relaying transport requests the same notifications.
func envelopeDSN(env *Envelope) *email.DSN {
	dsn := &email.DSN{EnvelopeID: env.EnvelopeID}

	switch strings.ToUpper(env.Return) {
	case "HDRS":
		dsn.Ret.Headers = true
	case "FULL":
		dsn.Ret.Full = true
	}

	for _, r := range env.Recipients {
		for _, n := range r.Notify {
			switch strings.ToUpper(n) {
			case "SUCCESS":
				dsn.Notify.Success = true
			case "FAILURE":
				dsn.Notify.Failure = true
			case "DELAY":
				dsn.Notify.Delay = true
			}
		}
	}

	return dsn
}
