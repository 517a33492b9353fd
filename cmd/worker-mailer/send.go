package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wujiyu305/worker-mailer/internal/email"
	"github.com/wujiyu305/worker-mailer/internal/transport"
)

var (
	sendFlags       messageFlags
	sendConcurrency int
)

var sendCmd = &cobra.Command{
	Use:   "send [message-file...]",
	Short: "Compose and deliver messages described by JSON/YAML files or flags",
	Long: `Compose and deliver messages.

Each file holds one message description (from, to, cc, bcc, reply, subject,
text, html, headers, attachments, dsnOverride). Files are delivered
concurrently. Without files the message is built from flags.`,
	RunE: runSend,
}

func init() {
	f := sendCmd.Flags()
	f.StringVar(&sendFlags.from, "from", "", "sender address")
	f.StringSliceVar(&sendFlags.to, "to", nil, "recipient address (repeatable)")
	f.StringSliceVar(&sendFlags.cc, "cc", nil, "carbon copy address (repeatable)")
	f.StringSliceVar(&sendFlags.bcc, "bcc", nil, "blind carbon copy address (repeatable)")
	f.StringVar(&sendFlags.reply, "reply-to", "", "reply-to address")
	f.StringVarP(&sendFlags.subject, "subject", "s", "", "subject")
	f.StringVar(&sendFlags.text, "text", "", "plain text body")
	f.StringVar(&sendFlags.html, "html", "", "HTML body")
	f.StringArrayVarP(&sendFlags.attachments, "attach", "a", nil, "file to attach (repeatable)")
	f.StringArrayVarP(&sendFlags.headers, "header", "H", nil, `custom header "Name: value" (repeatable)`)
	f.IntVarP(&sendConcurrency, "concurrency", "j", 4, "maximum messages delivered at once")

	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t, err := selectTransport(ctx, cfg)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		if sendFlags.empty() {
			return errors.New("send: no message files and no message flags given")
		}
		opts, err := sendFlags.options()
		if err != nil {
			return err
		}
		msg, err := email.New(opts)
		if err != nil {
			return err
		}
		if err := transport.Deliver(ctx, t, msg); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg.MessageID())
		return nil
	}

	failed, err := sendFiles(ctx, t, args, sendConcurrency, func(path string, msg *email.Message) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", path, msg.MessageID())
	})
	if err != nil {
		return fmt.Errorf("send: %d of %d messages failed: %w", failed, len(args), err)
	}

	return nil
}

// sendFiles delivers every file with at most limit deliveries in flight.
// A failed file does not stop the others. It returns the number of failures
// and the first error.
func sendFiles(ctx context.Context, t transport.Transport, paths []string, limit int, sent func(string, *email.Message)) (int, error) {
	if limit < 1 {
		limit = 1
	}

	var (
		g      errgroup.Group
		failed atomic.Int64
	)
	g.SetLimit(limit)

	for _, path := range paths {
		g.Go(func() error {
			err := sendFile(ctx, t, path, sent)
			if err != nil {
				failed.Add(1)
				slog.ErrorContext(ctx, "message not sent", "file", path, "error", err)
			}
			return err
		})
	}

	err := g.Wait()
	return int(failed.Load()), err
}

func sendFile(ctx context.Context, t transport.Transport, path string, sent func(string, *email.Message)) error {
	opts, err := readOptions(path, os.Stdin)
	if err != nil {
		return err
	}

	msg, err := email.New(opts)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if err := transport.Deliver(ctx, t, msg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if sent != nil {
		sent(path, msg)
	}
	return nil
}
