package main

import (
	"crypto/tls"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wujiyu305/worker-mailer/internal/sink"
	mailtls "github.com/wujiyu305/worker-mailer/internal/tls"
	"github.com/wujiyu305/worker-mailer/internal/transport"
	"github.com/wujiyu305/worker-mailer/internal/transport/stdout"
)

var (
	sinkForward  bool
	sinkStartTLS bool
	sinkRaw      bool
)

var sinkCmd = &cobra.Command{
	Use:   "sink",
	Short: "Run a local SMTP server that captures messages",
	Long: `Run a local SMTP server that captures messages.

Captured messages are printed, or relayed through the configured transport
with --forward. Envelope recipients not named in the headers are relayed as
BCC and envelope DSN parameters are kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var (
			t   transport.Transport
			err error
		)
		if sinkForward {
			t, err = selectTransport(ctx, cfg)
			if err != nil {
				return err
			}
		} else {
			t = stdout.New(stdout.WithRaw(sinkRaw))
		}

		var tlsConfig *tls.Config
		if sinkStartTLS || (cfg.Sink.CertFile != "" && cfg.Sink.KeyFile != "") {
			tlsConfig, err = mailtls.LoadOrGenerateTLS(cfg.Sink.CertFile, cfg.Sink.KeyFile, cfg.Sink.Hostname, "127.0.0.1")
			if err != nil {
				return err
			}
		}

		slog.Info("starting SMTP sink", "transport", t.Name(), "forward", sinkForward)

		s := sink.New(sink.Config{
			ListenAddr:      cfg.Sink.Listen,
			Hostname:        cfg.Sink.Hostname,
			TLSConfig:       tlsConfig,
			AuthUsername:    cfg.Sink.Username,
			AuthPassword:    cfg.Sink.Password,
			MaxMessageBytes: cfg.Sink.MaxMessageSize,
		}, sink.Forward(t))

		return s.ListenAndServe(ctx)
	},
}

func init() {
	sinkCmd.Flags().BoolVar(&sinkForward, "forward", false, "relay captured messages through the configured transport")
	sinkCmd.Flags().BoolVar(&sinkStartTLS, "starttls", false, "offer STARTTLS with a self-signed certificate when no files are configured")
	sinkCmd.Flags().BoolVar(&sinkRaw, "raw", false, "print the raw payload instead of a summary")
	rootCmd.AddCommand(sinkCmd)
}
