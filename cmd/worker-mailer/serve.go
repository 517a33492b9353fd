package main

import (
	"crypto/tls"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wujiyu305/worker-mailer/internal/api"
	mailtls "github.com/wujiyu305/worker-mailer/internal/tls"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP send/compose API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		t, err := selectTransport(ctx, cfg)
		if err != nil {
			return err
		}

		var tlsConfig *tls.Config
		if cfg.API.TLS {
			tlsConfig, err = mailtls.LoadOrGenerateTLS(cfg.API.CertFile, cfg.API.KeyFile)
			if err != nil {
				return err
			}
		}

		handler := api.NewRouter(t, api.WithAllowedOrigins(cfg.API.AllowedOrigins...))
		return api.NewServer(cfg.API.Listen, handler, tlsConfig).ListenAndServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
