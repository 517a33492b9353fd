package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wujiyu305/worker-mailer/internal/config"
	"github.com/wujiyu305/worker-mailer/internal/transport"
	"github.com/wujiyu305/worker-mailer/internal/transport/graph"
	"github.com/wujiyu305/worker-mailer/internal/transport/resend"
	"github.com/wujiyu305/worker-mailer/internal/transport/sentcopy"
	"github.com/wujiyu305/worker-mailer/internal/transport/ses"
	"github.com/wujiyu305/worker-mailer/internal/transport/smtp"
	"github.com/wujiyu305/worker-mailer/internal/transport/stdout"
)

// selectTransport chooses the delivery backend named by cfg.Transport. When
// no name is set the first configured backend wins, in the order smtp, graph,
// ses, resend, falling back to stdout. A configured sent_copy account wraps
// the result.
func selectTransport(ctx context.Context, cfg *config.Config) (transport.Transport, error) {
	name := cfg.Transport
	if name == "" {
		name = detectTransport(cfg)
		slog.Info("transport auto-detected", "transport", name)
	}

	t, err := newTransport(ctx, name, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.SentCopyConfigured() {
		slog.Info("saving sent copies over IMAP",
			"address", cfg.SentCopy.Address,
			"mailbox", cfg.SentCopy.Mailbox,
		)
		t = sentcopy.New(t, sentcopy.Config{
			Address:  cfg.SentCopy.Address,
			Username: cfg.SentCopy.Username,
			Password: cfg.SentCopy.Password,
			Mailbox:  cfg.SentCopy.Mailbox,
		})
	}

	return t, nil
}

func detectTransport(cfg *config.Config) string {
	switch {
	case cfg.SMTPConfigured():
		return "smtp"
	case cfg.GraphConfigured():
		return "graph"
	case cfg.SESConfigured():
		return "ses"
	case cfg.ResendConfigured():
		return "resend"
	default:
		return "stdout"
	}
}

func newTransport(ctx context.Context, name string, cfg *config.Config) (transport.Transport, error) {
	switch name {
	case "smtp":
		if !cfg.SMTPConfigured() {
			return nil, fmt.Errorf("smtp transport selected but SMTP_HOST is not set")
		}
		slog.Info("using SMTP transport", "host", cfg.SMTP.Host, "port", cfg.SMTP.Port)
		return smtp.New(smtp.Config{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Secure:    cfg.SMTP.Secure,
			StartTLS:  cfg.SMTP.StartTLS,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			AuthType:  cfg.SMTP.AuthType,
			LocalName: cfg.SMTP.LocalName,
			Timeout:   cfg.SMTP.Timeout,
			DSN:       cfg.DSN,
		}), nil

	case "graph":
		if !cfg.GraphConfigured() {
			return nil, fmt.Errorf("graph transport selected but GRAPH_TENANT_ID, GRAPH_CLIENT_ID, GRAPH_CLIENT_SECRET and GRAPH_SENDER are required")
		}
		slog.Info("using Microsoft Graph transport", "sender", cfg.Graph.Sender)
		return graph.New(graph.Config{
			TenantID:        cfg.Graph.TenantID,
			ClientID:        cfg.Graph.ClientID,
			ClientSecret:    cfg.Graph.ClientSecret,
			Sender:          cfg.Graph.Sender,
			SaveToSentItems: cfg.Graph.SaveToSentItems,
		}), nil

	case "ses":
		if !cfg.SESConfigured() {
			return nil, fmt.Errorf("ses transport selected but SES_REGION is not set")
		}
		slog.Info("using AWS SES transport", "region", cfg.SES.Region)
		t, err := ses.New(ctx, ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Sender:          cfg.SES.Sender,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES transport: %w", err)
		}
		return t, nil

	case "resend":
		if !cfg.ResendConfigured() {
			return nil, fmt.Errorf("resend transport selected but RESEND_API_KEY is not set")
		}
		slog.Info("using Resend transport")
		return resend.New(cfg.Resend.APIKey), nil

	case "stdout":
		slog.Info("using stdout transport")
		return stdout.New(), nil

	default:
		return nil, fmt.Errorf("unknown transport %q", name)
	}
}
