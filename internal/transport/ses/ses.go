// Package ses implements a Transport that sends composed messages via the
// AWS SES v2 raw message API.
package ses

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/wujiyu305/worker-mailer/internal/email"
	"github.com/wujiyu305/worker-mailer/internal/transport"
)

// Config holds the configuration for creating a Transport.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Sender overrides the envelope sender. When empty the message's From
	// address is used.
	Sender string
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Transport sends messages via AWS SES v2.
type Transport struct {
	sender string
	client SendEmailAPI
	retry  transport.Retry
}

// New creates a Transport from cfg, loading AWS credentials from the default
// chain unless static keys are given.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(cfg.Sender, sesv2.NewFromConfig(awsCfg), transport.DefaultRetry), nil
}

// NewWithClient creates a Transport with a custom client, used for testing.
func NewWithClient(sender string, client SendEmailAPI, retry transport.Retry) *Transport {
	return &Transport{sender: sender, client: client, retry: retry}
}

// Send delivers the composed payload as a raw message. Bcc recipients are
// only present in the destination, never in the payload.
func (s *Transport) Send(ctx context.Context, msg *email.Message, payload []byte) error {
	input := buildInput(s.sender, msg, payload)

	var lastErr error
	for attempt := 0; attempt <= s.retry.Attempts; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying SES API request",
				"attempt", attempt,
				"max_retries", s.retry.Attempts,
			)
			if err := transport.Sleep(ctx, s.retry.Backoff(attempt-1)); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		out, err := s.client.SendEmail(ctx, input)
		if err == nil {
			if out != nil {
				slog.Debug("SES accepted message", "ses_message_id", aws.ToString(out.MessageId))
			}
			return nil
		}

		lastErr = err
		slog.Warn("SES API error",
			"attempt", attempt,
			"error", err,
		)
	}

	return fmt.Errorf("SES API request failed after %d retries: %w", s.retry.Attempts, lastErr)
}

// Name returns the transport name.
func (s *Transport) Name() string {
	return "ses"
}

func buildInput(sender string, msg *email.Message, payload []byte) *sesv2.SendEmailInput {
	from := sender
	if from == "" {
		from = msg.From().Email
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses:  msg.To().Emails(),
			CcAddresses:  msg.CC().Emails(),
			BccAddresses: msg.BCC().Emails(),
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: email.StripTerminator(payload)},
		},
	}
}
