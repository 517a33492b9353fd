package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/wujiyu305/worker-mailer/internal/email"
	"github.com/wujiyu305/worker-mailer/internal/transport"
)

// Config holds the configuration for creating a Transport.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// Sender is the mailbox that sends on behalf of the application.
	Sender string
	// SaveToSentItems keeps a copy in the sender's Sent Items folder.
	SaveToSentItems bool
}

// Transport sends messages via the Microsoft Graph API using OAuth2 client
// credentials.
type Transport struct {
	sendURL    string
	saveToSent bool
	httpClient *http.Client
	tokens     *tokenSource
	retry      transport.Retry
}

// New creates a Transport for the given tenant and sender mailbox.
func New(cfg Config) *Transport {
	return newWithOverrides(cfg,
		fmt.Sprintf("https://graph.microsoft.com/v1.0/users/%s/sendMail", cfg.Sender),
		fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
		&http.Client{Timeout: 30 * time.Second},
		transport.DefaultRetry,
	)
}

func newWithOverrides(cfg Config, sendURL, tokenURL string, client *http.Client, retry transport.Retry) *Transport {
	return &Transport{
		sendURL:    sendURL,
		saveToSent: cfg.SaveToSentItems,
		httpClient: client,
		tokens:     newTokenSource(tokenURL, cfg.ClientID, cfg.ClientSecret, client),
		retry:      retry,
	}
}

// Send posts the message to sendMail. 429 responses honour Retry-After, 5xx
// and network errors back off exponentially and a 401 renews the token once.
// Graph builds its own MIME, so payload is not used.
func (g *Transport) Send(ctx context.Context, msg *email.Message, _ []byte) error {
	if dropped := droppedHeaders(msg); len(dropped) > 0 {
		slog.WarnContext(ctx, "Graph accepts only X- headers, dropping custom headers",
			"headers", dropped,
			"message_id", msg.MessageID(),
		)
	}

	body, err := json.Marshal(buildSendMailRequest(msg, g.saveToSent))
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	var lastErr error
	renewed := false

	for attempt := 0; attempt <= g.retry.Attempts; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying Graph API request",
				"attempt", attempt,
				"max_retries", g.retry.Attempts,
			)
		}

		err := g.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err

		var se *sendError
		if !errors.As(err, &se) {
			return err
		}

		switch {
		case se.statusCode == http.StatusUnauthorized && !renewed:
			slog.Info("renewing Graph API token after 401")
			if _, err := g.tokens.Renew(ctx); err != nil {
				return fmt.Errorf("token refresh failed: %w", err)
			}
			renewed = true
		case se.statusCode == http.StatusTooManyRequests:
			delay := g.retryAfterDelay(se.retryAfter, attempt)
			slog.Info("rate limited by Graph API", "retry_after", delay)
			if err := transport.Sleep(ctx, delay); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		case se.transient:
			delay := g.retry.Backoff(attempt)
			slog.Info("transient Graph API error, retrying",
				"status", se.statusCode,
				"delay", delay,
			)
			if err := transport.Sleep(ctx, delay); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		default:
			return se
		}
	}

	return fmt.Errorf("Graph API request failed after %d retries: %w", g.retry.Attempts, lastErr)
}

// Name returns the transport name.
func (g *Transport) Name() string {
	return "msgraph"
}

func (g *Transport) post(ctx context.Context, body []byte) error {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.sendURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return &sendError{message: fmt.Sprintf("HTTP request failed: %v", err), transient: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}

	raw, _ := io.ReadAll(resp.Body)

	message := string(raw)
	var ger graphErrorResponse
	if json.Unmarshal(raw, &ger) == nil && ger.Error.Message != "" {
		message = ger.Error.Message
	}

	return classifyError(resp.StatusCode, message, resp.Header.Get("Retry-After"))
}

// sendError is a failed sendMail response classified for retries.
type sendError struct {
	message    string
	statusCode int
	transient  bool
	retryAfter string
}

func (e *sendError) Error() string {
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.statusCode, e.message)
}

func classifyError(statusCode int, message, retryAfter string) *sendError {
	return &sendError{
		message:    message,
		statusCode: statusCode,
		retryAfter: retryAfter,
		transient: statusCode == http.StatusUnauthorized ||
			statusCode == http.StatusTooManyRequests ||
			statusCode >= 500,
	}
}

// retryAfterDelay uses the Retry-After seconds when present, otherwise the
// exponential backoff.
func (g *Transport) retryAfterDelay(retryAfter string, attempt int) time.Duration {
	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return g.retry.Backoff(attempt)
}
