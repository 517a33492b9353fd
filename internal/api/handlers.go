package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/VictoriaMetrics/metrics"

	"github.com/wujiyu305/worker-mailer/internal/email"
	"github.com/wujiyu305/worker-mailer/internal/transport"
)

const messageIDHeader = "X-Message-ID"

type handlers struct {
	transport transport.Transport
}

type sendResponse struct {
	MessageID  string   `json:"messageId"`
	Transport  string   `json:"transport"`
	Recipients []string `json:"recipients"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) send(w http.ResponseWriter, r *http.Request) {
	msg, ok := decodeMessage(w, r)
	if !ok {
		return
	}

	if err := transport.Deliver(r.Context(), h.transport, msg); err != nil {
		respondError(w, r, http.StatusBadGateway, err)
		return
	}

	w.Header().Set(messageIDHeader, msg.MessageID())
	respondJSON(w, r, http.StatusOK, sendResponse{
		MessageID:  msg.MessageID(),
		Transport:  h.transport.Name(),
		Recipients: msg.Recipients(),
	})
}

// compose returns the message as message/rfc822 without the SMTP data
// terminator.
func (h *handlers) compose(w http.ResponseWriter, r *http.Request) {
	msg, ok := decodeMessage(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "message/rfc822")
	w.Header().Set(messageIDHeader, msg.MessageID())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(email.StripTerminator(msg.Payload())); err != nil {
		slog.WarnContext(r.Context(), "failed to write composed message", "error", err)
	}
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]string{
		"status":    "ok",
		"transport": h.transport.Name(),
	})
}

func (h *handlers) metrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metrics.WritePrometheus(w, true)
}

// decodeMessage reads an email.Options document and builds the message. It
// writes a 400 response and returns false on any failure.
func decodeMessage(w http.ResponseWriter, r *http.Request) (*email.Message, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var opts email.Options
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&opts); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		respondError(w, r, status, err)
		return nil, false
	}

	msg, err := email.New(opts)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err)
		return nil, false
	}

	return msg, true
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.WarnContext(r.Context(), "failed to write response", "error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, err error) {
	respondJSON(w, r, status, errorResponse{Error: err.Error()})
}
