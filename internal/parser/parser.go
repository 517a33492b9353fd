// Package parser reads RFC 5322 messages, including payloads produced by the
// email package, back into composable message options.
package parser

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/wujiyu305/worker-mailer/internal/email"
)

// skipHeaders are rebuilt by the composer and are not carried over as
// custom headers.
var skipHeaders = map[string]struct{}{
	"From": {}, "To": {}, "Cc": {}, "Bcc": {}, "Reply-To": {}, "Subject": {},
	"Date": {}, "Message-Id": {}, "Mime-Version": {}, "Content-Type": {},
	"Content-Transfer-Encoding": {},
}

// Parse parses a raw message into email.Options. A trailing SMTP data
// terminator is ignored. Nested multiparts are flattened: the first
// text/plain and text/html parts become the bodies and every part with a
// filename becomes an attachment with base64 content.
func Parse(raw []byte) (*email.Options, error) {
	mr, err := mail.CreateReader(bytes.NewReader(email.StripTerminator(raw)))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	mediaType, params, ctErr := mr.Header.ContentType()
	if ctErr == nil && strings.HasPrefix(mediaType, "multipart/") && params["boundary"] == "" {
		return nil, errors.New("multipart message missing boundary")
	}

	opts := &email.Options{Headers: make(map[string]string)}
	if err := parseHeader(mr.Header, opts); err != nil {
		return nil, err
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("failed to read next part: %w", err)
		}
		if part == nil {
			continue
		}

		if err := parsePart(part, opts); err != nil {
			slog.Warn("failed to read part content", "error", err)
		}
	}

	return opts, nil
}

func parseHeader(h mail.Header, opts *email.Options) error {
	if from := addressList(h, "From"); len(from) > 0 {
		opts.From = from[0]
	}
	opts.To = addressList(h, "To")
	opts.CC = addressList(h, "Cc")
	opts.BCC = addressList(h, "Bcc")
	if reply := addressList(h, "Reply-To"); len(reply) > 0 {
		opts.Reply = &reply[0]
	}

	subject, err := h.Subject()
	if err != nil {
		slog.Warn("failed to decode subject, keeping raw value", "error", err)
		subject = h.Get("Subject")
	}
	opts.Subject = subject

	if id := h.Get("Message-Id"); id != "" {
		opts.Headers[email.HeaderMessageID] = id
	}

	fields := h.Fields()
	for fields.Next() {
		key := fields.Key()
		if _, skip := skipHeaders[key]; skip {
			continue
		}
		if _, seen := opts.Headers[key]; seen {
			continue
		}
		opts.Headers[key] = fields.Value()
	}

	return nil
}

// addressList parses an address header, falling back to a comma split when
// the value is not valid RFC 5322.
func addressList(h mail.Header, key string) email.AddressList {
	raw := h.Get(key)
	if raw == "" {
		return nil
	}

	addrs, err := h.AddressList(key)
	if err != nil {
		var out email.AddressList
		for _, p := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, email.Address{Email: trimmed})
			}
		}
		return out
	}

	out := make(email.AddressList, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, email.Address{Name: a.Name, Email: a.Address})
	}

	return out
}

func parsePart(part *mail.Part, opts *email.Options) error {
	content, err := io.ReadAll(part.Body)
	if err != nil {
		return err
	}

	switch h := part.Header.(type) {
	case *mail.InlineHeader:
		mediaType, params, err := h.ContentType()
		if err != nil || mediaType == "" {
			mediaType = "text/plain"
		}

		switch {
		case mediaType == "text/plain" && opts.Text == "":
			opts.Text = normalizeText(content)
		case mediaType == "text/html" && opts.HTML == "":
			opts.HTML = normalizeText(content)
		case params["name"] != "":
			opts.Attachments = append(opts.Attachments, attachment(params["name"], mediaType, content))
		default:
			slog.Warn("unrecognized MIME part, skipping", "content_type", mediaType)
		}

	case *mail.AttachmentHeader:
		mediaType, params, err := h.ContentType()
		if err != nil || mediaType == "" {
			mediaType = "application/octet-stream"
		}
		filename, err := h.Filename()
		if err != nil || filename == "" {
			filename = fallbackFilename(params["name"], mediaType)
		}
		opts.Attachments = append(opts.Attachments, attachment(filename, mediaType, content))
	}

	return nil
}

func attachment(filename, mediaType string, content []byte) email.Attachment {
	return email.Attachment{
		Filename: filename,
		Content:  base64.StdEncoding.EncodeToString(content),
		MIMEType: mediaType,
	}
}

// fallbackFilename names attachments that carry no filename, e.g.
// "attachment.pdf" for application/pdf.
func fallbackFilename(name, mediaType string) string {
	if name != "" {
		return name
	}
	if _, sub, ok := strings.Cut(mediaType, "/"); ok && sub != "" {
		return "attachment." + sub
	}

	return "attachment"
}

// normalizeText converts CRLF line endings to LF and drops the line break
// that precedes the next boundary.
func normalizeText(content []byte) string {
	s := strings.ReplaceAll(string(content), "\r\n", "\n")

	return strings.TrimSuffix(s, "\n")
}
