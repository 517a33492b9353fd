package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/emersion/go-message/mail"
	"gopkg.in/yaml.v3"

	"github.com/wujiyu305/worker-mailer/internal/email"
)

// messageFlags builds a message from command-line flags.
type messageFlags struct {
	from        string
	to          []string
	cc          []string
	bcc         []string
	reply       string
	subject     string
	text        string
	html        string
	attachments []string
	headers     []string
}

func (f *messageFlags) empty() bool {
	return f.from == "" && len(f.to) == 0 && f.subject == "" && f.text == "" && f.html == ""
}

func (f *messageFlags) options() (email.Options, error) {
	opts := email.Options{
		From:    parseAddress(f.from),
		To:      parseAddresses(f.to),
		CC:      parseAddresses(f.cc),
		BCC:     parseAddresses(f.bcc),
		Subject: f.subject,
		Text:    f.text,
		HTML:    f.html,
	}

	if f.reply != "" {
		reply := parseAddress(f.reply)
		opts.Reply = &reply
	}

	for _, h := range f.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return opts, fmt.Errorf("header %q: want Name: value", h)
		}
		if opts.Headers == nil {
			opts.Headers = make(map[string]string)
		}
		opts.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	for _, path := range f.attachments {
		a, err := readAttachment(path)
		if err != nil {
			return opts, err
		}
		opts.Attachments = append(opts.Attachments, a)
	}

	return opts, nil
}

// parseAddress accepts "Name <email>" or a bare email. Input that does not
// parse is kept verbatim as the email.
func parseAddress(s string) email.Address {
	s = strings.TrimSpace(s)
	if a, err := mail.ParseAddress(s); err == nil {
		return email.Address{Name: a.Name, Email: a.Address}
	}

	return email.Address{Email: s}
}

func parseAddresses(values []string) email.AddressList {
	var out email.AddressList
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, parseAddress(v))
		}
	}

	return out
}

func readAttachment(path string) (email.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return email.Attachment{}, fmt.Errorf("attachment: %w", err)
	}

	return email.Attachment{
		Filename: filepath.Base(path),
		Content:  base64.StdEncoding.EncodeToString(data),
	}, nil
}

// readOptions decodes a message description file, or stdin when path is
// "-".
func readOptions(path string, stdin io.Reader) (email.Options, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return email.Options{}, fmt.Errorf("read %s: %w", path, err)
	}

	return decodeOptions(path, data)
}

// decodeOptions decodes YAML for .yaml and .yml files and for content that
// is not valid JSON. JSON input rejects unknown fields.
func decodeOptions(path string, data []byte) (email.Options, error) {
	var opts email.Options

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" && json.Valid(data) {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return opts, fmt.Errorf("decode %s: %w", path, err)
		}
		return opts, nil
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("decode %s: %w", path, err)
	}

	return opts, nil
}
