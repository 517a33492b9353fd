// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wujiyu305/worker-mailer/internal/email"
)

// defaultMaxMessageSize is 25 MB in bytes.
const defaultMaxMessageSize = 26214400

// Config holds the complete application configuration.
type Config struct {
	Transport string         `yaml:"transport"`
	SMTP      SMTPConfig     `yaml:"smtp"`
	SES       SESConfig      `yaml:"ses"`
	Graph     GraphConfig    `yaml:"graph"`
	Resend    ResendConfig   `yaml:"resend"`
	SentCopy  SentCopyConfig `yaml:"sent_copy"`
	API       APIConfig      `yaml:"api"`
	Sink      SinkConfig     `yaml:"sink"`
	// DSN is the default delivery status notification request of the SMTP
	// transport.
	DSN     *email.DSN    `yaml:"dsn"`
	Logging LoggingConfig `yaml:"logging"`
}

// SMTPConfig holds the outbound SMTP relay settings.
type SMTPConfig struct {
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	Secure    bool          `yaml:"secure"`
	StartTLS  bool          `yaml:"starttls"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	AuthType  string        `yaml:"auth_type"`
	LocalName string        `yaml:"local_name"`
	Timeout   time.Duration `yaml:"timeout"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID        string `yaml:"tenant_id"`
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	Sender          string `yaml:"sender"`
	SaveToSentItems bool   `yaml:"save_to_sent_items"`
}

// ResendConfig holds Resend API configuration.
type ResendConfig struct {
	APIKey string `yaml:"api_key"`
}

// SentCopyConfig holds the IMAP account that receives copies of sent mail.
type SentCopyConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Mailbox  string `yaml:"mailbox"`
}

// APIConfig holds HTTP API settings.
type APIConfig struct {
	Listen   string `yaml:"listen"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	// TLS serves HTTPS, using a self-signed certificate when no files are
	// given.
	TLS            bool     `yaml:"tls"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SinkConfig holds the local capture SMTP server settings.
type SinkConfig struct {
	Listen         string `yaml:"listen"`
	Hostname       string `yaml:"hostname"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	MaxMessageSize int64  `yaml:"max_message_size"`
	CertFile       string `yaml:"cert_file"`
	KeyFile        string `yaml:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvVars()

	return cfg, nil
}

// SMTPConfigured returns true if an SMTP relay host is set.
func (c *Config) SMTPConfigured() bool {
	return c.SMTP.Host != ""
}

// SESConfigured returns true if the SES region is set.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != ""
}

// GraphConfigured returns true if all four Graph API credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != "" &&
		c.Graph.Sender != ""
}

// ResendConfigured returns true if a Resend API key is set.
func (c *Config) ResendConfigured() bool {
	return c.Resend.APIKey != ""
}

// SentCopyConfigured returns true if an IMAP account for sent copies is set.
func (c *Config) SentCopyConfigured() bool {
	return c.SentCopy.Address != "" && c.SentCopy.Username != ""
}

// SinkAuthEnabled returns true if both sink username and password are set.
func (c *Config) SinkAuthEnabled() bool {
	return c.Sink.Username != "" && c.Sink.Password != ""
}

func (c *Config) applyDefaults() {
	c.SMTP.Port = 587
	c.SMTP.StartTLS = true
	c.SMTP.Timeout = 60 * time.Second
	c.SentCopy.Mailbox = "Sent"
	c.API.Listen = ":8080"
	c.Sink.Listen = ":2525"
	c.Sink.Hostname = "localhost"
	c.Sink.MaxMessageSize = defaultMaxMessageSize
	c.Logging.Level = "info"
	c.Logging.Format = "text"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	setString(&c.Transport, "TRANSPORT")

	setString(&c.SMTP.Host, "SMTP_HOST")
	setInt(&c.SMTP.Port, "SMTP_PORT")
	setBool(&c.SMTP.Secure, "SMTP_SECURE")
	setBool(&c.SMTP.StartTLS, "SMTP_STARTTLS")
	setString(&c.SMTP.Username, "SMTP_USERNAME")
	setString(&c.SMTP.Password, "SMTP_PASSWORD")
	setString(&c.SMTP.AuthType, "SMTP_AUTH_TYPE")
	setString(&c.SMTP.LocalName, "SMTP_LOCAL_NAME")
	setDuration(&c.SMTP.Timeout, "SMTP_TIMEOUT")

	setString(&c.SES.Region, "SES_REGION")
	setString(&c.SES.AccessKeyID, "SES_ACCESS_KEY_ID")
	setString(&c.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY")
	setString(&c.SES.Sender, "SES_SENDER")

	setString(&c.Graph.TenantID, "GRAPH_TENANT_ID")
	setString(&c.Graph.ClientID, "GRAPH_CLIENT_ID")
	setString(&c.Graph.ClientSecret, "GRAPH_CLIENT_SECRET")
	setString(&c.Graph.Sender, "GRAPH_SENDER")
	setBool(&c.Graph.SaveToSentItems, "GRAPH_SAVE_TO_SENT_ITEMS")

	setString(&c.Resend.APIKey, "RESEND_API_KEY")

	setString(&c.SentCopy.Address, "SENT_COPY_ADDRESS")
	setString(&c.SentCopy.Username, "SENT_COPY_USERNAME")
	setString(&c.SentCopy.Password, "SENT_COPY_PASSWORD")
	setString(&c.SentCopy.Mailbox, "SENT_COPY_MAILBOX")

	setString(&c.API.Listen, "API_LISTEN")
	setBool(&c.API.TLS, "API_TLS")
	setString(&c.API.CertFile, "API_CERT_FILE")
	setString(&c.API.KeyFile, "API_KEY_FILE")
	if v := os.Getenv("API_ALLOWED_ORIGINS"); v != "" {
		c.API.AllowedOrigins = splitList(v)
	}

	setString(&c.Sink.Listen, "SINK_LISTEN")
	setString(&c.Sink.Hostname, "SINK_HOSTNAME")
	setString(&c.Sink.Username, "SINK_USERNAME")
	setString(&c.Sink.Password, "SINK_PASSWORD")
	setString(&c.Sink.CertFile, "SINK_CERT_FILE")
	setString(&c.Sink.KeyFile, "SINK_KEY_FILE")
	if v := os.Getenv("SINK_MAX_MESSAGE_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Sink.MaxMessageSize = size
		}
	}

	c.applyDSNEnv()

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
}

// applyDSNEnv reads DSN_RET (hdrs|full), DSN_NOTIFY (comma separated
// success, failure, delay) and DSN_ENVID.
func (c *Config) applyDSNEnv() {
	ret, notify, envID := os.Getenv("DSN_RET"), os.Getenv("DSN_NOTIFY"), os.Getenv("DSN_ENVID")
	if ret == "" && notify == "" && envID == "" {
		return
	}

	if c.DSN == nil {
		c.DSN = &email.DSN{}
	}
	if envID != "" {
		c.DSN.EnvelopeID = envID
	}

	switch strings.ToLower(ret) {
	case "hdrs", "headers":
		c.DSN.Ret = email.DSNRet{Headers: true}
	case "full":
		c.DSN.Ret = email.DSNRet{Full: true}
	}

	if notify != "" {
		c.DSN.Notify = email.DSNNotify{}
		for _, event := range splitList(notify) {
			switch strings.ToLower(event) {
			case "success":
				c.DSN.Notify.Success = true
			case "failure":
				c.DSN.Notify.Failure = true
			case "delay":
				c.DSN.Notify.Delay = true
			}
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}
