// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"

	"codeberg.org/oliverandrich/newsletter/internal/models"
	"codeberg.org/oliverandrich/newsletter/internal/secret"
)

var configFile = altsrc.StringSourcer("config.toml")

// Email transports selectable with --email-transport.
const (
	TransportAPI  = "api"
	TransportSMTP = "smtp"
)

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server     ServerConfig
	Log        LogConfig
	Database   DatabaseConfig
	Email      EmailConfig
	SMTP       SMTPConfig
	Redelivery RedeliveryConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in KB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

// EmailConfig selects the transport and configures the ESP HTTP API.
type EmailConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Transport     string // api, smtp
	BaseURL       string
	Sender        string
	APIKeyPublic  secret.Secret
	APIKeyPrivate secret.Secret
	Timeout       time.Duration
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string
	Port     int
	Username string
	Password secret.Secret
	From     string
	FromName string
	TLS      bool
	Timeout  time.Duration
}

// RedeliveryConfig controls the background resend of undispatched
// confirmation emails. An Interval of zero disables it.
type RedeliveryConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Email: EmailConfig{
			Transport:     strings.ToLower(cmd.String("email-transport")),
			BaseURL:       strings.TrimSuffix(cmd.String("email-base-url"), "/"),
			Sender:        cmd.String("email-sender"),
			APIKeyPublic:  secret.New(cmd.String("email-api-key-public")),
			APIKeyPrivate: secret.New(cmd.String("email-api-key-private")),
			Timeout:       cmd.Duration("email-timeout"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: secret.New(cmd.String("smtp-password")),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
			Timeout:  cmd.Duration("email-timeout"),
		},
		Redelivery: RedeliveryConfig{
			Interval:    cmd.Duration("redelivery-interval"),
			BatchSize:   int(cmd.Int("redelivery-batch-size")),
			MaxAttempts: int(cmd.Int("redelivery-max-attempts")),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}
	cfg.Server.BaseURL = strings.TrimSuffix(cfg.Server.BaseURL, "/")

	return cfg
}

// Validate reports every setting that would keep the server from running
// correctly.
func (c *Config) Validate() error {
	var errs []error

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q is not one of text, json", c.Log.Format))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d is out of range", c.Server.Port))
	}
	if err := validateURL(c.Server.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("base url: %w", err))
	}

	switch c.Email.Transport {
	case TransportAPI:
		if err := validateURL(c.Email.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("email base url: %w", err))
		}
		if c.Email.APIKeyPublic.IsEmpty() || c.Email.APIKeyPrivate.IsEmpty() {
			errs = append(errs, errors.New("email api keys are required"))
		}
	case TransportSMTP:
		if c.SMTP.Host == "" {
			errs = append(errs, errors.New("smtp host is required"))
		}
		if c.SMTP.From == "" {
			errs = append(errs, errors.New("smtp from address is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("email transport %q is not one of api, smtp", c.Email.Transport))
	}
	if c.Email.Transport == TransportAPI {
		if _, err := models.ParseSubscriberEmail(c.Email.Sender); err != nil {
			errs = append(errs, fmt.Errorf("email sender: %w", err))
		}
	}
	if c.Email.Timeout <= 0 {
		errs = append(errs, errors.New("email timeout must be positive"))
	}

	if c.Redelivery.Interval < 0 {
		errs = append(errs, errors.New("redelivery interval must not be negative"))
	}
	if c.Redelivery.Interval > 0 && c.Redelivery.BatchSize < 1 {
		errs = append(errs, errors.New("redelivery batch size must be at least 1"))
	}
	if c.Redelivery.Interval > 0 && c.Redelivery.MaxAttempts < 1 {
		errs = append(errs, errors.New("redelivery max attempts must be at least 1"))
	}

	return errors.Join(errs...)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

// buildBaseURL derives the public URL from the listen address. TLS is
// expected to terminate at a reverse proxy, which then sets --base-url.
func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	if cfg.Server.Port == 80 {
		return fmt.Sprintf("http://%s", host)
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Public base URL used in confirmation links",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   64,
			Usage:   "Maximum request body size in KB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/newsletter.db",
			Usage:   "Database DSN (SQLite path or postgres:// URL)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		// Email flags
		&cli.StringFlag{
			Name:    "email-transport",
			Value:   TransportAPI,
			Usage:   "Email transport (api, smtp)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("EMAIL_TRANSPORT"), toml.TOML("email.transport", configFile)),
		},
		&cli.StringFlag{
			Name:    "email-base-url",
			Usage:   "Base URL of the email service provider API",
			Sources: cli.NewValueSourceChain(cli.EnvVar("EMAIL_BASE_URL"), toml.TOML("email.base_url", configFile)),
		},
		&cli.StringFlag{
			Name:    "email-sender",
			Usage:   "Sender address for confirmation emails",
			Sources: cli.NewValueSourceChain(cli.EnvVar("EMAIL_SENDER"), toml.TOML("email.sender", configFile)),
		},
		&cli.StringFlag{
			Name:    "email-api-key-public",
			Usage:   "Public API key of the email service provider",
			Sources: cli.NewValueSourceChain(cli.EnvVar("EMAIL_API_KEY_PUBLIC"), toml.TOML("email.api_key_public", configFile)),
		},
		&cli.StringFlag{
			Name:    "email-api-key-private",
			Usage:   "Private API key of the email service provider",
			Sources: cli.NewValueSourceChain(cli.EnvVar("EMAIL_API_KEY_PRIVATE"), toml.TOML("email.api_key_private", configFile)),
		},
		&cli.DurationFlag{
			Name:    "email-timeout",
			Value:   10 * time.Second,
			Usage:   "Timeout for a single email send",
			Sources: cli.NewValueSourceChain(cli.EnvVar("EMAIL_TIMEOUT"), toml.TOML("email.timeout", configFile)),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "SMTP from address",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Usage:   "SMTP from display name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP (implicit TLS on port 465, STARTTLS otherwise)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		// Redelivery flags
		&cli.DurationFlag{
			Name:    "redelivery-interval",
			Value:   5 * time.Minute,
			Usage:   "Interval for resending undispatched confirmation emails (0 disables)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REDELIVERY_INTERVAL"), toml.TOML("redelivery.interval", configFile)),
		},
		&cli.IntFlag{
			Name:    "redelivery-batch-size",
			Value:   50,
			Usage:   "Maximum emails resent per redelivery run",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REDELIVERY_BATCH_SIZE"), toml.TOML("redelivery.batch_size", configFile)),
		},
		&cli.IntFlag{
			Name:    "redelivery-max-attempts",
			Value:   5,
			Usage:   "Delivery attempts per confirmation email before giving up",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REDELIVERY_MAX_ATTEMPTS"), toml.TOML("redelivery.max_attempts", configFile)),
		},
	}
}
