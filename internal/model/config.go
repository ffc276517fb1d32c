package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Forwarder kinds.
const (
	ForwarderElastic = "elastic"
	ForwarderSMTP    = "smtp"
)

// Ledger backends.
const (
	LedgerJSON   = "json"
	LedgerSQLite = "sqlite"
)

const (
	// DefaultLookbackHours is the search window used when none is configured.
	DefaultLookbackHours = 24

	// DefaultElasticEndpoint is the transactional-email send endpoint.
	DefaultElasticEndpoint = "https://api.elasticemail.com/v2/email/send"

	// DefaultFooterPattern matches the marketing footer appended by the
	// upstream sender; everything from it to the end of the body is dropped.
	DefaultFooterPattern = `Sent by Freemius on behalf of .+$`

	// LedgerFileName is the name of the JSON ledger kept beside the program.
	LedgerFileName = "processed.json"

	envPrefix = "MAILFORWARD"
)

// MailboxConfig holds the IMAP connection settings.
type MailboxConfig struct {
	// Spec is an optional connection string of the form
	// "{host:port/imap/ssl}Folder". When set it overrides Host, Port,
	// TLS and Folder.
	Spec string `mapstructure:"spec" yaml:"spec"`

	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`

	// TLS selects implicit TLS; when false STARTTLS is used.
	TLS bool `mapstructure:"tls" yaml:"tls"`

	// Folder is the mailbox (Gmail label) to search. Empty means INBOX.
	Folder string `mapstructure:"folder" yaml:"folder"`

	Username string `mapstructure:"username" yaml:"username"`

	// Password is a regular or app-specific password. When empty it is
	// read from the keyring entry "mailbox-password".
	Password string `mapstructure:"password" yaml:"password"`
}

// SMTPConfig holds the SMTP relay settings for the smtp forwarder.
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
}

// ForwarderConfig holds the outbound delivery settings.
type ForwarderConfig struct {
	// Kind is "elastic" (HTTP API) or "smtp".
	Kind string `mapstructure:"kind" yaml:"kind"`

	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// APIKey authenticates against the HTTP API. When empty it is read
	// from the keyring entry "forwarder-api-key".
	APIKey string `mapstructure:"api_key" yaml:"api_key"`

	// From and FromName are used when a message has no extracted sender.
	From     string `mapstructure:"from" yaml:"from"`
	FromName string `mapstructure:"from_name" yaml:"from_name"`

	// To is the recipient list, separated by ";".
	To string `mapstructure:"to" yaml:"to"`

	Transactional bool `mapstructure:"transactional" yaml:"transactional"`

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`

	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	SMTP SMTPConfig `mapstructure:"smtp" yaml:"smtp"`
}

// LedgerConfig controls where processed messages are recorded.
type LedgerConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`

	// Path of the ledger file. Empty means processed.json (or
	// processed.db for sqlite) beside the executable.
	Path string `mapstructure:"path" yaml:"path"`

	// Debug disables the ledger entirely so every run reprocesses
	// every message.
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Mailbox       MailboxConfig   `mapstructure:"mailbox" yaml:"mailbox"`
	Forwarder     ForwarderConfig `mapstructure:"forwarder" yaml:"forwarder"`
	Ledger        LedgerConfig    `mapstructure:"ledger" yaml:"ledger"`
	LookbackHours int             `mapstructure:"lookback_hours" yaml:"lookback_hours"`
	FooterPattern string          `mapstructure:"footer_pattern" yaml:"footer_pattern"`
	Log           LogConfig       `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailforward/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailforward", "config.yaml")
}

// DefaultLedgerPath returns the ledger file path beside the running
// executable, falling back to the working directory.
func DefaultLedgerPath(backend string) string {
	name := LedgerFileName
	if backend == LedgerSQLite {
		name = "processed.db"
	}

	exe, err := os.Executable()
	if err != nil {
		return name
	}
	return filepath.Join(filepath.Dir(exe), name)
}

var defaults = map[string]any{
	"mailbox.spec":                   "",
	"mailbox.host":                   "imap.gmail.com",
	"mailbox.port":                   "993",
	"mailbox.tls":                    true,
	"mailbox.folder":                 "",
	"mailbox.username":               "",
	"mailbox.password":               "",
	"forwarder.kind":                 ForwarderElastic,
	"forwarder.endpoint":             DefaultElasticEndpoint,
	"forwarder.api_key":              "",
	"forwarder.from":                 "",
	"forwarder.from_name":            "",
	"forwarder.to":                   "",
	"forwarder.transactional":        true,
	"forwarder.insecure_skip_verify": false,
	"forwarder.timeout_sec":          30,
	"forwarder.smtp.host":            "",
	"forwarder.smtp.port":            "465",
	"forwarder.smtp.username":        "",
	"forwarder.smtp.password":        "",
	"forwarder.smtp.tls":             true,
	"ledger.backend":                 LedgerJSON,
	"ledger.path":                    "",
	"ledger.debug":                   false,
	"lookback_hours":                 DefaultLookbackHours,
	"footer_pattern":                 DefaultFooterPattern,
	"log.level":                      "info",
	"log.format":                     "console",
}

// newViper returns a Viper instance with every key defaulted and
// MAILFORWARD_* environment overrides enabled.
func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A missing file is not an error: defaults and environment variables
// still apply.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.LookbackHours <= 0 {
		cfg.LookbackHours = DefaultLookbackHours
	}
	if cfg.Forwarder.TimeoutSec <= 0 {
		cfg.Forwarder.TimeoutSec = 30
	}
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = DefaultLedgerPath(cfg.Ledger.Backend)
	}

	return cfg, nil
}

// DefaultConfig returns the configuration built from defaults and
// MAILFORWARD_* environment variables alone.
func DefaultConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := newViper().Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing default config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("mailbox", cfg.Mailbox)
	v.Set("forwarder", cfg.Forwarder)
	v.Set("ledger", cfg.Ledger)
	v.Set("lookback_hours", cfg.LookbackHours)
	v.Set("footer_pattern", cfg.FooterPattern)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// Keyring entry names for secrets that may be omitted from the config file.
const (
	SecretMailboxPassword = "mailbox-password"
	SecretForwarderAPIKey = "forwarder-api-key"
	SecretSMTPPassword    = "smtp-password"
)

// SecretLookup resolves a named secret, typically from the OS keyring.
type SecretLookup func(key string) (string, error)

// ResolveSecrets fills empty secret fields using lookup. Only the secrets
// needed by the configured forwarder are looked up.
func (c *AppConfig) ResolveSecrets(lookup SecretLookup) error {
	resolve := func(dst *string, key string) error {
		if *dst != "" {
			return nil
		}
		value, err := lookup(key)
		if err != nil {
			return fmt.Errorf("resolving secret %q: %w", key, err)
		}
		*dst = value
		return nil
	}

	if err := resolve(&c.Mailbox.Password, SecretMailboxPassword); err != nil {
		return err
	}

	switch c.Forwarder.Kind {
	case ForwarderSMTP:
		return resolve(&c.Forwarder.SMTP.Password, SecretSMTPPassword)
	default:
		return resolve(&c.Forwarder.APIKey, SecretForwarderAPIKey)
	}
}

// Validate reports the first missing or inconsistent setting.
func (c *AppConfig) Validate() error {
	if c.Mailbox.Spec == "" && c.Mailbox.Host == "" {
		return errors.New("mailbox.host is required")
	}
	if c.Mailbox.Username == "" {
		return errors.New("mailbox.username is required")
	}
	if c.Forwarder.To == "" {
		return errors.New("forwarder.to is required")
	}

	switch c.Forwarder.Kind {
	case ForwarderElastic:
		if c.Forwarder.Endpoint == "" {
			return errors.New("forwarder.endpoint is required")
		}
	case ForwarderSMTP:
		if c.Forwarder.SMTP.Host == "" {
			return errors.New("forwarder.smtp.host is required")
		}
	default:
		return fmt.Errorf("unknown forwarder.kind %q", c.Forwarder.Kind)
	}

	switch c.Ledger.Backend {
	case LedgerJSON, LedgerSQLite:
	default:
		return fmt.Errorf("unknown ledger.backend %q", c.Ledger.Backend)
	}

	return nil
}
