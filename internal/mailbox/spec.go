package mailbox

import (
	"fmt"
	"strings"

	"github.com/nhle/mailforward/internal/model"
)

// ParseMailboxSpec parses a connection string of the form
// "{host:port/imap/ssl}Folder" into its parts. The flags after the port
// select transport security: "ssl" means implicit TLS, anything else
// STARTTLS. The folder may be empty.
func ParseMailboxSpec(spec string) (model.MailboxConfig, error) {
	var cfg model.MailboxConfig

	spec = strings.TrimSpace(spec)
	if !strings.HasPrefix(spec, "{") {
		return cfg, fmt.Errorf("mailbox spec %q: missing '{'", spec)
	}
	end := strings.Index(spec, "}")
	if end < 0 {
		return cfg, fmt.Errorf("mailbox spec %q: missing '}'", spec)
	}

	server := spec[1:end]
	cfg.Folder = spec[end+1:]

	flags := strings.Split(server, "/")
	hostPort := flags[0]
	for _, flag := range flags[1:] {
		if strings.EqualFold(flag, "ssl") {
			cfg.TLS = true
		}
	}

	host, port, found := strings.Cut(hostPort, ":")
	if host == "" {
		return cfg, fmt.Errorf("mailbox spec %q: missing host", spec)
	}
	cfg.Host = host
	switch {
	case found && port != "":
		cfg.Port = port
	case cfg.TLS:
		cfg.Port = "993"
	default:
		cfg.Port = "143"
	}

	return cfg, nil
}

// ResolveConfig applies cfg.Spec, when set, over the discrete fields.
func ResolveConfig(cfg model.MailboxConfig) (model.MailboxConfig, error) {
	if cfg.Spec == "" {
		return cfg, nil
	}

	parsed, err := ParseMailboxSpec(cfg.Spec)
	if err != nil {
		return cfg, err
	}

	cfg.Host = parsed.Host
	cfg.Port = parsed.Port
	cfg.TLS = parsed.TLS
	cfg.Folder = parsed.Folder

	return cfg, nil
}
