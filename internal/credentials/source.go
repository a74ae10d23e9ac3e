// Package credentials resolves the backend login for an inbound call.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/spf13/afero"

	"vault-gateway/internal/config"
	"vault-gateway/internal/model"
)

// Inbound headers carrying caller-supplied credentials.
const (
	HeaderUsername = "un"
	HeaderPassword = "pw"
)

var (
	// ErrUnrecognizedHost is returned when no credentials are configured for a backend host.
	ErrUnrecognizedHost = errors.New("unrecognized backend host")
	// ErrMissingCredentials is returned when the inbound request carries no credentials.
	ErrMissingCredentials = errors.New("credentials missing: send un and pw headers")
)

// Credentials is a backend username/password pair.
type Credentials struct {
	Username string
	Password string
}

// String never includes the password.
func (c Credentials) String() string {
	return c.Username + ":[REDACTED]"
}

// Source supplies the credentials for a call to host. Implementations may
// read the inbound header but must not retain it.
type Source interface {
	Resolve(ctx context.Context, host string, header http.Header) (Credentials, error)
}

// StripHeaders removes the credential headers so they are never forwarded.
// It reports whether any were present.
func StripHeaders(header http.Header) bool {
	present := len(header.Values(HeaderUsername)) > 0 || len(header.Values(HeaderPassword)) > 0
	header.Del(HeaderUsername)
	header.Del(HeaderPassword)
	return present
}

// HeaderSource reads credentials from the un/pw inbound headers.
type HeaderSource struct{}

// Resolve implements Source. The credential headers are removed from header.
func (HeaderSource) Resolve(_ context.Context, _ string, header http.Header) (Credentials, error) {
	creds := Credentials{
		Username: header.Get(HeaderUsername),
		Password: header.Get(HeaderPassword),
	}
	StripHeaders(header)

	if creds.Username == "" || creds.Password == "" {
		return Credentials{}, ErrMissingCredentials
	}
	return creds, nil
}

// TableSource looks up static credentials by backend host and resolves the
// referenced secrets through a SecretProvider.
type TableSource struct {
	hosts   map[string]config.HostCredentialConfig
	secrets SecretProvider
}

// NewTableSource creates a TableSource. Host keys are matched case-insensitively.
func NewTableSource(hosts map[string]config.HostCredentialConfig, secrets SecretProvider) *TableSource {
	normalized := make(map[string]config.HostCredentialConfig, len(hosts))
	for h, entry := range hosts {
		normalized[strings.ToLower(h)] = entry
	}
	return &TableSource{hosts: normalized, secrets: secrets}
}

// Resolve implements Source.
func (s *TableSource) Resolve(ctx context.Context, host string, _ http.Header) (Credentials, error) {
	entry, ok := s.hosts[strings.ToLower(host)]
	if !ok {
		return Credentials{}, fmt.Errorf("%w: %s", ErrUnrecognizedHost, host)
	}

	username, err := s.secrets.Secret(ctx, entry.UsernameRef)
	if err != nil {
		return Credentials{}, fmt.Errorf("resolve username for %s: %w", host, err)
	}
	password, err := s.secrets.Secret(ctx, entry.PasswordRef)
	if err != nil {
		return Credentials{}, fmt.Errorf("resolve password for %s: %w", host, err)
	}
	return Credentials{Username: username, Password: password}, nil
}

// NewSource builds the Source selected by the configured policy.
func NewSource(cfg *config.Config, logger *slog.Logger) (Source, error) {
	switch cfg.GatewayPolicy().CredentialSource {
	case model.CredentialsFromHeaders:
		logger.Info("credential source configured", "source", model.CredentialsFromHeaders)
		return HeaderSource{}, nil
	case model.CredentialsFromTable:
		var secrets SecretProvider
		switch strings.ToLower(cfg.Credentials.SecretProvider) {
		case "file":
			secrets = NewFileProvider(afero.NewOsFs(), cfg.Credentials.SecretsFile)
		case "env", "":
			secrets = NewEnvProvider()
		default:
			return nil, fmt.Errorf("unknown secret provider %q", cfg.Credentials.SecretProvider)
		}
		logger.Info("credential source configured",
			"source", model.CredentialsFromTable,
			"secret_provider", cfg.Credentials.SecretProvider,
			"hosts", len(cfg.Credentials.Hosts),
		)
		return NewTableSource(cfg.Credentials.Hosts, secrets), nil
	default:
		return nil, fmt.Errorf("unknown credential source %q", cfg.Policy.CredentialSource)
	}
}
