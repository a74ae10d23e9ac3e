package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ErrSecretNotFound is returned when a secret reference does not resolve.
var ErrSecretNotFound = errors.New("secret not found")

// SecretProvider resolves a secret reference to its value.
type SecretProvider interface {
	Secret(ctx context.Context, ref string) (string, error)
}

// EnvProvider resolves references as environment variable names.
type EnvProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvProvider creates an EnvProvider reading the process environment.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{lookup: os.LookupEnv}
}

// Secret implements SecretProvider.
func (p *EnvProvider) Secret(_ context.Context, ref string) (string, error) {
	v, ok := p.lookup(ref)
	if !ok {
		return "", fmt.Errorf("env %s: %w", ref, ErrSecretNotFound)
	}
	return v, nil
}

// FileProvider resolves references as keys of a flat YAML secrets file, e.g.
// a mounted Kubernetes secret. The file is read on every lookup so rotated
// secrets take effect without a restart.
type FileProvider struct {
	fs   afero.Fs
	path string
}

// NewFileProvider creates a FileProvider reading path from fs.
func NewFileProvider(fs afero.Fs, path string) *FileProvider {
	return &FileProvider{fs: fs, path: path}
}

// Secret implements SecretProvider.
func (p *FileProvider) Secret(_ context.Context, ref string) (string, error) {
	data, err := afero.ReadFile(p.fs, p.path)
	if err != nil {
		return "", fmt.Errorf("read secrets file %s: %w", p.path, err)
	}

	var secrets map[string]string
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return "", fmt.Errorf("parse secrets file %s: %w", p.path, err)
	}

	v, ok := secrets[ref]
	if !ok {
		return "", fmt.Errorf("secrets file key %s: %w", ref, ErrSecretNotFound)
	}
	return v, nil
}
