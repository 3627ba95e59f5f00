package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SecretsResolver looks up a secret by name, checking in order: a
// container secrets mount, a local secrets directory, a "<name>_FILE" env
// var pointing at a file, the direct env var, then a default.
// RequireResolve fails when a secret resolves to empty. Load resolves
// BROKER_ACCOUNT through Resolve, so a missing broker account does not
// fail Load, and Load resolves no dashboard key.
type SecretsResolver struct {
	containerMount string
	localDir       string
}

// NewSecretsResolver builds a resolver with the conventional mount paths.
func NewSecretsResolver() *SecretsResolver {
	return &SecretsResolver{
		containerMount: "/run/secrets",
		localDir:       "secrets",
	}
}

// Resolve looks up name using the §6 lookup order. An empty def with
// nothing found returns ("", nil) — callers decide whether that's fatal.
func (r *SecretsResolver) Resolve(name, def string) (string, error) {
	if v, ok := readSecretFile(filepath.Join(r.containerMount, strings.ToLower(name))); ok {
		return v, nil
	}
	if v, ok := readSecretFile(filepath.Join(r.localDir, strings.ToLower(name))); ok {
		return v, nil
	}
	if path := os.Getenv(name + "_FILE"); path != "" {
		v, ok := readSecretFile(path)
		if !ok {
			return "", fmt.Errorf("secrets: %s_FILE=%q set but unreadable", name, path)
		}
		return v, nil
	}
	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	return def, nil
}

// RequireResolve is like Resolve but returns a ConfigError-shaped error
// when the secret resolves to empty.
func (r *SecretsResolver) RequireResolve(name string) (string, error) {
	v, err := r.Resolve(name, "")
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", fmt.Errorf("secrets: required secret %q not found in any source", name)
	}
	return v, nil
}

func readSecretFile(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}
