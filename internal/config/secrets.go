package config

import (
	"fmt"
	"os"
	"strings"
)

type secretSource func(ref string) (string, error)

var secretSources = map[string]secretSource{
	"env:": func(name string) (string, error) {
		value, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("environment variable %s is not set", name)
		}
		return strings.TrimSpace(value), nil
	},
	"file:": func(path string) (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	},
}

// ResolveSecret expands "env:NAME" and "file:/path" references. Any other
// value is returned as a literal.
func ResolveSecret(value string) (string, error) {
	value = strings.TrimSpace(value)
	for prefix, source := range secretSources {
		if ref, ok := strings.CutPrefix(value, prefix); ok {
			return source(ref)
		}
	}
	return value, nil
}
