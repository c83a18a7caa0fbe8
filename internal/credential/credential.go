// Package credential supplies the bearer token attached to outbound calls.
package credential

import (
	"fmt"
	"net/http"
	"strings"
)

// Source supplies an opaque bearer token. An empty token means anonymous.
type Source interface {
	Token() (string, error)
}

// Static is a fixed token.
type Static string

// Token returns the token.
func (s Static) Token() (string, error) { return string(s), nil }

// Apply sets the Authorization header on h from src. A nil source is a no-op.
func Apply(h http.Header, src Source) error {
	if src == nil {
		return nil
	}
	token, err := src.Token()
	if err != nil {
		return fmt.Errorf("failed to get credential: %w", err)
	}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// FromHeader extracts a bearer token from an Authorization header value.
func FromHeader(value string) string {
	const prefix = "bearer "
	if len(value) > len(prefix) && strings.EqualFold(value[:len(prefix)], prefix) {
		return strings.TrimSpace(value[len(prefix):])
	}
	return ""
}
