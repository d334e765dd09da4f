package credentials

import (
	"context"
	"errors"
	"strings"
)

// ErrNotConfigured is returned when no source holds a domain and token.
var ErrNotConfigured = errors.New("okta credentials not configured")

// Credentials are what outbound Okta calls need.
type Credentials struct {
	Domain   string `yaml:"domain"`
	APIToken string `yaml:"api_token"`
}

// Complete reports whether both fields are set.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.Domain) != "" && strings.TrimSpace(c.APIToken) != ""
}

// Accessor supplies credentials or fails with ErrNotConfigured.
type Accessor interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// Static serves fixed values, typically resolved from the environment.
type Static Credentials

// Credentials implements Accessor.
func (s Static) Credentials(context.Context) (Credentials, error) {
	c := Credentials(s)
	if !c.Complete() {
		return Credentials{}, ErrNotConfigured
	}
	return c, nil
}

// Chain tries each accessor in order. A source reporting ErrNotConfigured
// falls through to the next; any other error stops the chain.
type Chain []Accessor

// Credentials implements Accessor.
func (ch Chain) Credentials(ctx context.Context) (Credentials, error) {
	for _, a := range ch {
		c, err := a.Credentials(ctx)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrNotConfigured) {
			return Credentials{}, err
		}
	}
	return Credentials{}, ErrNotConfigured
}
