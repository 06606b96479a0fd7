package models

import (
	"fmt"
	"time"
)

// Provider identifies an external API that requires its own OAuth flow.
type Provider string

const (
	// ProviderGitHub is the GitHub REST API.
	ProviderGitHub Provider = "github"
	// ProviderJira is the Atlassian/Jira cloud API.
	ProviderJira Provider = "jira"
)

// Valid returns true if the provider is a known value.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGitHub, ProviderJira:
		return true
	default:
		return false
	}
}

// ParseProvider converts a string to a Provider, case-sensitively.
func ParseProvider(s string) (Provider, error) {
	p := Provider(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown provider %q (expected %q or %q)", s, ProviderGitHub, ProviderJira)
	}
	return p, nil
}

// MetadataCloudID is the metadata key under which the resolved Atlassian
// cloud id is stored.
const MetadataCloudID = "cloud_id"

// MetadataSiteURL is the metadata key for the tenant's site URL.
const MetadataSiteURL = "site_url"

// UserCredential is the stored OAuth credential for one (provider, user)
// pair. The pair is the unique key; credentials are never shared across
// user IDs.
type UserCredential struct {
	// Provider is the external API this credential authenticates against.
	Provider Provider `json:"provider"`
	// UserID identifies the human user the token was issued for.
	UserID string `json:"user_id"`
	// AccessToken is the opaque bearer token.
	AccessToken string `json:"access_token"`
	// RefreshToken is the optional refresh token.
	RefreshToken string `json:"refresh_token,omitempty"`
	// ExpiresAt is when the access token expires. Zero means no known expiry.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	// Metadata holds provider-specific derived values, e.g. the resolved
	// Atlassian cloud id. Populated by the provider's Complete step.
	Metadata map[string]string `json:"metadata,omitempty"`
	// UpdatedAt is when the credential was last written.
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Key returns the unique (provider, user) key for this credential.
func (c *UserCredential) Key() string {
	return string(c.Provider) + "/" + c.UserID
}

// Expired reports whether the access token has passed its expiry.
// Credentials without a known expiry never report expired.
func (c *UserCredential) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// CloudID returns the resolved Atlassian cloud id, if present.
func (c *UserCredential) CloudID() string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[MetadataCloudID]
}

// Clone returns a deep copy. Callers outside the credential store receive
// copies so no component retains a live reference to stored state.
func (c *UserCredential) Clone() *UserCredential {
	cp := *c
	if c.Metadata != nil {
		cp.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
