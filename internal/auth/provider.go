// Package auth owns the per-user OAuth credential lifecycle: issuance,
// caching, refresh and invalidation. Credentials are keyed by
// (provider, user) and are never readable by provider alone.
package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/quartetops/quartet/pkg/models"
)

// AuthorizationRequest is one in-flight authorization flow. It is created
// by Provider.Authorize, which never blocks; the caller polls for the token
// via Token.
type AuthorizationRequest struct {
	Provider models.Provider
	UserID   string
	// URL is the page the user must visit to grant access.
	URL string
	// UserCode is the code the user enters there, for device flows.
	UserCode string
	// ExpiresAt is when the flow lapses if the user never completes it.
	ExpiresAt time.Time

	token   func(ctx context.Context) (*oauth2.Token, error)
	cleanup func()
}

// Token blocks until the user completes the flow, the flow lapses, or ctx
// is done. It returns the raw token delivered by the identity provider;
// callers pass it to Provider.Complete for post-processing.
func (r *AuthorizationRequest) Token(ctx context.Context) (*oauth2.Token, error) {
	defer r.Close()
	if r.token == nil {
		return nil, fmt.Errorf("authorization request for %s/%s has no token source", r.Provider, r.UserID)
	}
	return r.token(ctx)
}

// Close releases any resources held by the flow (e.g. a loopback callback
// listener). Safe to call more than once.
func (r *AuthorizationRequest) Close() {
	if r.cleanup != nil {
		r.cleanup()
		r.cleanup = nil
	}
}

// Provider drives a three-legged OAuth exchange for one external API and
// performs any resolution required before the token is directly usable.
type Provider interface {
	// Name identifies the provider.
	Name() models.Provider

	// Authorize starts an authorization flow for the user. It returns
	// immediately with the URL the user must visit.
	Authorize(ctx context.Context, userID string) (*AuthorizationRequest, error)

	// Complete performs provider-specific post-processing on a raw token,
	// e.g. resolving a tenant id from an introspection endpoint. The
	// returned credential is ready to store.
	Complete(ctx context.Context, userID string, tok *oauth2.Token) (*models.UserCredential, error)

	// Refresh exchanges the credential's refresh token for a new access
	// token. Derived metadata (the resolved cloud id) is preserved.
	Refresh(ctx context.Context, cred *models.UserCredential) (*models.UserCredential, error)

	// APIBase returns the REST base URL that calls made with this
	// credential should target.
	APIBase(cred *models.UserCredential) string
}
