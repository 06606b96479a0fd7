package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/quartetops/quartet/internal/config"
	"github.com/quartetops/quartet/pkg/models"
)

// Default GitHub OAuth endpoints and API base.
const (
	githubDeviceAuthURL = "https://github.com/login/device/code"
	githubTokenURL      = "https://github.com/login/oauth/access_token"
	githubAPIBase       = "https://api.github.com"
)

// GitHubProvider obtains user tokens through the GitHub OAuth device flow.
// GitHub needs no post-authorization resolution: the token is usable as-is
// against the REST base.
type GitHubProvider struct {
	cfg    config.GitHubConfig
	client *http.Client
}

// NewGitHubProvider creates a GitHub auth provider. httpTimeout bounds each
// call to the OAuth endpoints.
func NewGitHubProvider(cfg config.GitHubConfig, httpTimeout time.Duration) *GitHubProvider {
	return &GitHubProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: httpTimeout},
	}
}

// Name identifies the provider.
func (p *GitHubProvider) Name() models.Provider {
	return models.ProviderGitHub
}

func (p *GitHubProvider) oauthConfig() *oauth2.Config {
	deviceURL := p.cfg.DeviceAuthURL
	if deviceURL == "" {
		deviceURL = githubDeviceAuthURL
	}
	tokenURL := p.cfg.TokenURL
	if tokenURL == "" {
		tokenURL = githubTokenURL
	}

	return &oauth2.Config{
		ClientID: p.cfg.ClientID,
		Scopes:   p.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: deviceURL,
			TokenURL:      tokenURL,
		},
	}
}

// withHTTPClient injects the bounded client into the oauth2 machinery.
func (p *GitHubProvider) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

// Authorize starts a device flow. The returned request carries the
// verification URL and user code; Token polls the token endpoint until the
// user has entered the code.
func (p *GitHubProvider) Authorize(ctx context.Context, userID string) (*AuthorizationRequest, error) {
	if p.cfg.ClientID == "" {
		return nil, fmt.Errorf("github: client id not configured")
	}

	conf := p.oauthConfig()
	da, err := conf.DeviceAuth(p.withHTTPClient(ctx))
	if err != nil {
		return nil, fmt.Errorf("github: start device flow: %w: %v", ErrProviderUnavailable, err)
	}

	url := da.VerificationURIComplete
	if url == "" {
		url = da.VerificationURI
	}

	return &AuthorizationRequest{
		Provider:  models.ProviderGitHub,
		UserID:    userID,
		URL:       url,
		UserCode:  da.UserCode,
		ExpiresAt: da.Expiry,
		token: func(ctx context.Context) (*oauth2.Token, error) {
			tok, err := conf.DeviceAccessToken(p.withHTTPClient(ctx), da)
			if err != nil {
				return nil, fmt.Errorf("github: device flow: %w", err)
			}
			return tok, nil
		},
	}, nil
}

// Complete converts a raw token into a stored credential. No resolution
// step is needed for GitHub.
func (p *GitHubProvider) Complete(_ context.Context, userID string, tok *oauth2.Token) (*models.UserCredential, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, fmt.Errorf("github: empty token for user %s", userID)
	}

	cred := &models.UserCredential{
		Provider:     models.ProviderGitHub,
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		cred.ExpiresAt = tok.Expiry
	}
	return cred, nil
}

// Refresh exchanges the refresh token for a new access token.
func (p *GitHubProvider) Refresh(ctx context.Context, cred *models.UserCredential) (*models.UserCredential, error) {
	if cred.RefreshToken == "" {
		return nil, ErrTokenExpired
	}

	conf := p.oauthConfig()
	src := conf.TokenSource(p.withHTTPClient(ctx), &oauth2.Token{
		RefreshToken: cred.RefreshToken,
		// Expiry in the past forces the source to refresh.
		Expiry: time.Now().Add(-time.Minute),
	})

	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("github: refresh token: %w", classifyTokenError(err))
	}

	next, err := p.Complete(ctx, cred.UserID, tok)
	if err != nil {
		return nil, err
	}
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}
	next.Metadata = cred.Metadata
	return next, nil
}

// APIBase returns the REST base: the configured enterprise base, or the
// public api.github.com.
func (p *GitHubProvider) APIBase(_ *models.UserCredential) string {
	if p.cfg.APIBaseURL != "" {
		return p.cfg.APIBaseURL
	}
	return githubAPIBase
}
