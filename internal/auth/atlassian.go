package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/quartetops/quartet/internal/config"
	"github.com/quartetops/quartet/pkg/models"
)

// Default Atlassian OAuth endpoints and API base.
const (
	atlassianAuthURL       = "https://auth.atlassian.com/authorize"
	atlassianTokenURL      = "https://auth.atlassian.com/oauth/token"
	atlassianIntrospectURL = "https://api.atlassian.com/oauth/token/accessible-resources"
	atlassianAPIBase       = "https://api.atlassian.com"
	atlassianAudience      = "api.atlassian.com"
)

// AtlassianProvider obtains user tokens through the Atlassian 3LO
// authorization-code flow with a local loopback redirect, then resolves the
// tenant (cloud id) the token is scoped to. Requests against Jira must use
// the tenant-scoped base /ex/jira/{cloud_id}; the direct site URL is only a
// fallback while no cloud id has been resolved.
type AtlassianProvider struct {
	cfg    config.AtlassianConfig
	client *http.Client
}

// NewAtlassianProvider creates an Atlassian auth provider. httpTimeout
// bounds each call to the OAuth and introspection endpoints.
func NewAtlassianProvider(cfg config.AtlassianConfig, httpTimeout time.Duration) *AtlassianProvider {
	return &AtlassianProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: httpTimeout},
	}
}

// Name identifies the provider.
func (p *AtlassianProvider) Name() models.Provider {
	return models.ProviderJira
}

func (p *AtlassianProvider) authURL() string {
	if p.cfg.AuthURL != "" {
		return p.cfg.AuthURL
	}
	return atlassianAuthURL
}

func (p *AtlassianProvider) tokenURL() string {
	if p.cfg.TokenURL != "" {
		return p.cfg.TokenURL
	}
	return atlassianTokenURL
}

func (p *AtlassianProvider) introspectURL() string {
	if p.cfg.IntrospectionURL != "" {
		return p.cfg.IntrospectionURL
	}
	return atlassianIntrospectURL
}

func (p *AtlassianProvider) apiBase() string {
	if p.cfg.APIBaseURL != "" {
		return strings.TrimRight(p.cfg.APIBaseURL, "/")
	}
	return atlassianAPIBase
}

func (p *AtlassianProvider) oauthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		Scopes:       p.cfg.Scopes,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.authURL(),
			TokenURL: p.tokenURL(),
		},
	}
}

func (p *AtlassianProvider) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

// Authorize starts the authorization-code flow: a loopback HTTP listener
// receives the redirect, and Token exchanges the delivered code.
func (p *AtlassianProvider) Authorize(ctx context.Context, userID string) (*AuthorizationRequest, error) {
	if p.cfg.ClientID == "" || p.cfg.ClientSecret == "" {
		return nil, fmt.Errorf("atlassian: client id/secret not configured")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", p.cfg.RedirectPort))
	if err != nil {
		return nil, fmt.Errorf("atlassian: listen on callback port %d: %w", p.cfg.RedirectPort, err)
	}

	redirectURL := fmt.Sprintf("http://%s/callback", ln.Addr().String())
	conf := p.oauthConfig(redirectURL)
	state := uuid.NewString()

	type callback struct {
		code string
		err  error
	}
	callbackCh := make(chan callback, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			select {
			case callbackCh <- callback{err: fmt.Errorf("atlassian: authorization state mismatch")}:
			default:
			}
			return
		}
		if errCode := q.Get("error"); errCode != "" {
			http.Error(w, "authorization denied", http.StatusBadRequest)
			select {
			case callbackCh <- callback{err: fmt.Errorf("atlassian: authorization denied: %s", errCode)}:
			default:
			}
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body>Authorization complete. You can close this window.</body></html>")
		select {
		case callbackCh <- callback{code: q.Get("code")}:
		default:
		}
	})

	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)

	authCodeURL := conf.AuthCodeURL(state,
		oauth2.SetAuthURLParam("audience", atlassianAudience),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)

	return &AuthorizationRequest{
		Provider: models.ProviderJira,
		UserID:   userID,
		URL:      authCodeURL,
		token: func(ctx context.Context) (*oauth2.Token, error) {
			select {
			case cb := <-callbackCh:
				if cb.err != nil {
					return nil, cb.err
				}
				tok, err := conf.Exchange(p.withHTTPClient(ctx), cb.code)
				if err != nil {
					return nil, fmt.Errorf("atlassian: exchange authorization code: %w", err)
				}
				return tok, nil
			case <-ctx.Done():
				return nil, fmt.Errorf("atlassian: authorization not completed: %w", ctx.Err())
			}
		},
		cleanup: func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		},
	}, nil
}

// accessibleResource is one entry from the accessible-resources endpoint.
type accessibleResource struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Complete resolves the tenant for a fresh token: it calls the
// introspection endpoint and selects the FIRST accessible site,
// deterministically, storing its id as cloud_id. An empty list fails with
// ErrNoAccessibleTenant and nothing is persisted.
func (p *AtlassianProvider) Complete(ctx context.Context, userID string, tok *oauth2.Token) (*models.UserCredential, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, fmt.Errorf("atlassian: empty token for user %s", userID)
	}

	resources, err := p.accessibleResources(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, fmt.Errorf("atlassian: %w: grant the app access to at least one site and re-authorize", ErrNoAccessibleTenant)
	}

	first := resources[0]
	cred := &models.UserCredential{
		Provider:     models.ProviderJira,
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Metadata: map[string]string{
			models.MetadataCloudID: first.ID,
			models.MetadataSiteURL: first.URL,
		},
	}
	if !tok.Expiry.IsZero() {
		cred.ExpiresAt = tok.Expiry
	}
	return cred, nil
}

// accessibleResources calls the introspection endpoint with the token.
func (p *AtlassianProvider) accessibleResources(ctx context.Context, accessToken string) ([]accessibleResource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.introspectURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("atlassian: build introspection request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("atlassian: introspection call: %w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("atlassian: introspection returned %d: %w", resp.StatusCode, ErrProviderUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("atlassian: introspection returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var resources []accessibleResource
	if err := json.NewDecoder(resp.Body).Decode(&resources); err != nil {
		return nil, fmt.Errorf("atlassian: decode introspection response: %w", err)
	}
	return resources, nil
}

// Refresh exchanges the refresh token for a new access token. The resolved
// cloud id is preserved; it does not need re-fetching unless the refresh
// yields a new identity, which Atlassian's rotating refresh tokens do not.
func (p *AtlassianProvider) Refresh(ctx context.Context, cred *models.UserCredential) (*models.UserCredential, error) {
	if cred.RefreshToken == "" {
		return nil, ErrTokenExpired
	}

	conf := p.oauthConfig("")
	src := conf.TokenSource(p.withHTTPClient(ctx), &oauth2.Token{
		RefreshToken: cred.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	})

	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("atlassian: refresh token: %w", classifyTokenError(err))
	}

	next := &models.UserCredential{
		Provider:     models.ProviderJira,
		UserID:       cred.UserID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Metadata:     cred.Metadata,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		next.ExpiresAt = tok.Expiry
	}
	return next, nil
}

// APIBase returns the tenant-scoped Jira base when a cloud id has been
// resolved. Without one it deterministically falls back to the configured
// direct site URL (or the bare API base): requests there fail with an
// authorization error rather than a connection error, which is the
// documented trade-off of calling before resolution completes.
func (p *AtlassianProvider) APIBase(cred *models.UserCredential) string {
	if cred != nil {
		if cloudID := cred.CloudID(); cloudID != "" {
			return p.apiBase() + "/ex/jira/" + cloudID
		}
	}
	if p.cfg.SiteURL != "" {
		return strings.TrimRight(p.cfg.SiteURL, "/")
	}
	return p.apiBase()
}
