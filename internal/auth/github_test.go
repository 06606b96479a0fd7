package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/quartetops/quartet/internal/config"
	"github.com/quartetops/quartet/pkg/models"
)

// deviceFlowServer serves both device flow endpoints: /device issues the
// code, /token grants the access token on the first poll.
func deviceFlowServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/device", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("client_id"); got != "cid" {
			t.Errorf("client_id = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"device_code": "dev-123",
			"user_code": "ABCD-1234",
			"verification_uri": "%s/verify",
			"expires_in": 900,
			"interval": 0
		}`, srv.URL)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("device_code"); got != "dev-123" {
			t.Errorf("device_code = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "gho_granted", "token_type": "bearer", "scope": "repo"}`)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGitHubDeviceFlow(t *testing.T) {
	srv := deviceFlowServer(t)
	p := NewGitHubProvider(config.GitHubConfig{
		ClientID:      "cid",
		Scopes:        []string{"repo"},
		DeviceAuthURL: srv.URL + "/device",
		TokenURL:      srv.URL + "/token",
	}, 5*time.Second)

	req, err := p.Authorize(t.Context(), "alice")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if req.UserCode != "ABCD-1234" {
		t.Errorf("UserCode = %q", req.UserCode)
	}
	if req.URL == "" {
		t.Error("verification URL is empty")
	}

	tok, err := req.Token(t.Context())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != "gho_granted" {
		t.Errorf("AccessToken = %q", tok.AccessToken)
	}

	cred, err := p.Complete(t.Context(), "alice", tok)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if cred.Provider != models.ProviderGitHub || cred.UserID != "alice" {
		t.Errorf("credential identity = %s/%s", cred.Provider, cred.UserID)
	}
	if cred.AccessToken != "gho_granted" {
		t.Errorf("AccessToken = %q", cred.AccessToken)
	}
}

func TestGitHubAuthorizeWithoutClientID(t *testing.T) {
	p := NewGitHubProvider(config.GitHubConfig{}, time.Second)
	if _, err := p.Authorize(t.Context(), "alice"); err == nil {
		t.Fatal("Authorize without client id succeeded")
	}
}

func TestGitHubAuthorizeEndpointDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewGitHubProvider(config.GitHubConfig{
		ClientID:      "cid",
		DeviceAuthURL: srv.URL + "/device",
		TokenURL:      srv.URL + "/token",
	}, 5*time.Second)

	_, err := p.Authorize(t.Context(), "alice")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("Authorize = %v, want ErrProviderUnavailable", err)
	}
}

func TestGitHubCompleteEmptyToken(t *testing.T) {
	p := NewGitHubProvider(config.GitHubConfig{ClientID: "cid"}, time.Second)
	if _, err := p.Complete(t.Context(), "alice", &oauth2.Token{}); err == nil {
		t.Fatal("Complete with empty token succeeded")
	}
}

func TestGitHubRefreshKeepsRotatingRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "gho_new", "token_type": "bearer", "expires_in": 28800}`)
	}))
	defer srv.Close()

	p := NewGitHubProvider(config.GitHubConfig{
		ClientID: "cid",
		TokenURL: srv.URL,
	}, 5*time.Second)

	next, err := p.Refresh(t.Context(), &models.UserCredential{
		Provider:     models.ProviderGitHub,
		UserID:       "alice",
		AccessToken:  "gho_old",
		RefreshToken: "ghr_keep",
		ExpiresAt:    time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.AccessToken != "gho_new" {
		t.Errorf("AccessToken = %q", next.AccessToken)
	}
	if next.RefreshToken != "ghr_keep" {
		t.Errorf("RefreshToken = %q, want the prior token kept", next.RefreshToken)
	}
}

func TestGitHubRefreshEndpointOutageIsTransient(t *testing.T) {
	for _, status := range []int{http.StatusServiceUnavailable, http.StatusTooManyRequests} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "try again later", status)
		}))

		p := NewGitHubProvider(config.GitHubConfig{ClientID: "cid", TokenURL: srv.URL}, 5*time.Second)
		_, err := p.Refresh(t.Context(), &models.UserCredential{
			Provider:     models.ProviderGitHub,
			UserID:       "alice",
			AccessToken:  "gho_old",
			RefreshToken: "ghr_ref",
		})
		if !errors.Is(err, ErrProviderUnavailable) {
			t.Errorf("status %d: Refresh = %v, want ErrProviderUnavailable", status, err)
		}
		srv.Close()
	}
}

func TestGitHubRefreshRejectionIsDefinitive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": "bad_refresh_token"}`)
	}))
	defer srv.Close()

	p := NewGitHubProvider(config.GitHubConfig{ClientID: "cid", TokenURL: srv.URL}, 5*time.Second)
	_, err := p.Refresh(t.Context(), &models.UserCredential{
		Provider:     models.ProviderGitHub,
		UserID:       "alice",
		AccessToken:  "gho_old",
		RefreshToken: "ghr_revoked",
	})
	if err == nil {
		t.Fatal("Refresh with a revoked token succeeded")
	}
	if errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Refresh = %v; a 4xx rejection must not classify as transient", err)
	}
}

func TestGitHubAPIBase(t *testing.T) {
	p := NewGitHubProvider(config.GitHubConfig{}, time.Second)
	if got := p.APIBase(nil); got != "https://api.github.com" {
		t.Errorf("APIBase = %q", got)
	}
	p = NewGitHubProvider(config.GitHubConfig{APIBaseURL: "https://ghe.corp/api/v3"}, time.Second)
	if got := p.APIBase(nil); got != "https://ghe.corp/api/v3" {
		t.Errorf("enterprise APIBase = %q", got)
	}
}
