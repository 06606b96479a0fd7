package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/quartetops/quartet/internal/config"
	"github.com/quartetops/quartet/internal/state"
	"github.com/quartetops/quartet/pkg/models"
)

func introspectionServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization header = %q, want Bearer tok", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func atlassianWithIntrospection(srv *httptest.Server) *AtlassianProvider {
	return NewAtlassianProvider(config.AtlassianConfig{
		ClientID:         "cid",
		ClientSecret:     "secret",
		IntrospectionURL: srv.URL,
	}, 5*time.Second)
}

func TestAtlassianCompleteSelectsFirstTenant(t *testing.T) {
	srv := introspectionServer(t, http.StatusOK, `[
		{"id": "cloud-a", "url": "https://a.atlassian.net", "name": "Site A"},
		{"id": "cloud-b", "url": "https://b.atlassian.net", "name": "Site B"}
	]`)
	p := atlassianWithIntrospection(srv)

	for i := 0; i < 3; i++ {
		cred, err := p.Complete(t.Context(), "alice", &oauth2.Token{AccessToken: "tok"})
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if cred.CloudID() != "cloud-a" {
			t.Fatalf("CloudID = %q, want first entry cloud-a", cred.CloudID())
		}
		if got := cred.Metadata[models.MetadataSiteURL]; got != "https://a.atlassian.net" {
			t.Errorf("site_url = %q", got)
		}
	}
}

func TestAtlassianCompleteNoTenants(t *testing.T) {
	srv := introspectionServer(t, http.StatusOK, `[]`)
	p := atlassianWithIntrospection(srv)

	_, err := p.Complete(t.Context(), "alice", &oauth2.Token{AccessToken: "tok"})
	if !errors.Is(err, ErrNoAccessibleTenant) {
		t.Fatalf("Complete = %v, want ErrNoAccessibleTenant", err)
	}
}

func TestAtlassianIntrospectionOutage(t *testing.T) {
	srv := introspectionServer(t, http.StatusServiceUnavailable, "")
	p := atlassianWithIntrospection(srv)

	_, err := p.Complete(t.Context(), "alice", &oauth2.Token{AccessToken: "tok"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("Complete = %v, want ErrProviderUnavailable", err)
	}
}

func TestAtlassianCompleteCarriesExpiry(t *testing.T) {
	srv := introspectionServer(t, http.StatusOK, `[{"id": "cloud-a", "url": "https://a.atlassian.net"}]`)
	p := atlassianWithIntrospection(srv)

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	cred, err := p.Complete(t.Context(), "alice", &oauth2.Token{AccessToken: "tok", RefreshToken: "ref", Expiry: expiry})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !cred.ExpiresAt.Equal(expiry) {
		t.Errorf("ExpiresAt = %v, want %v", cred.ExpiresAt, expiry)
	}
	if cred.RefreshToken != "ref" {
		t.Errorf("RefreshToken = %q", cred.RefreshToken)
	}
}

func TestAtlassianRefreshPreservesTenant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "new-tok", "refresh_token": "new-ref", "token_type": "bearer", "expires_in": 3600}`)
	}))
	defer srv.Close()

	p := NewAtlassianProvider(config.AtlassianConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		TokenURL:     srv.URL,
	}, 5*time.Second)

	next, err := p.Refresh(t.Context(), &models.UserCredential{
		Provider:     models.ProviderJira,
		UserID:       "alice",
		AccessToken:  "old",
		RefreshToken: "old-ref",
		Metadata:     map[string]string{models.MetadataCloudID: "cloud-a"},
	})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.AccessToken != "new-tok" || next.RefreshToken != "new-ref" {
		t.Errorf("tokens = %q/%q", next.AccessToken, next.RefreshToken)
	}
	if next.CloudID() != "cloud-a" {
		t.Errorf("CloudID = %q, want cloud-a preserved", next.CloudID())
	}
}

func TestAtlassianRefreshEndpointOutageIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewAtlassianProvider(config.AtlassianConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		TokenURL:     srv.URL,
	}, 5*time.Second)

	_, err := p.Refresh(t.Context(), &models.UserCredential{
		Provider:     models.ProviderJira,
		UserID:       "alice",
		AccessToken:  "old",
		RefreshToken: "ref",
	})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Refresh = %v, want ErrProviderUnavailable", err)
	}
}

// A token-endpoint outage mid-refresh must leave the stored credential in
// place; only a definitive rejection restarts authorization.
func TestRefreshOutageKeepsStoredCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	db, err := state.Open(filepath.Join(t.TempDir(), "quartet.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	s := NewStore(db)
	s.Register(NewAtlassianProvider(config.AtlassianConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		TokenURL:     srv.URL,
	}, 5*time.Second))

	if err := s.Put(&models.UserCredential{
		Provider:     models.ProviderJira,
		UserID:       "alice",
		AccessToken:  "old",
		RefreshToken: "ref",
		ExpiresAt:    time.Now().Add(-time.Minute),
		Metadata:     map[string]string{models.MetadataCloudID: "cloud-a"},
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, err = s.Get(context.Background(), models.ProviderJira, "alice")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("Get = %v, want ErrProviderUnavailable", err)
	}
	var pending *AuthorizationPending
	if errors.As(err, &pending) {
		t.Fatal("re-authorization started on a transient outage")
	}

	infos, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("credential count = %d, want the stored credential kept", len(infos))
	}
	kept, err := s.load(credKey{provider: models.ProviderJira, userID: "alice"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if kept.RefreshToken != "ref" || kept.CloudID() != "cloud-a" {
		t.Errorf("kept = %q/%q, want refresh token and tenant intact", kept.RefreshToken, kept.CloudID())
	}
}

func TestAtlassianRefreshWithoutRefreshToken(t *testing.T) {
	p := NewAtlassianProvider(config.AtlassianConfig{ClientID: "cid", ClientSecret: "secret"}, time.Second)
	_, err := p.Refresh(t.Context(), &models.UserCredential{UserID: "alice"})
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Refresh = %v, want ErrTokenExpired", err)
	}
}

func TestAtlassianAPIBase(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AtlassianConfig
		cred *models.UserCredential
		want string
	}{
		{
			name: "resolved cloud id uses tenant routing",
			cred: &models.UserCredential{Metadata: map[string]string{models.MetadataCloudID: "cloud-a"}},
			want: "https://api.atlassian.com/ex/jira/cloud-a",
		},
		{
			name: "no cloud id falls back to site url",
			cfg:  config.AtlassianConfig{SiteURL: "https://corp.atlassian.net/"},
			cred: &models.UserCredential{},
			want: "https://corp.atlassian.net",
		},
		{
			name: "nil credential without site url",
			want: "https://api.atlassian.com",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewAtlassianProvider(tt.cfg, time.Second)
			if got := p.APIBase(tt.cred); got != tt.want {
				t.Errorf("APIBase = %q, want %q", got, tt.want)
			}
		})
	}
}
