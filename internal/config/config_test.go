package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quartetops/quartet/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
anthropic:
  api_key: sk-ant-test-key-1234567890
providers:
  github:
    client_id: Iv1.deadbeef
  atlassian:
    client_id: atl-client
    client_secret: atl-secret
    site_url: https://example.atlassian.net
defaults:
  user_id: alice
timeouts:
  http: 10s
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Anthropic.APIKey != "sk-ant-test-key-1234567890" {
		t.Errorf("APIKey = %q", cfg.Anthropic.APIKey)
	}
	if cfg.Providers.GitHub.ClientID != "Iv1.deadbeef" {
		t.Errorf("GitHub.ClientID = %q", cfg.Providers.GitHub.ClientID)
	}
	if cfg.Defaults.UserID != "alice" {
		t.Errorf("Defaults.UserID = %q", cfg.Defaults.UserID)
	}
	if cfg.Timeouts.HTTP != 10*time.Second {
		t.Errorf("Timeouts.HTTP = %s, want 10s", cfg.Timeouts.HTTP)
	}
	// Unset values fall back to defaults.
	if cfg.Timeouts.Step != 5*time.Minute {
		t.Errorf("Timeouts.Step = %s, want default 5m", cfg.Timeouts.Step)
	}
	if cfg.Providers.Atlassian.RedirectPort != 8976 {
		t.Errorf("RedirectPort = %d, want default 8976", cfg.Providers.Atlassian.RedirectPort)
	}
}

func TestLoadExpandsSecretEnvRefs(t *testing.T) {
	t.Setenv("TEST_ATL_SECRET", "expanded-secret")
	path := writeConfig(t, `
providers:
  atlassian:
    client_id: atl-client
    client_secret: ${TEST_ATL_SECRET}
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Providers.Atlassian.ClientSecret != "expanded-secret" {
		t.Errorf("ClientSecret = %q, want expanded-secret", cfg.Providers.Atlassian.ClientSecret)
	}
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, ``)
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with defaults = %v, want nil", err)
	}

	cfg.Timeouts.HTTP = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with zero http timeout = nil, want error")
	}

	cfg.Timeouts.HTTP = time.Second
	cfg.Defaults.MaxIterations = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with zero max iterations = nil, want error")
	}
}

func TestValidateProvider(t *testing.T) {
	cfg := &Config{}

	err := cfg.ValidateProvider(models.ProviderGitHub)
	if err == nil || !strings.Contains(err.Error(), "github.client_id") {
		t.Errorf("ValidateProvider(github) = %v, want client_id error", err)
	}

	cfg.Providers.GitHub.ClientID = "Iv1.cafe"
	if err := cfg.ValidateProvider(models.ProviderGitHub); err != nil {
		t.Errorf("ValidateProvider(github) = %v, want nil", err)
	}

	cfg.Providers.Atlassian.ClientID = "atl"
	err = cfg.ValidateProvider(models.ProviderJira)
	if err == nil || !strings.Contains(err.Error(), "client_secret") {
		t.Errorf("ValidateProvider(jira) = %v, want client_secret error", err)
	}

	cfg.Providers.Atlassian.ClientSecret = "s"
	if err := cfg.ValidateProvider(models.ProviderJira); err != nil {
		t.Errorf("ValidateProvider(jira) = %v, want nil", err)
	}

	if err := cfg.ValidateProvider("gitlab"); err == nil {
		t.Error("ValidateProvider(gitlab) = nil, want unknown provider error")
	}
}

func TestUserID(t *testing.T) {
	cfg := &Config{}
	cfg.Defaults.UserID = "bob"

	if got := cfg.UserID("carol"); got != "carol" {
		t.Errorf("UserID(override) = %q, want carol", got)
	}
	if got := cfg.UserID(""); got != "bob" {
		t.Errorf("UserID() = %q, want bob", got)
	}
}
