// Package config handles configuration loading and management for Quartet.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/quartetops/quartet/pkg/models"
)

// Config holds all configuration for Quartet.
type Config struct {
	Anthropic   AnthropicConfig   `mapstructure:"anthropic"`
	Providers   ProvidersConfig   `mapstructure:"providers"`
	Defaults    DefaultsConfig    `mapstructure:"defaults"`
	Timeouts    TimeoutsConfig    `mapstructure:"timeouts"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	TUI         TUIConfig         `mapstructure:"tui"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// UseAWSBedrock routes requests through AWS Bedrock instead of the
	// direct API.
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// ProvidersConfig holds per-provider OAuth client settings.
type ProvidersConfig struct {
	GitHub    GitHubConfig    `mapstructure:"github"`
	Atlassian AtlassianConfig `mapstructure:"atlassian"`
}

// GitHubConfig configures the GitHub OAuth device flow and API base.
type GitHubConfig struct {
	// ClientID is the OAuth app client id used for the device flow.
	ClientID string `mapstructure:"client_id"`
	// Scopes requested during authorization.
	Scopes []string `mapstructure:"scopes"`
	// APIBaseURL overrides the REST base (GitHub Enterprise). Empty means
	// https://api.github.com.
	APIBaseURL string `mapstructure:"api_base_url"`
	// DeviceAuthURL and TokenURL override the OAuth endpoints, used by
	// tests and enterprise installs.
	DeviceAuthURL string `mapstructure:"device_auth_url"`
	TokenURL      string `mapstructure:"token_url"`
}

// AtlassianConfig configures the Atlassian 3LO flow, tenant resolution and
// API base for Jira.
type AtlassianConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	// Scopes requested during authorization. offline_access is required
	// for refresh tokens.
	Scopes []string `mapstructure:"scopes"`
	// RedirectPort is the local loopback port for the authorization
	// callback.
	RedirectPort int `mapstructure:"redirect_port"`
	// AuthURL, TokenURL and IntrospectionURL override the Atlassian
	// endpoints, used by tests.
	AuthURL          string `mapstructure:"auth_url"`
	TokenURL         string `mapstructure:"token_url"`
	IntrospectionURL string `mapstructure:"introspection_url"`
	// APIBaseURL is the tenant-routing API base. Empty means
	// https://api.atlassian.com.
	APIBaseURL string `mapstructure:"api_base_url"`
	// SiteURL is the direct (non tenant-scoped) Jira site, used as the
	// fallback base when no cloud id has been resolved yet.
	SiteURL string `mapstructure:"site_url"`
}

// DefaultsConfig holds default values for Quartet runs.
type DefaultsConfig struct {
	// UserID is the identity tool calls act on behalf of when --user is
	// not given.
	UserID string `mapstructure:"user_id"`
	// Workspace is the working directory for file and command tools.
	Workspace string `mapstructure:"workspace"`
	// MaxIterations bounds the tool-use loop per agent invocation.
	MaxIterations int `mapstructure:"max_iterations"`
}

// TimeoutsConfig holds timeout settings. Every external call is bounded by
// one of these; a stalled call reports a transient failure instead of
// hanging the run.
type TimeoutsConfig struct {
	// HTTP bounds a single request to an external API.
	HTTP time.Duration `mapstructure:"http"`
	// Step bounds one agent invocation within a run.
	Step time.Duration `mapstructure:"step"`
	// Authorization bounds how long a pending authorization flow is
	// polled before it expires.
	Authorization time.Duration `mapstructure:"authorization"`
}

// CredentialsConfig holds credential storage settings.
type CredentialsConfig struct {
	// UseKeyring stores access and refresh tokens in the OS keychain
	// instead of the sqlite database.
	UseKeyring bool `mapstructure:"use_keyring"`
}

// TUIConfig holds interactive mode display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, QUARTET_*)
// 2. Project config (.quartet.yaml in current directory or parent)
// 3. User config (~/.config/quartet/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("providers.github.client_id", "QUARTET_GITHUB_CLIENT_ID")
	v.BindEnv("providers.atlassian.client_id", "QUARTET_ATLASSIAN_CLIENT_ID")
	v.BindEnv("providers.atlassian.client_secret", "QUARTET_ATLASSIAN_CLIENT_SECRET")
	v.BindEnv("defaults.user_id", "QUARTET_USER")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.expandSecrets()
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.expandSecrets()
	return cfg, nil
}

// expandSecrets expands ${VAR} references in secret-bearing fields.
func (c *Config) expandSecrets() {
	c.Anthropic.APIKey = os.ExpandEnv(c.Anthropic.APIKey)
	c.Providers.GitHub.ClientID = os.ExpandEnv(c.Providers.GitHub.ClientID)
	c.Providers.Atlassian.ClientID = os.ExpandEnv(c.Providers.Atlassian.ClientID)
	c.Providers.Atlassian.ClientSecret = os.ExpandEnv(c.Providers.Atlassian.ClientSecret)
}

// Validate fails fast on deployment-time faults: non-positive timeouts or a
// broken tool-loop bound. Provider-specific checks live in ValidateProvider
// so a GitHub-only install does not need Atlassian credentials.
func (c *Config) Validate() error {
	if c.Timeouts.HTTP <= 0 {
		return fmt.Errorf("config: timeouts.http must be positive, got %s", c.Timeouts.HTTP)
	}
	if c.Timeouts.Step <= 0 {
		return fmt.Errorf("config: timeouts.step must be positive, got %s", c.Timeouts.Step)
	}
	if c.Timeouts.Authorization <= 0 {
		return fmt.Errorf("config: timeouts.authorization must be positive, got %s", c.Timeouts.Authorization)
	}
	if c.Defaults.MaxIterations <= 0 {
		return fmt.Errorf("config: defaults.max_iterations must be positive, got %d", c.Defaults.MaxIterations)
	}
	return nil
}

// ValidateProvider fails fast when the named provider cannot run its
// authorization flow with the current configuration.
func (c *Config) ValidateProvider(p models.Provider) error {
	switch p {
	case models.ProviderGitHub:
		if c.Providers.GitHub.ClientID == "" {
			return fmt.Errorf("config: providers.github.client_id is not set (or QUARTET_GITHUB_CLIENT_ID)")
		}
	case models.ProviderJira:
		if c.Providers.Atlassian.ClientID == "" {
			return fmt.Errorf("config: providers.atlassian.client_id is not set (or QUARTET_ATLASSIAN_CLIENT_ID)")
		}
		if c.Providers.Atlassian.ClientSecret == "" {
			return fmt.Errorf("config: providers.atlassian.client_secret is not set (or QUARTET_ATLASSIAN_CLIENT_SECRET)")
		}
	default:
		return fmt.Errorf("config: unknown provider %q", p)
	}
	return nil
}

// UserID resolves the effective user identity: explicit override, config
// default, then the OS account name.
func (c *Config) UserID(override string) string {
	if override != "" {
		return override
	}
	if c.Defaults.UserID != "" {
		return c.Defaults.UserID
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "default"
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it
// exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("providers.github.scopes", []string{"repo", "read:user"})
	v.SetDefault("providers.atlassian.scopes", []string{"read:jira-work", "write:jira-work", "offline_access"})
	v.SetDefault("providers.atlassian.redirect_port", 8976)

	v.SetDefault("defaults.user_id", "")
	v.SetDefault("defaults.workspace", ".")
	v.SetDefault("defaults.max_iterations", 25)

	v.SetDefault("timeouts.http", "30s")
	v.SetDefault("timeouts.step", "5m")
	v.SetDefault("timeouts.authorization", "10m")

	v.SetDefault("credentials.use_keyring", false)

	v.SetDefault("tui.refresh_rate", "100ms")
}

// getUserConfigDir returns the XDG config directory for Quartet.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "quartet")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "quartet")
	}
	return filepath.Join(home, ".config", "quartet")
}

// findProjectConfig searches for .quartet.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".quartet.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}
