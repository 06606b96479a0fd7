package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quartetops/quartet/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [path]",
	Short: "Show configuration",
	Long: `Display the effective configuration with secrets masked.

Configuration is read from ~/.config/quartet/config.yaml, with
project-level overrides in .quartet.yaml. Environment variables win
over both (ANTHROPIC_API_KEY, QUARTET_*).

'quartet config path' prints only the config file locations.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 1 && args[0] == "path" {
			displayPaths()
			return
		}
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		displayConfig(cfg)
	},
}

func displayPaths() {
	fmt.Printf("User config:    %s\n", config.GetUserConfigPath())
	if p := config.GetProjectConfigPath(); p != "" {
		fmt.Printf("Project config: %s\n", p)
	}
}

func displayConfig(cfg *config.Config) {
	fmt.Println("Anthropic:")
	fmt.Printf("  api_key:     %s (from %s)\n", config.MaskSecret(cfg.Anthropic.APIKey), config.GetAPIKeySource(cfg))
	fmt.Printf("  model:       %s\n", orDefault(cfg.Anthropic.Model, "(default)"))
	if cfg.Anthropic.UseAWSBedrock {
		fmt.Printf("  bedrock:     enabled (region %s)\n", cfg.Anthropic.AWSRegion)
	}

	fmt.Println("Providers:")
	fmt.Printf("  github.client_id:       %s\n", orDefault(cfg.Providers.GitHub.ClientID, "(not set)"))
	fmt.Printf("  github.scopes:          %s\n", strings.Join(cfg.Providers.GitHub.Scopes, ", "))
	fmt.Printf("  atlassian.client_id:    %s\n", orDefault(cfg.Providers.Atlassian.ClientID, "(not set)"))
	fmt.Printf("  atlassian.client_secret: %s\n", config.MaskSecret(cfg.Providers.Atlassian.ClientSecret))
	fmt.Printf("  atlassian.scopes:       %s\n", strings.Join(cfg.Providers.Atlassian.Scopes, ", "))

	fmt.Println("Defaults:")
	fmt.Printf("  user_id:        %s\n", cfg.UserID(""))
	fmt.Printf("  workspace:      %s\n", orDefault(cfg.Defaults.Workspace, "(current directory)"))
	fmt.Printf("  max_iterations: %d\n", cfg.Defaults.MaxIterations)

	fmt.Println("Timeouts:")
	fmt.Printf("  http:          %s\n", cfg.Timeouts.HTTP)
	fmt.Printf("  step:          %s\n", cfg.Timeouts.Step)
	fmt.Printf("  authorization: %s\n", cfg.Timeouts.Authorization)

	fmt.Println("Credentials:")
	fmt.Printf("  use_keyring: %t\n", cfg.Credentials.UseKeyring)

	fmt.Println()
	displayPaths()
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
