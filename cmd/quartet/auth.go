package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/quartetops/quartet/pkg/models"
)

var authUser string

var authCmd = &cobra.Command{
	Use:   "auth <github|jira>",
	Short: "Authorize a provider for a user",
	Long: `Connect a GitHub or Jira account for a user.

GitHub uses the device flow: visit the printed URL and enter the code.
Jira uses the Atlassian authorization page: visit the printed URL and
grant access; the browser is redirected back to a local listener.

Credentials are stored per (provider, user). Other users are never able
to act with this account.`,
	Args: cobra.ExactArgs(1),
	RunE: runAuth,
}

func init() {
	authCmd.Flags().StringVar(&authUser, "user", "", "User to authorize (defaults to config or $USER)")
}

func runAuth(cmd *cobra.Command, args []string) error {
	provider, err := models.ParseProvider(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys, err := buildSystem(nil)
	if err != nil {
		return err
	}
	defer sys.Close()

	if err := sys.cfg.ValidateProvider(provider); err != nil {
		return err
	}
	userID := sys.cfg.UserID(authUser)

	if sys.cfg.Timeouts.Authorization > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sys.cfg.Timeouts.Authorization)
		defer cancel()
	}

	req, err := sys.store.BeginAuthorization(ctx, provider, userID)
	if err != nil {
		return fmt.Errorf("start authorization: %w", err)
	}

	fmt.Printf("Authorizing %s for user %s\n\n", provider, color.CyanString(userID))
	fmt.Printf("  Visit: %s\n", color.New(color.Bold).Sprint(req.URL))
	if req.UserCode != "" {
		fmt.Printf("  Code:  %s\n", color.New(color.Bold).Sprint(req.UserCode))
	}
	fmt.Println("\nWaiting for you to complete the flow...")

	cred, err := sys.store.FinishAuthorization(ctx, req)
	if err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	fmt.Printf("\n%s %s connected for %s", color.GreenString("✓"), provider, userID)
	if site := cred.Metadata[models.MetadataSiteURL]; site != "" {
		fmt.Printf(" (%s)", site)
	}
	fmt.Println()
	if !cred.ExpiresAt.IsZero() {
		fmt.Printf("Token expires %s; it will be refreshed automatically.\n", cred.ExpiresAt.Format("2006-01-02 15:04"))
	}
	return nil
}
