package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quartetops/quartet/internal/auth"
	"github.com/quartetops/quartet/pkg/models"
)

// StatusTool reports which providers the requesting user is authorized
// against. It never returns token material.
type StatusTool struct {
	store *auth.Store
}

func NewStatusTool(store *auth.Store) *StatusTool {
	return &StatusTool{store: store}
}

func (s *StatusTool) Name() string { return "auth_status" }

func (s *StatusTool) Description() string {
	return "Report which external providers the current user has authorized and whether the credentials are still valid."
}

func (s *StatusTool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (s *StatusTool) Execute(_ context.Context, userID string, _ json.RawMessage) models.ToolResult {
	infos, err := s.store.List()
	if err != nil {
		return models.Failf("auth_status: %v", err)
	}

	now := time.Now()
	providers := make([]map[string]any, 0, 2)
	for _, info := range infos {
		if info.UserID != userID {
			continue
		}
		entry := map[string]any{
			"provider":   string(info.Provider),
			"updated_at": info.UpdatedAt.Format(time.RFC3339),
		}
		switch {
		case info.ExpiresAt.IsZero():
			entry["state"] = "valid"
		case now.Before(info.ExpiresAt):
			entry["state"] = "valid"
			entry["expires_at"] = info.ExpiresAt.Format(time.RFC3339)
		default:
			entry["state"] = "expired"
			entry["expires_at"] = info.ExpiresAt.Format(time.RFC3339)
		}
		if info.CloudID != "" {
			entry["cloud_id"] = info.CloudID
		}
		providers = append(providers, entry)
	}

	if len(providers) == 0 {
		return models.Ok(fmt.Sprintf("user %s has not authorized any providers", userID), map[string]any{
			"providers": providers,
		})
	}
	return models.Ok(fmt.Sprintf("user %s has %d authorized provider(s)", userID, len(providers)), map[string]any{
		"providers": providers,
	})
}
