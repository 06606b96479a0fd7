package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/quartetops/quartet/internal/auth"
	"github.com/quartetops/quartet/pkg/models"
)

// Tool is one capability an agent can invoke. Execute receives the id of
// the user the call acts on behalf of; adapters that talk to external
// providers use it to select that user's credential and never anyone
// else's.
type Tool interface {
	Name() string
	Description() string
	// Schema is the JSON Schema for the tool's input.
	Schema() map[string]any
	Execute(ctx context.Context, userID string, input json.RawMessage) models.ToolResult
}

// Registry holds the tools available to agents.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subset returns a new registry containing only the named tools. Unknown
// names are skipped: an agent asking for a tool that was never registered
// simply does without it.
func (r *Registry) Subset(names ...string) *Registry {
	sub := NewRegistry()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			sub.tools[name] = t
		}
	}
	return sub
}

// credentialFor fetches the user's credential for a provider, translating
// auth errors into tool results the model can act on. A pending
// authorization fails fast with the URL so the agent can surface it instead
// of blocking on the user.
func credentialFor(ctx context.Context, store *auth.Store, provider models.Provider, userID string) (*models.UserCredential, *models.ToolResult) {
	cred, err := store.Get(ctx, provider, userID)
	if err == nil {
		return cred, nil
	}

	var pending *auth.AuthorizationPending
	switch {
	case errors.As(err, &pending):
		msg := fmt.Sprintf("%s authorization required for user %s: visit %s", provider, userID, pending.URL)
		if pending.UserCode != "" {
			msg += fmt.Sprintf(" and enter code %s", pending.UserCode)
		}
		res := models.Failf("%s", msg)
		return nil, &res
	case errors.Is(err, auth.ErrProviderUnavailable):
		res := models.Failf("%s is temporarily unavailable, retry shortly: %v", provider, err)
		return nil, &res
	default:
		res := models.Failf("get %s credential for %s: %v", provider, userID, err)
		return nil, &res
	}
}

// apiFailure maps a provider HTTP status to a tool result. 401/403 drop
// the stored credential so the next call re-authorizes instead of failing
// the same way forever.
func apiFailure(store *auth.Store, provider models.Provider, userID string, status int, action string) models.ToolResult {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if err := store.Invalidate(provider, userID); err != nil {
			return models.Failf("%s: %s rejected the credential (HTTP %d) and clearing it failed: %v", action, provider, status, err)
		}
		return models.Failf("%s: %s rejected the credential (HTTP %d); it has been cleared, retry to re-authorize", action, provider, status)
	case status == http.StatusNotFound:
		return models.Failf("%s: not found", action)
	case status == http.StatusTooManyRequests || status >= 500:
		return models.Failf("%s: %s is temporarily unavailable (HTTP %d), retry shortly", action, provider, status)
	default:
		return models.Failf("%s: %s returned HTTP %d", action, provider, status)
	}
}
