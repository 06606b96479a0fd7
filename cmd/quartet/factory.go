package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/quartetops/quartet/internal/agent"
	"github.com/quartetops/quartet/internal/auth"
	"github.com/quartetops/quartet/internal/config"
	"github.com/quartetops/quartet/internal/exec"
	"github.com/quartetops/quartet/internal/orchestrator"
	"github.com/quartetops/quartet/internal/state"
	"github.com/quartetops/quartet/internal/tools"
	"github.com/quartetops/quartet/pkg/models"
)

// system is the fully wired application: config, state database,
// credential store, tool registry, agents and the orchestrator on top.
type system struct {
	cfg     *config.Config
	db      *state.DB
	store   *auth.Store
	client  *agent.Client
	orch    *orchestrator.Orchestrator
	signals *orchestrator.SignalWatcher
}

// buildSystem assembles the system from configuration. onEvent receives
// orchestrator progress events and may be nil.
func buildSystem(onEvent func(orchestrator.Event)) (*system, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := state.OpenGlobal()
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	var storeOpts []auth.StoreOption
	if cfg.Credentials.UseKeyring {
		storeOpts = append(storeOpts, auth.WithSecretBackend(auth.NewKeyringBackend()))
	}
	store := auth.NewStore(db, storeOpts...)
	store.Register(auth.NewGitHubProvider(cfg.Providers.GitHub, cfg.Timeouts.HTTP))
	store.Register(auth.NewAtlassianProvider(cfg.Providers.Atlassian, cfg.Timeouts.HTTP))

	workspace := cfg.Defaults.Workspace
	if workspace == "" {
		workspace, _ = os.Getwd()
	}

	registry := tools.NewRegistry()
	registry.Register(tools.NewGitHubTool(store, cfg.Providers.GitHub.APIBaseURL))
	registry.Register(tools.NewJiraTool(store, cfg.Timeouts.HTTP))
	registry.Register(tools.NewFileTool(workspace))
	registry.Register(tools.NewCommandTool(workspace, exec.NewRunner(), cfg.Timeouts.Step))
	registry.Register(tools.NewStatusTool(store))

	client, err := agent.NewClient(agent.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create API client: %w", err)
	}

	units := agent.BuildUnits(client, registry, cfg.Defaults.MaxIterations)
	agents := make(map[models.AgentName]orchestrator.AgentRunner, len(units))
	for name, unit := range units {
		agents[name] = unit
	}

	workflows, err := orchestrator.LoadWorkflows(filepath.Join(workspace, ".quartet", "workflows.yaml"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load workflows: %w", err)
	}

	// Signal watcher failures are not fatal; runs just lose cancel/pause.
	signals, err := orchestrator.NewSignalWatcher(filepath.Join(workspace, ".quartet", "signals"))
	if err != nil {
		signals = nil
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Agents:      agents,
		Workflows:   workflows,
		Table:       orchestrator.DefaultRouteTable(),
		DB:          db,
		Signals:     signals,
		StepTimeout: cfg.Timeouts.Step,
		OnEvent:     onEvent,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}

	return &system{
		cfg:     cfg,
		db:      db,
		store:   store,
		client:  client,
		orch:    orch,
		signals: signals,
	}, nil
}

// Close releases the database and signal watcher.
func (s *system) Close() {
	if s.signals != nil {
		s.signals.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}
