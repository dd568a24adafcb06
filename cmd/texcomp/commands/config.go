// Package commands implements the texcomp CLI.
package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/teranos/texcomp/am"
	"github.com/teranos/texcomp/logger"
	"github.com/teranos/texcomp/lsp"
	"github.com/teranos/texcomp/watcher"
)

// loadConfig honours --config, otherwise the usual cascade
func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return am.LoadFromFile(path)
	}
	return am.Load()
}

// startService builds and initializes a language service from configuration
func startService(ctx context.Context, cfg *am.Config) (*lsp.Service, error) {
	service := lsp.NewService(lsp.Config{
		Limit:          cfg.Completion.Limit,
		ComponentFiles: cfg.Kernel.ComponentFiles,
		SearchPaths:    cfg.Kernel.SearchPaths,
	}, logger.ComponentLogger("lsp"))
	if err := service.Init(ctx); err != nil {
		return nil, err
	}
	return service, nil
}

// newWatcher creates a workspace watcher feeding service
func newWatcher(cfg *am.Config, root string, service *lsp.Service) (*watcher.Watcher, error) {
	return watcher.New(watcher.Config{
		Root:               root,
		Extensions:         cfg.Workspace.Extensions,
		FileTypes:          cfg.Workspace.FileTypes,
		Workers:            cfg.Workspace.Workers,
		Debounce:           time.Duration(cfg.Workspace.DebounceMS) * time.Millisecond,
		MaxEventsPerSecond: cfg.Workspace.MaxEvents,
	}, service, logger.ComponentLogger("watcher"))
}
