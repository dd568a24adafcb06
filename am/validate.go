package am

import (
	"strings"

	"github.com/teranos/texcomp/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case TransportStdio, TransportWebSocket:
	default:
		return errors.WithHint(
			errors.Newf("server.transport must be %q or %q, got %q", TransportStdio, TransportWebSocket, c.Server.Transport),
			"omit server.transport to use stdio")
	}
	if c.Server.Transport == TransportWebSocket && c.Server.Address == "" {
		return errors.New("server.address cannot be empty for the websocket transport")
	}
	if c.Server.MaxDocuments <= 0 {
		return errors.Newf("server.max_documents must be > 0, got %d", c.Server.MaxDocuments)
	}

	// 0 = unbounded
	if c.Completion.Limit < 0 {
		return errors.Newf("completion.limit must be >= 0, got %d", c.Completion.Limit)
	}

	if c.Workspace.Workers <= 0 {
		return errors.Newf("workspace.workers must be > 0, got %d", c.Workspace.Workers)
	}
	if c.Workspace.DebounceMS < 0 {
		return errors.Newf("workspace.debounce_ms must be >= 0, got %d", c.Workspace.DebounceMS)
	}
	if c.Workspace.MaxEvents <= 0 {
		return errors.Newf("workspace.max_events_per_second must be > 0, got %d", c.Workspace.MaxEvents)
	}
	for _, ext := range append(append([]string{}, c.Workspace.Extensions...), c.Workspace.FileTypes...) {
		if !strings.HasPrefix(ext, ".") {
			return errors.Newf("workspace extension %q must start with '.'", ext)
		}
	}

	if c.Log.Verbosity < 0 {
		return errors.Newf("log.verbosity must be >= 0, got %d", c.Log.Verbosity)
	}
	return nil
}
