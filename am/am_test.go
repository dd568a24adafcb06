package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, TransportStdio, cfg.Server.Transport)
	assert.Equal(t, 100, cfg.Server.MaxDocuments)
	assert.Equal(t, 0, cfg.Completion.Limit)
	assert.Equal(t, ".", cfg.Workspace.Root)
	assert.True(t, cfg.Workspace.Watch)
	assert.Equal(t, []string{".tex", ".sty", ".cls"}, cfg.Workspace.Extensions)
	assert.Contains(t, cfg.Workspace.FileTypes, ".bib")
	assert.Equal(t, 4, cfg.Workspace.Workers)
	assert.Empty(t, cfg.Kernel.ComponentFiles)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "texcomp.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
transport = "websocket"
address = ":9000"

[completion]
limit = 25

[kernel]
component_files = ["/etc/texcomp/extra.toml"]
search_paths = ["/usr/share/texmf/tex/latex/local"]
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, TransportWebSocket, cfg.Server.Transport)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, 25, cfg.Completion.Limit)
	assert.Equal(t, []string{"/etc/texcomp/extra.toml"}, cfg.Kernel.ComponentFiles)
	assert.Equal(t, []string{"/usr/share/texmf/tex/latex/local"}, cfg.Kernel.SearchPaths)
	// untouched keys keep defaults
	assert.Equal(t, 100, cfg.Server.MaxDocuments)
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "texcomp.toml")
	require.NoError(t, os.WriteFile(path, []byte("[completion]\nlimit = -1\n"), 0o644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completion.limit")
}

func TestLoad_EnvOverride(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("TEXCOMP_COMPLETION_LIMIT", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Completion.Limit)

	again, err := Load()
	require.NoError(t, err)
	assert.Same(t, cfg, again)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"unknown transport", func(c *Config) { c.Server.Transport = "tcp" }, "server.transport"},
		{"websocket needs address", func(c *Config) {
			c.Server.Transport = TransportWebSocket
			c.Server.Address = ""
		}, "server.address"},
		{"zero documents", func(c *Config) { c.Server.MaxDocuments = 0 }, "server.max_documents"},
		{"negative limit", func(c *Config) { c.Completion.Limit = -3 }, "completion.limit"},
		{"zero workers", func(c *Config) { c.Workspace.Workers = 0 }, "workspace.workers"},
		{"negative debounce", func(c *Config) { c.Workspace.DebounceMS = -1 }, "workspace.debounce_ms"},
		{"zero event rate", func(c *Config) { c.Workspace.MaxEvents = 0 }, "max_events_per_second"},
		{"extension without dot", func(c *Config) { c.Workspace.Extensions = []string{"tex"} }, "must start with"},
		{"negative verbosity", func(c *Config) { c.Log.Verbosity = -1 }, "log.verbosity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
