// Package am loads texcomp configuration ("I am") from TOML files and the
// environment using Viper.
package am

// Config represents the texcomp configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Completion CompletionConfig `mapstructure:"completion"`
	Workspace  WorkspaceConfig  `mapstructure:"workspace"`
	Kernel     KernelConfig     `mapstructure:"kernel"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig configures the language server transport
type ServerConfig struct {
	Transport    string `mapstructure:"transport"`     // stdio or websocket
	Address      string `mapstructure:"address"`       // listen address for websocket
	MaxDocuments int    `mapstructure:"max_documents"` // open documents per client

	// AllowedOrigins are origins (scheme://host[:port]) accepted on the websocket transport
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// CompletionConfig configures candidate resolution
type CompletionConfig struct {
	Limit int `mapstructure:"limit"` // 0 = unbounded
}

// WorkspaceConfig configures workspace scanning and watching
type WorkspaceConfig struct {
	Root       string   `mapstructure:"root"`
	Watch      bool     `mapstructure:"watch"`
	Extensions []string `mapstructure:"extensions"` // files whose symbols are extracted
	FileTypes  []string `mapstructure:"file_types"` // files offered as path completions
	Workers    int      `mapstructure:"workers"`    // parallel extraction during the initial scan
	DebounceMS int      `mapstructure:"debounce_ms"`
	MaxEvents  int      `mapstructure:"max_events_per_second"`
}

// KernelConfig configures the built-in symbol database
type KernelConfig struct {
	ComponentFiles []string `mapstructure:"component_files"` // extra TOML component files
	SearchPaths    []string `mapstructure:"search_paths"`    // directories searched for unknown .sty/.cls files
}

// LogConfig configures logging
type LogConfig struct {
	JSON      bool `mapstructure:"json"`
	Verbosity int  `mapstructure:"verbosity"`
}

// Transport names
const (
	TransportStdio     = "stdio"
	TransportWebSocket = "websocket"
)
