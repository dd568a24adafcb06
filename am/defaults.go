package am

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", TransportStdio)
	v.SetDefault("server.address", "127.0.0.1:7171")
	v.SetDefault("server.max_documents", 100)
	v.SetDefault("server.allowed_origins", []string{"http://localhost", "https://localhost", "http://127.0.0.1"})

	v.SetDefault("completion.limit", 0)

	v.SetDefault("workspace.root", ".")
	v.SetDefault("workspace.watch", true)
	v.SetDefault("workspace.extensions", []string{".tex", ".sty", ".cls"})
	v.SetDefault("workspace.file_types", []string{".tex", ".sty", ".cls", ".bib", ".png", ".jpg", ".pdf", ".eps", ".svg"})
	v.SetDefault("workspace.workers", 4)
	v.SetDefault("workspace.debounce_ms", 200)
	v.SetDefault("workspace.max_events_per_second", 50)

	v.SetDefault("kernel.component_files", []string{})
	v.SetDefault("kernel.search_paths", []string{})

	v.SetDefault("log.json", false)
	v.SetDefault("log.verbosity", 0)
}
