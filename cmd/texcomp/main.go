package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/teranos/texcomp/cmd/texcomp/commands"
	"github.com/teranos/texcomp/logger"
)

var rootCmd = &cobra.Command{
	Use:   "texcomp",
	Short: "texcomp - LaTeX completion engine and language server",
	Long: `texcomp - LaTeX completion engine and language server.

texcomp indexes the commands, environments and files a LaTeX workspace
defines or loads, and offers them as completions over LSP.

Available commands:
  serve    - Run the language server (stdio or websocket)
  complete - Resolve completion candidates for a workspace
  kernel   - List built-in and package symbols
  am       - Show texcomp configuration ("I am")
  version  - Show version information

Examples:
  texcomp serve                                    # LSP over stdio
  texcomp serve --transport websocket              # LSP over websocket
  texcomp complete --kind environment --prefix ite # Query from the shell
  texcomp kernel --component tikz.sty              # What does tikz provide?`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Output results as JSON")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().String("config", "", "Read configuration from this file only")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.CompleteCmd)
	rootCmd.AddCommand(commands.KernelCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
