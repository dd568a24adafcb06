package commands

import (
	"github.com/spf13/cobra"
	"github.com/teranos/texcomp/display"
	"github.com/teranos/texcomp/errors"
	"github.com/teranos/texcomp/symbol"
)

// CompleteCmd resolves candidates for a workspace from the shell
var CompleteCmd = &cobra.Command{
	Use:   "complete",
	Short: "Resolve completion candidates for a workspace",
	Long: `Scan a workspace once and print the candidates for a kind and prefix,
ranked the way the language server ranks them. Every document in the
workspace and every package they load is visible.`,
	Example: `  texcomp complete --kind command --prefix sec
  texcomp complete --root paper --kind file --prefix fig/ --json`,
	RunE: runComplete,
}

var (
	completeRoot   string
	completeKind   string
	completePrefix string
	completeLimit  int
)

func init() {
	CompleteCmd.Flags().StringVar(&completeRoot, "root", ".", "Workspace root to scan")
	CompleteCmd.Flags().StringVarP(&completeKind, "kind", "k", symbol.Command.String(), "Symbol kind: command, environment or file")
	CompleteCmd.Flags().StringVarP(&completePrefix, "prefix", "p", "", "Name prefix to complete")
	CompleteCmd.Flags().IntVarP(&completeLimit, "limit", "n", 0, "Maximum candidates (0 = configured limit)")
}

func runComplete(cmd *cobra.Command, args []string) error {
	kind, err := symbol.ParseKind(completeKind)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	ctx := cmd.Context()
	service, err := startService(ctx, cfg)
	if err != nil {
		return err
	}
	defer service.Teardown()

	w, err := newWatcher(cfg, completeRoot, service)
	if err != nil {
		return err
	}
	if err := w.Scan(ctx); err != nil {
		return err
	}

	items, err := service.Resolve(kind, completePrefix, completeLimit)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(items)
	}
	return display.RenderSuggestions(cmd.OutOrStdout(), items)
}
