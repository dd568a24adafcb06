package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/texcomp/display"
	"github.com/teranos/texcomp/errors"
	"github.com/teranos/texcomp/kernel"
	"github.com/teranos/texcomp/symbol"
)

// KernelCmd lists the built-in symbol database
var KernelCmd = &cobra.Command{
	Use:   "kernel",
	Short: "List built-in and package symbols",
	Long: `List the kernel's built-in commands and environments, or the symbols a
package or class provides. Component files from kernel.component_files are
merged in.`,
	Example: `  texcomp kernel --kind environment
  texcomp kernel --component tikz.sty
  texcomp kernel --components`,
	RunE: runKernel,
}

var (
	kernelKind       string
	kernelComponent  string
	kernelComponents bool
)

func init() {
	KernelCmd.Flags().StringVarP(&kernelKind, "kind", "k", "", "Only list this kind: command, environment or file")
	KernelCmd.Flags().StringVarP(&kernelComponent, "component", "c", "", "List symbols of a package or class file (e.g. tikz.sty)")
	KernelCmd.Flags().BoolVar(&kernelComponents, "components", false, "List known package and class files")
}

func runKernel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	db, err := kernel.Load()
	if err != nil {
		return err
	}
	for _, file := range cfg.Kernel.ComponentFiles {
		if err := db.LoadComponentFile(file); err != nil {
			return err
		}
	}

	if kernelComponents {
		return listComponents(cmd, db)
	}

	records := db.Builtins()
	if kernelComponent != "" {
		c, ok := db.Find(kernelComponent)
		if !ok {
			return errors.WithHint(
				errors.NewNotFoundError("component %q", kernelComponent),
				"run 'texcomp kernel --components' to list known files")
		}
		records = c.Symbols()
	}

	if kernelKind != "" {
		kind, err := symbol.ParseKind(kernelKind)
		if err != nil {
			return err
		}
		filtered := records[:0:0]
		for _, r := range records {
			if r.Kind == kind {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(records)
	}

	rows := pterm.TableData{{"Name", "Kind", "Origin"}}
	for _, r := range records {
		origin := string(r.Origin)
		if r.IsBuiltin() {
			origin = "built-in"
		}
		rows = append(rows, []string{r.Name, r.Kind.String(), origin})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(rows).Render(); err != nil {
		return err
	}
	pterm.Info.WithWriter(cmd.OutOrStdout()).Println(fmt.Sprintf("%d symbols", len(records)))
	return nil
}

func listComponents(cmd *cobra.Command, db *kernel.Database) error {
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(db.Components)
	}
	rows := pterm.TableData{{"File", "Commands", "Environments", "References"}}
	for _, c := range db.Components {
		rows = append(rows, []string{
			string(c.ID()),
			fmt.Sprint(len(c.Commands)),
			fmt.Sprint(len(c.Environments)),
			fmt.Sprint(c.References),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(rows).Render()
}
