package commands

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/teranos/texcomp/am"
	"github.com/teranos/texcomp/display"
	"github.com/teranos/texcomp/errors"
	"gopkg.in/yaml.v3"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: `Show texcomp configuration ("I am")`,
	Long: `am: show texcomp configuration ("I am")

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (TEXCOMP_* prefix, e.g. TEXCOMP_SERVER_TRANSPORT)
3. Project config (./texcomp.toml, searched up from the working directory)
4. User config (~/.texcomp/config.toml)
5. System config (/etc/texcomp/config.toml)
6. Default values

Examples:
  texcomp am show                 # Show current configuration
  texcomp am show --format yaml   # Show configuration as YAML
  texcomp am get server.transport # Get a specific value
  texcomp am validate             # Validate current configuration`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., server.address, workspace.workers)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
}

// settingsViper returns the viper instance behind the active configuration
func settingsViper(cmd *cobra.Command) (*viper.Viper, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return am.GetViper(), nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	am.SetDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	return v, nil
}

func runAmShow(cmd *cobra.Command, args []string) error {
	v, err := settingsViper(cmd)
	if err != nil {
		return err
	}
	settings := v.AllSettings()
	out := cmd.OutOrStdout()

	switch configFormat {
	case "json":
		data, err := display.MarshalJSON(settings)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Fprintln(out, string(data))

	case "yaml":
		data, err := yaml.Marshal(settings)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(out, "# texcomp configuration\n%s", string(data))

	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(settings); err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Fprintf(out, "# texcomp configuration\n%s", buf.String())

	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}
	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	v, err := settingsViper(cmd)
	if err != nil {
		return err
	}
	if !v.IsSet(key) {
		return errors.NewNotFoundError("configuration key %q", key)
	}
	fmt.Fprintln(cmd.OutOrStdout(), v.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
	return nil
}
