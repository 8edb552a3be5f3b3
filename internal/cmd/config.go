package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"taskmaster-lite/internal/config"

	"github.com/spf13/cobra"
)

// newConfigCmd creates the config command with subcommands.
func newConfigCmd(provider *AppProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long: `Manage taskmaster configuration settings.

Configuration is stored as flat key-value pairs in .taskmaster/config.yaml
(or config.toml). Core keys: actor, storage.backend, database.path,
log.level, log.format, versions.enabled. Custom keys are also accepted.

Subcommands:
  get       Get a configuration value
  set       Set a configuration value
  list      List all configuration values
  unset     Remove a configuration value
  validate  Validate configuration`,
	}

	cmd.AddCommand(newConfigGetCmd(provider))
	cmd.AddCommand(newConfigSetCmd(provider))
	cmd.AddCommand(newConfigListCmd(provider))
	cmd.AddCommand(newConfigUnsetCmd(provider))
	cmd.AddCommand(newConfigValidateCmd(provider))

	return cmd
}

// newConfigGetCmd creates the "config get" subcommand.
func newConfigGetCmd(provider *AppProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Long: `Get the effective value of a configuration key, including defaults and
environment overrides.

Prints the bare value if the key is set, or "key (not set)" if missing.

Examples:
  tm config get actor
  tm config get storage.backend`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}

			key := args[0]
			value, ok := app.ConfigStore.Get(key)
			if !ok {
				value = config.DefaultValues()[key]
				ok = value != ""
			}

			if app.JSON {
				return json.NewEncoder(app.Out).Encode(map[string]any{
					"key":   key,
					"value": value,
					"set":   ok,
				})
			}

			if ok {
				fmt.Fprintln(app.Out, value)
			} else {
				fmt.Fprintf(app.Out, "%s (not set)\n", key)
			}
			return nil
		},
	}

	return cmd
}

// newConfigSetCmd creates the "config set" subcommand.
func newConfigSetCmd(provider *AppProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration key to a value. Values of core keys are validated
before they are written.

Examples:
  tm config set actor alice
  tm config set storage.backend sqlite
  tm config set versions.enabled false`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}

			store, err := app.configFile()
			if err != nil {
				return err
			}

			key, value := args[0], args[1]
			if err := config.Validate(&singleValue{key: key, value: value}); err != nil {
				return err
			}
			if err := store.Set(key, value); err != nil {
				return fmt.Errorf("setting config: %w", err)
			}

			if app.JSON {
				return json.NewEncoder(app.Out).Encode(map[string]string{
					"key":   key,
					"value": value,
				})
			}

			fmt.Fprintf(app.Out, "Set %s = %s\n", key, value)
			return nil
		},
	}

	return cmd
}

// newConfigListCmd creates the "config list" subcommand.
func newConfigListCmd(provider *AppProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all configuration values",
		Long: `List all configuration key-value pairs, defaults included.

Entries are sorted alphabetically by key.

Examples:
  tm config list
  tm config list --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}

			all := app.ConfigStore.All()
			for k, v := range config.DefaultValues() {
				if _, exists := all[k]; !exists {
					all[k] = v
				}
			}

			if app.JSON {
				return json.NewEncoder(app.Out).Encode(all)
			}

			fmt.Fprintln(app.Out, "Configuration:")
			for _, k := range sortedKeys(all) {
				fmt.Fprintf(app.Out, "  %s = %s\n", k, all[k])
			}
			return nil
		},
	}

	return cmd
}

// newConfigUnsetCmd creates the "config unset" subcommand.
func newConfigUnsetCmd(provider *AppProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a configuration value",
		Long: `Remove a configuration key. Core keys fall back to their defaults.

Examples:
  tm config unset actor`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}

			store, err := app.configFile()
			if err != nil {
				return err
			}

			key := args[0]
			if err := store.Unset(key); err != nil {
				return fmt.Errorf("unsetting config: %w", err)
			}

			if app.JSON {
				return json.NewEncoder(app.Out).Encode(map[string]string{"key": key})
			}

			fmt.Fprintf(app.Out, "Unset %s\n", key)
			return nil
		},
	}

	return cmd
}

// newConfigValidateCmd creates the "config validate" subcommand.
func newConfigValidateCmd(provider *AppProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Long: `Validate the configuration file. Unknown (custom) keys are always
accepted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := provider.Get()
			if err != nil {
				return err
			}

			store, err := app.configFile()
			if err != nil {
				return err
			}
			verr := config.Validate(store)

			if app.JSON {
				result := map[string]any{"valid": verr == nil}
				if verr != nil {
					result["error"] = verr.Error()
				}
				return json.NewEncoder(app.Out).Encode(result)
			}

			if verr == nil {
				fmt.Fprintln(app.Out, "Configuration is valid.")
				return nil
			}
			return verr
		},
	}

	return cmd
}

// singleValue is a one-entry config.Store used to validate a value before
// it is written.
type singleValue struct {
	key, value string
}

func (s *singleValue) Get(key string) (string, bool) {
	if key == s.key {
		return s.value, true
	}
	return "", false
}
func (s *singleValue) Set(key, value string) error   { s.key, s.value = key, value; return nil }
func (s *singleValue) SetInMemory(key, value string) { s.key, s.value = key, value }
func (s *singleValue) Unset(key string) error        { return nil }
func (s *singleValue) All() map[string]string        { return map[string]string{s.key: s.value} }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
