package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"taskmaster-lite/internal/config"
	"taskmaster-lite/internal/config/filestore"
	"taskmaster-lite/internal/configservice"
	"taskmaster-lite/internal/logging"
	"taskmaster-lite/internal/metastore"
	"taskmaster-lite/internal/prdservice"

	"github.com/spf13/cobra"
)

// InitResult is the JSON output of init.
type InitResult struct {
	Root    string `json:"root"`
	DataDir string `json:"dataDir"`
	Backend string `json:"backend"`
}

// newInitCmd creates the init command.
// Note: init doesn't use the provider since it creates the .taskmaster directory.
func newInitCmd(provider *AppProvider) *cobra.Command {
	var (
		force       bool
		backendName string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a taskmaster project",
		Long: `Initialize a taskmaster project in the current directory (or --path).

Creates .taskmaster/ with the PRD status directories, the task and PRD
indices, templates/, reports/ and a config.yaml holding the defaults.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := runInit(cmd.Context(), provider, force, backendName)
			if err != nil {
				return err
			}
			out := provider.out()
			if provider.JSONOutput {
				return json.NewEncoder(out).Encode(res)
			}
			fmt.Fprintf(out, "Initialized taskmaster project in %s (backend %s)\n", res.DataDir, res.Backend)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Initialize even if .taskmaster exists")
	cmd.Flags().StringVar(&backendName, "backend", "", "Storage backend: json or sqlite (default json)")

	return cmd
}

func initRoot(provider *AppProvider) (string, error) {
	// Path resolution: --path > TASKMASTER_DIR > CWD
	if provider.ProjectPath != "" {
		return configservice.NormalizeRoot(provider.ProjectPath)
	}
	if envDir := os.Getenv(config.EnvProjectDir); envDir != "" {
		return configservice.NormalizeRoot(envDir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return cwd, nil
}

func runInit(ctx context.Context, provider *AppProvider, force bool, backendName string) (*InitResult, error) {
	if backendName != "" && backendName != config.BackendJSON && backendName != config.BackendSQLite {
		return nil, fmt.Errorf("unknown storage backend %q (allowed: %s, %s)", backendName, config.BackendJSON, config.BackendSQLite)
	}
	root, err := initRoot(provider)
	if err != nil {
		return nil, err
	}
	layout := config.NewLayout(root)

	if _, err := os.Stat(layout.Abs(layout.DataDir)); err == nil {
		if !force {
			return nil, errors.New("taskmaster project already exists (use --force to reinitialize)")
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("checking .taskmaster directory: %w", err)
	}

	store, err := filestore.New(layout.Abs(layout.ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("creating config store: %w", err)
	}
	if err := config.ApplyDefaults(store); err != nil {
		return nil, fmt.Errorf("writing default config: %w", err)
	}
	if backendName != "" {
		if err := store.Set(config.KeyStorageBackend, backendName); err != nil {
			return nil, fmt.Errorf("setting storage backend: %w", err)
		}
	}
	logger := logging.FromConfig(provider.errOut(), provider.LogLevel, provider.LogFormat)
	b, err := openBackend(ctx, layout, store, logger)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(b)

	svc := prdservice.New(root, b.store, prdservice.WithLayout(layout), prdservice.WithLogger(logger), prdservice.WithTracker(b.tracker))
	if err := svc.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	if b.db == nil {
		if err := writeEmptyIndices(ctx, layout, b.store); err != nil {
			return nil, err
		}
	}

	return &InitResult{
		Root:    root,
		DataDir: layout.Abs(layout.DataDir),
		Backend: config.Lookup(store, config.KeyStorageBackend),
	}, nil
}

// writeEmptyIndices creates whichever JSON index does not exist yet, so the
// project is recognized as using the consolidated layout.
func writeEmptyIndices(ctx context.Context, layout config.Layout, store metastore.Store) error {
	if _, err := os.Stat(layout.Abs(layout.PRDIndex)); os.IsNotExist(err) {
		if err := store.SavePRDs(ctx, metastore.NewPRDIndex()); err != nil {
			return fmt.Errorf("writing PRD index: %w", err)
		}
	}
	if _, err := os.Stat(layout.Abs(layout.TaskIndex)); os.IsNotExist(err) {
		if err := store.SaveTasks(ctx, metastore.NewTaskIndex()); err != nil {
			return fmt.Errorf("writing task index: %w", err)
		}
	}
	return nil
}

func closeQuietly(b *backend) {
	if b.db != nil {
		b.db.Close()
	}
}

