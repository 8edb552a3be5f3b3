package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"taskmaster-lite/internal/config"
	"taskmaster-lite/internal/configservice"
	"taskmaster-lite/internal/logging"
	"taskmaster-lite/internal/prdservice"

	"github.com/spf13/cobra"
)

// AppProvider lazily initializes the App on first use.
type AppProvider struct {
	once sync.Once
	app  *App
	err  error

	// Config captured from flags before Execute()
	ProjectPath string
	JSONOutput  bool
	LogLevel    string
	LogFormat   string
	Out         io.Writer
	Err         io.Writer
}

// Get returns the App, initializing it on first call.
func (p *AppProvider) Get() (*App, error) {
	p.once.Do(func() {
		if p.app == nil {
			p.app, p.err = p.init(context.Background())
		}
	})
	return p.app, p.err
}

// Close releases what the App opened. It is safe to call when the App was
// never built.
func (p *AppProvider) Close() error {
	if p.app == nil {
		return nil
	}
	return p.app.Close()
}

// NewTestProvider creates a provider pre-initialized with the given App.
// Used for testing commands with a test App.
func NewTestProvider(app *App) *AppProvider {
	return &AppProvider{
		app:        app,
		JSONOutput: app.JSON,
		Out:        app.Out,
		Err:        app.Err,
	}
}

func (p *AppProvider) out() io.Writer {
	if p.Out == nil {
		return os.Stdout
	}
	return p.Out
}

func (p *AppProvider) errOut() io.Writer {
	if p.Err == nil {
		return os.Stderr
	}
	return p.Err
}

// projectRoot resolves --path, then TASKMASTER_DIR, then an upward search
// from the working directory.
func (p *AppProvider) projectRoot() (string, error) {
	if p.ProjectPath != "" {
		return configservice.NormalizeRoot(p.ProjectPath)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("cannot get current directory: %w", err)
	}
	return configservice.FindProjectRoot(cwd)
}

func (p *AppProvider) init(ctx context.Context) (*App, error) {
	root, err := p.projectRoot()
	if err != nil {
		return nil, err
	}
	project, err := configservice.Open(root)
	if err != nil {
		return nil, err
	}

	level := p.LogLevel
	if level == "" {
		level = config.Lookup(project.Config, config.KeyLogLevel)
	}
	format := p.LogFormat
	if format == "" {
		format = config.Lookup(project.Config, config.KeyLogFormat)
	}
	logger := logging.FromConfig(p.errOut(), level, format)

	backend, err := openBackend(ctx, project.Layout, project.Config, logger)
	if err != nil {
		return nil, err
	}
	app := &App{
		Layout:      project.Layout,
		ConfigStore: project.Config,
		ConfigPath:  project.Config.Path(),
		DB:          backend.db,
		Logger:      logger,
		Out:         p.out(),
		Err:         p.errOut(),
		JSON:        p.JSONOutput,
	}
	actor, _ := resolveActor(app)
	app.Service = prdservice.New(project.Root, backend.store,
		prdservice.WithLayout(project.Layout),
		prdservice.WithLogger(logger),
		prdservice.WithTracker(backend.tracker),
		prdservice.WithAuthor(actor),
	)
	return app, nil
}

// Execute runs the CLI.
func Execute() error {
	provider := &AppProvider{
		Out: os.Stdout,
		Err: os.Stderr,
	}

	rootCmd := newRootCmd(provider)
	err := rootCmd.Execute()
	if cerr := provider.Close(); err == nil {
		err = cerr
	}
	return err
}

// newRootCmd creates the root command with all subcommands.
func newRootCmd(provider *AppProvider) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tm",
		Short: "Keep PRD documents and the task list consistent",
		Long: `tm maintains the PRD documents of a project and their links to the task list.
PRD files live in .taskmaster/prd/<status>/ next to the PRD index (prds.json);
tasks live in .taskmaster/tasks/tasks.json. tm checks that files, hashes,
directories and links agree, repairs what it can, and keeps version history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags - these populate the provider config
	rootCmd.PersistentFlags().BoolVar(&provider.JSONOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&provider.ProjectPath, "path", "", "Path to the project root or its .taskmaster directory (default: search from cwd)")
	rootCmd.PersistentFlags().StringVar(&provider.LogLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().StringVar(&provider.LogFormat, "log-format", "", "Log format: text, json, logfmt (default from config)")

	// Register all commands
	rootCmd.AddCommand(newInitCmd(provider))
	rootCmd.AddCommand(newCheckCmd(provider))
	rootCmd.AddCommand(newStatsCmd(provider))
	rootCmd.AddCommand(newOrganizeCmd(provider))
	rootCmd.AddCommand(newSyncStatusCmd(provider))
	rootCmd.AddCommand(newPRDCmd(provider))
	rootCmd.AddCommand(newVersionsCmd(provider))
	rootCmd.AddCommand(newMigrateCmd(provider))
	rootCmd.AddCommand(newConfigCmd(provider))
	rootCmd.AddCommand(newVersionCmd(provider))

	return rootCmd
}
