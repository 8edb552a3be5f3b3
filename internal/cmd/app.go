// Package cmd implements the tm command-line interface.
package cmd

import (
	"io"
	"os"

	"taskmaster-lite/internal/config"
	"taskmaster-lite/internal/config/filestore"
	"taskmaster-lite/internal/prdservice"

	"github.com/charmbracelet/log"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"
)

// App holds application state shared across commands.
type App struct {
	Service     *prdservice.Service
	Layout      config.Layout
	ConfigStore config.Store
	ConfigPath  string
	DB          *sqlx.DB // nil on the json backend
	Logger      *log.Logger
	Out         io.Writer
	Err         io.Writer
	JSON        bool // output in JSON format
}

// Close releases the database, if one was opened.
func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

// configFile opens the config file itself, without the defaults and
// environment overrides ConfigStore carries in memory.
func (a *App) configFile() (config.Store, error) {
	if a.ConfigPath != "" {
		return filestore.New(a.ConfigPath)
	}
	if a.ConfigStore != nil {
		return a.ConfigStore, nil
	}
	return filestore.New(a.Layout.Abs(a.Layout.ConfigFile))
}

// SuccessColor returns the string wrapped in green ANSI codes if stdout is a terminal,
// otherwise returns the string unchanged.
func (a *App) SuccessColor(s string) string {
	if f, ok := a.Out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "\033[32m" + s + "\033[0m"
	}
	return s
}

// WarnColor returns the string wrapped in orange ANSI codes if stdout is a terminal,
// otherwise returns the string unchanged.
func (a *App) WarnColor(s string) string {
	if f, ok := a.Out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "\033[38;5;214m" + s + "\033[0m"
	}
	return s
}

// ErrorColor returns the string wrapped in red ANSI codes if stdout is a terminal,
// otherwise returns the string unchanged.
func (a *App) ErrorColor(s string) string {
	if f, ok := a.Out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "\033[31m" + s + "\033[0m"
	}
	return s
}
