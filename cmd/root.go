package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/panleme/panleme/internal/chat"
	"github.com/panleme/panleme/internal/config"
	"github.com/panleme/panleme/internal/eventlog"
	"github.com/panleme/panleme/internal/llm"
	"github.com/panleme/panleme/internal/persona"
	"github.com/panleme/panleme/internal/storage"
)

var (
	cfgFile   string
	modelFlag string
	useTUI    bool

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	rootCmd := &cobra.Command{
		Use:   "panleme",
		Short: "Personal journaling assistant",
		Long:  "panleme is a conversational journaling companion with persona-guided sessions and end-of-day recaps.",
		// Running panleme with no subcommand starts chat mode.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Default TUI on when stdout is a terminal and --tui was not explicitly set.
			if !cmd.Root().PersistentFlags().Changed("tui") && term.IsTerminal(int(os.Stdout.Fd())) {
				useTUI = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/panleme/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "override model")
	rootCmd.PersistentFlags().BoolVar(&useTUI, "tui", false, "use bubbletea TUI mode (default: auto-detect terminal)")

	// Subcommands
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newRecapCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))
	rootCmd.AddCommand(newInitCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// displayVersion returns a formatted version string for the TUI welcome page,
// e.g. "v0.3.1 (abc1234)".
func displayVersion() string {
	v := "v" + appVersion
	if appCommit != "" && appCommit != "none" {
		v += " (" + appCommit + ")"
	}
	return v
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	return cfg
}

// openKV opens the on-disk store, falling back to in-memory when the
// database cannot be opened. The returned close function is never nil.
func openKV(cfg *config.Config) (storage.KV, func()) {
	path := storage.DefaultDBPath(cfg.ResolveDataDir())
	kv, err := storage.NewSQLiteKV(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v (sessions will not persist)\n", path, err)
		return storage.NewMemoryKV(), func() {}
	}
	return kv, func() { _ = kv.Close() }
}

// buildStore wires storage, personas, the event log and the completion
// client into a conversation store.
func buildStore(cfg *config.Config) (*chat.Store, *persona.Registry, func()) {
	kv, closeKV := openKV(cfg)

	log, err := eventlog.New(filepath.Join(cfg.ResolveDataDir(), "events"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "event log disabled: %v\n", err)
		log = nil
	}

	personas := persona.Load()
	store := chat.NewStore(chat.Options{
		KV:        kv,
		Completer: llm.NewClient(),
		Personas:  personas,
		Log:       log,
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
	})

	return store, personas, func() {
		log.Close()
		closeKV()
	}
}
