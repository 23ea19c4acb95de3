package cmd

import (
	"github.com/panleme/panleme/internal/tui"
)

// runChat starts the interactive chat mode.
func runChat() error {
	cfg := initConfig()

	store, personas, cleanup := buildStore(cfg)
	defer cleanup()

	if useTUI {
		return tui.Run(tui.Config{
			Version:     displayVersion(),
			Model:       cfg.Model,
			ShowWelcome: true,
		}, store, personas)
	}

	return tui.NewPlainChat(store, personas).Run()
}
