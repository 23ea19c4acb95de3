package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List saved journaling sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := initConfig()
			store, _, cleanup := buildStore(cfg)
			defer cleanup()

			sessions := store.Sessions()
			if len(sessions) == 0 {
				fmt.Println("No sessions yet.")
				return nil
			}
			for _, s := range sessions {
				created := time.UnixMilli(s.Timestamp).Format("2006-01-02 15:04")
				fmt.Printf("%-16s  %-10s  %-19s  %s\n", s.ID, s.Type, created, s.Title)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session and its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := initConfig()
			store, _, cleanup := buildStore(cfg)
			defer cleanup()

			id := args[0]
			found := false
			for _, s := range store.Sessions() {
				if s.ID == id {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("no session with id %s", id)
			}
			store.DeleteSession(id)
			fmt.Printf("Deleted session %s\n", id)
			return nil
		},
	})

	return cmd
}
