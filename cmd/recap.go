package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/panleme/panleme/internal/chat"
)

func newRecapCmd() *cobra.Command {
	var sessionFlag string
	var personaFlag string

	cmd := &cobra.Command{
		Use:   "recap",
		Short: "Generate the end-of-day recap for a session",
		Long: "Generates a recap over today's journaling session and rewrites its title.\n" +
			"By default it picks today's session of the first persona that supports recaps.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := initConfig()
			store, personas, cleanup := buildStore(cfg)
			defer cleanup()

			sessionID := sessionFlag
			if sessionID == "" {
				personaType := personaFlag
				if personaType == "" {
					for _, p := range personas.List() {
						if p.Summary != nil {
							personaType = p.ID
							break
						}
					}
				}
				if personaType == "" {
					return fmt.Errorf("no persona supports recaps")
				}
				sess, ok := store.TodaySession(personaType)
				if !ok {
					return fmt.Errorf("no session for persona %q today", personaType)
				}
				sessionID = sess.ID
			}

			store.LoadSession(sessionID)
			if store.SessionID() != sessionID {
				return fmt.Errorf("no session with id %s", sessionID)
			}

			if err := store.GenerateSummary(); err != nil {
				return err
			}
			msgs := store.Messages()
			return streamToStdout(store, msgs[len(msgs)-1].ID)
		},
	}

	cmd.Flags().StringVar(&sessionFlag, "session", "", "session id to recap (default: today's)")
	cmd.Flags().StringVar(&personaFlag, "persona", "", "persona whose today-session to recap")
	return cmd
}

// streamToStdout prints deltas as they arrive and blocks until the message
// reaches a terminal state.
func streamToStdout(store *chat.Store, id string) error {
	changed := make(chan struct{}, 1)
	store.SetOnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer store.SetOnChange(nil)

	printed := 0
	unsubscribe := store.SubscribeToStream(id, func(full string) {
		if len(full) > printed {
			fmt.Print(full[printed:])
			printed = len(full)
		}
	})
	defer unsubscribe()

	for {
		var found *chat.Message
		for _, m := range store.Messages() {
			if m.ID == id {
				found = &m
				break
			}
		}
		if found == nil {
			return fmt.Errorf("recap message disappeared")
		}
		if found.Status.Terminal() {
			if printed < len(found.Content) {
				fmt.Print(found.Content[printed:])
			}
			fmt.Println()
			if found.Status == chat.StatusFailed {
				return fmt.Errorf("recap failed")
			}
			return nil
		}
		<-changed
	}
}
