package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/panleme/panleme/internal/config"
	"github.com/panleme/panleme/internal/llm"
	"github.com/panleme/panleme/internal/storage"
)

func newVerifyCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "verify [api-key]",
		Short: "Verify an API credential against the configured endpoint",
		Long: "Checks the credential with a GET /models request. With --save, a valid\n" +
			"credential is written to the config file and the session database.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := initConfig()

			apiKey := cfg.APIKey
			if len(args) == 1 {
				apiKey = args[0]
			}
			if apiKey == "" {
				return fmt.Errorf("no API key given; pass one as an argument or set LLM_API_KEY")
			}

			client := llm.NewClient()
			valid, err := client.VerifyKey(context.Background(), apiKey, cfg.BaseURL)
			if err != nil {
				return fmt.Errorf("verify against %s: %w", cfg.BaseURL, err)
			}
			if !valid {
				return fmt.Errorf("credential rejected by %s", cfg.BaseURL)
			}
			fmt.Printf("Credential accepted by %s\n", cfg.BaseURL)

			if save {
				if err := config.SaveCredentials(cfgFile, apiKey, cfg.BaseURL); err != nil {
					return err
				}
				kv, closeKV := openKV(cfg)
				defer closeKV()
				if err := kv.SetString(storage.KeyAPIKey, apiKey); err != nil {
					return fmt.Errorf("store credential: %w", err)
				}
				fmt.Println("Credential saved.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "persist the credential after successful verification")
	return cmd
}
