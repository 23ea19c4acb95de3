package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/panleme/panleme/internal/config"
	"github.com/panleme/panleme/internal/llm"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive configuration wizard",
		Long:  "Guides you through setting up panleme: enter your API key, pick an endpoint, and save the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Welcome to panleme configuration wizard!")
	fmt.Println()

	defaults := config.DefaultConfig()

	fmt.Printf("Chat endpoint base URL [%s]: ", defaults.BaseURL)
	baseURL, _ := reader.ReadString('\n')
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaults.BaseURL
	}

	fmt.Print("Enter API key: ")
	apiKey, _ := reader.ReadString('\n')
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	fmt.Printf("Model [%s]: ", defaults.Model)
	model, _ := reader.ReadString('\n')
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaults.Model
	}

	fmt.Print("\nVerifying credential... ")
	valid, err := llm.NewClient().VerifyKey(context.Background(), apiKey, baseURL)
	switch {
	case err != nil:
		fmt.Printf("could not reach %s (%v), saving anyway\n", baseURL, err)
	case !valid:
		fmt.Println("rejected")
		fmt.Print("Save anyway? [y/N]: ")
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	default:
		fmt.Println("ok")
	}

	configData := map[string]any{
		"api_key":  apiKey,
		"base_url": baseURL,
		"model":    model,
	}
	data, err := yaml.Marshal(configData)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	configPath := cfgFile
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	if configPath == "" {
		return fmt.Errorf("cannot determine config path")
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("\nConfig file already exists at %s\n", configPath)
		fmt.Print("Overwrite? [y/N]: ")
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("\nConfig saved to %s\n", configPath)
	fmt.Println("You can now run: panleme")
	return nil
}
