package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhruvparmar372/ossgard-sub002/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialise configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := config.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Println("Config written. Set github.token and an AI provider key before scanning.")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		// Secrets stay out of terminal scrollback.
		cfg.GitHub.Token = redact(cfg.GitHub.Token)
		cfg.AI.OpenAIKey = redact(cfg.AI.OpenAIKey)
		cfg.AI.AnthropicKey = redact(cfg.AI.AnthropicKey)
		cfg.Vector.APIKey = redact(cfg.Vector.APIKey)

		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd)
}
