package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"corridorbots/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print a summary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		printConfigSummary(cmd.OutOrStdout(), cfg)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}

func printConfigSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "corridor: %s (push %s)\n", cfg.Corridor.BaseURL, cfg.Corridor.WSEndpoint)
	fmt.Fprintf(w, "tick interval: %s\n", cfg.Fleet.TickInterval())

	llm := "disabled"
	if cfg.UsesLLM() && cfg.LLM.Enabled {
		llm = fmt.Sprintf("%s/%s", providerName(cfg.LLM.Provider), cfg.LLM.Model)
		if cfg.LLM.ResolveAPIKey() == "" {
			llm += " (no api key)"
		}
	}
	fmt.Fprintf(w, "llm: %s\n", llm)

	fmt.Fprintf(w, "bots: %d\n", len(cfg.Bots))
	for _, bot := range cfg.Bots {
		policy := "fixed_rule"
		if bot.UseLLM {
			policy = "generative"
		}
		fmt.Fprintf(w, "  - %s (%s)\n", bot.Username, policy)
	}

	if cfg.Gateway.Enabled {
		fmt.Fprintf(w, "gateway: %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	}
	fmt.Fprintln(w, "ok")
}

func providerName(id string) string {
	if id == "" {
		return "openai"
	}
	return id
}
