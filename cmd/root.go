package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"corridorbots/pkg/config"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "corridorbots",
	Short: "Run a fleet of corridor chat bots",
	Long:  "Logs a fleet of bots into a corridor chat service and lets each one move, lock, befriend neighbors and talk, driven by fixed rules or a language model.",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (defaults to $CORRIDOR_CONFIG, ./config.json or ./config/config.json)")
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}

	return config.LoadConfig()
}
