package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "overlay",
	Short: "Portal demo: presence registry and remote effect control plane",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
	SilenceUsage: true,
}

var flagConfigFile string

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfigFile, "config", "", "optional config file (yaml, json or toml)")
	flags.String(keyLogLevel, "info", "log level (debug, info, warn, error)")
	flags.Bool(keyLogJSON, false, "emit JSON logs instead of console output")

	rootCmd.AddCommand(serveCmd, agentCmd, ctlCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute overlay command")
	}
}
