package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	tmlog "github.com/tendermint/tendermint/libs/log"

	"github.com/darwinia-network/bridger-guard/guard"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "bridger-guard",
		Short:         "Vote on ethereum headers relayed to Darwinia",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".env", "path to the env config file")
	rootCmd.AddCommand(guardCmd(), pendingCmd(), showParcelCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// loadConfig reads the config and builds the process logger from it.
func loadConfig() (guard.Config, tmlog.Logger, error) {
	logger := tmlog.NewTMLogger(tmlog.NewSyncWriter(os.Stdout))
	config, err := guard.LoadConfig(configPath)
	if err != nil {
		return config, logger, err
	}
	option, err := tmlog.AllowLevel(config.LogLevel)
	if err != nil {
		return config, logger, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return config, tmlog.NewFilter(logger, option), nil
}
