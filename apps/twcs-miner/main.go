package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:          "twcs-miner",
		Short:        "Mine customer-support processes from the Twitter Customer Support corpus",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	for _, s := range stages {
		rootCmd.AddCommand(newStageCmd(&configPath, s))
	}
	rootCmd.AddCommand(newRunCmd(&configPath))
	return rootCmd
}
