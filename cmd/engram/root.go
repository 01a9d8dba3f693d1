package main

import (
	"context"
	"os"

	"github.com/kestrelworks/engram/internal/config"
	"github.com/kestrelworks/engram/pkg/log"
	"github.com/spf13/cobra"
)

var (
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "engram",
	Short: "Engram, a bitemporal memory engine for coding agents",
	Long:  `Engram aggregates agent event streams into turns and maintains a conflict-aware long-term memory graph.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Global flags available to all subcommands
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", config.IsDebug(), "enable debug logging")
}

func setupLogger(ctx context.Context) (context.Context, func()) {
	isDebug := debug || config.IsDebug()
	return log.NewContextWithLogger(ctx, isDebug)
}
