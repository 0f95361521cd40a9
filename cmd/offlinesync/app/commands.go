// Package app provides the cobra commands for the offlinesync CLI.
package app

import (
	"sync"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:               "offlinesync",
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	Short:             "Offline cache and sync queue",
	Long: `offlinesync keeps a durable local cache and a queue of pending mutations,
and replays the queue against the configured server whenever it is reachable.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var setupOnce sync.Once

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	setupOnce.Do(setupRoot)
	return rootCmd
}

func setupRoot() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ~/.config/offlinesync/config.toml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(resetCmd)
}
