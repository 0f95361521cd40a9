package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jask/offlinesync/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool",
	Long:  `Database migration tool for managing schema versions. Use with 'up', 'down' or 'version' subcommands.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Usage()
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrateUp,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back database migrations",
	Long: `Roll back database migrations. Without --num-steps every migration is
reverted, which deletes the cache and the sync queue.`,
	Args: cobra.NoArgs,
	RunE: runMigrateDown,
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	Args:  cobra.NoArgs,
	RunE:  runMigrateVersion,
}

func init() {
	migrateDownCmd.Flags().UintP("num-steps", "n", 0, "Number of steps to migrate (0 = all)")
	migrateDownCmd.Flags().BoolP("yes", "y", false, "Answer yes to all questions")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Applying database migrations...")
	if err := database.RunMigrations(cfg.Database.Path); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return printVersion(cmd, cfg.Database.Path)
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	steps, _ := cmd.Flags().GetUint("num-steps")
	yes, _ := cmd.Flags().GetBool("yes")

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if !yes && !confirm(cmd, fmt.Sprintf("Roll back migrations on %s?", cfg.Database.Path)) {
		logger.Info("Migration cancelled by user")
		return nil
	}
	if err := database.MigrateDown(cfg.Database.Path, int(steps)); err != nil {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return printVersion(cmd, cfg.Database.Path)
}

func runMigrateVersion(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return printVersion(cmd, cfg.Database.Path)
}

func printVersion(cmd *cobra.Command, path string) error {
	version, dirty, err := database.Version(path)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d (dirty)\n", version)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", version)
	return nil
}
