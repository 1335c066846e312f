package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"receivables/internal/config"
	"receivables/internal/logger"
	"receivables/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Long: `Apply the embedded SQL migrations to a PostgreSQL database, or run gorm's
AutoMigrate for SQLite.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("migrate")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	storeCfg := cfg.GetStoreConfig()

	if storeCfg.Driver == store.DriverPostgres {
		version, err := store.RunMigrations(storeCfg.DSN)
		if err != nil {
			return err
		}
		log.Info().Uint("schema_version", version).Msg("SQL migrations applied")
		fmt.Printf("Schema at version %d\n", version)
		return nil
	}

	ctx, cancel := signalContext(0, log)
	defer cancel()

	// Open runs AutoMigrate for sqlite.
	st, err := store.Open(ctx, storeCfg)
	if err != nil {
		return err
	}
	if err := st.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close database")
	}
	fmt.Println("Schema up to date")
	return nil
}
