package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/refinery-db/refinery/internal/config"
)

const version = "0.1.0"

// AppConfig holds the loaded configuration, set during PersistentPreRunE.
var AppConfig *config.Config //nolint:gochecknoglobals // standard Cobra pattern for shared config

// rootCmd is the base command for the refinery CLI.
var rootCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:     "refinery",
	Version: version,
	Short:   "Versioned SQL schema migrations",
	Long: `refinery applies an ordered, authored set of migration scripts to a
relational database. Applied migrations are recorded in a schema history
table with content checksums, so drift, gaps and repeats are detected
before anything executes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rootCmd.PersistentFlags().String("config", "refinery.yml", "path to configuration file")
	rootCmd.PersistentFlags().String("database-url", "", "database connection string")
	rootCmd.PersistentFlags().String("driver", "", "database driver (postgres, sqlite, mysql, mssql)")
	rootCmd.PersistentFlags().String("migrations-dir", "", "path to migration files")
	rootCmd.PersistentFlags().String("table", "", "schema history table name")
	rootCmd.PersistentFlags().Bool("wide-versions", false, "allow 64-bit migration versions")
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads configuration with precedence: flag > env > file.
func loadConfig(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	allowMissing := !cmd.Flags().Changed("config")

	cfg, err := config.Load(configPath, allowMissing)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	config.MergeEnv(cfg)
	mergeFlags(cmd, cfg)

	AppConfig = cfg

	return nil
}

// mergeFlags overrides config with explicitly-set CLI flags.
func mergeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("database-url") {
		cfg.DatabaseURL, _ = cmd.Flags().GetString("database-url")
	}

	if cmd.Flags().Changed("driver") {
		cfg.Driver, _ = cmd.Flags().GetString("driver")
	}

	if cmd.Flags().Changed("migrations-dir") {
		cfg.MigrationsDir, _ = cmd.Flags().GetString("migrations-dir")
	}

	if cmd.Flags().Changed("table") {
		cfg.TableName, _ = cmd.Flags().GetString("table")
	}

	if cmd.Flags().Changed("wide-versions") {
		cfg.WideVersions, _ = cmd.Flags().GetBool("wide-versions")
	}
}
