package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/refinery-db/refinery/internal/config"
	"github.com/refinery-db/refinery/internal/executor"
	"github.com/refinery-db/refinery/internal/migration"
)

var applyCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "apply",
	Short: "Apply pending migrations",
	Long: `Apply pending database migrations up to the target version, recording
each one in the schema history table. Each migration runs in its own
transaction unless --grouped wraps the whole run in one.`,
	RunE: runApply,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	applyCmd.Flags().Int64("target", -1, "apply migrations up to and including this version")
	applyCmd.Flags().Bool("fake", false, "record migrations in history without executing SQL")
	applyCmd.Flags().Bool("grouped", false, "run the whole plan in a single transaction")
	applyCmd.Flags().Bool("abort-divergent", true, "fail when an applied migration differs from the authored one")
	applyCmd.Flags().Bool("abort-missing", true, "fail on unapplied versioned migrations below the last applied version")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, _ []string) error {
	cfg := AppConfig
	out := cmd.OutOrStdout()

	mergeRunFlags(cmd, cfg)

	migrations, err := loadMigrations(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if len(migrations) == 0 {
		fmt.Fprintln(out, "No migration files found.")

		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	conn, cleanup, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Fprintf(out, "Applying migrations to %s\n", config.RedactURL(cfg.DatabaseURL))

	runner := executor.NewRunner(migrations,
		executor.WithTarget(targetFromFlags(cmd)),
		executor.WithGrouped(cfg.Grouped),
		executor.WithAbortDivergent(cfg.AbortDivergent),
		executor.WithAbortMissing(cfg.AbortMissing),
		executor.WithTableName(cfg.TableName),
		executor.WithLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))),
		executor.WithProgressCallback(func(event executor.ProgressEvent) {
			switch event.Status {
			case executor.StatusStarting:
				fmt.Fprintf(out, "  Applying %s ... ", event.Migration)
			case executor.StatusCompleted:
				fmt.Fprintf(out, "done (%s)\n", event.Duration.Truncate(time.Millisecond))
			case executor.StatusFaked:
				fmt.Fprintf(out, "recorded (fake)\n")
			case executor.StatusFailed:
				fmt.Fprintf(out, "FAILED\n")
				fmt.Fprintf(out, "    Error: %v\n", event.Error)
			}
		}),
	)

	report, err := runner.RunContext(ctx, conn)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nApply complete: %d migration(s) applied.\n", len(report.Applied()))

	return nil
}

// mergeRunFlags folds run-scoped flags into the configuration.
func mergeRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("grouped") {
		cfg.Grouped, _ = cmd.Flags().GetBool("grouped")
	}

	if cmd.Flags().Changed("abort-divergent") {
		cfg.AbortDivergent, _ = cmd.Flags().GetBool("abort-divergent")
	}

	if cmd.Flags().Changed("abort-missing") {
		cfg.AbortMissing, _ = cmd.Flags().GetBool("abort-missing")
	}
}

// targetFromFlags combines --target and --fake into a run target.
func targetFromFlags(cmd *cobra.Command) migration.Target {
	fake, _ := cmd.Flags().GetBool("fake")
	version, _ := cmd.Flags().GetInt64("target")
	bounded := cmd.Flags().Changed("target")

	switch {
	case fake && bounded:
		return migration.FakeVersion(version)
	case fake:
		return migration.Fake()
	case bounded:
		return migration.Version(version)
	default:
		return migration.Latest()
	}
}

// loadMigrations discovers the authored migration set, reporting skipped
// files on errOut.
func loadMigrations(cfg *config.Config, errOut io.Writer) ([]migration.Migration, error) {
	opts := []migration.LoadOption{
		migration.WithLogger(slog.New(slog.NewTextHandler(errOut, nil))),
	}
	if cfg.WideVersions {
		opts = append(opts, migration.WithWideVersions())
	}

	migrations, err := migration.LoadFromDir(cfg.MigrationsDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}

	return migrations, nil
}
