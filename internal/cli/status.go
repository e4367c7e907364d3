package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/refinery-db/refinery/internal/executor"
	"github.com/refinery-db/refinery/internal/history"
)

var statusCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE:  runStatus,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg := AppConfig
	out := cmd.OutOrStdout()

	migrations, err := loadMigrations(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
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

	runner := executor.NewRunner(migrations,
		executor.WithAbortDivergent(cfg.AbortDivergent),
		executor.WithAbortMissing(cfg.AbortMissing),
		executor.WithTableName(cfg.TableName),
	)

	applied, err := runner.GetApplied(ctx, conn)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Applied (%d):\n", len(applied))

	for _, rec := range applied {
		fmt.Fprintf(out, "  %s  applied on %s\n", rec, rec.AppliedOn.Format(history.TimeLayout))
	}

	pending, err := runner.Pending(ctx, conn)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Pending (%d):\n", len(pending))

	for _, m := range pending {
		fmt.Fprintf(out, "  %s\n", m)
	}

	return nil
}
