package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/refinery-db/refinery/internal/executor"
)

var planCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "plan",
	Short: "Show what apply would do",
	Long: `Validate the authored migrations against the schema history and print
the migrations that would be applied, without executing anything.`,
	RunE: runPlan,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	planCmd.Flags().Int64("target", -1, "plan migrations up to and including this version")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, _ []string) error {
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
		executor.WithTarget(targetFromFlags(cmd)),
		executor.WithAbortDivergent(cfg.AbortDivergent),
		executor.WithAbortMissing(cfg.AbortMissing),
		executor.WithTableName(cfg.TableName),
	)

	pending, err := runner.Pending(ctx, conn)
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		fmt.Fprintln(out, "Nothing to apply.")

		return nil
	}

	fmt.Fprintf(out, "%d migration(s) to apply:\n", len(pending))

	for _, m := range pending {
		fmt.Fprintf(out, "  %s\n", m)
	}

	return nil
}
