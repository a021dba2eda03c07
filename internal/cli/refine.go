package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/paperproof/internal/pipeline"
	"github.com/spf13/cobra"
)

var maxAttempts int

// refineCmd represents the refine command
var refineCmd = &cobra.Command{
	Use:   "refine <paper>",
	Short: "Refine generated code against the paper's supervisory signals",
	Long: `Refine reads the generated project from <workspace>/repo/initial_repo and
the final signals from <workspace>/signal_design, then repeats
verify -> plan -> revise until every criterion passes or the attempt
budget runs out. Each round is logged under <workspace>/code_reflection
and the result is written to <workspace>/repo/final_repo.

Run "paperproof signals" on the same workspace first.

Example:
  paperproof refine papers/gcn/paper.md --workspace results/gcn
  paperproof refine papers/gcn/paper.md --workspace results/gcn --max-attempts 5`,
	Args: cobra.ExactArgs(1),
	RunE: runRefine,
}

func init() {
	rootCmd.AddCommand(refineCmd)
	addRunFlags(refineCmd)
	refineCmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "maximum verify/revise rounds (default: refine.max_attempts from config)")
}

func runRefine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("max-attempts") {
		cfg.Refine.MaxAttempts = maxAttempts
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	svc, err := newServices(cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	ctx, cancel := commandContext()
	defer cancel()
	if runTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	res, err := pipeline.NewReflectionPipeline(svc.gen, svc.loader, cfg, svc.logger).Run(ctx, args[0], cfg.Workspace.Root)
	if err != nil {
		return fmt.Errorf("refinement failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "\n")
	for _, r := range res.Rounds {
		status := "FAILED"
		if r.Passed {
			status = "PASSED"
		}
		fmt.Fprintf(os.Stderr, "  Round %d: %s", r.Number, status)
		if r.Failed > 0 {
			fmt.Fprintf(os.Stderr, " (%d not met)", r.Failed)
		}
		if len(r.Revised) > 0 {
			fmt.Fprintf(os.Stderr, " revised: %s", strings.Join(r.Revised, ", "))
		}
		if len(r.Skipped) > 0 {
			fmt.Fprintf(os.Stderr, " skipped: %s", strings.Join(r.Skipped, ", "))
		}
		fmt.Fprintf(os.Stderr, "\n")
	}

	if res.Converged {
		fmt.Fprintf(os.Stderr, "✓ All criteria met after %d round(s)\n", len(res.Rounds))
	} else {
		fmt.Fprintf(os.Stderr, "✗ Criteria still failing after %d round(s)\n", len(res.Rounds))
	}
	fmt.Fprintf(os.Stderr, "  Output: %s\n\n", filepath.Join(cfg.Workspace.Root, pipeline.FinalRepoDir))
	return nil
}
