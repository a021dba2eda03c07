package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/paperproof/internal/pipeline"
	"github.com/spf13/cobra"
)

var genRetries int

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate <paper>",
	Short: "Generate the initial implementation of a paper",
	Long: `Generate writes a first implementation of the paper to
<workspace>/repo/initial_repo:
- Summarizes the paper (components and overall workflow)
- Extracts its hyperparameters into config.yaml
- Designs a code skeleton and annotates it with implementation steps
- Implements the skeleton one component at a time into main.py
- Plans the paper's experiments and writes experiments.py

An addendum.md next to the paper is included as supplementary information.
Intermediate artifacts go to <workspace>/intermediates and are reused on the
next run unless --replace is given. Run "paperproof refine" afterwards.

Example:
  paperproof generate papers/gcn/paper.md --workspace results/gcn
  paperproof generate papers/gcn --workspace results/gcn --retries 5`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	addRunFlags(generateCmd)
	generateCmd.Flags().IntVar(&genRetries, "retries", 0, "attempts per generation step (default: generate.retries from config)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("retries") {
		if genRetries < 1 {
			return fmt.Errorf("--retries must be at least 1")
		}
		cfg.Generate.Retries = genRetries
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

	res, err := pipeline.NewGeneratePipeline(svc.gen, svc.loader, cfg, svc.logger).Run(ctx, args[0], cfg.Workspace.Root)
	if err != nil {
		return fmt.Errorf("code generation failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "\n")
	if len(res.Implemented) > 0 {
		fmt.Fprintf(os.Stderr, "  Implemented: %s\n", strings.Join(res.Implemented, ", "))
	}
	if len(res.Kept) > 0 {
		fmt.Fprintf(os.Stderr, "  ✗ Left as skeleton: %s\n", strings.Join(res.Kept, ", "))
	}
	if len(res.Missing) > 0 {
		fmt.Fprintf(os.Stderr, "  ✗ Not in skeleton: %s\n", strings.Join(res.Missing, ", "))
	}
	fmt.Fprintf(os.Stderr, "✓ Initial project written (%s)\n", strings.Join(res.Files, ", "))
	fmt.Fprintf(os.Stderr, "  Output: %s\n\n", res.RepoDir)
	return nil
}
