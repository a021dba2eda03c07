package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/ppiankov/paperproof/internal/pipeline"
	"github.com/ppiankov/paperproof/internal/worker"
	"github.com/spf13/cobra"
)

var concurrency int

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Design signals for many papers in parallel",
	Long: `Batch runs signal design for every paper listed in a file:
- One paper path or URL per line (blank lines and # comments are skipped)
- Each paper gets its own workspace under --workspace
- Papers run concurrently with a bounded worker count
- A failed paper does not stop the others

Example:
  paperproof batch papers.txt --workspace results
  paperproof batch papers.txt --workspace results --concurrency 4`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	addRunFlags(batchCmd)
	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "papers processed at once (default: concurrency.batch_workers from config)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Concurrency.BatchWorkers = concurrency
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

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  paperproof batch\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.BatchWorkers)
	fmt.Fprintf(os.Stderr, "  Workspace:    %s\n", cfg.Workspace.Root)
	fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(cfg.Workspace.Root, 0755); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}

	p, err := pipeline.NewSignalPipeline(svc.gen, svc.encoder, svc.loader, cfg, svc.logger)
	if err != nil {
		return err
	}

	processor := worker.NewBatchProcessor(p, cfg.Concurrency.BatchWorkers)
	results, err := processor.ProcessFile(ctx, file, cfg.Workspace.Root)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	successCount := 0
	failureCount := 0
	for _, result := range results {
		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Paper, result.Error)
			continue
		}
		successCount++
		fmt.Fprintf(os.Stderr, "✓ %s (%d signals) -> %s\n", result.Paper, result.Manifest.Final, result.Workspace)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d papers\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "\n")

	if failureCount > 0 && successCount == 0 {
		return fmt.Errorf("all %d papers failed", failureCount)
	}
	return nil
}
