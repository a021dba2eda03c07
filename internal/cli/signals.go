package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/paperproof/internal/model"
	"github.com/ppiankov/paperproof/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	workspaceDir string
	replace      bool
	runTimeout   time.Duration
	llmProvider  string
	llmModel     string
)

// signalsCmd represents the signals command
var signalsCmd = &cobra.Command{
	Use:   "signals <paper>",
	Short: "Design supervisory signals for one paper",
	Long: `Signals reads a paper (a markdown file, a directory holding paper.md,
an HTML file or a URL) and:
- Extracts facts three ways (implementation guide, config guide, exhaustive scan)
- Retrieves supporting paper sentences for every summarized fact
- Rewrites facts into verification criteria with a <fact> span
- Deduplicates and referees the criteria

Artifacts are written to <workspace>/signal_design and reused on the next
run unless --replace is given.

Example:
  paperproof signals papers/gcn/paper.md --workspace results/gcn
  paperproof signals https://arxiv.org/html/1609.02907 --workspace results/gcn --replace`,
	Args: cobra.ExactArgs(1),
	RunE: runSignals,
}

func init() {
	rootCmd.AddCommand(signalsCmd)
	addRunFlags(signalsCmd)
}

// addRunFlags registers the flags shared by signals, refine and batch
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&workspaceDir, "workspace", "w", "", "workspace directory (default: workspace.root from config)")
	cmd.Flags().BoolVar(&replace, "replace", false, "regenerate artifacts that already exist")
	cmd.Flags().DurationVar(&runTimeout, "timeout", 0, "overall timeout (0 = none)")
	cmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, anthropic, ollama)")
	cmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
}

// applyRunFlags lets explicit flags win over config and env
func applyRunFlags(cmd *cobra.Command, cfg *model.Config) error {
	if cmd.Flags().Changed("workspace") {
		cfg.Workspace.Root = workspaceDir
	}
	if cmd.Flags().Changed("replace") {
		cfg.Workspace.Replace = replace
	}
	if cmd.Flags().Changed("llm-provider") {
		cfg.LLM.Provider = llmProvider
		cfg.LLM.APIKey = ""
		applyEnvKeys(cfg)
	}
	if cmd.Flags().Changed("llm-model") {
		cfg.LLM.Model = llmModel
	}
	return cfg.Validate()
}

func runSignals(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
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

	p, err := pipeline.NewSignalPipeline(svc.gen, svc.encoder, svc.loader, cfg, svc.logger)
	if err != nil {
		return err
	}

	manifest, err := p.Run(ctx, args[0], cfg.Workspace.Root)
	if err != nil {
		return fmt.Errorf("signal design failed: %w", err)
	}

	printManifest(manifest)
	return nil
}

func printManifest(m *model.RunManifest) {
	fmt.Fprintf(os.Stderr, "\n")
	for _, src := range model.Sources() {
		fmt.Fprintf(os.Stderr, "✓ %-10s facts: %3d  with evidence: %3d  signals: %3d\n",
			src, m.Facts[src], m.Enriched[src], m.Signals[src])
	}
	fmt.Fprintf(os.Stderr, "✓ Filter: %d in, %d denylisted, %d duplicates, %d discarded\n",
		m.Filter.Input, m.Filter.Denylisted, m.Filter.Duplicates, m.Filter.Discarded)
	fmt.Fprintf(os.Stderr, "✓ Final signals: %d\n", m.Final)
	fmt.Fprintf(os.Stderr, "  Workspace: %s\n\n", m.Workspace)
}
