package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/paperproof/internal/model"
)

// Runner runs the signal-design pipeline for one paper in one workspace
type Runner interface {
	Run(ctx context.Context, paper, workspace string) (*model.RunManifest, error)
}

// PaperJob represents one paper to process
type PaperJob struct {
	Index     int
	Paper     string
	Workspace string
	Runner    Runner
}

// Execute executes the paper job
func (j *PaperJob) Execute(ctx context.Context) Result {
	manifest, err := j.Runner.Run(ctx, j.Paper, j.Workspace)
	return &PaperResult{
		Index:     j.Index,
		Paper:     j.Paper,
		Workspace: j.Workspace,
		Manifest:  manifest,
		Error:     err,
	}
}

// PaperResult represents the result of a paper job
type PaperResult struct {
	Index     int
	Paper     string
	Workspace string
	Manifest  *model.RunManifest
	Error     error
}

// GetError returns the error from the paper result
func (r *PaperResult) GetError() error {
	return r.Error
}

// BatchProcessor runs the pipeline over many papers concurrently. Every paper
// gets its own workspace, so no two runs ever write the same artifacts.
type BatchProcessor struct {
	runner      Runner
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(runner Runner, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		runner:      runner,
		concurrency: concurrency,
	}
}

// ProcessPapers runs every paper under root/<workspace name> and returns
// results in input order
func (b *BatchProcessor) ProcessPapers(ctx context.Context, papers []string, root string) []*PaperResult {
	if len(papers) == 0 {
		return []*PaperResult{}
	}

	pool := NewPoolContext(ctx, b.concurrency)
	pool.Start()

	names := WorkspaceNames(papers)
	for i, paper := range papers {
		pool.Submit(&PaperJob{
			Index:     i,
			Paper:     paper,
			Workspace: filepath.Join(root, names[i]),
			Runner:    b.runner,
		})
	}

	results := pool.Wait()

	paperResults := make([]*PaperResult, 0, len(results))
	for _, result := range results {
		paperResults = append(paperResults, result.(*PaperResult))
	}
	sort.Slice(paperResults, func(i, j int) bool {
		return paperResults[i].Index < paperResults[j].Index
	})

	return paperResults
}

// ProcessFile reads paper paths from a file and processes them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath, root string) ([]*PaperResult, error) {
	papers, err := ReadPapersFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read papers: %w", err)
	}

	return b.ProcessPapers(ctx, papers, root), nil
}

// ReadPapersFromFile reads paper paths or URLs from a file (one per line)
func ReadPapersFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var papers []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			papers = append(papers, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return papers, nil
}

// WorkspaceNames derives one directory name per paper. papers/<id>/paper.md
// maps to <id>; any other file maps to its base name without extension.
// Collisions get a numeric suffix.
func WorkspaceNames(papers []string) []string {
	names := make([]string, len(papers))
	used := make(map[string]int)

	for i, paper := range papers {
		trimmed := strings.TrimRight(paper, "/")
		base := filepath.Base(trimmed)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		if name == "paper" {
			name = filepath.Base(filepath.Dir(trimmed))
		}
		name = sanitizeName(name)
		if name == "" {
			name = "paper"
		}

		used[name]++
		if n := used[name]; n > 1 {
			name = fmt.Sprintf("%s-%d", name, n)
		}
		names[i] = name
	}

	return names
}

func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
