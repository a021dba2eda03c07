package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/paperproof/internal/artifact"
	"github.com/ppiankov/paperproof/internal/llm"
	"github.com/ppiankov/paperproof/internal/model"
	"github.com/ppiankov/paperproof/internal/segment"
	"go.uber.org/zap"
)

const exhaustiveSystemPrompt = `You read a research paper one paragraph at a time.
For each numbered list of sentences, select every sentence that states a verifiable fact about the method, data, configuration or results.
Answer with a JSON list of the selected sentence numbers, for example [1, 3]. Answer [] when none qualify.`

// ScanRecord is one line of the exhaustive scan artifact
type ScanRecord struct {
	ParagraphIndex int    `json:"paragraph_index"`
	SentenceIndex  int    `json:"sentence_index_in_paragraph"`
	Sentence       string `json:"fact_sentence"`
}

// Fact converts the record to a fact addressed by its paragraph
func (r ScanRecord) Fact() model.Fact {
	return model.Fact{
		Path:     []string{fmt.Sprintf("paragraph_%d", r.ParagraphIndex)},
		Sentence: r.Sentence,
		Source:   model.SourceExhaustive,
	}
}

// ExhaustiveExtractor asks, paragraph by paragraph, which sentences carry
// verifiable facts. One conversation runs through the whole paper so earlier
// selections inform later ones. Records are written as they are found.
type ExhaustiveExtractor struct {
	base
	retries int
}

// NewExhaustiveExtractor creates the exhaustive-scan extractor
func NewExhaustiveExtractor(gen llm.Generator, store *artifact.Store, opts Options) *ExhaustiveExtractor {
	retries := opts.Retries
	if retries <= 0 {
		retries = DefaultScanRetries
	}
	return &ExhaustiveExtractor{base: newBase(gen, store, opts, "extract.exhaustive"), retries: retries}
}

// Source returns model.SourceExhaustive
func (e *ExhaustiveExtractor) Source() model.Source {
	return model.SourceExhaustive
}

// Extract returns one fact per selected sentence
func (e *ExhaustiveExtractor) Extract(ctx context.Context, paper *segment.Segmenter) ([]model.Fact, error) {
	if e.cached(artifact.ExhaustiveScan) {
		records, err := artifact.ReadJSONL[ScanRecord](e.store, artifact.ExhaustiveScan)
		if err == nil {
			e.logger.Info("exhaustive scan exists, loading", zap.Int("facts", len(records)))
			return recordsToFacts(records), nil
		}
		e.logger.Error("existing exhaustive scan unreadable, regenerating", zap.Error(err))
	}

	records, err := e.scan(ctx, paper.Parse().Sentences)
	if err != nil {
		return nil, err
	}
	return recordsToFacts(records), nil
}

func (e *ExhaustiveExtractor) scan(ctx context.Context, paragraphs [][]string) ([]ScanRecord, error) {
	out, err := e.store.CreateJSONL(artifact.ExhaustiveScan)
	if err != nil {
		return nil, fmt.Errorf("create scan artifact: %w", err)
	}
	defer func() { _ = out.Close() }()

	e.logger.Info("scanning paragraphs", zap.Int("paragraphs", len(paragraphs)))

	var (
		conv    llm.Conversation
		records []ScanRecord
		skipped int
	)
	for idx, sentences := range paragraphs {
		if len(sentences) == 0 {
			continue
		}

		selected, next, err := e.selectSentences(ctx, conv, idx, sentences)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			skipped++
			e.logger.Error("all retries failed, skipping paragraph", zap.Int("paragraph", idx), zap.Error(err))
			continue
		}
		conv = next

		for _, si := range selected {
			rec := ScanRecord{ParagraphIndex: idx, SentenceIndex: si, Sentence: sentences[si]}
			if err := out.Write(rec); err != nil {
				return nil, fmt.Errorf("write scan record: %w", err)
			}
			records = append(records, rec)
		}
	}

	e.logger.Info("exhaustive scan complete",
		zap.Int("facts", len(records)),
		zap.Int("skipped_paragraphs", skipped),
		zap.String("path", e.store.Path(artifact.ExhaustiveScan)),
	)
	return records, nil
}

// selectSentences returns 0-based indices of the selected sentences and the
// conversation extended by the successful turn. Failed attempts never touch conv.
func (e *ExhaustiveExtractor) selectSentences(ctx context.Context, conv llm.Conversation, idx int, sentences []string) ([]int, llm.Conversation, error) {
	prompt := scanPrompt(sentences)

	var lastErr error
	for attempt := 1; attempt <= e.retries; attempt++ {
		resp, next, err := e.gen.Turn(ctx, conv, prompt, e.callOptions(exhaustiveSystemPrompt)...)
		if err != nil {
			if ctx.Err() != nil {
				return nil, conv, ctx.Err()
			}
			lastErr = err
			e.logger.Warn("scan attempt failed", zap.Int("paragraph", idx), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		raw, err := llm.DecodeJSONList(resp)
		if err != nil {
			lastErr = err
			e.logger.Warn("scan response is not a list", zap.Int("paragraph", idx), zap.Int("attempt", attempt))
			continue
		}

		var selected []int
		for _, n := range llm.IntList(raw) {
			if n >= 1 && n <= len(sentences) {
				selected = append(selected, n-1)
			}
		}
		return selected, next, nil
	}
	return nil, conv, lastErr
}

func scanPrompt(sentences []string) string {
	var b strings.Builder
	b.WriteString("Please select the index numbers of all sentences that contain verifiable facts from the following list:\n\n")
	for i, s := range sentences {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%d]: %s", i+1, s)
	}
	return b.String()
}

func recordsToFacts(records []ScanRecord) []model.Fact {
	facts := make([]model.Fact, 0, len(records))
	for _, r := range records {
		facts = append(facts, r.Fact())
	}
	return facts
}
