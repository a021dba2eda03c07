// inspect-paper prints how a paper is segmented: every raw paragraph with its
// heading/reference markers, then the clean paragraphs split into sentences.
// Useful for checking what the exhaustive scan and the retriever will see.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/paperproof/internal/model"
	"github.com/ppiankov/paperproof/internal/pipeline"
	"github.com/ppiankov/paperproof/internal/segment"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: inspect-paper <paper.md | dir | url>")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	paper, err := pipeline.NewPaperLoader(model.DefaultConfig().HTTP, nil).Load(ctx, os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	result := segment.New(paper.Text).Parse()

	fmt.Printf("=== %s ===\n\n", paper.Source)
	fmt.Println("Raw paragraphs")
	fmt.Println(strings.Repeat("-", 60))
	for _, p := range result.Raw {
		marker := "  "
		switch {
		case p.Excluded:
			marker = "x "
		case p.Heading:
			marker = "# "
		}
		fmt.Printf("%s[%3d] %s\n", marker, p.Index, preview(p.Text, 90))
	}

	fmt.Println()
	fmt.Println("Clean paragraphs")
	fmt.Println(strings.Repeat("-", 60))
	for i, sentences := range result.Sentences {
		fmt.Printf("paragraph_%d (%d sentences)\n", i, len(sentences))
		for j, s := range sentences {
			fmt.Printf("    %d. %s\n", j+1, preview(s, 100))
		}
	}

	fmt.Printf("\n%d raw, %d clean\n", len(result.Raw), len(result.Clean))
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
