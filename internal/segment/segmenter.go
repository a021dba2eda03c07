// Package segment splits paper text into paragraphs and sentences.
package segment

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

var (
	referencesRe  = regexp.MustCompile(`(?i)^\\section\*?\{\s*references\s*\}`)
	protectedRe   = regexp.MustCompile("(?s)\\$\\$.*?\\$\\$|\\$[^$]*?\\$|```.*?```|`[^`]*?`")
	placeholderRe = regexp.MustCompile(`__PROTECTED_(\d+)__`)
)

// Paragraph is one block of paper text
type Paragraph struct {
	Index    int
	Text     string
	Heading  bool // \section or \subsection line
	Excluded bool // inside the References zone
}

// Result is the segmentation of one paper
type Result struct {
	// Raw holds every paragraph in document order
	Raw []Paragraph

	// Clean holds paragraph texts usable for retrieval and scanning
	Clean []string

	// Sentences holds the sentences of each clean paragraph, aligned with Clean
	Sentences [][]string
}

// Segmenter segments one paper. Parse is computed once and cached.
type Segmenter struct {
	content string

	once   sync.Once
	result Result
}

// New creates a segmenter over content
func New(content string) *Segmenter {
	return &Segmenter{content: content}
}

// Content returns the paper text
func (s *Segmenter) Content() string {
	return s.content
}

// Parse returns the segmentation. Callers must not modify the returned slices.
func (s *Segmenter) Parse() Result {
	s.once.Do(func() {
		s.result = parse(s.content)
	})
	return s.result
}

// CleanParagraphs returns the clean paragraphs
func (s *Segmenter) CleanParagraphs() []string {
	return s.Parse().Clean
}

// Sentences returns the sentences of clean paragraph i
func (s *Segmenter) Sentences(i int) []string {
	r := s.Parse()
	if i < 0 || i >= len(r.Sentences) {
		return nil
	}
	return r.Sentences[i]
}

func parse(content string) Result {
	res := Result{Raw: []Paragraph{}, Clean: []string{}, Sentences: [][]string{}}
	if strings.TrimSpace(content) == "" {
		return res
	}

	var (
		buf       []string
		inRefs    bool
		bufInRefs bool
	)

	flush := func() {
		text := strings.TrimSpace(strings.Join(buf, " "))
		buf = buf[:0]
		if text == "" {
			return
		}
		res.Raw = append(res.Raw, Paragraph{Index: len(res.Raw), Text: text, Excluded: bufInRefs})
	}

	for _, line := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)

		if isHeading(trimmed) {
			flush()
			// A References heading opens the zone, any other section closes it
			if referencesRe.MatchString(trimmed) {
				inRefs = true
			} else if strings.HasPrefix(trimmed, `\section`) {
				inRefs = false
			}
			res.Raw = append(res.Raw, Paragraph{Index: len(res.Raw), Text: trimmed, Heading: true, Excluded: inRefs})
			bufInRefs = inRefs
			continue
		}

		if trimmed == "" {
			flush()
			bufInRefs = inRefs
			continue
		}

		buf = append(buf, trimmed)
	}
	flush()

	for _, p := range res.Raw {
		if p.Heading || p.Excluded {
			continue
		}
		res.Clean = append(res.Clean, p.Text)
		res.Sentences = append(res.Sentences, SplitSentences(p.Text))
	}
	return res
}

func isHeading(line string) bool {
	return strings.HasPrefix(line, `\section`) ||
		strings.HasPrefix(line, `\subsection`) ||
		strings.HasPrefix(line, `\subsubsection`)
}

// SplitSentences splits a paragraph into sentences. Math and code spans are
// protected so punctuation inside them never ends a sentence. A boundary is
// whitespace after '.', '?' or '!', except after abbreviations such as
// "e.g.", "Dr." or a single initial.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}
	}

	var spans []string
	masked := protectedRe.ReplaceAllStringFunc(text, func(m string) string {
		spans = append(spans, m)
		return fmt.Sprintf("__PROTECTED_%d__", len(spans)-1)
	})

	restore := func(s string) string {
		if len(spans) == 0 {
			return s
		}
		return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
			n, err := strconv.Atoi(placeholderRe.FindStringSubmatch(m)[1])
			if err != nil || n >= len(spans) {
				return m
			}
			return spans[n]
		})
	}

	runes := []rune(masked)
	var sentences []string
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		r := runes[i]
		if r != '.' && r != '?' && r != '!' {
			continue
		}
		if !unicode.IsSpace(runes[i+1]) || isAbbreviation(runes, i) {
			continue
		}

		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, restore(s))
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			sentences = append(sentences, restore(s))
		}
	}
	return sentences
}

// isAbbreviation reports whether the terminator at runes[i] ends an
// abbreviation rather than a sentence
func isAbbreviation(runes []rune, i int) bool {
	// e.g. / i.e.
	if i >= 3 && isWordRune(runes[i-3]) && runes[i-2] == '.' && isWordRune(runes[i-1]) {
		return true
	}
	if runes[i] != '.' {
		return false
	}
	// Dr. / Eq.
	if i >= 2 && unicode.IsUpper(runes[i-2]) && unicode.IsLower(runes[i-1]) {
		return true
	}
	// J. Smith
	if i >= 1 && unicode.IsUpper(runes[i-1]) && (i == 1 || !isWordRune(runes[i-2])) {
		return true
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
