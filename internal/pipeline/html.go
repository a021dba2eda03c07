package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	spaceRun        = regexp.MustCompile(`\s+`)
	referenceTitles = regexp.MustCompile(`(?i)^(\d+(\.\d+)*\.?\s*)?(references|bibliography)$`)
)

// HTMLToPaper converts an HTML paper page into the paragraph format the
// segmenter reads: headings become \section-style lines, text blocks become
// blank-line separated paragraphs and inline math keeps its TeX source.
func HTMLToPaper(body string) (string, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "nav", "header", "footer", "svg", "button", "form":
				return
			case "h1", "h2":
				blocks = appendBlock(blocks, heading(`\section`, visibleText(n)))
				return
			case "h3":
				blocks = appendBlock(blocks, heading(`\subsection`, visibleText(n)))
				return
			case "h4", "h5", "h6":
				blocks = appendBlock(blocks, heading(`\subsubsection`, visibleText(n)))
				return
			case "p", "li", "blockquote", "figcaption", "dd", "dt", "caption":
				blocks = appendBlock(blocks, visibleText(n))
				return
			case "pre":
				blocks = appendBlock(blocks, "```\n"+rawText(n)+"\n```")
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(blocks, "\n\n"), nil
}

func appendBlock(blocks []string, text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return blocks
	}
	return append(blocks, text)
}

func heading(command, title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return ""
	}
	if referenceTitles.MatchString(title) {
		return `\section*{References}`
	}
	return command + "{" + title + "}"
}

// visibleText flattens the text under n onto one line. Math elements are
// replaced by their TeX annotation when present.
func visibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "button":
				return
			case "math":
				if tex := attr(n, "alttext"); tex != "" {
					buf.WriteString(" $" + tex + "$ ")
					return
				}
			case "br":
				buf.WriteString(" ")
			}
		}

		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return strings.TrimSpace(spaceRun.ReplaceAllString(buf.String(), " "))
}

// rawText keeps whitespace, for preformatted blocks
func rawText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Trim(buf.String(), "\n")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
