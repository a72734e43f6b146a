// Package diagram converts Mermaid blocks embedded in Markdown into images.
package diagram

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// blockPattern matches a fenced mermaid block. The body runs up to the next
// closing fence.
var blockPattern = regexp.MustCompile("(?s)```mermaid\n(.*?)```")

// Diagram is one Mermaid block found in a document.
type Diagram struct {
	Index  int    // zero-based position in the document
	Source string // block body, trimmed
	Title  string // first line of Source
}

// Extract returns the Mermaid blocks of markdown in document order.
func Extract(markdown string) []Diagram {
	matches := blockPattern.FindAllStringSubmatch(markdown, -1)
	diagrams := make([]Diagram, 0, len(matches))
	for i, m := range matches {
		source := strings.TrimSpace(m[1])
		title, _, _ := strings.Cut(source, "\n")
		if title == "" {
			title = fmt.Sprintf("diagram_%d", i)
		}
		diagrams = append(diagrams, Diagram{
			Index:  i,
			Source: source,
			Title:  strings.TrimSpace(title),
		})
	}
	return diagrams
}

// Hash returns the first 8 hex digits of the MD5 of the diagram source.
func (d Diagram) Hash() string {
	sum := md5.Sum([]byte(d.Source))
	return hex.EncodeToString(sum[:])[:8]
}

// Filename returns the output file name for the diagram in the given format,
// numbering diagrams from 1.
func (d Diagram) Filename(format string) string {
	return fmt.Sprintf("diagram_%d_%s.%s", d.Index+1, d.Hash(), format)
}

// ChartType infers the Mermaid chart type from the diagram's first statement.
// Unrecognized diagrams are treated as flowcharts.
func (d Diagram) ChartType() string {
	for _, line := range strings.Split(d.Source, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%%") {
			continue
		}
		keyword, _, _ := strings.Cut(line, " ")
		switch {
		case keyword == "sequenceDiagram":
			return "sequence"
		case keyword == "gantt":
			return "gantt"
		case keyword == "classDiagram":
			return "class"
		case strings.HasPrefix(keyword, "stateDiagram"):
			return "state"
		default:
			return "flowchart"
		}
	}
	return "flowchart"
}
