// Package debug formats internal structures as indented text trees for
// debug reports.
package debug

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/maruel/natural"
)

const indent = "  "

// TreeWriter accumulates tree lines. Copies share the same buffer so it
// could be embedded by value.
type TreeWriter struct {
	w *strings.Builder
	// limit truncates text blocks longer than that many runes, 0 means no limit
	limit int
}

func NewTreeWriter() *TreeWriter {
	return &TreeWriter{w: &strings.Builder{}}
}

// WithLimit sets maximum length of text blocks.
func (tw *TreeWriter) WithLimit(limit int) *TreeWriter {
	tw.limit = max(limit, 0)
	return tw
}

func (tw TreeWriter) String() string {
	return tw.w.String()
}

func (tw TreeWriter) pad(depth int) {
	tw.w.WriteString(strings.Repeat(indent, max(depth, 0)))
}

func (tw TreeWriter) Line(depth int, format string, args ...any) {
	tw.pad(depth)
	fmt.Fprintf(tw.w, format, args...)
	tw.w.WriteByte('\n')
}

// TextBlock writes quoted text, so multi-line content stays on one line.
func (tw TreeWriter) TextBlock(depth int, label, value string) {
	tw.pad(depth)
	tw.w.WriteString(label)
	tw.w.WriteString(": ")
	tw.w.WriteString(tw.encodeText(value))
	tw.w.WriteByte('\n')
}

// Attrs writes one "key=value" line per entry with keys in natural order.
func (tw TreeWriter) Attrs(depth int, attrs map[string]string) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Sort(natural.StringSlice(keys))
	for _, k := range keys {
		tw.Line(depth, "%s=%q", k, attrs[k])
	}
}

func (tw TreeWriter) encodeText(raw string) string {
	if raw == "" {
		return raw
	}
	if tw.limit > 0 {
		if runes := []rune(raw); len(runes) > tw.limit {
			return strconv.Quote(string(runes[:tw.limit])) + "..."
		}
	}
	return strconv.Quote(raw)
}
