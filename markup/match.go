package markup

import (
	"path"
	"strings"

	"bookc/grammar"
	"bookc/resource"
)

// Match is passed to tag templates. Groups are rendered lazily, only when
// template asks for them.
type Match struct {
	p     *Parser
	tag   *grammar.Tag
	text  string
	loc   []int
	scope Scope
	depth int
}

// Name returns name of the matched tag.
func (m *Match) Name() string {
	return m.tag.Name
}

func (m *Match) group(n int) (string, bool) {
	if n < 0 || 2*n+1 >= len(m.loc) || m.loc[2*n] < 0 {
		return "", false
	}
	return m.text[m.loc[2*n]:m.loc[2*n+1]], m.loc[2*n] == m.loc[0] && m.loc[2*n+1] == m.loc[1]
}

// Raw returns group text as written. Unmatched groups are empty.
func (m *Match) Raw(n int) string {
	s, _ := m.group(n)
	return s
}

// Attr returns escaped group text without interpreting tags in it.
func (m *Match) Attr(n int) string {
	return m.p.escape(m.Raw(n))
}

// Text returns group rendered with the same grammar. Group covering the
// whole match is only escaped.
func (m *Match) Text(n int) string {
	s, whole := m.group(n)
	if whole {
		return m.p.escape(s)
	}
	return m.renderNested(s)
}

// Resource returns escaped output path of the resource named by the group,
// relative to the book root.
func (m *Match) Resource(n int) string {
	name := resource.FileName(m.Raw(n))
	if len(m.scope.ResourceDir) > 0 {
		name = path.Join(m.scope.ResourceDir, name)
	}
	return m.p.escape(name)
}

// Items splits group into list items, each starting with "*" on its own
// line, and renders them. Lines before the first marker form an item too.
func (m *Match) Items(n int) []string {
	var (
		items   []string
		current []string
	)
	flush := func() {
		if s := strings.TrimSpace(strings.Join(current, "\n")); len(s) > 0 {
			items = append(items, m.renderNested(s))
		}
		current = current[:0]
	}
	for line := range strings.Lines(m.Raw(n)) {
		line = strings.TrimRight(line, "\r\n")
		trimmed := strings.TrimSpace(line)
		if trimmed == "*" || strings.HasPrefix(trimmed, "* ") {
			flush()
			line = strings.TrimPrefix(trimmed, "*")
		}
		current = append(current, line)
	}
	flush()
	return items
}

// Paragraphs splits group on blank lines and renders every part.
func (m *Match) Paragraphs(n int) []string {
	var (
		paras   []string
		current []string
	)
	flush := func() {
		if len(current) > 0 {
			paras = append(paras, m.renderNested(strings.Join(current, "\n")))
		}
		current = current[:0]
	}
	for line := range strings.Lines(m.Raw(n)) {
		line = strings.TrimRight(line, "\r\n")
		if len(strings.TrimSpace(line)) == 0 {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return paras
}

func (m *Match) renderNested(s string) string {
	var sb strings.Builder
	m.p.render(&sb, s, m.scope, m.depth+1)
	return sb.String()
}
