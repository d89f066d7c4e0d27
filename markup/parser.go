// Package markup renders blocks of bracketed markup into HTML fragments
// according to a tag grammar.
package markup

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"bookc/grammar"
)

// maxDepth limits nesting of recursively rendered groups.
const maxDepth = 64

// Scope carries per chapter rendering context.
type Scope struct {
	// ResourceDir is a relative directory where chapter resources are
	// placed in the output tree. Empty means output root.
	ResourceDir string
}

// Parser renders markup. It is read-only after construction and could be
// shared.
type Parser struct {
	tags   []*grammar.Tag
	escape func(string) string
	log    *zap.Logger
}

type Option func(*Parser)

// WithEscaper replaces function used to escape plain text.
func WithEscaper(escape func(string) string) Option {
	return func(p *Parser) {
		if escape != nil {
			p.escape = escape
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(p *Parser) {
		if log != nil {
			p.log = log.Named("markup")
		}
	}
}

func New(g *grammar.Grammar, opts ...Option) *Parser {
	p := &Parser{
		tags:   g.Tags(),
		escape: html.EscapeString,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Render transforms single block of text. Text not recognized by any tag is
// escaped and copied as is.
func (p *Parser) Render(block string, scope Scope) string {
	var sb strings.Builder
	p.render(&sb, block, scope, 0)
	return sb.String()
}

// cursor remembers the next match of a single tag so it is not searched
// again until the scan passes it.
type cursor struct {
	loc  []int
	done bool
}

func (p *Parser) render(sb *strings.Builder, text string, scope Scope, depth int) {
	if depth > maxDepth {
		p.log.Debug("Nesting is too deep, rest is left unrendered", zap.Int("depth", depth))
		sb.WriteString(p.escape(text))
		return
	}

	cursors := make([]cursor, len(p.tags))
	pos := 0
	for pos < len(text) {
		best := -1
		for i, t := range p.tags {
			c := &cursors[i]
			if c.done {
				continue
			}
			if c.loc == nil || c.loc[0] < pos {
				c.loc = find(t, text, pos)
				if c.loc == nil {
					c.done = true
					continue
				}
			}
			// tags are in priority order, so only strictly earlier start wins
			if best < 0 || c.loc[0] < cursors[best].loc[0] {
				best = i
			}
		}
		if best < 0 {
			break
		}
		loc := cursors[best].loc
		sb.WriteString(p.escape(text[pos:loc[0]]))
		p.expand(sb, &Match{p: p, tag: p.tags[best], text: text, loc: loc, scope: scope, depth: depth})
		pos = loc[1]
	}
	if pos < len(text) {
		sb.WriteString(p.escape(text[pos:]))
	}
}

// find returns submatch indexes of the first non empty match of the tag
// starting at or after pos.
func find(t *grammar.Tag, text string, pos int) []int {
	for pos <= len(text) {
		loc := t.Pattern.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			return nil
		}
		for i := range loc {
			if loc[i] >= 0 {
				loc[i] += pos
			}
		}
		if loc[1] > loc[0] {
			return loc
		}
		if loc[0] >= len(text) {
			return nil
		}
		_, size := utf8.DecodeRuneInString(text[loc[0]:])
		pos = loc[0] + size
	}
	return nil
}

func (p *Parser) expand(sb *strings.Builder, m *Match) {
	var buf bytes.Buffer
	if err := m.tag.Template.Execute(&buf, m); err != nil {
		p.log.Debug("Unable to execute tag template, leaving text as is",
			zap.String("tag", m.tag.Name), zap.Error(err))
		sb.WriteString(p.escape(m.text[m.loc[0]:m.loc[1]]))
		return
	}
	sb.Write(buf.Bytes())
}
