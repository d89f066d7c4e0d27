// Package grammar loads layered tag definitions used to render inline
// markup.
package grammar

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/gosimple/slug"
	"github.com/rupor-github/gencfg"
	"go.uber.org/multierr"
	yaml "gopkg.in/yaml.v3"
)

// Tag is a compiled tag definition. Tags are immutable once grammar is
// loaded.
type Tag struct {
	Name     string
	Order    int
	Pattern  *regexp.Regexp
	Template *template.Template
	// Source names the layer which provided the template.
	Source string
}

// Grammar is an ordered set of tags, earlier tags win when several tags
// match at the same position.
type Grammar struct {
	tags   []*Tag
	byName map[string]*Tag
}

// Tags returns tags in priority order.
func (g *Grammar) Tags() []*Tag {
	return append([]*Tag(nil), g.tags...)
}

// Lookup finds tag by name.
func (g *Grammar) Lookup(name string) (*Tag, bool) {
	t, ok := g.byName[name]
	return t, ok
}

func (g *Grammar) Len() int {
	return len(g.tags)
}

type tagSpec struct {
	Name     string `yaml:"name" validate:"required"`
	Pattern  string `yaml:"pattern,omitempty"`
	Template string `yaml:"template,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

type sourceSpec struct {
	Tags []tagSpec `yaml:"tags" validate:"dive"`
}

// pending accumulates layered values for a tag until compilation.
type pending struct {
	name           string
	pattern        string
	patternSource  string
	template       string
	templateSource string
	disabled       bool
}

// FuncMap returns functions available to tag templates. Only repeatable
// functions are included, so rendering stays deterministic.
func FuncMap() template.FuncMap {
	fm := sprig.HermeticTxtFuncMap()
	fm["slug"] = slug.Make
	return fm
}

// Load layers sources in order. First source is the base and must be
// present. Later sources override pattern and/or template of tags with the
// same name keeping original position, add new tags at the end or disable
// existing ones.
func Load(sources ...Source) (*Grammar, error) {
	if len(sources) == 0 {
		return nil, &ConfigurationError{Err: errors.New("no grammar sources")}
	}
	if len(bytes.TrimSpace(sources[0].Data)) == 0 {
		return nil, &ConfigurationError{Source: sources[0].Name, Err: errors.New("base grammar is empty")}
	}

	var (
		order  []*pending
		byName = make(map[string]*pending)
	)

	for i, src := range sources {
		spec, err := decodeSource(src)
		if err != nil {
			return nil, &ConfigurationError{Source: src.Name, Err: err}
		}
		if i == 0 && len(spec.Tags) == 0 {
			return nil, &ConfigurationError{Source: src.Name, Err: errors.New("base grammar defines no tags")}
		}
		for _, ts := range spec.Tags {
			p, exists := byName[ts.Name]
			if !exists {
				p = &pending{name: ts.Name}
				byName[ts.Name] = p
				order = append(order, p)
			}
			if ts.Disabled {
				p.disabled = true
				continue
			}
			// redefinition revives disabled tag
			p.disabled = false
			if len(ts.Pattern) > 0 {
				p.pattern, p.patternSource = ts.Pattern, src.Name
			}
			if len(ts.Template) > 0 {
				p.template, p.templateSource = ts.Template, src.Name
			}
		}
	}

	g := &Grammar{byName: make(map[string]*Tag)}
	var errs error
	for _, p := range order {
		if p.disabled {
			continue
		}
		t, err := compile(p, len(g.tags), FuncMap())
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		g.tags = append(g.tags, t)
		g.byName[t.Name] = t
	}
	if errs != nil {
		return nil, &ConfigurationError{Err: errs}
	}
	return g, nil
}

func decodeSource(src Source) (*sourceSpec, error) {
	spec := &sourceSpec{}
	dec := yaml.NewDecoder(bytes.NewReader(src.Data))
	dec.KnownFields(true)
	if err := dec.Decode(spec); err != nil {
		if errors.Is(err, io.EOF) {
			// empty override layer
			return spec, nil
		}
		return nil, fmt.Errorf("unable to decode grammar: %w", err)
	}
	if err := gencfg.Validate(spec); err != nil {
		return nil, fmt.Errorf("invalid grammar: %w", err)
	}
	return spec, nil
}

func compile(p *pending, order int, funcs template.FuncMap) (*Tag, error) {
	var errs error
	if len(p.pattern) == 0 {
		errs = multierr.Append(errs, &TagError{Source: p.templateSource, Tag: p.name, Err: errors.New("no pattern defined")})
	}
	if len(p.template) == 0 {
		errs = multierr.Append(errs, &TagError{Source: p.patternSource, Tag: p.name, Err: errors.New("no template defined")})
	}
	if errs != nil {
		return nil, errs
	}

	re, err := regexp.Compile(p.pattern)
	if err != nil {
		return nil, &TagError{Source: p.patternSource, Tag: p.name, Err: fmt.Errorf("unable to compile pattern: %w", err)}
	}
	if re.MatchString("") {
		return nil, &TagError{Source: p.patternSource, Tag: p.name, Err: errors.New("pattern matches empty text")}
	}
	tmpl, err := template.New(p.name).Funcs(funcs).Option("missingkey=zero").Parse(p.template)
	if err != nil {
		return nil, &TagError{Source: p.templateSource, Tag: p.name, Err: fmt.Errorf("unable to parse template: %w", err)}
	}
	return &Tag{
		Name:     p.name,
		Order:    order,
		Pattern:  re,
		Template: tmpl,
		Source:   p.templateSource,
	}, nil
}
