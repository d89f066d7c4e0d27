package output

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Stylesheet is CSS placed into target includes together with files it
// references.
type Stylesheet struct {
	Data []byte
	// Dir is used to resolve relative references, empty for built-in
	// stylesheets.
	Dir string
}

// LoadStylesheet reads stylesheet from path or uses fallback when path is
// empty.
func LoadStylesheet(path string, fallback []byte) (*Stylesheet, error) {
	if len(path) == 0 {
		return &Stylesheet{Data: fallback}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read stylesheet: %w", err)
	}
	return &Stylesheet{Data: data, Dir: filepath.Dir(path)}, nil
}

// Assets returns relative urls referenced by the stylesheet in order of
// appearance, without duplicates.
func (s *Stylesheet) Assets() []string {
	var (
		assets []string
		seen   = make(map[string]bool)
		inURL  bool
	)
	add := func(u string) {
		u = strings.TrimSpace(u)
		if !isLocalURL(u) || seen[u] {
			return
		}
		seen[u] = true
		assets = append(assets, u)
	}

	lex := css.NewLexer(parse.NewInput(bytes.NewReader(s.Data)))
	for {
		tt, data := lex.Next()
		switch tt {
		case css.ErrorToken:
			return assets
		case css.URLToken:
			// unquoted form, token holds the whole url(...)
			u := strings.TrimSuffix(strings.TrimPrefix(string(data), "url("), ")")
			add(unquote(strings.TrimSpace(u)))
		case css.FunctionToken:
			inURL = strings.EqualFold(string(data), "url(")
			continue
		case css.StringToken:
			if inURL {
				add(unquote(string(data)))
			}
		case css.WhitespaceToken:
			continue
		}
		inURL = false
	}
}

// WriteTo stores stylesheet as name in dir and copies its assets keeping
// their relative location. Missing assets are not fatal.
func (s *Stylesheet) WriteTo(dir, name string, log *zap.Logger) error {
	if err := os.WriteFile(filepath.Join(dir, name), s.Data, 0o644); err != nil {
		return fmt.Errorf("unable to write stylesheet: %w", err)
	}
	if len(s.Dir) == 0 {
		return nil
	}
	for _, u := range s.Assets() {
		rel := path.Clean(u)
		if strings.HasPrefix(rel, "../") || rel == ".." {
			log.Warn("Stylesheet asset is outside of stylesheet directory, ignoring", zap.String("url", u))
			continue
		}
		dst := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("unable to create directory for stylesheet asset: %w", err)
		}
		if err := copyFile(filepath.Join(s.Dir, filepath.FromSlash(rel)), dst); err != nil {
			log.Warn("Unable to copy stylesheet asset", zap.String("url", u), zap.Error(err))
			continue
		}
		log.Debug("Stylesheet asset copied", zap.String("url", u))
	}
	return nil
}

func isLocalURL(u string) bool {
	if len(u) == 0 || strings.HasPrefix(u, "#") || strings.HasPrefix(u, "/") {
		return false
	}
	if i := strings.IndexByte(u, ':'); i >= 0 && !strings.ContainsAny(u[:i], "/.") {
		// has scheme: data:, http:, ...
		return false
	}
	return true
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
