package state

import (
	"path/filepath"
	"time"

	"bookc/resource"
)

// newLocalEnv creates a new LocalEnv instance with default values
func newLocalEnv() *LocalEnv {
	return &LocalEnv{
		start: time.Now(),
	}
}

// InitLocator builds resource locator once per run. Relative search roots
// from configuration are taken relative to base (directory of the book
// sources). Calling it again re-initializes existing locator with new roots.
func (e *LocalEnv) InitLocator(base string) (*resource.Locator, error) {
	roots := make([]string, 0, len(e.Cfg.Document.Resources.SearchRoots))
	for _, root := range e.Cfg.Document.Resources.SearchRoots {
		if !filepath.IsAbs(root) {
			root = filepath.Join(base, root)
		}
		roots = append(roots, root)
	}

	if e.Locator != nil {
		if err := e.Locator.Reinitialize(roots...); err != nil {
			return nil, err
		}
		return e.Locator, nil
	}

	loc, err := resource.NewLocator(e.Log, roots...)
	if err != nil {
		return nil, err
	}
	e.Locator = loc
	return loc, nil
}
