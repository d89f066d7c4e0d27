// Package resource finds files referenced by the book (images) on disk.
package resource

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/maruel/natural"
	"go.uber.org/zap"

	"bookc/config"
)

var (
	ErrAlreadyInitialized = errors.New("resource locator is already initialized")
	ErrNoRoots            = errors.New("no resource search roots specified")
)

// ResolvedResource is a logical resource name bound to a real file.
type ResolvedResource struct {
	Name string
	Path string
}

// Locator resolves logical resource names against ordered search roots. It
// is safe for concurrent use, roots may only be replaced explicitly with
// Reinitialize.
type Locator struct {
	log *zap.Logger

	mu          sync.RWMutex
	roots       []string
	initialized bool
}

// NewLocator creates locator. When roots are given locator is initialized
// with them right away.
func NewLocator(log *zap.Logger, roots ...string) (*Locator, error) {
	l := &Locator{log: log.Named("resources")}
	if len(roots) == 0 {
		return l, nil
	}
	if err := l.Initialize(roots...); err != nil {
		return nil, err
	}
	return l, nil
}

// Initialize sets search roots. It could only be called once.
func (l *Locator) Initialize(roots ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.initialized {
		return ErrAlreadyInitialized
	}
	return l.setRoots(roots)
}

// Reinitialize discards previous search roots and replaces them.
func (l *Locator) Reinitialize(roots ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.setRoots(roots)
}

func (l *Locator) setRoots(roots []string) error {
	if len(roots) == 0 {
		return ErrNoRoots
	}
	abs := make([]string, 0, len(roots))
	for _, root := range roots {
		p, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("unable to use resource root %q: %w", root, err)
		}
		if slices.Contains(abs, p) {
			continue
		}
		if fi, err := os.Stat(p); err != nil || !fi.IsDir() {
			l.log.Warn("Resource root is not a directory", zap.String("root", p))
		}
		abs = append(abs, p)
	}
	l.roots, l.initialized = abs, true
	l.log.Debug("Resource roots set", zap.Strings("roots", abs))
	return nil
}

func (l *Locator) Initialized() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.initialized
}

// Roots returns absolute search roots in lookup order.
func (l *Locator) Roots() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.roots)
}

// Resolve finds file for logical name. Nothing is resolved until search
// roots are set. Lookup order is: absolute path as
// is, name under every root, name relative to the working directory and,
// for bare file names only, recursive search in every root where the first
// candidate in natural order wins.
func (l *Locator) Resolve(name string) (ResolvedResource, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.initialized {
		l.log.Debug("Resolve called before search roots were set", zap.String("name", name))
		return ResolvedResource{}, false
	}

	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return ResolvedResource{}, false
	}
	native := filepath.FromSlash(name)

	if filepath.IsAbs(native) {
		if isFile(native) {
			return ResolvedResource{Name: name, Path: filepath.Clean(native)}, true
		}
		return ResolvedResource{}, false
	}

	for _, root := range l.roots {
		if p := filepath.Join(root, native); isFile(p) {
			return ResolvedResource{Name: name, Path: p}, true
		}
	}

	if isFile(native) {
		if p, err := filepath.Abs(native); err == nil {
			return ResolvedResource{Name: name, Path: p}, true
		}
	}

	if strings.ContainsAny(name, `/\`) {
		return ResolvedResource{}, false
	}
	for _, root := range l.roots {
		if p, ok := l.search(root, name); ok {
			return ResolvedResource{Name: name, Path: p}, true
		}
	}
	return ResolvedResource{}, false
}

func (l *Locator) search(root, base string) (string, bool) {
	var candidates []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable subtrees are not fatal for lookup
			l.log.Debug("Skipping path", zap.String("path", p), zap.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && d.Name() == base {
			candidates = append(candidates, p)
		}
		return nil
	})
	if err != nil || len(candidates) == 0 {
		return "", false
	}
	sort.Sort(natural.StringSlice(candidates))
	if len(candidates) > 1 {
		l.log.Debug("Several resource candidates found", zap.String("name", base), zap.Strings("candidates", candidates))
	}
	return candidates[0], true
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// FileName returns name under which resource with logical name is stored
// in the output tree.
func FileName(logical string) string {
	return config.CleanFileName(path.Base(filepath.ToSlash(strings.Trim(strings.TrimSpace(logical), `"`))))
}
