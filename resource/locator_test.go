package resource

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, p string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(filepath.Base(p)), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLocator_InitializeTwice(t *testing.T) {
	l, err := NewLocator(zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewLocator: %v", err)
	}
	if l.Initialized() {
		t.Fatal("locator without roots is initialized")
	}
	if err := l.Initialize(); !errors.Is(err, ErrNoRoots) {
		t.Fatalf("expected ErrNoRoots, got %v", err)
	}
	dir := t.TempDir()
	if err := l.Initialize(dir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := l.Initialize(dir); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestLocator_Reinitialize(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(first, "a.png"))
	writeFile(t, filepath.Join(second, "b.png"))

	l, err := NewLocator(zaptest.NewLogger(t), first)
	if err != nil {
		t.Fatalf("NewLocator: %v", err)
	}
	if _, ok := l.Resolve("a.png"); !ok {
		t.Fatal("a.png not found in first root")
	}
	if err := l.Reinitialize(second); err != nil {
		t.Fatalf("Reinitialize: %v", err)
	}
	if _, ok := l.Resolve("a.png"); ok {
		t.Error("old root still used after Reinitialize")
	}
	if _, ok := l.Resolve("b.png"); !ok {
		t.Error("b.png not found in new root")
	}
	if roots := l.Roots(); len(roots) != 1 || roots[0] != second {
		t.Errorf("roots = %v", roots)
	}
}

func TestLocator_Resolve(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	abs := writeFile(t, filepath.Join(t.TempDir(), "absolute.gif"))
	writeFile(t, filepath.Join(first, "images", "shared.jpg"))
	writeFile(t, filepath.Join(second, "images", "shared.jpg"))
	writeFile(t, filepath.Join(second, "only-second.jpg"))
	writeFile(t, filepath.Join(first, "deep", "b10", "nested.png"))
	writeFile(t, filepath.Join(first, "deep", "b9", "nested.png"))

	l, err := NewLocator(zaptest.NewLogger(t), first, second, first)
	if err != nil {
		t.Fatalf("NewLocator: %v", err)
	}
	if n := len(l.Roots()); n != 2 {
		t.Errorf("duplicate roots kept: %d", n)
	}

	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{name: abs, want: abs, ok: true},
		{name: filepath.Join(first, "missing.gif")},
		{name: "images/shared.jpg", want: filepath.Join(first, "images", "shared.jpg"), ok: true},
		{name: "only-second.jpg", want: filepath.Join(second, "only-second.jpg"), ok: true},
		{name: "shared.jpg", want: filepath.Join(first, "images", "shared.jpg"), ok: true},
		{name: "nested.png", want: filepath.Join(first, "deep", "b9", "nested.png"), ok: true},
		{name: "src/test/resources/someImage.gif"},
		{name: "someImage.gif"},
		{name: "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := l.Resolve(tt.name)
			if ok != tt.ok {
				t.Fatalf("Resolve(%q) ok = %v, want %v", tt.name, ok, tt.ok)
			}
			if got.Path != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.name, got.Path, tt.want)
			}
		})
	}
}

func TestLocator_ResolveRelativeToWorkingDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "cwd", "pic.png"))
	t.Chdir(dir)

	l, err := NewLocator(zaptest.NewLogger(t), t.TempDir())
	if err != nil {
		t.Fatalf("NewLocator: %v", err)
	}
	got, ok := l.Resolve("cwd/pic.png")
	if !ok {
		t.Fatal("relative path not resolved")
	}
	if !filepath.IsAbs(got.Path) {
		t.Errorf("path %q is not absolute", got.Path)
	}
}

func TestLocator_ConcurrentResolve(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "x", "pic.png"))
	l, err := NewLocator(zaptest.NewLogger(t), root)
	if err != nil {
		t.Fatalf("NewLocator: %v", err)
	}
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := l.Resolve("pic.png"); !ok {
				t.Error("pic.png not found")
			}
		}()
	}
	wg.Wait()
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		"baseJpgImage.jpg":          "baseJpgImage.jpg",
		"images/um/foto.png":        "foto.png",
		`"com espaço.png"`:          "com espaço.png",
		"  ../../etc/.hidden.png  ": "hidden.png",
		"":                          "_unnamed_",
	}
	for in, want := range tests {
		if got := FileName(in); got != want {
			t.Errorf("FileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLocator_ResolveUninitialized(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "x.png"))
	t.Chdir(dir)

	l, err := NewLocator(zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewLocator: %v", err)
	}
	if got, ok := l.Resolve("x.png"); ok {
		t.Fatalf("uninitialized locator resolved %+v", got)
	}
	if err := l.Initialize(dir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, ok := l.Resolve("x.png"); !ok {
		t.Error("x.png not resolved after Initialize")
	}
}
