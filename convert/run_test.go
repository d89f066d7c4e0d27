package convert

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/text/encoding/charmap"

	"bookc/config"
	"bookc/grammar"
	"bookc/output"
	"bookc/state"
)

// setupTestEnv creates a test environment with proper context and logger
func setupTestEnv(t *testing.T) (context.Context, *state.LocalEnv) {
	logger := zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller(), zap.AddCallerSkip(1)))
	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	ctx := state.ContextWithEnv(context.Background())
	env := state.EnvFromContext(ctx)
	env.Log = logger
	env.Cfg = cfg
	return ctx, env
}

var bookSources = map[string]string{
	"cap1.afc":  "[chapter O que é java?]\nJava é **legal**.\n[img baseJpgImage.jpg]\n",
	"cap2.afc":  "[chapter Outro capítulo]\nSem imagens.\n",
	"cap10.afc": "[chapter Último]\n[section Fim]\n[img basePngImage.png \"Legenda\"]\n",
}

// writeFiles creates files under dir, names use forward slashes.
func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// makeBookDir prepares sources with images found by the default search root.
func makeBookDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, bookSources)
	writeFiles(t, dir, map[string]string{
		"images/baseJpgImage.jpg": "jpg",
		"images/basePngImage.png": "png",
		"images/introImage.jpg":   "intro",
		"notes.md":                "[chapter Ignored]\n",
	})
	return dir
}

func readIndex(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "index.html"))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	return string(data)
}

func assertOrder(t *testing.T, text string, parts ...string) {
	t.Helper()
	last := -1
	for _, p := range parts {
		i := strings.Index(text, p)
		if i < 0 {
			t.Errorf("%q not found", p)
			return
		}
		if i < last {
			t.Errorf("%q is out of order", p)
		}
		last = i
	}
}

func assertExists(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s: %v", p, err)
		}
	}
}

func TestProcess_Directory(t *testing.T) {
	ctx, _ := setupTestEnv(t)
	src := makeBookDir(t)
	dst := filepath.Join(t.TempDir(), "out")

	j := job{src: src, dst: dst, formats: []config.OutputFmt{config.OutputFmtHTML}}
	if err := process(ctx, j, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("process() error = %v", err)
	}

	index := readIndex(t, dst)
	assertOrder(t, index, `id="o-que-e-java"`, `id="outro-capitulo"`, `id="ultimo"`)
	if strings.Contains(index, "Ignored") {
		t.Error("file with unknown extension was processed")
	}
	assertExists(t,
		filepath.Join(dst, "includes", "book.css"),
		filepath.Join(dst, "o-que-e-java", "baseJpgImage.jpg"),
		filepath.Join(dst, "ultimo", "basePngImage.png"),
	)
	if _, err := os.Stat(filepath.Join(dst, "outro-capitulo")); !os.IsNotExist(err) {
		t.Error("chapter without images should not have directory")
	}
}

func TestProcess_ImageTagsInCode(t *testing.T) {
	ctx, _ := setupTestEnv(t)
	src := makeBookDir(t)
	writeFiles(t, src, map[string]string{
		"codigo.afc": "[chapter Código]\n[code][img missing.png][/code]\nUse %%[img baseJpgImage.jpg]%% para imagens.\n",
	})
	dst := t.TempDir()

	j := job{src: filepath.Join(src, "codigo.afc"), dst: dst, formats: []config.OutputFmt{config.OutputFmtHTML}}
	if err := process(ctx, j, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if !strings.Contains(readIndex(t, dst), "missing.png") {
		t.Error("code content is missing from index")
	}
	if _, err := os.Stat(filepath.Join(dst, "codigo")); !os.IsNotExist(err) {
		t.Error("chapter showing no images should not have directory")
	}
}

func TestProcess_SingleFile(t *testing.T) {
	ctx, _ := setupTestEnv(t)
	src := makeBookDir(t)
	dst := t.TempDir()

	j := job{src: filepath.Join(src, "cap2.afc"), dst: dst, formats: []config.OutputFmt{config.OutputFmtHTML}}
	if err := process(ctx, j, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	index := readIndex(t, dst)
	if !strings.Contains(index, "Outro capítulo") || strings.Contains(index, "Último") {
		t.Errorf("unexpected index:\n%s", index)
	}
}

func TestProcess_Introduction(t *testing.T) {
	ctx, _ := setupTestEnv(t)
	src := makeBookDir(t)
	intro := filepath.Join(t.TempDir(), "intro.afc")
	writeFiles(t, filepath.Dir(intro), map[string]string{"intro.afc": "[chapter Introdução]\n[img introImage.jpg]\n"})
	dst := t.TempDir()

	j := job{src: src, intro: []string{intro}, dst: dst, formats: []config.OutputFmt{config.OutputFmtKindle}}
	if err := process(ctx, j, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	assertExists(t,
		filepath.Join(dst, "resources", "introImage.jpg"),
		filepath.Join(dst, "book.opf"),
		filepath.Join(dst, "toc.ncx"),
	)
	assertOrder(t, readIndex(t, dst), "Introdução", "O que é java?")
}

func TestProcess_MultipleFormats(t *testing.T) {
	ctx, env := setupTestEnv(t)
	src := makeBookDir(t)
	dst := t.TempDir()

	j := job{src: src, dst: dst, formats: []config.OutputFmt{config.OutputFmtHTML, config.OutputFmtKindle}}
	if err := process(ctx, j, env.Log); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	assertExists(t,
		filepath.Join(dst, "html", "index.html"),
		filepath.Join(dst, "html", "o-que-e-java", "baseJpgImage.jpg"),
		filepath.Join(dst, "kindle", "index.html"),
		filepath.Join(dst, "kindle", "book.opf"),
		filepath.Join(dst, "kindle", "o-que-e-java", "baseJpgImage.jpg"),
	)
	if !strings.Contains(readIndex(t, filepath.Join(dst, "kindle")), "<mbp:pagebreak/>") {
		t.Error("kindle index was rendered with wrong grammar")
	}
	if strings.Contains(readIndex(t, filepath.Join(dst, "html")), "mbp:pagebreak") {
		t.Error("html index was rendered with kindle grammar")
	}
}

func TestProcess_ExistingDestination(t *testing.T) {
	ctx, env := setupTestEnv(t)
	src := makeBookDir(t)
	dst := t.TempDir()
	writeFiles(t, dst, map[string]string{"index.html": "old"})

	j := job{src: src, dst: dst, formats: []config.OutputFmt{config.OutputFmtHTML}}
	err := process(ctx, j, env.Log)
	if err == nil || !strings.Contains(err.Error(), "not empty") {
		t.Fatalf("process() error = %v, want not empty destination", err)
	}

	env.Overwrite = true
	if err := process(ctx, j, env.Log); err != nil {
		t.Fatalf("process() with overwrite error = %v", err)
	}
	if index := readIndex(t, dst); index == "old" {
		t.Error("index was not overwritten")
	}
}

func TestProcess_MissingImage(t *testing.T) {
	ctx, env := setupTestEnv(t)
	src := t.TempDir()
	writeFiles(t, src, map[string]string{
		"cap1.afc": "[chapter Um]\n[img src/test/resources/someImage.gif]\n",
	})
	dst := filepath.Join(t.TempDir(), "out")

	j := job{src: src, dst: dst, formats: []config.OutputFmt{config.OutputFmtHTML}}
	err := process(ctx, j, env.Log)
	var rerr *output.ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("process() error = %v, want ResolutionError", err)
	}
	if rerr.Name != "src/test/resources/someImage.gif" {
		t.Errorf("unresolved name = %q", rerr.Name)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("output was created for unresolvable book")
	}
}

func TestProcess_GrammarOverride(t *testing.T) {
	ctx, env := setupTestEnv(t)
	src := makeBookDir(t)
	override := filepath.Join(t.TempDir(), "html.yaml")
	writeFiles(t, filepath.Dir(override), map[string]string{
		"html.yaml": "tags:\n  - name: bold\n    template: '<b class=\"x\">{{ .Text 1 }}</b>'\n",
	})
	env.Cfg.Document.Grammar.HTML = override
	dst := t.TempDir()

	j := job{src: src, dst: dst, formats: []config.OutputFmt{config.OutputFmtHTML}}
	if err := process(ctx, j, env.Log); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if !strings.Contains(readIndex(t, dst), `<b class="x">legal</b>`) {
		t.Error("grammar override was not applied")
	}
}

func TestProcess_BadGrammar(t *testing.T) {
	ctx, env := setupTestEnv(t)
	src := makeBookDir(t)
	bad := filepath.Join(t.TempDir(), "base.yaml")
	writeFiles(t, filepath.Dir(bad), map[string]string{"base.yaml": "tags:\n  - name: a\n    pattern: '(a'\n"})
	env.Cfg.Document.Grammar.Base = bad
	dst := filepath.Join(t.TempDir(), "out")

	err := process(ctx, job{src: src, dst: dst, formats: []config.OutputFmt{config.OutputFmtHTML}}, env.Log)
	var cerr *grammar.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("process() error = %v, want ConfigurationError", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("output was created with broken grammar")
	}
}

func makeBookZip(t *testing.T, files map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "book.zip")
	out, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	w := zip.NewWriter(out)
	for name, content := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return zipPath
}

func TestProcess_Archive(t *testing.T) {
	files := map[string]string{
		"parte1/cap1.afc": "[chapter Primeiro]\nUm.\n",
		"parte1/cap2.afc": "[chapter Segundo]\nDois.\n",
		"parte2/cap1.afc": "[chapter Terceiro]\nTrês.\n",
	}

	tests := []struct {
		name    string
		inner   string
		want    []string
		notWant string
	}{
		{"whole archive", "", []string{`id="primeiro"`, `id="segundo"`, `id="terceiro"`}, ""},
		{"path in archive", "parte1", []string{`id="primeiro"`, `id="segundo"`}, "Terceiro"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, env := setupTestEnv(t)
			zipPath := makeBookZip(t, files)
			src := zipPath
			if len(tt.inner) > 0 {
				src = filepath.Join(zipPath, tt.inner)
			}
			dst := t.TempDir()

			if err := process(ctx, job{src: src, dst: dst, formats: []config.OutputFmt{config.OutputFmtHTML}}, env.Log); err != nil {
				t.Fatalf("process() error = %v", err)
			}
			index := readIndex(t, dst)
			assertOrder(t, index, tt.want...)
			if len(tt.notWant) > 0 && strings.Contains(index, tt.notWant) {
				t.Errorf("index contains %q", tt.notWant)
			}
		})
	}
}

func TestProcess_Errors(t *testing.T) {
	ctx, env := setupTestEnv(t)
	src := makeBookDir(t)
	empty := t.TempDir()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"nonexistent", filepath.Join(t.TempDir(), "missing", "book.afc"), "was not found"},
		{"directory with tail", filepath.Join(src, "images", "nope.afc"), "was not found"},
		{"file with tail", filepath.Join(src, "cap1.afc", "more"), "was not found"},
		{"no sources", empty, "no markup sources"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := process(ctx, job{src: tt.src, dst: t.TempDir(), formats: []config.OutputFmt{config.OutputFmtHTML}}, env.Log)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("process() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestProcess_CancelledContext(t *testing.T) {
	ctx, env := setupTestEnv(t)
	ctx, cancel := context.WithCancel(ctx)
	cancel()

	err := process(ctx, job{src: makeBookDir(t), dst: t.TempDir(), formats: []config.OutputFmt{config.OutputFmtHTML}}, env.Log)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("process() error = %v, want %v", err, context.Canceled)
	}
}

func TestProcess_InputEncoding(t *testing.T) {
	ctx, env := setupTestEnv(t)
	src := t.TempDir()
	encoded, err := charmap.ISO8859_1.NewEncoder().String("[chapter Introdução]\nAções.\n")
	if err != nil {
		t.Fatal(err)
	}
	writeFiles(t, src, map[string]string{"cap1.afc": encoded})
	env.Cfg.Document.InputEncoding = "ISO-8859-1"
	dst := t.TempDir()

	if err := process(ctx, job{src: src, dst: dst, formats: []config.OutputFmt{config.OutputFmtHTML}}, env.Log); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	index := readIndex(t, dst)
	if !strings.Contains(index, "Introdução") || !strings.Contains(index, "Ações.") {
		t.Errorf("source was not decoded:\n%s", index)
	}
}

func TestInputEncoding(t *testing.T) {
	if enc, err := inputEncoding(""); enc != nil || err != nil {
		t.Errorf("empty name = %v, %v", enc, err)
	}
	if enc, err := inputEncoding("windows-1251"); enc == nil || err != nil {
		t.Errorf("windows-1251 = %v, %v", enc, err)
	}
	if _, err := inputEncoding("klingon"); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

func TestParseFormats(t *testing.T) {
	log := zaptest.NewLogger(t)
	tests := []struct {
		names []string
		want  []config.OutputFmt
	}{
		{nil, []config.OutputFmt{config.OutputFmtHTML}},
		{[]string{"kindle"}, []config.OutputFmt{config.OutputFmtKindle}},
		{[]string{"KINDLE", "html", "kindle"}, []config.OutputFmt{config.OutputFmtKindle, config.OutputFmtHTML}},
		{[]string{"epub"}, []config.OutputFmt{config.OutputFmtHTML}},
	}
	for _, tt := range tests {
		got := parseFormats(tt.names, log)
		if len(got) != len(tt.want) {
			t.Errorf("parseFormats(%v) = %v, want %v", tt.names, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseFormats(%v) = %v, want %v", tt.names, got, tt.want)
			}
		}
	}
}

func TestRun(t *testing.T) {
	ctx, env := setupTestEnv(t)
	src := makeBookDir(t)
	dst := t.TempDir()
	search := t.TempDir()
	writeFiles(t, search, map[string]string{"baseJpgImage.jpg": "from search root", "basePngImage.png": "png"})

	cmd := &cli.Command{
		Name:   "convert",
		Action: Run,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "to", Value: []string{config.OutputFmtHTML.String()}},
			&cli.StringSliceFlag{Name: "intro"},
			&cli.StringSliceFlag{Name: "search"},
			&cli.StringFlag{Name: "title"},
			&cli.BoolFlag{Name: "overwrite"},
			&cli.StringFlag{Name: "force-zip-cp"},
		},
	}
	args := []string{"convert", "--to", "kindle", "--title", "Livro de Java", "--search", search, src, dst}
	if err := cmd.Run(ctx, args); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if env.Cfg.Document.Title != "Livro de Java" {
		t.Errorf("title = %q", env.Cfg.Document.Title)
	}
	assertExists(t, filepath.Join(dst, "book.opf"))
	data, err := os.ReadFile(filepath.Join(dst, "o-que-e-java", "baseJpgImage.jpg"))
	if err != nil {
		t.Fatalf("copied image: %v", err)
	}
	if string(data) != "from search root" {
		t.Errorf("image was not taken from command line search root: %q", data)
	}
	if !strings.Contains(readIndex(t, dst), "Livro de Java") {
		t.Error("title from command line was not used")
	}
}

func TestRun_NoSource(t *testing.T) {
	ctx, _ := setupTestEnv(t)
	cmd := &cli.Command{Name: "convert", Action: Run}
	if err := cmd.Run(ctx, []string{"convert"}); err == nil || !strings.Contains(err.Error(), "no input source") {
		t.Errorf("Run() error = %v", err)
	}
}
