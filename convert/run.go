// Package convert implements convert subcommand: it collects markup sources,
// builds the book once and renders it into every requested format.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/maruel/natural"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"bookc/archive"
	"bookc/book"
	"bookc/config"
	"bookc/convert/html"
	"bookc/convert/kindle"
	"bookc/grammar"
	"bookc/markup"
	"bookc/output"
	"bookc/resource"
	"bookc/state"
)

// job describes single conversion run.
type job struct {
	src     string
	intro   []string
	dst     string
	formats []config.OutputFmt
}

func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("convert")
	doc := &env.Cfg.Document

	var j job

	j.src = cmd.Args().Get(0)
	if len(j.src) == 0 {
		return errors.New("no input source has been specified")
	}
	if j.src, err = filepath.Abs(j.src); err != nil {
		return err
	}

	if title := strings.TrimSpace(cmd.String("title")); len(title) > 0 {
		doc.Title = title
	}
	if roots := cmd.StringSlice("search"); len(roots) > 0 {
		// command line roots are relative to working directory
		if doc.Resources.SearchRoots, err = absPaths(roots); err != nil {
			return err
		}
	}
	if j.intro, err = absPaths(cmd.StringSlice("intro")); err != nil {
		return err
	}

	j.dst = cmd.Args().Get(1)
	if len(j.dst) == 0 {
		if j.dst, err = defaultOutputDir(doc.Title); err != nil {
			return err
		}
	}
	if j.dst, err = filepath.Abs(j.dst); err != nil {
		return err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Mailformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	j.formats = parseFormats(cmd.StringSlice("to"), log)
	env.Overwrite = cmd.Bool("overwrite")

	// Since zip "standard" does not define file name encoding we may need to
	// force archaic code page for old archives
	if cp := cmd.String("force-zip-cp"); len(cp) > 0 {
		env.CodePage, err = ianaindex.IANA.Encoding(cp)
		if err != nil || env.CodePage == nil {
			log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cp), zap.Error(err))
			env.CodePage = nil
		} else {
			n, _ := ianaindex.IANA.Name(env.CodePage)
			log.Debug("Forcefully converting all non UTF-8 file names in archives", zap.String("charset", n))
		}
	}

	log.Info("Processing starting",
		zap.String("source", j.src), zap.String("destination", j.dst), zap.Stringers("formats", j.formats))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return process(ctx, j, log)
}

// parseFormats drops unknown and repeated formats keeping requested order.
// Desktop HTML is used when nothing usable was requested.
func parseFormats(names []string, log *zap.Logger) []config.OutputFmt {
	var formats []config.OutputFmt
	for _, name := range names {
		format, err := config.ParseOutputFmt(name)
		if err != nil {
			log.Warn("Unknown output format requested, ignoring", zap.Error(err))
			continue
		}
		if !slices.Contains(formats, format) {
			formats = append(formats, format)
		}
	}
	if len(formats) == 0 {
		formats = append(formats, config.OutputFmtHTML)
	}
	return formats
}

func absPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		out = append(out, abs)
	}
	return out, nil
}

// pipeline is everything needed to render book in one format.
type pipeline struct {
	format config.OutputFmt
	gen    *output.Generator
}

// process handles the core conversion logic independently of CLI framework.
// Grammars and targets for all formats are prepared before the book is
// parsed, so configuration problems are reported before any output.
func process(ctx context.Context, j job, log *zap.Logger) error {
	env := state.EnvFromContext(ctx)
	doc := &env.Cfg.Document

	enc, err := inputEncoding(doc.InputEncoding)
	if err != nil {
		return err
	}

	chapters, base, err := collectSources(ctx, j.src, env, log)
	if err != nil {
		return err
	}
	if len(chapters) == 0 {
		return fmt.Errorf("no markup sources found in %s", j.src)
	}
	intro, err := readSources(j.intro, "")
	if err != nil {
		return err
	}

	loc, err := env.InitLocator(base)
	if err != nil {
		return fmt.Errorf("unable to prepare resource locator: %w", err)
	}

	pipelines := make([]pipeline, 0, len(j.formats))
	for _, format := range j.formats {
		p, err := preparePipeline(format, doc, loc, log)
		if err != nil {
			return err
		}
		pipelines = append(pipelines, p)
	}

	b := book.NewBuilder(doc.Title, log)
	if enc != nil {
		b.WithEncoding(enc)
	}
	if err := b.AddAll(chapters, intro); err != nil {
		return fmt.Errorf("unable to parse book sources: %w", err)
	}
	bk := b.Build()
	log.Debug("Book parsed", zap.Int("chapters", len(bk.Chapters)), zap.Int("introduction", len(bk.Introduction)))

	// Store parsed book structure for debugging
	if env.Rpt != nil {
		env.Rpt.StoreData("book.txt", []byte(bk.String()))
	}

	for _, p := range pipelines {
		if err := ctx.Err(); err != nil {
			return err
		}
		out := outputDir(j.dst, p.format, len(pipelines) > 1)
		if err := prepareOutputDir(out, env.Overwrite, log); err != nil {
			return err
		}

		start := time.Now()
		log.Info("Generation starting", zap.Stringer("format", p.format), zap.String("to", out))
		if err := p.gen.Generate(ctx, bk, out); err != nil {
			return fmt.Errorf("unable to generate %s output: %w", p.format, err)
		}
		log.Info("Generation completed", zap.Stringer("format", p.format), zap.Duration("elapsed", time.Since(start)))

		if env.Rpt != nil {
			env.Rpt.Store(fmt.Sprintf("result-%s", p.format), out)
		}
	}
	return nil
}

func preparePipeline(format config.OutputFmt, doc *config.DocumentConfig, loc *resource.Locator, log *zap.Logger) (pipeline, error) {
	srcs, err := grammar.Layers(format.String(), doc.Grammar.Base, doc.Grammar.GrammarOverride(format))
	if err != nil {
		return pipeline{}, err
	}
	g, err := grammar.Load(srcs...)
	if err != nil {
		return pipeline{}, err
	}

	var target output.Target
	switch format {
	case config.OutputFmtKindle:
		t, err := kindle.New(doc, log)
		if err != nil {
			return pipeline{}, err
		}
		target = t
	default:
		t, err := html.New(doc, log)
		if err != nil {
			return pipeline{}, err
		}
		target = t
	}

	parser := markup.New(g, markup.WithLogger(log))
	return pipeline{format: format, gen: output.New(target, parser, loc, log)}, nil
}

func inputEncoding(name string) (encoding.Encoding, error) {
	if len(name) == 0 {
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown input encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("input encoding %q is not supported", name)
	}
	return enc, nil
}

// collectSources finds markup sources. Source could be a file, a directory
// or a zip archive optionally followed by path inside it. Returned base is
// directory against which relative resource roots are resolved.
func collectSources(ctx context.Context, src string, env *state.LocalEnv, log *zap.Logger) ([]book.Source, string, error) {
	exts := env.Cfg.Document.SourceExtensions

	var head, tail string
	for head = src; len(head) != 0; head, tail = filepath.Split(head) {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		head = strings.TrimSuffix(head, string(filepath.Separator))

		fi, err := os.Stat(head)
		if err != nil {
			// does not exists - probably path in archive
			continue
		}

		if fi.Mode().IsDir() {
			if len(tail) != 0 {
				// directory cannot have tail - it would be simple file
				return nil, "", fmt.Errorf("input source was not found (%s) => (%s)", head, strings.TrimPrefix(src, head))
			}
			srcs, err := dirSources(ctx, head, exts, log)
			return srcs, head, err
		}

		if !fi.Mode().IsRegular() {
			return nil, "", fmt.Errorf("unexpected path mode for (%s) => (%s)", head, strings.TrimPrefix(src, head))
		}

		isArchive, err := isArchiveFile(head)
		if err != nil {
			return nil, "", fmt.Errorf("unable to check archive type: %w", err)
		}
		if isArchive {
			// path inside archive always uses forward slashes
			inner := filepath.ToSlash(strings.TrimPrefix(strings.TrimPrefix(src, head), string(filepath.Separator)))
			entries, err := archive.Collect(head, inner, env.CodePage, func(name string) bool {
				return isSourceFile(name, exts)
			})
			if err != nil {
				return nil, "", fmt.Errorf("unable to process archive: %w", err)
			}
			srcs := make([]book.Source, 0, len(entries))
			for _, e := range entries {
				srcs = append(srcs, book.Source{Label: filepath.Base(head) + ":" + e.Name, Reader: bytes.NewReader(e.Data)})
			}
			return srcs, filepath.Dir(head), nil
		}

		if len(tail) != 0 {
			return nil, "", fmt.Errorf("input source was not found (%s) => (%s)", head, strings.TrimPrefix(src, head))
		}
		srcs, err := readSources([]string{head}, filepath.Dir(head))
		return srcs, filepath.Dir(head), err
	}
	return nil, "", fmt.Errorf("input source was not found (%s)", src)
}

// dirSources walks directory tree picking markup files in natural order of
// their relative paths.
func dirSources(ctx context.Context, dir string, exts []string, log *zap.Logger) ([]book.Source, error) {
	var names []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			log.Warn("Skipping path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !isSourceFile(path, exts) {
			log.Debug("Skipping file, not recognized as markup source", zap.String("file", path))
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Sort(natural.StringSlice(names))

	paths := make([]string, 0, len(names))
	for _, name := range names {
		paths = append(paths, filepath.Join(dir, filepath.FromSlash(name)))
	}
	return readSources(paths, dir)
}

// readSources loads files into memory. Labels are relative to base when it
// is not empty.
func readSources(paths []string, base string) ([]book.Source, error) {
	srcs := make([]book.Source, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("unable to read source: %w", err)
		}
		label := p
		if len(base) > 0 {
			if rel, err := filepath.Rel(base, p); err == nil {
				label = filepath.ToSlash(rel)
			}
		}
		srcs = append(srcs, book.Source{Label: label, Reader: bytes.NewReader(data)})
	}
	return srcs, nil
}
