package output

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/gosimple/slug"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"bookc/book"
	"bookc/markup"
	"bookc/resource"
)

// Generator renders book for a single target. Parser and locator are only
// read, so they could be shared by several generators.
type Generator struct {
	target  Target
	parser  *markup.Parser
	locator *resource.Locator
	log     *zap.Logger
}

func New(target Target, parser *markup.Parser, locator *resource.Locator, log *zap.Logger) *Generator {
	return &Generator{
		target:  target,
		parser:  parser,
		locator: locator,
		log:     log.Named("generate").With(zap.String("target", target.Name())),
	}
}

type plannedChapter struct {
	chapter *book.Chapter
	slug    string
	anchor  string
	dir     string
	copies  []plannedCopy
}

type plannedCopy struct {
	name string
	src  string
	// dst is relative to output root
	dst string
}

// Generate writes book under root. All images are resolved before anything
// is written, so failure to find any of them leaves output untouched.
func (g *Generator) Generate(ctx context.Context, b *book.Book, root string) error {
	g.log.Info("Generating book", zap.String("title", b.Title), zap.String("to", root))

	plan, err := g.plan(ctx, b)
	if err != nil {
		return err
	}
	resources, err := g.materialize(ctx, plan, root)
	if err != nil {
		return err
	}
	page, err := g.render(ctx, b, plan)
	if err != nil {
		return err
	}
	page.Resources = resources
	if err := g.target.WriteBook(root, page); err != nil {
		return fmt.Errorf("unable to write %s book: %w", g.target.Name(), err)
	}
	return nil
}

func (g *Generator) plan(ctx context.Context, b *book.Book) ([]*plannedChapter, error) {
	var (
		plan    []*plannedChapter
		errs    error
		anchors = make(map[string]int)
		layout  = g.target.Layout()
	)

	unique := func(anchor string) string {
		anchors[anchor]++
		if n := anchors[anchor]; n > 1 {
			return anchor + "-" + strconv.Itoa(n)
		}
		return anchor
	}

	add := func(i int, c *book.Chapter, intro bool) {
		pc := &plannedChapter{chapter: c}
		if intro {
			pc.slug = c.SlugOr("introduction", i)
			pc.dir = layout.IntroResources
			pc.anchor = unique("intro-" + pc.slug)
		} else {
			pc.slug = c.SlugOr("chapter", i)
			pc.dir = pc.slug
			pc.anchor = unique(pc.slug)
		}
		for _, img := range c.Images {
			res, ok := g.locator.Resolve(img.Name)
			if !ok {
				errs = multierr.Append(errs, &ResolutionError{Chapter: c.Title, Name: img.Name, Source: img.Source, Line: img.Line})
				continue
			}
			pc.copies = append(pc.copies, plannedCopy{
				name: img.Name,
				src:  res.Path,
				dst:  path.Join(pc.dir, resource.FileName(img.Name)),
			})
		}
		plan = append(plan, pc)
	}

	for i, c := range b.Introduction {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		add(i, c, true)
	}
	for i, c := range b.Chapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		add(i, c, false)
	}
	if errs != nil {
		return nil, errs
	}
	return plan, nil
}

func (g *Generator) materialize(ctx context.Context, plan []*plannedChapter, root string) ([]CopiedResource, error) {
	layout := g.target.Layout()

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create output directory: %w", err)
	}
	includes := filepath.Join(root, filepath.FromSlash(layout.Includes))
	if err := os.MkdirAll(includes, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create includes directory: %w", err)
	}
	if err := g.target.WriteIncludes(includes); err != nil {
		return nil, fmt.Errorf("unable to write %s includes: %w", g.target.Name(), err)
	}

	var (
		resources []CopiedResource
		created   = make(map[string]bool)
		copied    = make(map[string]string)
	)
	for _, pc := range plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, cp := range pc.copies {
			if prev, ok := copied[cp.dst]; ok {
				if prev == cp.src {
					continue
				}
				g.log.Warn("Different images share output name, last one wins",
					zap.String("path", cp.dst), zap.String("previous", prev), zap.String("current", cp.src))
			}
			if !created[pc.dir] {
				if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(pc.dir)), 0o755); err != nil {
					return nil, fmt.Errorf("unable to create resource directory for chapter %q: %w", pc.chapter.Title, err)
				}
				created[pc.dir] = true
			}
			if err := copyFile(cp.src, filepath.Join(root, filepath.FromSlash(cp.dst))); err != nil {
				return nil, fmt.Errorf("unable to copy image %q: %w", cp.name, err)
			}
			g.log.Debug("Image copied", zap.String("image", cp.name), zap.String("to", cp.dst))
			copied[cp.dst] = cp.src
			resources = append(resources, CopiedResource{Name: cp.name, Source: cp.src, Path: cp.dst})
		}
	}
	return resources, nil
}

func (g *Generator) render(ctx context.Context, b *book.Book, plan []*plannedChapter) (*Page, error) {
	page := &Page{Title: b.Title}
	for _, pc := range plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scope := markup.Scope{ResourceDir: pc.dir}
		rc := RenderedChapter{
			Title:       pc.chapter.Title,
			Slug:        pc.slug,
			Anchor:      pc.anchor,
			ResourceDir: pc.dir,
			Intro:       pc.chapter.Intro,
		}
		seen := make(map[string]bool)
		for i, s := range pc.chapter.Sections {
			anchor := sectionAnchor(pc.anchor, i, s.Title)
			if seen[anchor] {
				anchor += "-" + strconv.Itoa(i+1)
			}
			seen[anchor] = true
			rs := RenderedSection{Title: s.Title, Anchor: anchor}
			for _, blk := range s.Blocks {
				rs.Blocks = append(rs.Blocks, RenderedBlock{
					// parser escapes all text it does not produce itself
					HTML:       template.HTML(g.parser.Render(blk.Text, scope)),
					Standalone: blk.Standalone,
				})
			}
			rc.Sections = append(rc.Sections, rs)
		}
		if pc.chapter.Intro {
			page.Introduction = append(page.Introduction, rc)
		} else {
			page.Chapters = append(page.Chapters, rc)
		}
	}
	return page, nil
}

func sectionAnchor(chapter string, index int, title string) string {
	if s := slug.Make(title); len(s) > 0 {
		return chapter + "--" + s
	}
	return chapter + "--" + strconv.Itoa(index+1)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
