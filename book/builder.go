package book

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// Source is a named markup input.
type Source struct {
	Label  string
	Reader io.Reader
}

var (
	// imageTag finds image references anywhere in content line.
	imageTag = regexp.MustCompile(`\[img[ \t]+([^\]\n]*)\]`)
	// codeSpan finds one-line code blocks and inline code, their content is
	// shown literally.
	codeSpan = regexp.MustCompile(`\[code\b[^\]\n]*\].*?\[/code\]|%%.+?%%`)
	// regionOpen recognizes tags which may span several paragraphs.
	regionOpen = regexp.MustCompile(`^\[(code|box|note|quote|list)\b`)
	// standalone recognizes blocks which are not wrapped into paragraphs.
	standalone = regexp.MustCompile(`^\[(code|box|note|quote|list|img|pagebreak)\b`)
)

const codeRegion = "code"

// Builder assembles Book from markup sources. It is permissive: structural
// problems are logged and the input is kept as content.
type Builder struct {
	log  *zap.Logger
	enc  encoding.Encoding
	book *Book
}

func NewBuilder(title string, log *zap.Logger) *Builder {
	return &Builder{
		log:  log.Named("builder"),
		book: &Book{Title: title},
	}
}

// WithEncoding forces input encoding instead of detecting it.
func (b *Builder) WithEncoding(enc encoding.Encoding) *Builder {
	b.enc = enc
	return b
}

// AddSource scans chapter source.
func (b *Builder) AddSource(src Source) error {
	return b.add(src, false)
}

// AddString scans chapter source held in memory.
func (b *Builder) AddString(content, label string) {
	b.scan(content, label, false)
}

// AddReader scans chapter source from reader.
func (b *Builder) AddReader(r io.Reader, label string) error {
	return b.add(Source{Label: label, Reader: r}, false)
}

// AddAll scans chapter sources followed by introduction sources.
func (b *Builder) AddAll(chapters, introduction []Source) error {
	for _, src := range chapters {
		if err := b.add(src, false); err != nil {
			return err
		}
	}
	for _, src := range introduction {
		if err := b.add(src, true); err != nil {
			return err
		}
	}
	return nil
}

// Build returns assembled book.
func (b *Builder) Build() *Book {
	return b.book
}

func (b *Builder) add(src Source, intro bool) error {
	text, err := b.decode(src.Reader)
	if err != nil {
		return fmt.Errorf("unable to read source %q: %w", src.Label, err)
	}
	b.scan(text, src.Label, intro)
	return nil
}

func (b *Builder) decode(r io.Reader) (string, error) {
	var err error
	if b.enc != nil {
		r = transform.NewReader(r, b.enc.NewDecoder())
	} else if r, err = charset.NewReader(r, "text/plain; charset=utf-8"); err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimPrefix(data, []byte("\ufeff"))), nil
}

// scanner keeps state while single source is processed. Sources never
// share chapters.
type scanner struct {
	log     *zap.Logger
	label   string
	intro   bool
	book    *Book
	chapter *Chapter
	section *Section
	block   []string
	region  string
	line    int
}

func (b *Builder) scan(text, label string, intro bool) {
	s := &scanner{
		log:   b.log.With(zap.String("source", label)),
		label: label,
		intro: intro,
		book:  b.book,
	}
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), len(text)+1)
	for sc.Scan() {
		s.line++
		s.feed(strings.TrimRight(sc.Text(), "\r"))
	}
	if len(s.region) > 0 {
		s.log.Warn("Unterminated tag at the end of source", zap.String("tag", s.region))
	}
	s.flush()
}

func (s *scanner) feed(line string) {
	trimmed := strings.TrimSpace(line)

	if s.region == codeRegion {
		s.block = append(s.block, line)
		if strings.Contains(line, "[/"+codeRegion+"]") {
			s.region = ""
		}
		return
	}

	if looksLikeHeader(trimmed) {
		h, err := parseHeader(trimmed)
		if err == nil {
			s.header(h)
			return
		}
		s.log.Warn("Malformed header treated as content", zap.Int("line", s.line), zap.Error(err))
	}

	if len(s.region) == 0 && len(trimmed) == 0 {
		s.flush()
		return
	}

	if len(s.region) == 0 {
		if m := regionOpen.FindStringSubmatch(trimmed); m != nil {
			// region always starts its own block
			s.flush()
			if !strings.Contains(trimmed, "[/"+m[1]+"]") {
				s.region = m[1]
			}
		}
	} else if strings.Contains(line, "[/"+s.region+"]") {
		s.region = ""
	}

	if s.region != codeRegion {
		s.images(line)
	}
	s.block = append(s.block, line)
}

func (s *scanner) header(h *headerLine) {
	if len(s.region) > 0 {
		s.log.Warn("Header closes unterminated tag", zap.Int("line", s.line), zap.String("tag", s.region))
		s.region = ""
	}
	s.flush()
	switch h.Kind {
	case kindChapter:
		s.openChapter(h.Title)
	case kindSection:
		if s.chapter == nil {
			s.implicitChapter()
		}
		s.section = &Section{Title: h.Title}
		s.chapter.Sections = append(s.chapter.Sections, s.section)
	}
}

func (s *scanner) openChapter(title string) {
	s.chapter = &Chapter{Title: title, Source: s.label, Intro: s.intro}
	s.section = nil
	if s.intro {
		s.book.Introduction = append(s.book.Introduction, s.chapter)
	} else {
		s.book.Chapters = append(s.book.Chapters, s.chapter)
	}
}

func (s *scanner) implicitChapter() {
	s.log.Warn("Content before the first chapter, starting untitled chapter", zap.Int("line", s.line))
	s.openChapter("")
}

func (s *scanner) images(line string) {
	line = codeSpan.ReplaceAllString(line, "")
	for _, m := range imageTag.FindAllStringSubmatch(line, -1) {
		ref, extra, err := parseImage(m[1])
		if err != nil {
			s.log.Warn("Image reference ignored", zap.Int("line", s.line), zap.Error(err))
			continue
		}
		if len(extra) > 0 {
			s.log.Debug("Unknown image arguments", zap.Int("line", s.line), zap.Strings("args", extra))
		}
		ref.Source, ref.Line = s.label, s.line
		if s.chapter == nil {
			s.implicitChapter()
		}
		if !s.chapter.AddImage(ref) {
			s.log.Debug("Image already referenced in chapter", zap.String("image", ref.Name), zap.Int("line", s.line))
		}
	}
}

func (s *scanner) flush() {
	if len(s.block) == 0 {
		return
	}
	text := strings.Join(s.block, "\n")
	s.block = s.block[:0]

	if s.chapter == nil {
		s.implicitChapter()
	}
	if s.section == nil {
		s.section = &Section{}
		s.chapter.Sections = append(s.chapter.Sections, s.section)
	}
	s.section.Blocks = append(s.section.Blocks, Block{
		Text:       text,
		Standalone: standalone.MatchString(strings.TrimSpace(text)),
	})
}
