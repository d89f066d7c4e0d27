// Package kindle writes book as an HTML bundle suitable for e-reader
// conversion tools: single index with page breaks, OPF package and NCX
// table of contents.
package kindle

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"os"
	"path"
	"path/filepath"

	sprig "github.com/go-task/slim-sprig/v3"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"bookc/config"
	"bookc/misc"
	"bookc/output"
)

//go:embed book.css
var defaultStylesheet []byte

//go:embed index.html.tmpl
var indexTemplate string

const (
	stylesheetName = "book.css"
	opfName        = "book.opf"
	ncxName        = "toc.ncx"
)

var layout = output.Layout{
	Index:          "index.html",
	Includes:       "includes",
	IntroResources: "resources",
}

// tocTitles are localized headings of table of contents.
var tocTitles = map[language.Base]string{
	language.MustParseBase("pt"): "Sumário",
	language.MustParseBase("es"): "Índice",
	language.MustParseBase("fr"): "Table des matières",
	language.MustParseBase("de"): "Inhalt",
	language.MustParseBase("ru"): "Содержание",
}

// Target produces e-reader bundle.
type Target struct {
	cfg  *config.DocumentConfig
	lang language.Tag
	log  *zap.Logger
	tmpl *template.Template
}

func New(cfg *config.DocumentConfig, log *zap.Logger) (*Target, error) {
	lang, err := language.Parse(cfg.Kindle.Language)
	if err != nil {
		return nil, fmt.Errorf("bad book language %q: %w", cfg.Kindle.Language, err)
	}
	tmpl, err := template.New(layout.Index).Funcs(sprig.HermeticHtmlFuncMap()).Parse(indexTemplate)
	if err != nil {
		return nil, fmt.Errorf("unable to parse index template: %w", err)
	}
	return &Target{
		cfg:  cfg,
		lang: lang,
		log:  log.Named("kindle"),
		tmpl: tmpl,
	}, nil
}

func (t *Target) Name() string {
	return config.OutputFmtKindle.String()
}

func (t *Target) Layout() output.Layout {
	return layout
}

func (t *Target) WriteIncludes(dir string) error {
	sheet, err := output.LoadStylesheet(t.cfg.StylesheetPath, defaultStylesheet)
	if err != nil {
		return err
	}
	return sheet.WriteTo(dir, stylesheetName, t.log)
}

type indexData struct {
	*output.Page
	Generator  string
	Stylesheet string
	Author     string
	TOCTitle   string
}

// WriteBook writes index, OPF and NCX files.
func (t *Target) WriteBook(root string, page *output.Page) error {
	var buf bytes.Buffer
	err := t.tmpl.Execute(&buf, indexData{
		Page:       page,
		Generator:  misc.GetAppName() + " " + misc.GetVersion(),
		Stylesheet: path.Join(layout.Includes, stylesheetName),
		Author:     t.cfg.Kindle.Author,
		TOCTitle:   t.tocTitle(),
	})
	if err != nil {
		return fmt.Errorf("unable to execute index template: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, layout.Index), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("unable to write index: %w", err)
	}

	id := BookID(page.Title)
	if err := t.writeOPF(root, id, page); err != nil {
		return fmt.Errorf("unable to write OPF: %w", err)
	}
	if err := t.writeNCX(root, id, page); err != nil {
		return fmt.Errorf("unable to write NCX: %w", err)
	}
	return nil
}

func (t *Target) tocTitle() string {
	base, _ := t.lang.Base()
	if title, ok := tocTitles[base]; ok {
		return title
	}
	return "Contents"
}
