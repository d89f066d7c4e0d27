// Package html writes book as a single HTML page for desktop browsers.
package html

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

	"bookc/config"
	"bookc/misc"
	"bookc/output"
)

//go:embed book.css
var defaultStylesheet []byte

//go:embed index.html.tmpl
var indexTemplate string

const stylesheetName = "book.css"

var layout = output.Layout{
	Index:          "index.html",
	Includes:       "includes",
	IntroResources: "introduction",
}

// Target produces desktop HTML tree.
type Target struct {
	cfg  *config.DocumentConfig
	log  *zap.Logger
	tmpl *template.Template
}

func New(cfg *config.DocumentConfig, log *zap.Logger) (*Target, error) {
	tmpl, err := template.New(layout.Index).Funcs(sprig.HermeticHtmlFuncMap()).Parse(indexTemplate)
	if err != nil {
		return nil, fmt.Errorf("unable to parse index template: %w", err)
	}
	return &Target{
		cfg:  cfg,
		log:  log.Named("html"),
		tmpl: tmpl,
	}, nil
}

func (t *Target) Name() string {
	return config.OutputFmtHTML.String()
}

func (t *Target) Layout() output.Layout {
	return layout
}

// WriteIncludes places configured (or built-in) stylesheet and its assets.
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
}

func (t *Target) WriteBook(root string, page *output.Page) error {
	var buf bytes.Buffer
	err := t.tmpl.Execute(&buf, indexData{
		Page:       page,
		Generator:  misc.GetAppName() + " " + misc.GetVersion(),
		Stylesheet: path.Join(layout.Includes, stylesheetName),
	})
	if err != nil {
		return fmt.Errorf("unable to execute index template: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, layout.Index), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("unable to write index: %w", err)
	}
	t.log.Debug("Index written", zap.Int("chapters", len(page.Chapters)), zap.Int("resources", len(page.Resources)))
	return nil
}
