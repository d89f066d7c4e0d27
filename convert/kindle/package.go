package kindle

import (
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strconv"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"go.uber.org/zap"

	"bookc/output"
)

// BookID returns stable identifier for the book title, so repeated runs
// produce identical packages.
func BookID(title string) string {
	return "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte("bookc:"+title)).String()
}

func (t *Target) writeOPF(root, id string, page *output.Page) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	pkg := doc.CreateElement("package")
	pkg.CreateAttr("xmlns", "http://www.idpf.org/2007/opf")
	pkg.CreateAttr("version", "2.0")
	pkg.CreateAttr("unique-identifier", "BookId")

	metadata := pkg.CreateElement("metadata")
	metadata.CreateAttr("xmlns:dc", "http://purl.org/dc/elements/1.1/")
	metadata.CreateAttr("xmlns:opf", "http://www.idpf.org/2007/opf")

	metadata.CreateElement("dc:title").SetText(page.Title)
	dcID := metadata.CreateElement("dc:identifier")
	dcID.CreateAttr("id", "BookId")
	dcID.SetText(id)
	metadata.CreateElement("dc:language").SetText(t.lang.String())
	if len(t.cfg.Kindle.Author) > 0 {
		creator := metadata.CreateElement("dc:creator")
		creator.CreateAttr("opf:role", "aut")
		creator.SetText(t.cfg.Kindle.Author)
	}

	manifest := pkg.CreateElement("manifest")
	addItem := func(id, href, mediaType string) {
		item := manifest.CreateElement("item")
		item.CreateAttr("id", id)
		item.CreateAttr("href", href)
		item.CreateAttr("media-type", mediaType)
	}
	addItem("index", layout.Index, "application/xhtml+xml")
	addItem("ncx", ncxName, "application/x-dtbncx+xml")
	addItem("stylesheet", path.Join(layout.Includes, stylesheetName), "text/css")
	for i, res := range page.Resources {
		addItem("img-"+strconv.Itoa(i+1), res.Path, t.mediaType(filepath.Join(root, filepath.FromSlash(res.Path))))
	}

	spine := pkg.CreateElement("spine")
	spine.CreateAttr("toc", "ncx")
	spine.CreateElement("itemref").CreateAttr("idref", "index")

	guide := pkg.CreateElement("guide")
	for _, ref := range []struct{ kind, title, anchor string }{
		{"toc", "Table of Contents", "toc"},
		{"text", "Beginning", firstAnchor(page)},
	} {
		if len(ref.anchor) == 0 {
			continue
		}
		r := guide.CreateElement("reference")
		r.CreateAttr("type", ref.kind)
		r.CreateAttr("title", ref.title)
		r.CreateAttr("href", layout.Index+"#"+ref.anchor)
	}

	doc.Indent(2)
	return doc.WriteToFile(filepath.Join(root, opfName))
}

func (t *Target) writeNCX(root, id string, page *output.Page) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	ncx := doc.CreateElement("ncx")
	ncx.CreateAttr("xmlns", "http://www.daisy.org/z3986/2005/ncx/")
	ncx.CreateAttr("version", "2005-1")
	ncx.CreateAttr("xml:lang", t.lang.String())

	head := ncx.CreateElement("head")
	depth := 1
	for _, c := range append(append([]output.RenderedChapter(nil), page.Introduction...), page.Chapters...) {
		for _, s := range c.Sections {
			if len(s.Title) > 0 {
				depth = 2
			}
		}
	}
	for _, m := range []struct{ name, content string }{
		{"dtb:uid", id},
		{"dtb:depth", strconv.Itoa(depth)},
		{"dtb:totalPageCount", "0"},
		{"dtb:maxPageNumber", "0"},
	} {
		meta := head.CreateElement("meta")
		meta.CreateAttr("name", m.name)
		meta.CreateAttr("content", m.content)
	}

	ncx.CreateElement("docTitle").CreateElement("text").SetText(page.Title)

	navMap := ncx.CreateElement("navMap")
	playOrder := 0
	navPoint := func(parent *etree.Element, id, label, anchor string) *etree.Element {
		playOrder++
		np := parent.CreateElement("navPoint")
		np.CreateAttr("id", "navpoint-"+id)
		np.CreateAttr("playOrder", strconv.Itoa(playOrder))
		np.CreateElement("navLabel").CreateElement("text").SetText(label)
		np.CreateElement("content").CreateAttr("src", layout.Index+"#"+anchor)
		return np
	}

	chapters := func(list []output.RenderedChapter, numbered bool) {
		for i, c := range list {
			label := c.Title
			if numbered {
				label = fmt.Sprintf("%d. %s", i+1, c.Title)
			}
			np := navPoint(navMap, c.Anchor, label, c.Anchor)
			for _, s := range c.Sections {
				if len(s.Title) > 0 {
					navPoint(np, s.Anchor, s.Title, s.Anchor)
				}
			}
		}
	}
	chapters(page.Introduction, false)
	chapters(page.Chapters, true)

	doc.Indent(2)
	return doc.WriteToFile(filepath.Join(root, ncxName))
}

// mediaType sniffs file content and falls back to extension.
func (t *Target) mediaType(file string) string {
	kind, err := filetype.MatchFile(file)
	if err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if mt := mime.TypeByExtension(filepath.Ext(file)); len(mt) > 0 {
		return mt
	}
	t.log.Warn("Unable to detect media type of resource", zap.String("file", file))
	return "application/octet-stream"
}

func firstAnchor(page *output.Page) string {
	if len(page.Introduction) > 0 {
		return page.Introduction[0].Anchor
	}
	if len(page.Chapters) > 0 {
		return page.Chapters[0].Anchor
	}
	return ""
}
