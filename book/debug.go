package book

import (
	"fmt"

	"bookc/utils/debug"
)

// textLimit keeps dumps of large books readable.
const textLimit = 256

type treeWriter struct {
	*debug.TreeWriter
}

// String returns a readable tree of the parsed book for debug reports.
func (b *Book) String() string {
	if b == nil {
		return "<nil Book>"
	}
	return treeWriter{debug.NewTreeWriter().WithLimit(textLimit)}.book(b).String()
}

func (tw treeWriter) book(b *Book) treeWriter {
	tw.Line(0, "Book title=%q", b.Title)
	for i, c := range b.Introduction {
		tw.chapter(1, "Introduction", i, c)
	}
	for i, c := range b.Chapters {
		tw.chapter(1, "Chapter", i, c)
	}
	return tw
}

func (tw treeWriter) chapter(depth int, label string, index int, c *Chapter) {
	tw.Line(depth, "%s[%d] title=%q slug=%q source=%q", label, index, c.Title, c.Slug(), c.Source)
	for i, img := range c.Images {
		tw.Line(depth+1, "Image[%d] name=%q line=%d", i, img.Name, img.Line)
		if len(img.Caption) > 0 {
			tw.TextBlock(depth+2, "Caption", img.Caption)
		}
		tw.Attrs(depth+2, img.Options)
	}
	for i, s := range c.Sections {
		tw.Line(depth+1, "Section[%d] title=%q blocks=%d", i, s.Title, len(s.Blocks))
		for j, blk := range s.Blocks {
			label := "Paragraph"
			if blk.Standalone {
				label = "Standalone"
			}
			tw.TextBlock(depth+2, fmt.Sprintf("%s[%d]", label, j), blk.Text)
		}
	}
}
