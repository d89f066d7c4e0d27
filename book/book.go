// Package book holds document model and builds it from markup sources.
package book

import (
	"strconv"

	"github.com/gosimple/slug"
)

// Book is a parsed document. It is not modified after Build and could be
// rendered any number of times.
type Book struct {
	Title string
	// Introduction chapters are front matter, their resources share single
	// output directory.
	Introduction []*Chapter
	Chapters     []*Chapter
}

// Chapter is a titled part of the book.
type Chapter struct {
	Title    string
	Source   string
	Intro    bool
	Sections []*Section
	// Images lists distinct images referenced by chapter in order of
	// first appearance.
	Images []ImageReference
}

// Slug returns directory name for chapter resources. It may be empty for
// titles without any usable characters.
func (c *Chapter) Slug() string {
	return slug.Make(c.Title)
}

// SlugOr returns chapter slug or a positional fallback when title
// produces no slug.
func (c *Chapter) SlugOr(prefix string, index int) string {
	if s := c.Slug(); len(s) > 0 {
		return s
	}
	return prefix + "-" + strconv.Itoa(index+1)
}

// AddImage records image reference unless image with the same name was
// already seen in the chapter.
func (c *Chapter) AddImage(ref ImageReference) bool {
	for _, img := range c.Images {
		if img.Equal(ref) {
			return false
		}
	}
	c.Images = append(c.Images, ref)
	return true
}

// Section is a titled sequence of blocks. Text preceding the first section
// header of a chapter goes into section with empty title.
type Section struct {
	Title  string
	Blocks []Block
}

// Block is a chunk of raw markup separated from neighbors by blank lines.
type Block struct {
	Text string
	// Standalone is set for blocks starting with block level tag, they are
	// not wrapped into paragraphs.
	Standalone bool
}

// ImageReference is an image as referenced in markup.
type ImageReference struct {
	Name    string
	Caption string
	Options map[string]string
	Source  string
	Line    int
}

// Equal compares references by logical name only.
func (r ImageReference) Equal(other ImageReference) bool {
	return r.Name == other.Name
}
