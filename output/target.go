// Package output walks a book, places its resources and hands rendered
// content to a format specific target.
package output

import "html/template"

// Layout describes fixed names of target output tree. All names are
// relative to the output root and use forward slashes.
type Layout struct {
	// Index is the name of the file with the whole book.
	Index string
	// Includes is directory for stylesheets and other shared files.
	Includes string
	// IntroResources is directory shared by resources of all introduction
	// chapters.
	IntroResources string
}

// Target is an output format.
type Target interface {
	Name() string
	Layout() Layout
	// WriteIncludes fills includes directory, which already exists.
	WriteIncludes(dir string) error
	// WriteBook writes index and any wrapper files into root.
	WriteBook(root string, page *Page) error
}

// Page is fully rendered book.
type Page struct {
	Title        string
	Introduction []RenderedChapter
	Chapters     []RenderedChapter
	// Resources are all files copied into output tree, in copy order.
	Resources []CopiedResource
}

type RenderedChapter struct {
	Title  string
	Slug   string
	Anchor string
	// ResourceDir is relative directory of chapter resources.
	ResourceDir string
	Intro       bool
	Sections    []RenderedSection
}

type RenderedSection struct {
	Title  string
	Anchor string
	Blocks []RenderedBlock
}

type RenderedBlock struct {
	HTML       template.HTML
	Standalone bool
}

// CopiedResource is a resource placed into output tree.
type CopiedResource struct {
	Name   string
	Source string
	// Path is relative to the output root, with forward slashes.
	Path string
}
