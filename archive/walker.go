// Package archive reads markup sources packed into zip files.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/maruel/natural"
	"golang.org/x/text/encoding"
)

// WalkFunc is called for every regular file under the walked prefix. The
// archive argument is the path passed to Walk. Returning an error stops the
// walk.
type WalkFunc func(archive string, file *zip.File) error

// Entry is a source file read from archive.
type Entry struct {
	// Name is path inside archive, decoded when archive does not use UTF-8
	// names.
	Name string
	Data []byte
}

// Walk visits all regular files whose names start with prefix in archive
// order. Archives with absolute or traversing entry names are rejected.
func Walk(archive, prefix string, walkFn WalkFunc) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		name := f.FileHeader.Name
		if !isSafePath(name) {
			return fmt.Errorf("zip entry %q: unsafe path (absolute or contains path traversal)", name)
		}
		if f.FileInfo().IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		if err := walkFn(archive, f); err != nil {
			return err
		}
	}
	return nil
}

// Collect reads files under prefix accepted by match and returns them in
// natural order of their names. When cp is not nil it is used to decode
// names of entries not flagged as UTF-8.
func Collect(archive, prefix string, cp encoding.Encoding, match func(name string) bool) ([]Entry, error) {
	var entries []Entry
	err := Walk(archive, prefix, func(_ string, f *zip.File) error {
		name := f.FileHeader.Name
		if cp != nil && f.FileHeader.NonUTF8 {
			decoded, err := cp.NewDecoder().String(name)
			if err != nil {
				return fmt.Errorf("unable to decode entry name %q: %w", name, err)
			}
			name = decoded
		}
		if match != nil && !match(name) {
			return nil
		}
		data, err := readEntry(f)
		if err != nil {
			return fmt.Errorf("unable to read entry %q: %w", name, err)
		}
		entries = append(entries, Entry{Name: name, Data: data})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return natural.Less(entries[i].Name, entries[j].Name)
	})
	return entries, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// isSafePath returns false for paths that could escape the extraction
// directory: absolute paths and those containing ".." components.
func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, `\`) {
		return false
	}
	for part := range strings.SplitSeq(name, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
