package grammar

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed base.yaml html.yaml kindle.yaml
var embedded embed.FS

// BaseName is the name of embedded base grammar source.
const BaseName = "base.yaml"

// Source is a single named layer of grammar configuration.
type Source struct {
	Name string
	Data []byte
}

// FromFile reads grammar layer from disk.
func FromFile(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, &ConfigurationError{Source: path, Err: err}
	}
	return Source{Name: path, Data: data}, nil
}

// Embedded returns built-in grammar layer by name ("base.yaml" or
// "<format>.yaml").
func Embedded(name string) (Source, error) {
	data, err := embedded.ReadFile(name)
	if err != nil {
		return Source{}, &ConfigurationError{Source: name, Err: fmt.Errorf("no embedded grammar: %w", err)}
	}
	return Source{Name: "embedded:" + name, Data: data}, nil
}

// Layers returns sources for a format in override order: embedded base,
// optional base file, embedded format layer, optional format file. Files
// only need to carry what they change.
func Layers(format, basePath, formatPath string) ([]Source, error) {
	names := []struct{ embedded, path string }{
		{BaseName, basePath},
		{format + filepath.Ext(BaseName), formatPath},
	}
	srcs := make([]Source, 0, 4)
	for _, n := range names {
		src, err := Embedded(n.embedded)
		if err != nil {
			return nil, err
		}
		srcs = append(srcs, src)
		if len(n.path) == 0 {
			continue
		}
		if src, err = FromFile(n.path); err != nil {
			return nil, err
		}
		srcs = append(srcs, src)
	}
	return srcs, nil
}
