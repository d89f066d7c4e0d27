package convert

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"bookc/config"
)

// defaultOutputDir is used when destination was not specified: directory
// named after the book title in current working directory.
func defaultOutputDir(title string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("unable to get working directory: %w", err)
	}
	name := slug.Make(title)
	if len(name) == 0 {
		name = config.CleanFileName(title)
	}
	return filepath.Join(wd, name), nil
}

// outputDir returns directory where book in given format is generated.
// When several formats are requested at once each one gets sub-directory
// named after the format.
func outputDir(dst string, format config.OutputFmt, multiple bool) string {
	if !multiple {
		return dst
	}
	return filepath.Join(dst, format.String())
}

// prepareOutputDir makes sure output directory could be used. Directory
// which already has something in it is only reused when overwrite was
// requested, generator replaces files it produces and leaves the rest.
func prepareOutputDir(dir string, overwrite bool, log *zap.Logger) error {
	entries, err := os.ReadDir(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("unable to check output directory: %w", err)
	case len(entries) == 0:
		return nil
	case !overwrite:
		return fmt.Errorf("output directory is not empty: %s", dir)
	}
	log.Warn("Overwriting files in existing directory", zap.String("dir", dir))
	return nil
}
