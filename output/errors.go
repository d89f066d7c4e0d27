package output

import "fmt"

// ResolutionError reports image which could not be found. Nothing is
// written when generation fails with it.
type ResolutionError struct {
	Chapter string
	Name    string
	Source  string
	Line    int
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("unable to find image %q referenced in chapter %q (%s:%d)", e.Name, e.Chapter, e.Source, e.Line)
}
