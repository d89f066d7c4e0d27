package grammar

import "fmt"

// ConfigurationError reports grammar which cannot be used. Loading never
// returns partially applied grammar together with this error.
type ConfigurationError struct {
	Source string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if len(e.Source) == 0 {
		return fmt.Sprintf("bad grammar configuration: %v", e.Err)
	}
	return fmt.Sprintf("bad grammar configuration (%s): %v", e.Source, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// TagError describes single problematic tag definition.
type TagError struct {
	Source string
	Tag    string
	Err    error
}

func (e *TagError) Error() string {
	return fmt.Sprintf("tag %q from %s: %v", e.Tag, e.Source, e.Err)
}

func (e *TagError) Unwrap() error {
	return e.Err
}
