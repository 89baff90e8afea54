// Package errs defines the error taxonomy shared by the dataset adapter,
// the model hub and the training module. Every error surfaces immediately
// to the caller; nothing here is retried or recovered.
package errs

import "fmt"

// FileError reports an unreadable or malformed source file.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// ConfigError reports an unresolvable model identifier or an inconsistent
// configuration value.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// UnknownLabelError reports a label string outside the configured class
// vocabulary. A mislabeled row indicates a corrupt dataset, so this is
// fatal and never recovered locally.
type UnknownLabelError struct {
	Label string
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("unknown label %q", e.Label)
}

// IndexError reports an out-of-bounds row access.
type IndexError struct {
	Index int
	Size  int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d out of bounds for dataset of size %d", e.Index, e.Size)
}
