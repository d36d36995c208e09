package source

import "fmt"

// SourceError represents a source-related error
type SourceError struct {
	Op     string // operation
	Source string // source identifier or API endpoint, never a credential
	Err    error  // underlying error, usually wrapping an asma error kind
}

func (e *SourceError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Source, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
