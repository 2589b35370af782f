package types

import "fmt"

// ParseError reports malformed inventory or playbook input. It is fatal: the
// CLI aborts before any host is touched.
type ParseError struct {
	Source string // file path or logical source name
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
