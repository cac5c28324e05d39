package models

import (
	"errors"
	"fmt"
)

var (
	ErrExtraction          = errors.New("text extraction failed")
	ErrRasterization       = errors.New("rasterization failed")
	ErrToolTimeout         = errors.New("external tool timed out")
	ErrToolNotFound        = errors.New("external tool not found")
	ErrMalformedNumber     = errors.New("malformed number")
	ErrUnrecognizedCarrier = errors.New("unrecognized carrier")
)

// ToolError describes a failed external tool invocation on one file.
// Kind is one of the sentinels above and is matched by errors.Is.
type ToolError struct {
	Tool   string
	Path   string
	Kind   error
	Err    error
	Stderr string
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %s on %s", e.Kind, e.Tool, e.Path)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += " (" + e.Stderr + ")"
	}
	return msg
}

func (e *ToolError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
