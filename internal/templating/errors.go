// Package templating fills the audit summary DOCX template with report data.
package templating

import "fmt"

// TemplateError represents an error opening or rendering the DOCX template.
type TemplateError struct {
	Message string
	Cause   error
}

func (e *TemplateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("template error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("template error: %s", e.Message)
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// OutputError represents a failure writing the generated document.
type OutputError struct {
	Path  string
	Cause error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("output error: failed to write %s: %v", e.Path, e.Cause)
}

func (e *OutputError) Unwrap() error {
	return e.Cause
}
