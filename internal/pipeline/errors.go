package pipeline

import "fmt"

// DefinitionError signals a malformed or empty pipeline definition. It is
// raised before any workspace or stage work occurs.
type DefinitionError struct {
	Message string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid pipeline definition: %s", e.Message)
}

func NewDefinitionError(format string, args ...any) *DefinitionError {
	return &DefinitionError{Message: fmt.Sprintf(format, args...)}
}
