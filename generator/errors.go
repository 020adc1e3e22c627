package generator

import (
	"errors"
	"fmt"
)

// ErrFatal marks failures that end a pipeline run outright. Everything else degrades
// into error markers or default values.
var ErrFatal = errors.New("fatal pipeline error")

// ValidationError 缺少必填输入，流水线不会启动。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func fatalf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFatal, fmt.Sprintf(format, args...))
}
