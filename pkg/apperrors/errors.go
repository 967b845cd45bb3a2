package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrEngineSealed    = errors.New("rules engine sealed")
)

// CompileError is a fatal criteria-compilation failure. The registry tags it
// with the source file path so startup errors point at the offending YAML.
type CompileError struct {
	Path   string
	Line   string
	Reason string
}

func (e *CompileError) Error() string {
	msg := "compile criteria"
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Line != "" {
		msg += fmt.Sprintf(": line %q", e.Line)
	}
	return msg + ": " + e.Reason
}

// ConfigError is a fatal startup failure in a section or question descriptor.
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "config: " + e.Reason
	}
	return "config " + e.Path + ": " + e.Reason
}
