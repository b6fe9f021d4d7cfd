package glpatch

import (
	"errors"
	"strings"
)

// ErrorKind classifies structural errors found while wiring or linking a
// patch. Kinds are errors themselves so callers can test for them with errors.Is.
type ErrorKind uint8

const (
	_ ErrorKind = iota
	// ErrUnknownPort is returned when a link names a port the shader does not
	// declare, usually after the shader source was edited (schema drift).
	ErrUnknownPort
	// ErrChannelCycle is returned when channel resolution revisits an
	// instance that is still being resolved.
	ErrChannelCycle
	ErrMissingShader
	ErrMissingInstance
	ErrMissingDataSource
	ErrMissingPatch
	// ErrNoRoot is returned when no instance produces the requested channel
	// and content type.
	ErrNoRoot
	// ErrShaderSource wraps GLSL analysis failures.
	ErrShaderSource
	// ErrStructConflict is returned when two shaders declare different
	// structs under the same shared name.
	ErrStructConflict
	// ErrSinkType is returned when the root output cannot be converted to
	// the sink type.
	ErrSinkType
)

func (k ErrorKind) Error() string {
	switch k {
	case ErrUnknownPort:
		return "unknown port"
	case ErrChannelCycle:
		return "channel cycle"
	case ErrMissingShader:
		return "missing shader"
	case ErrMissingInstance:
		return "missing shader instance"
	case ErrMissingDataSource:
		return "missing data source"
	case ErrMissingPatch:
		return "missing patch"
	case ErrNoRoot:
		return "no shader produces requested output"
	case ErrShaderSource:
		return "shader source error"
	case ErrStructConflict:
		return "conflicting struct declarations"
	case ErrSinkType:
		return "output not convertible to sink type"
	}
	return "unknown error kind"
}

// LinkError is a structural error located at an instance and port.
type LinkError struct {
	Kind     ErrorKind
	Instance string
	Port     string
	Detail   string
	Err      error
}

func (e *LinkError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.Instance != "" {
		sb.WriteString(" at ")
		sb.WriteString(e.Instance)
		if e.Port != "" {
			sb.WriteByte('.')
			sb.WriteString(e.Port)
		}
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *LinkError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func linkErr(kind ErrorKind, instance, port, detail string) error {
	return &LinkError{Kind: kind, Instance: instance, Port: port, Detail: detail}
}

// KindOf returns the ErrorKind err carries, or zero.
func KindOf(err error) ErrorKind {
	var le *LinkError
	if errors.As(err, &le) {
		return le.Kind
	}
	return 0
}
