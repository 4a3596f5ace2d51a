package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Phase indicates which pipeline step produced the error
type Phase string

const (
	PhaseConfigure Phase = "configure" // driver configuration
	PhaseLoad      Phase = "load"      // module ingestion
	PhasePatch     Phase = "patch"     // builtin patching
	PhaseCompile   Phase = "compile"   // backend compilation
	PhaseEmit      Phase = "emit"      // object or IR emission
	PhaseIO        Phase = "io"        // artifact writes
	PhaseLink      Phase = "link"      // shared library linking
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindInvalidData       Kind = "invalid_data"
	KindUnsupported       Kind = "unsupported"
	KindConflict          Kind = "conflict"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindArtifactRead      Kind = "artifact_read"
	KindInvalidHeap       Kind = "invalid_heap"
	KindSerialize         Kind = "serialize"
	KindBackend           Kind = "backend"
	KindIREmit            Kind = "ir_emit"
	KindIO                Kind = "io"
	KindLink              Kind = "link"
	KindConsumed          Kind = "consumed"
	KindUnresolvedImport  Kind = "unresolved_import"
	KindInvalidInput      Kind = "invalid_input"
)

// Error is the structured error type used throughout wasmc
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "/"))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location of the failure (file path or namespace/field)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// PhaseOf returns the phase of the first *Error in err's chain, or "".
func PhaseOf(err error) Phase {
	var e *Error
	if errors.As(err, &e) {
		return e.Phase
	}
	return ""
}

// IsConfiguration reports whether err belongs to the configuration class:
// errors raised while loading, patching or configuring a driver, plus
// invalid heap settings detected when the compiler is constructed.
func IsConfiguration(err error) bool {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindConsumed {
		return false
	}
	switch e.Phase {
	case PhaseConfigure, PhaseLoad, PhasePatch:
		return true
	}
	return e.Kind == KindInvalidHeap
}

// Convenience constructors for common error patterns

// NotFound creates a file-not-found error
func NotFound(phase Phase, path string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Path:   []string{path},
		Detail: "file not found",
		Cause:  cause,
	}
}

// IO creates an I/O error for the given path
func IO(phase Phase, path, op string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindIO,
		Path:   []string{path},
		Detail: op,
		Cause:  cause,
	}
}

// Unsupported creates an unsupported feature error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// InvalidHeap creates a heap settings error
func InvalidHeap(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseConfigure,
		Kind:   KindInvalidHeap,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// UnresolvedImport is a single function import with no host symbol
type UnresolvedImport struct {
	Namespace string
	Field     string
}

// UnresolvedImportsError is returned by the backend when function imports
// are neither bound nor patched.
type UnresolvedImportsError struct {
	Imports []UnresolvedImport
}

// NewUnresolvedImportsError creates an error from "namespace/field" keys
func NewUnresolvedImportsError(keys []string) *UnresolvedImportsError {
	result := &UnresolvedImportsError{
		Imports: make([]UnresolvedImport, 0, len(keys)),
	}
	for _, key := range keys {
		ns, field := parseImportKey(key)
		result.Imports = append(result.Imports, UnresolvedImport{
			Namespace: ns,
			Field:     field,
		})
	}
	return result
}

func parseImportKey(key string) (namespace, field string) {
	ns, f, found := strings.Cut(key, "/")
	if found {
		return ns, f
	}
	return key, ""
}

func (e *UnresolvedImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[compile] unresolved_import: no imports specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[compile] unresolved_import: %d function import(s) have no binding:\n", len(e.Imports))

	byNS := make(map[string][]string)
	var nsOrder []string
	for _, imp := range e.Imports {
		if _, exists := byNS[imp.Namespace]; !exists {
			nsOrder = append(nsOrder, imp.Namespace)
		}
		byNS[imp.Namespace] = append(byNS[imp.Namespace], imp.Field)
	}
	sort.Strings(nsOrder)

	for _, ns := range nsOrder {
		b.WriteString("\n  ")
		b.WriteString(ns)
		b.WriteString(":\n")
		for _, f := range byNS[ns] {
			b.WriteString("    - ")
			b.WriteString(f)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is matches other UnresolvedImportsError values and the
// compile/unresolved_import kind.
func (e *UnresolvedImportsError) Is(target error) bool {
	switch t := target.(type) {
	case *UnresolvedImportsError:
		return true
	case *Error:
		return t.Kind == KindUnresolvedImport && (t.Phase == "" || t.Phase == PhaseCompile)
	}
	return false
}
