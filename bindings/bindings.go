// Package bindings maps guest imports to host symbol names.
//
// A registry is a two-level map: namespace -> field -> symbol. Registries
// only grow through Extend, which rejects a field that is already bound to
// a different symbol.
package bindings

import (
	stderrors "errors"
	"fmt"
	"sort"

	"github.com/wippyai/wasmc/errors"
)

// EnvNamespace is the namespace builtins are bound under.
const EnvNamespace = "env"

// ErrNotBound is returned by Lookup for an unknown (namespace, field).
var ErrNotBound = stderrors.New("import not bound")

// Bindings is a registry of import bindings. The zero value is empty and
// ready to use. A Bindings is not safe for concurrent mutation.
type Bindings struct {
	m map[string]map[string]string
}

// Empty returns a registry with no bindings.
func Empty() *Bindings {
	return &Bindings{m: make(map[string]map[string]string)}
}

// Env returns a registry with fields bound under the "env" namespace.
func Env(fields map[string]string) *Bindings {
	return FromMap(map[string]map[string]string{EnvNamespace: fields})
}

// FromMap copies a namespace -> field -> symbol map into a registry.
func FromMap(m map[string]map[string]string) *Bindings {
	b := Empty()
	for ns, fields := range m {
		if len(fields) == 0 {
			continue
		}
		dst := make(map[string]string, len(fields))
		for f, sym := range fields {
			dst[f] = sym
		}
		b.m[ns] = dst
	}
	return b
}

// ConflictError reports a field bound to two different symbols.
type ConflictError struct {
	Namespace string
	Field     string
	Existing  string
	Proposed  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("bindings conflict for %s/%s: already bound to %q, cannot bind to %q",
		e.Namespace, e.Field, e.Existing, e.Proposed)
}

// Is matches *errors.Error targets of kind conflict.
func (e *ConflictError) Is(target error) bool {
	t, ok := target.(*errors.Error)
	if !ok {
		return false
	}
	return t.Kind == errors.KindConflict && (t.Phase == "" || t.Phase == errors.PhaseConfigure)
}

// Extend merges other into b. Identical bindings are no-ops. If any field
// of other is bound to a different symbol in b, Extend returns a
// *ConflictError and b is left unchanged.
func (b *Bindings) Extend(other *Bindings) error {
	if other == nil {
		return nil
	}
	if err := b.checkConflicts(other); err != nil {
		return err
	}
	if b.m == nil {
		b.m = make(map[string]map[string]string)
	}
	other.Each(func(ns, field, sym string) {
		fields, ok := b.m[ns]
		if !ok {
			fields = make(map[string]string)
			b.m[ns] = fields
		}
		fields[field] = sym
	})
	return nil
}

func (b *Bindings) checkConflicts(other *Bindings) error {
	var err error
	other.Each(func(ns, field, sym string) {
		if err != nil {
			return
		}
		if existing, ok := b.get(ns, field); ok && existing != sym {
			err = &ConflictError{Namespace: ns, Field: field, Existing: existing, Proposed: sym}
		}
	})
	return err
}

func (b *Bindings) get(ns, field string) (string, bool) {
	if b == nil {
		return "", false
	}
	sym, ok := b.m[ns][field]
	return sym, ok
}

// Lookup returns the host symbol bound to (ns, field).
func (b *Bindings) Lookup(ns, field string) (string, error) {
	sym, ok := b.get(ns, field)
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrNotBound, ns, field)
	}
	return sym, nil
}

// Len returns the number of bound fields across all namespaces.
func (b *Bindings) Len() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, fields := range b.m {
		n += len(fields)
	}
	return n
}

// Namespaces returns the namespaces in sorted order.
func (b *Bindings) Namespaces() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.m))
	for ns := range b.m {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Fields returns the fields of ns in sorted order.
func (b *Bindings) Fields(ns string) []string {
	if b == nil {
		return nil
	}
	fields := b.m[ns]
	out := make([]string, 0, len(fields))
	for f := range fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Each calls fn for every binding, ordered by namespace then field.
func (b *Bindings) Each(fn func(ns, field, sym string)) {
	for _, ns := range b.Namespaces() {
		for _, f := range b.Fields(ns) {
			fn(ns, f, b.m[ns][f])
		}
	}
}

// Equal reports whether both registries hold the same bindings.
func (b *Bindings) Equal(other *Bindings) bool {
	if b.Len() != other.Len() {
		return false
	}
	equal := true
	b.Each(func(ns, field, sym string) {
		if s, ok := other.get(ns, field); !ok || s != sym {
			equal = false
		}
	})
	return equal
}

// Clone returns an independent copy.
func (b *Bindings) Clone() *Bindings {
	if b == nil {
		return Empty()
	}
	return FromMap(b.m)
}

// Filter returns the bindings for which keep returns true.
func (b *Bindings) Filter(keep func(ns, field string) bool) *Bindings {
	out := Empty()
	b.Each(func(ns, field, sym string) {
		if !keep(ns, field) {
			return
		}
		fields, ok := out.m[ns]
		if !ok {
			fields = make(map[string]string)
			out.m[ns] = fields
		}
		fields[field] = sym
	})
	return out
}

// Map returns a copy of the bindings as nested maps.
func (b *Bindings) Map() map[string]map[string]string {
	out := make(map[string]map[string]string)
	if b == nil {
		return out
	}
	for ns, fields := range b.m {
		dst := make(map[string]string, len(fields))
		for f, sym := range fields {
			dst[f] = sym
		}
		out[ns] = dst
	}
	return out
}

func (b *Bindings) String() string {
	return fmt.Sprintf("bindings(%d)", b.Len())
}
