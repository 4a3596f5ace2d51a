// Package patch resolves guest imports to host builtins.
//
// A builtins artifact is a native object defining functions named
// <prefix><field>. Every "env" function import whose field has a matching
// definition becomes a builtin slot of the module: the import stays in
// place (function indices do not move) and the slot is recorded in the
// "wasmc.builtins" custom section. The caller binds the returned
// field -> symbol map under the "env" namespace.
package patch

import (
	stderrors "errors"
	"io/fs"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/wippyai/wasmc/bindings"
	"github.com/wippyai/wasmc/errors"
	"github.com/wippyai/wasmc/object"
	"github.com/wippyai/wasmc/wasm"
)

// DefaultPrefix is prepended to an import field to form the builtin symbol.
const DefaultPrefix = "host_"

type options struct {
	fs     afero.Fs
	logger *zap.Logger
	prefix string
}

// Option configures patching.
type Option func(*options)

// WithPrefix changes the builtin symbol prefix.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithFs reads the artifact from fsys instead of the OS filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(o *options) { o.fs = fsys }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(opts []Option) options {
	o := options{fs: afero.NewOsFs(), logger: zap.NewNop(), prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Module patches m with the builtins defined in the object at path. m is
// not modified; the patched copy and the field -> symbol delta are
// returned.
func Module(m *wasm.Module, path string, opts ...Option) (*wasm.Module, map[string]string, error) {
	o := newOptions(opts)

	f, err := o.fs.Open(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, nil, errors.NotFound(errors.PhasePatch, path, err)
		}
		return nil, nil, artifactError(path, err)
	}
	defer f.Close()

	syms, format, err := object.ReadSymbols(f)
	if err != nil {
		return nil, nil, artifactError(path, err)
	}
	o.logger.Debug("read builtins artifact",
		zap.String("path", path),
		zap.Stringer("format", format),
		zap.Int("symbols", len(syms)))

	return apply(m, syms, o)
}

// Apply patches m with already read symbols.
func Apply(m *wasm.Module, syms []object.Symbol, opts ...Option) (*wasm.Module, map[string]string, error) {
	return apply(m, syms, newOptions(opts))
}

func apply(m *wasm.Module, syms []object.Symbol, o options) (*wasm.Module, map[string]string, error) {
	defined := object.DefinedFuncs(syms)
	out := m.Clone()
	slots := out.Builtins()
	delta := make(map[string]string)

	for _, fi := range out.FuncImports() {
		if fi.Module != bindings.EnvNamespace {
			continue
		}
		sym := o.prefix + fi.Name
		if _, ok := defined[sym]; !ok {
			continue
		}
		if want, ok := knownSignatures[fi.Name]; ok && !want.Equal(fi.Type) {
			return nil, nil, errors.New(errors.PhasePatch, errors.KindSignatureMismatch).
				Path(fi.Module, fi.Name).
				Detail("builtin %s expects %s, import has %s", sym, want, fi.Type).
				Build()
		}
		slots[fi.FuncIdx] = sym
		delta[fi.Name] = sym
	}

	if len(delta) == 0 {
		o.logger.Debug("no builtins matched")
		return out, delta, nil
	}
	if err := out.SetBuiltins(slots); err != nil {
		return nil, nil, errors.Wrap(errors.PhasePatch, errors.KindInvalidData, err, "record builtins")
	}
	o.logger.Debug("patched builtins", zap.Int("count", len(delta)))
	return out, delta, nil
}

func artifactError(path string, cause error) error {
	return errors.New(errors.PhasePatch, errors.KindArtifactRead).
		Path(path).
		Detail("read builtins artifact").
		Cause(cause).
		Build()
}
