package compiler

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasmc/bindings"
	"github.com/wippyai/wasmc/errors"
	"github.com/wippyai/wasmc/wasm"
)

// Backend generates code for a prepared compilation.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string
	// Check validates the module beyond its structure. It runs once, when
	// the Compiler is created.
	Check(ctx context.Context, c *Compiler) error
	// Object produces a relocatable object.
	Object(ctx context.Context, c *Compiler) (*ObjectFile, error)
	// Funcs produces the per-function IR.
	Funcs(ctx context.Context, c *Compiler) (*IRDump, error)
}

// ImportBinding is a function import and the host symbol it resolves to.
type ImportBinding struct {
	wasm.FuncImport
	Symbol  string
	Builtin bool
}

// Compiler holds one validated compilation unit. It is read-only once
// created.
type Compiler struct {
	backend  Backend
	logger   *zap.Logger
	module   *wasm.Module
	bindings *bindings.Bindings
	raw      []byte
	imports  []ImportBinding
	heap     HeapSettings
	opt      OptLevel
}

type options struct {
	backend Backend
	logger  *zap.Logger
}

// Option configures New.
type Option func(*options)

// WithBackend replaces the default Native backend.
func WithBackend(b Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New prepares a compilation of the serialized module.
//
// Heap settings are validated first. The registry b is narrowed to the
// module's function imports; bindings for absent imports are dropped and
// logged at debug level. Every function import must resolve to a binding.
// A builtin slot recorded in the module only marks an import whose binding
// names the same symbol; a slot with no matching binding resolves nothing.
func New(ctx context.Context, module []byte, opt OptLevel, b *bindings.Bindings, heap HeapSettings, opts ...Option) (*Compiler, error) {
	o := options{logger: zap.NewNop()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.backend == nil {
		o.backend = NewNative()
	}

	if !opt.Valid() {
		return nil, errors.InvalidInput(errors.PhaseConfigure, "invalid optimization level "+opt.String())
	}
	if err := heap.Validate(); err != nil {
		return nil, err
	}

	m, err := wasm.ParseModule(module)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCompile, errors.KindBackend, err, "decode module")
	}
	if mem, ok := m.Memory(); ok {
		if err := heap.checkMemory(mem); err != nil {
			return nil, err
		}
	}

	c := &Compiler{
		backend: o.backend,
		logger:  o.logger.With(zap.String("backend", o.backend.Name())),
		module:  m,
		raw:     module,
		heap:    heap,
		opt:     opt,
	}
	if err := c.resolveImports(b); err != nil {
		return nil, err
	}

	start := time.Now()
	if err := c.backend.Check(ctx, c); err != nil {
		return nil, backendError(err, "check module")
	}
	c.logger.Debug("compiler ready",
		zap.Stringer("opt_level", opt),
		zap.Stringer("heap", heap),
		zap.Int("functions", m.NumFuncs()),
		zap.Int("imports", len(c.imports)),
		zap.Duration("check", time.Since(start)))
	return c, nil
}

func (c *Compiler) resolveImports(b *bindings.Bindings) error {
	builtins := c.module.Builtins()
	used := make(map[string]bool)
	var unresolved []string

	for _, fi := range c.module.FuncImports() {
		ib := ImportBinding{FuncImport: fi}
		sym, err := b.Lookup(fi.Module, fi.Name)
		if err != nil {
			if slot, ok := builtins[fi.FuncIdx]; ok {
				c.logger.Debug("builtin slot without binding",
					zap.String("import", fi.Key()), zap.String("symbol", slot))
			}
			unresolved = append(unresolved, fi.Key())
			continue
		}
		ib.Symbol = sym
		if slot, ok := builtins[fi.FuncIdx]; ok {
			if slot != sym {
				return errors.InvalidData(errors.PhaseCompile, []string{fi.Key()},
					fmt.Sprintf("builtin slot %d names %q but the import is bound to %q", fi.FuncIdx, slot, sym))
			}
			ib.Builtin = true
		}
		used[fi.Key()] = true
		c.imports = append(c.imports, ib)
	}
	if len(unresolved) > 0 {
		return errors.NewUnresolvedImportsError(unresolved)
	}

	c.bindings = b.Filter(func(ns, field string) bool {
		if used[ns+"/"+field] {
			return true
		}
		c.logger.Debug("binding not used by module", zap.String("import", ns+"/"+field))
		return false
	})
	return nil
}

// Module returns the decoded module.
func (c *Compiler) Module() *wasm.Module { return c.module }

// ModuleBytes returns the serialized module the compiler was created from.
func (c *Compiler) ModuleBytes() []byte { return c.raw }

// OptLevel returns the optimization level.
func (c *Compiler) OptLevel() OptLevel { return c.opt }

// Heap returns the heap settings.
func (c *Compiler) Heap() HeapSettings { return c.heap }

// Bindings returns the bindings narrowed to the module's imports.
func (c *Compiler) Bindings() *bindings.Bindings { return c.bindings }

// Imports returns every function import with its host symbol, in import
// order.
func (c *Compiler) Imports() []ImportBinding { return c.imports }

// Logger returns the compiler's logger.
func (c *Compiler) Logger() *zap.Logger { return c.logger }

// ObjectFile compiles the unit to a relocatable object.
func (c *Compiler) ObjectFile(ctx context.Context) (*ObjectFile, error) {
	start := time.Now()
	obj, err := c.backend.Object(ctx, c)
	if err != nil {
		return nil, backendError(err, "emit object")
	}
	c.logger.Debug("object emitted",
		zap.Int("bytes", len(obj.Bytes())),
		zap.Duration("elapsed", time.Since(start)))
	return obj, nil
}

// Funcs renders the per-function IR.
func (c *Compiler) Funcs(ctx context.Context) (*IRDump, error) {
	dump, err := c.backend.Funcs(ctx, c)
	if err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) {
			return nil, err
		}
		return nil, errors.Wrap(errors.PhaseEmit, errors.KindIREmit, err, "render IR")
	}
	return dump, nil
}

// backendError keeps structured errors and wraps anything else as a
// backend failure.
func backendError(err error, detail string) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return err
	}
	var u *errors.UnresolvedImportsError
	if stderrors.As(err, &u) {
		return err
	}
	return errors.Wrap(errors.PhaseCompile, errors.KindBackend, err, detail)
}
