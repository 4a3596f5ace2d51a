package wasmc

import (
	"context"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasmc/bindings"
	"github.com/wippyai/wasmc/compiler"
	"github.com/wippyai/wasmc/errors"
	"github.com/wippyai/wasmc/linker"
	"github.com/wippyai/wasmc/loader"
	"github.com/wippyai/wasmc/patch"
	"github.com/wippyai/wasmc/wasm"
)

// ErrConsumed is returned by every call on a driver after an output
// operation ran.
var ErrConsumed = errors.New(errors.PhaseConfigure, errors.KindConsumed).
	Detail("driver already produced its output").
	Build()

// Driver holds one module and its compilation settings. It is not safe
// for concurrent use; independent drivers may run in parallel.
type Driver struct {
	fs       afero.Fs
	logger   *zap.Logger
	backend  compiler.Backend
	linker   linker.Linker
	module   *wasm.Module
	bindings *bindings.Bindings
	path     string
	tempRoot string
	prefix   string
	heap     compiler.HeapSettings
	opt      compiler.OptLevel
	consumed bool
}

func newDriver(opts []Option) *Driver {
	d := &Driver{
		fs:       afero.NewOsFs(),
		logger:   zap.NewNop(),
		bindings: bindings.Empty(),
		prefix:   patch.DefaultPrefix,
		heap:     compiler.DefaultHeapSettings(),
		opt:      compiler.DefaultOptLevel,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.linker == nil {
		d.linker = linker.Default.WithLogger(d.logger)
	}
	return d
}

// New loads the module at path.
func New(path string, opts ...Option) (*Driver, error) {
	d := newDriver(opts)
	m, err := loader.Load(d.fs, path)
	if err != nil {
		return nil, err
	}
	d.path = path
	d.module = m
	d.logger.Debug("module loaded",
		zap.String("path", path),
		zap.Int("imports", len(m.Imports())),
		zap.Int("funcs", m.NumFuncs()))
	return d, nil
}

// NewFromModule starts a driver from a decoded module. m is copied.
func NewFromModule(m *wasm.Module, opts ...Option) (*Driver, error) {
	if m == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "nil module")
	}
	d := newDriver(opts)
	d.module = m.Clone()
	return d, nil
}

func (d *Driver) setBindings(b *bindings.Bindings) error {
	if d.consumed {
		return ErrConsumed
	}
	if err := d.bindings.Extend(b); err != nil {
		return errors.Wrap(errors.PhaseConfigure, errors.KindConflict, err, "merge bindings")
	}
	d.logger.Debug("bindings merged", zap.Int("added", b.Len()), zap.Int("total", d.bindings.Len()))
	return nil
}

// WithBindings merges b into the driver's bindings. A field already
// bound to a different symbol fails with a conflict and leaves the
// bindings unchanged.
func (d *Driver) WithBindings(b *bindings.Bindings) error {
	return d.setBindings(b)
}

// Bindings is the chaining form of WithBindings.
func (d *Driver) Bindings(b *bindings.Bindings) (*Driver, error) {
	if err := d.setBindings(b); err != nil {
		return d, err
	}
	return d, nil
}

func (d *Driver) setBuiltins(path string) error {
	if d.consumed {
		return ErrConsumed
	}
	patched, delta, err := patch.Module(d.module, path,
		patch.WithFs(d.fs),
		patch.WithLogger(d.logger),
		patch.WithPrefix(d.prefix))
	if err != nil {
		return err
	}
	if err := d.setBindings(bindings.Env(delta)); err != nil {
		return err
	}
	d.module = patched
	d.logger.Debug("builtins patched", zap.String("path", path), zap.Int("count", len(delta)))
	return nil
}

// WithBuiltins patches the module with the builtins defined in the
// native object at path and binds the patched imports. On error the
// module and bindings are unchanged.
func (d *Driver) WithBuiltins(path string) error {
	return d.setBuiltins(path)
}

// Builtins is the chaining form of WithBuiltins.
func (d *Driver) Builtins(path string) (*Driver, error) {
	if err := d.setBuiltins(path); err != nil {
		return d, err
	}
	return d, nil
}

func (d *Driver) setOptLevel(l compiler.OptLevel) error {
	if d.consumed {
		return ErrConsumed
	}
	d.opt = l
	return nil
}

// WithOptLevel sets the optimization level. Levels are validated when
// the output is produced.
func (d *Driver) WithOptLevel(l compiler.OptLevel) error {
	return d.setOptLevel(l)
}

// OptLevel is the chaining form of WithOptLevel.
func (d *Driver) OptLevel(l compiler.OptLevel) *Driver {
	d.chained("opt level", d.setOptLevel(l))
	return d
}

// chained logs an error the chaining setters cannot return. The next
// output operation reports the same error.
func (d *Driver) chained(setting string, err error) {
	if err != nil {
		d.logger.Debug("setting ignored", zap.String("setting", setting), zap.Error(err))
	}
}

func (d *Driver) setHeap(update func(*compiler.HeapSettings)) error {
	if d.consumed {
		return ErrConsumed
	}
	update(&d.heap)
	return nil
}

// WithHeap replaces all heap settings. They are validated when the
// output is produced.
func (d *Driver) WithHeap(h compiler.HeapSettings) error {
	return d.setHeap(func(cur *compiler.HeapSettings) { *cur = h })
}

// Heap is the chaining form of WithHeap.
func (d *Driver) Heap(h compiler.HeapSettings) *Driver {
	d.chained("heap", d.WithHeap(h))
	return d
}

// WithMinReservedSize sets the minimum address space reserved for linear memory.
func (d *Driver) WithMinReservedSize(n uint64) error {
	return d.setHeap(func(h *compiler.HeapSettings) { h.MinReservedSize = n })
}

// MinReservedSize is the chaining form of WithMinReservedSize.
func (d *Driver) MinReservedSize(n uint64) *Driver {
	d.chained("min reserved size", d.WithMinReservedSize(n))
	return d
}

// WithMaxReservedSize sets the maximum address space reserved for linear memory.
func (d *Driver) WithMaxReservedSize(n uint64) error {
	return d.setHeap(func(h *compiler.HeapSettings) { h.MaxReservedSize = n })
}

// MaxReservedSize is the chaining form of WithMaxReservedSize.
func (d *Driver) MaxReservedSize(n uint64) *Driver {
	d.chained("max reserved size", d.WithMaxReservedSize(n))
	return d
}

// WithGuardSize sets the size of the guard region after linear memory.
func (d *Driver) WithGuardSize(n uint64) error {
	return d.setHeap(func(h *compiler.HeapSettings) { h.GuardSize = n })
}

// GuardSize is the chaining form of WithGuardSize.
func (d *Driver) GuardSize(n uint64) *Driver {
	d.chained("guard size", d.WithGuardSize(n))
	return d
}

// Consumed reports whether an output operation already ran.
func (d *Driver) Consumed() bool {
	return d.consumed
}

// consume marks the driver used and builds the compiler handle.
func (d *Driver) consume(ctx context.Context) (*compiler.Compiler, error) {
	if d.consumed {
		return nil, ErrConsumed
	}
	d.consumed = true

	opts := []compiler.Option{compiler.WithLogger(d.logger)}
	if d.backend != nil {
		opts = append(opts, compiler.WithBackend(d.backend))
	}
	d.logger.Debug("compiling",
		zap.Stringer("opt", d.opt),
		zap.Stringer("heap", d.heap),
		zap.Int("bindings", d.bindings.Len()))
	return compiler.New(ctx, d.module.Encode(), d.opt, d.bindings, d.heap, opts...)
}

// ObjectFile compiles the module and writes a relocatable object to
// path. The driver is consumed.
func (d *Driver) ObjectFile(ctx context.Context, path string) error {
	start := time.Now()
	c, err := d.consume(ctx)
	if err != nil {
		return err
	}
	obj, err := c.ObjectFile(ctx)
	if err != nil {
		return err
	}
	if err := obj.WriteFs(d.fs, path); err != nil {
		return err
	}
	d.logger.Debug("object written",
		zap.String("path", path),
		zap.Int("size", len(obj.Bytes())),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// ClifIR writes the textual IR of every defined function to path. The
// driver is consumed.
func (d *Driver) ClifIR(ctx context.Context, path string) error {
	c, err := d.consume(ctx)
	if err != nil {
		return err
	}
	dump, err := c.Funcs(ctx)
	if err != nil {
		return err
	}
	if err := dump.WriteFs(d.fs, path); err != nil {
		return err
	}
	d.logger.Debug("IR written", zap.String("path", path), zap.Int("funcs", len(dump.Funcs)))
	return nil
}

// SharedObjectFile compiles the module into an object inside a scratch
// directory and links it into a shared library there. The library is
// moved to path only when linking succeeds. The scratch directory is
// removed on every return. The driver is consumed.
func (d *Driver) SharedObjectFile(ctx context.Context, path string) (err error) {
	if d.consumed {
		return ErrConsumed
	}
	dir, terr := afero.TempDir(d.fs, d.tempRoot, "wasmc")
	if terr != nil {
		d.consumed = true
		return errors.IO(errors.PhaseIO, d.tempRoot, "create temp dir", terr)
	}
	defer func() {
		if rerr := d.fs.RemoveAll(dir); rerr != nil {
			err = multierr.Append(err, errors.IO(errors.PhaseIO, dir, "remove temp dir", rerr))
		}
	}()

	objPath := filepath.Join(dir, "guest.o")
	if err := d.ObjectFile(ctx, objPath); err != nil {
		return err
	}
	start := time.Now()
	soPath := filepath.Join(dir, "guest.so")
	if err := d.linker.Link(ctx, objPath, soPath); err != nil {
		return err
	}
	if err := d.install(soPath, path); err != nil {
		return err
	}
	d.logger.Debug("shared object linked",
		zap.String("path", path),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// install moves a linked library out of the scratch directory. Rename
// fails across filesystems, so the bytes are copied in that case.
func (d *Driver) install(src, dst string) error {
	if err := d.fs.Rename(src, dst); err == nil {
		return nil
	}
	data, err := afero.ReadFile(d.fs, src)
	if err != nil {
		return errors.IO(errors.PhaseLink, src, "read linked library", err)
	}
	if err := afero.WriteFile(d.fs, dst, data, 0o755); err != nil {
		return errors.IO(errors.PhaseIO, dst, "write shared object", err)
	}
	return nil
}

// State is a copy of a driver's settings.
type State struct {
	Bindings *bindings.Bindings
	Builtins map[uint32]string
	Heap     compiler.HeapSettings
	OptLevel compiler.OptLevel
	Consumed bool
}

// Snapshot returns a copy of the current settings.
func (d *Driver) Snapshot() State {
	return State{
		Bindings: d.bindings.Clone(),
		Builtins: d.builtinSlots(),
		Heap:     d.heap,
		OptLevel: d.opt,
		Consumed: d.consumed,
	}
}

// builtinSlots returns the module's builtin slots whose import is bound
// to the same symbol. Slots without such a binding do not resolve.
func (d *Driver) builtinSlots() map[uint32]string {
	recorded := d.module.Builtins()
	out := make(map[uint32]string, len(recorded))
	for _, fi := range d.module.FuncImports() {
		slot, ok := recorded[fi.FuncIdx]
		if !ok {
			continue
		}
		if sym, err := d.bindings.Lookup(fi.Module, fi.Name); err == nil && sym == slot {
			out[fi.FuncIdx] = slot
		}
	}
	return out
}

// Import describes one module import and how it will be resolved.
type Import struct {
	Namespace string
	Field     string
	Kind      string
	Type      string
	Symbol    string // empty when unresolved or not a function
	Builtin   bool
}

// Resolved reports whether a function import has a host symbol.
func (i Import) Resolved() bool {
	return i.Symbol != ""
}

// Imports lists the module's imports in declaration order.
func (d *Driver) Imports() []Import {
	funcs := make(map[string]wasm.FuncImport)
	for _, fi := range d.module.FuncImports() {
		funcs[fi.Key()] = fi
	}
	slots := d.builtinSlots()

	out := make([]Import, 0, len(d.module.Imports()))
	for _, imp := range d.module.Imports() {
		entry := Import{Namespace: imp.Module, Field: imp.Name, Kind: imp.KindName()}
		if fi, ok := funcs[imp.Key()]; ok && imp.Kind == wasm.KindFunc {
			entry.Type = fi.Type.String()
			if sym, ok := slots[fi.FuncIdx]; ok {
				entry.Symbol = sym
				entry.Builtin = true
			} else if sym, err := d.bindings.Lookup(imp.Module, imp.Name); err == nil {
				entry.Symbol = sym
			}
		}
		out = append(out, entry)
	}
	return out
}
