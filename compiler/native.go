package compiler

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasmc/errors"
	"github.com/wippyai/wasmc/object"
	"github.com/wippyai/wasmc/wasm"
)

// metaVersion is the layout version of the guest_module_meta record.
const metaVersion = 1

// Native is the default backend. It validates modules with wazero and
// emits an ELF64 object that embeds the module, the function bodies, an
// import table relocated against the bound host symbols, and the heap
// layout record.
type Native struct {
	hostErr error
	machine object.Machine
}

var _ Backend = (*Native)(nil)

// NewNative returns a backend targeting the host machine.
func NewNative() *Native {
	m, err := object.HostMachine()
	return &Native{machine: m, hostErr: err}
}

// NewNativeFor returns a backend targeting machine.
func NewNativeFor(machine object.Machine) *Native {
	return &Native{machine: machine}
}

func (n *Native) Name() string { return "native-" + n.machine.String() }

// Check compiles the module with wazero's interpreter, which performs full
// validation, with the memory limit derived from the heap settings.
func (n *Native) Check(ctx context.Context, c *Compiler) error {
	if n.hostErr != nil {
		return errors.Wrap(errors.PhaseCompile, errors.KindUnsupported, n.hostErr, "select target")
	}

	cfg := wazero.NewRuntimeConfigInterpreter().WithCoreFeatures(api.CoreFeaturesV2)
	if pages := c.heap.limitPages(); pages >= 1 {
		cfg = cfg.WithMemoryLimitPages(pages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	defer rt.Close(ctx)

	cm, err := rt.CompileModule(ctx, c.raw)
	if err != nil {
		return errors.Wrap(errors.PhaseCompile, errors.KindBackend, err, "validate module")
	}
	defer cm.Close(ctx)

	c.logger.Debug("module validated",
		zap.Int("exported_functions", len(cm.ExportedFunctions())),
		zap.Int("imported_functions", len(cm.ImportedFunctions())))
	return nil
}

// Object lays out the relocatable object.
func (n *Native) Object(ctx context.Context, c *Compiler) (*ObjectFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := c.module
	b := object.NewBuilder(n.machine)
	var defined []string
	define := func(name string, sec int, off, size uint64, kind object.SymbolKind) error {
		if err := b.Define(name, sec, off, size, kind); err != nil {
			return errors.Wrap(errors.PhaseEmit, errors.KindBackend, err, "define symbol")
		}
		defined = append(defined, name)
		return nil
	}

	b.AddSection(".text", object.FlagAlloc|object.FlagExec, 16, nil)

	modBytes, err := n.embeddedModule(c)
	if err != nil {
		return nil, err
	}
	padded := alignUp(uint64(len(modBytes)), 8)
	wasmData := make([]byte, padded+8)
	copy(wasmData, modBytes)
	binary.LittleEndian.PutUint64(wasmData[padded:], uint64(len(modBytes)))
	wasmSec := b.AddSection(".rodata.wasm", object.FlagAlloc, 8, wasmData)
	if err := define(SymModule, wasmSec, 0, uint64(len(modBytes)), object.KindObject); err != nil {
		return nil, err
	}
	if err := define(SymModuleSize, wasmSec, padded, 8, object.KindObject); err != nil {
		return nil, err
	}

	if err := n.emitFuncs(b, m, define); err != nil {
		return nil, err
	}

	if len(c.imports) > 0 {
		table := b.AddSection(".data.rel.imports", object.FlagAlloc|object.FlagWrite, 8, make([]byte, 8*len(c.imports)))
		if err := define(SymImports, table, 0, uint64(8*len(c.imports)), object.KindObject); err != nil {
			return nil, err
		}
		for i, ib := range c.imports {
			if err := b.Reloc(table, uint64(8*i), ib.Symbol, 0); err != nil {
				return nil, errors.Wrap(errors.PhaseEmit, errors.KindBackend, err, "relocate import "+ib.Key())
			}
		}
	}

	heapSec := b.AddSection(".rodata.heap", object.FlagAlloc, 8, heapSpec(c))
	if err := define(SymHeapSpec, heapSec, 0, 40, object.KindObject); err != nil {
		return nil, err
	}
	metaSec := b.AddSection(".rodata.meta", object.FlagAlloc, 8, moduleMeta(c))
	if err := define(SymMeta, metaSec, 0, 32, object.KindObject); err != nil {
		return nil, err
	}
	b.AddNote(".note.GNU-stack")

	return NewObjectFile(b.Bytes(), n.machine, defined), nil
}

// embeddedModule drops custom sections other than the builtins record
// when optimizing for size.
func (n *Native) embeddedModule(c *Compiler) ([]byte, error) {
	if c.opt != OptSpeedAndSize {
		return c.module.Encode(), nil
	}
	m := c.module.Clone()
	m.StripCustomSections(func(name string) bool { return name == wasm.CustomSectionBuiltins })
	return m.Encode(), nil
}

func (n *Native) emitFuncs(b *object.Builder, m *wasm.Module, define func(string, int, uint64, uint64, object.SymbolKind) error) error {
	code := m.Code()
	if len(code) == 0 {
		return nil
	}
	var data []byte
	offsets := make([]uint64, len(code))
	for i, body := range code {
		offsets[i] = uint64(len(data))
		data = append(data, body.Code...)
	}
	sec := b.AddSection(".rodata.guest", object.FlagAlloc, 16, data)

	numImported := uint32(m.NumImportedFuncs())
	for i, body := range code {
		idx := numImported + uint32(i)
		size := uint64(len(body.Code))
		names := m.ExportNames(idx)
		if len(names) == 0 {
			if err := define(InternalFuncSymbol(idx), sec, offsets[i], size, object.KindObject); err != nil {
				return err
			}
			continue
		}
		for _, name := range names {
			if err := define(FuncSymbol(name), sec, offsets[i], size, object.KindObject); err != nil {
				return err
			}
		}
	}
	return nil
}

// heapSpec is five little-endian u64: min reserved, max reserved, guard,
// initial memory and declared maximum memory in bytes (0 when absent).
func heapSpec(c *Compiler) []byte {
	out := make([]byte, 40)
	le := binary.LittleEndian
	le.PutUint64(out[0:], c.heap.MinReservedSize)
	le.PutUint64(out[8:], c.heap.MaxReservedSize)
	le.PutUint64(out[16:], c.heap.GuardSize)
	if mem, ok := c.module.Memory(); ok {
		le.PutUint64(out[24:], mem.Limits.Min*wasm.PageSize)
		if mem.Limits.Max != nil {
			le.PutUint64(out[32:], *mem.Limits.Max*wasm.PageSize)
		}
	}
	return out
}

// Meta flags.
const (
	metaHasMemory      = 1 << 0
	metaImportedMemory = 1 << 1
	metaHasStart       = 1 << 2
)

// moduleMeta is eight little-endian u32: layout version, opt level,
// imported functions, defined functions, exports, builtins, flags and
// start function index.
func moduleMeta(c *Compiler) []byte {
	m := c.module
	var flags, start uint32
	if _, ok := m.Memory(); ok {
		flags |= metaHasMemory
	}
	for _, imp := range m.Imports() {
		if imp.Kind == wasm.KindMemory {
			flags |= metaImportedMemory
		}
	}
	if idx, ok := m.Start(); ok {
		flags |= metaHasStart
		start = idx
	}
	var builtins uint32
	for _, ib := range c.imports {
		if ib.Builtin {
			builtins++
		}
	}

	out := make([]byte, 32)
	le := binary.LittleEndian
	le.PutUint32(out[0:], metaVersion)
	le.PutUint32(out[4:], uint32(c.opt))
	le.PutUint32(out[8:], uint32(m.NumImportedFuncs()))
	le.PutUint32(out[12:], uint32(len(m.Code())))
	le.PutUint32(out[16:], uint32(len(m.Exports())))
	le.PutUint32(out[20:], builtins)
	le.PutUint32(out[24:], flags)
	le.PutUint32(out[28:], start)
	return out
}

// Funcs renders each defined function as indented instruction text.
func (n *Native) Funcs(ctx context.Context, c *Compiler) (*IRDump, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := c.module
	callees := make(map[uint32]ImportBinding, len(c.imports))
	for _, ib := range c.imports {
		callees[ib.FuncIdx] = ib
	}

	numImported := uint32(m.NumImportedFuncs())
	dump := &IRDump{}
	for i, body := range m.Code() {
		idx := numImported + uint32(i)
		name := InternalFuncSymbol(idx)
		if names := m.ExportNames(idx); len(names) > 0 {
			name = FuncSymbol(names[0])
		}
		ins, err := wasm.DecodeInstructions(body.Code)
		if err != nil {
			return nil, errors.New(errors.PhaseEmit, errors.KindIREmit).
				Path(name).
				Detail("decode function %d", idx).
				Cause(err).
				Build()
		}
		ft, _ := m.FuncType(idx)
		dump.Funcs = append(dump.Funcs, FuncIR{
			Name:  name,
			Index: idx,
			Body:  renderFunc(name, idx, ft, body.Locals, ins, callees),
		})
	}
	return dump, nil
}

func renderFunc(name string, idx uint32, ft wasm.FuncType, locals []wasm.LocalEntry, ins []wasm.Instruction, callees map[uint32]ImportBinding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "function %s%s { ; index %d\n", name, ft, idx)
	for _, l := range locals {
		fmt.Fprintf(&b, "    ; local %s x %d\n", l.Type, l.Count)
	}
	depth := 1
	for _, in := range ins {
		if in.Opcode == wasm.OpEnd || in.Opcode == wasm.OpElse {
			depth--
		}
		if depth < 0 {
			depth = 0
		}
		fmt.Fprintf(&b, "%04x:%s%s", in.Offset, strings.Repeat("    ", depth+1), in)
		if target, ok := in.CallTarget(); ok {
			if ib, ok := callees[target]; ok {
				fmt.Fprintf(&b, " ; %s -> %s", ib.Key(), ib.Symbol)
			}
		}
		b.WriteByte('\n')
		switch in.Opcode {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf, wasm.OpElse:
			depth++
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
