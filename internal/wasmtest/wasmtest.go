// Package wasmtest assembles small WebAssembly binaries for tests.
package wasmtest

// Value types.
const (
	I32 byte = 0x7F
	I64 byte = 0x7E
	F32 byte = 0x7D
	F64 byte = 0x7C
)

type funcType struct {
	params, results []byte
}

type importEntry struct {
	module, name string
	desc         []byte
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type function struct {
	locals []byte
	body   []byte
	typ    uint32
}

type custom struct {
	name string
	data []byte
}

// Module is a module under construction. Imports must be added before
// defined functions so indices stay stable.
type Module struct {
	start     *uint32
	types     []funcType
	imports   []importEntry
	funcs     []function
	memories  [][]byte
	exports   []export
	customs   []custom
	numFuncIm uint32
}

// New returns an empty module.
func New() *Module {
	return &Module{}
}

// Type interns a function type and returns its index.
func (m *Module) Type(params, results []byte) uint32 {
	for i, t := range m.types {
		if string(t.params) == string(params) && string(t.results) == string(results) {
			return uint32(i)
		}
	}
	m.types = append(m.types, funcType{params: params, results: results})
	return uint32(len(m.types) - 1)
}

// ImportFunc adds a function import and returns its function index.
func (m *Module) ImportFunc(module, name string, params, results []byte) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmtest: imports must precede defined functions")
	}
	t := m.Type(params, results)
	m.imports = append(m.imports, importEntry{module: module, name: name, desc: append([]byte{0x00}, uleb(uint64(t))...)})
	m.numFuncIm++
	return m.numFuncIm - 1
}

// ImportMemory adds a memory import with the given page limits; hi < 0
// means unbounded.
func (m *Module) ImportMemory(module, name string, lo uint32, hi int64) {
	m.imports = append(m.imports, importEntry{module: module, name: name, desc: append([]byte{0x02}, limits(lo, hi)...)})
}

// ImportGlobal adds an immutable global import.
func (m *Module) ImportGlobal(module, name string, typ byte) {
	m.imports = append(m.imports, importEntry{module: module, name: name, desc: []byte{0x03, typ, 0x00}})
}

// Memory defines a memory with the given page limits; hi < 0 means
// unbounded.
func (m *Module) Memory(lo uint32, hi int64) {
	m.memories = append(m.memories, limits(lo, hi))
}

// Func defines a function. body is the instruction stream without the
// trailing end opcode; locals lists one value type per local.
func (m *Module) Func(params, results, locals, body []byte) uint32 {
	t := m.Type(params, results)
	m.funcs = append(m.funcs, function{typ: t, locals: locals, body: body})
	return m.numFuncIm + uint32(len(m.funcs)-1)
}

// Export exports the function at idx.
func (m *Module) Export(name string, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: 0x00, idx: idx})
}

// ExportMemory exports the memory at idx.
func (m *Module) ExportMemory(name string, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: 0x02, idx: idx})
}

// Start sets the start function.
func (m *Module) Start(idx uint32) {
	m.start = &idx
}

// Custom appends a custom section.
func (m *Module) Custom(name string, data []byte) {
	m.customs = append(m.customs, custom{name: name, data: data})
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

	if len(m.types) > 0 {
		var p []byte
		p = append(p, uleb(uint64(len(m.types)))...)
		for _, t := range m.types {
			p = append(p, 0x60)
			p = append(p, vec(t.params)...)
			p = append(p, vec(t.results)...)
		}
		out = section(out, 1, p)
	}
	if len(m.imports) > 0 {
		p := uleb(uint64(len(m.imports)))
		for _, imp := range m.imports {
			p = append(p, encName(imp.module)...)
			p = append(p, encName(imp.name)...)
			p = append(p, imp.desc...)
		}
		out = section(out, 2, p)
	}
	if len(m.funcs) > 0 {
		p := uleb(uint64(len(m.funcs)))
		for _, f := range m.funcs {
			p = append(p, uleb(uint64(f.typ))...)
		}
		out = section(out, 3, p)
	}
	if len(m.memories) > 0 {
		p := uleb(uint64(len(m.memories)))
		for _, l := range m.memories {
			p = append(p, l...)
		}
		out = section(out, 5, p)
	}
	if len(m.exports) > 0 {
		p := uleb(uint64(len(m.exports)))
		for _, e := range m.exports {
			p = append(p, encName(e.name)...)
			p = append(p, e.kind)
			p = append(p, uleb(uint64(e.idx))...)
		}
		out = section(out, 7, p)
	}
	if m.start != nil {
		out = section(out, 8, uleb(uint64(*m.start)))
	}
	if len(m.funcs) > 0 {
		p := uleb(uint64(len(m.funcs)))
		for _, f := range m.funcs {
			var body []byte
			body = append(body, uleb(uint64(len(f.locals)))...)
			for _, l := range f.locals {
				body = append(body, 0x01, l)
			}
			body = append(body, f.body...)
			body = append(body, 0x0B)
			p = append(p, uleb(uint64(len(body)))...)
			p = append(p, body...)
		}
		out = section(out, 10, p)
	}
	for _, c := range m.customs {
		p := encName(c.name)
		p = append(p, c.data...)
		out = section(out, 0, p)
	}
	return out
}

// Add returns a module exporting add: (i32, i32) -> i32.
func Add() []byte {
	m := New()
	idx := m.Func([]byte{I32, I32}, []byte{I32}, nil, []byte{
		0x20, 0x00, // local.get 0
		0x20, 0x01, // local.get 1
		0x6A, // i32.add
	})
	m.Export("add", idx)
	return m.Bytes()
}

// Sqrt returns a module importing env.sqrt: (f64) -> f64 and exporting
// root, which calls it.
func Sqrt() []byte {
	m := New()
	sqrt := m.ImportFunc("env", "sqrt", []byte{F64}, []byte{F64})
	idx := m.Func([]byte{F64}, []byte{F64}, nil, []byte{
		0x20, 0x00, // local.get 0
		0x10, byte(sqrt), // call sqrt
	})
	m.Export("root", idx)
	m.Memory(1, -1)
	m.ExportMemory("memory", 0)
	return m.Bytes()
}

// Print returns a module importing env.print: (i32) -> () and exporting
// run, which calls it.
func Print() []byte {
	m := New()
	p := m.ImportFunc("env", "print", []byte{I32}, nil)
	idx := m.Func(nil, nil, nil, []byte{
		0x41, 0x2A, // i32.const 42
		0x10, byte(p), // call print
	})
	m.Export("run", idx)
	return m.Bytes()
}

func section(out []byte, id byte, payload []byte) []byte {
	out = append(out, id)
	out = append(out, uleb(uint64(len(payload)))...)
	return append(out, payload...)
}

func limits(lo uint32, hi int64) []byte {
	if hi < 0 {
		return append([]byte{0x00}, uleb(uint64(lo))...)
	}
	out := append([]byte{0x01}, uleb(uint64(lo))...)
	return append(out, uleb(uint64(hi))...)
}

func vec(b []byte) []byte {
	return append(uleb(uint64(len(b))), b...)
}

func encName(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}
