package wasm

import (
	"strings"
)

// Module is a decoded WebAssembly module.
//
// The module retains every section's original bytes; the decoded views
// (types, imports, exports, ...) are derived from them and are read-only.
// Encode reproduces the input byte-for-byte unless a custom section was
// replaced through SetCustomSection or SetBuiltins.
type Module struct {
	sections []Section

	types    []FuncType
	imports  []Import
	funcs    []uint32
	tables   []TableType
	memories []MemoryType
	exports  []Export
	start    *uint32
	code     []FuncBody

	names    map[uint32]string
	builtins map[uint32]string
}

// Section is one raw section of a module binary.
type Section struct {
	// Name is set for custom sections only.
	Name string
	// Payload holds the section contents, including the name prefix of
	// custom sections.
	Payload []byte
	// header is the id and size prefix as found in the input; nil for
	// sections created after decoding.
	header []byte
	ID     byte
}

// FuncType represents a WebAssembly function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two signatures are identical.
func (f FuncType) Equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// String renders the signature as "(i32, i32) -> i32".
func (f FuncType) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteByte(')')
	if len(f.Results) > 0 {
		b.WriteString(" -> ")
		if len(f.Results) == 1 {
			b.WriteString(f.Results[0].String())
		} else {
			b.WriteByte('(')
			for i, r := range f.Results {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(r.String())
			}
			b.WriteByte(')')
		}
	}
	return b.String()
}

func (f FuncType) clone() FuncType {
	return FuncType{
		Params:  append([]ValType(nil), f.Params...),
		Results: append([]ValType(nil), f.Results...),
	}
}

// ValType represents a WebAssembly value type.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	case ValRefNull:
		return "ref null"
	case ValRef:
		return "ref"
	default:
		return "unknown"
	}
}

// Import represents an imported function, table, memory, global, or tag.
type Import struct {
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
	Module  string
	Name    string
	TypeIdx uint32 // functions and tags
	Kind    byte
}

// Key returns the "module/name" identifier of the import.
func (i Import) Key() string {
	return i.Module + "/" + i.Name
}

// KindName returns the import kind as text ("func", "memory", ...).
func (i Import) KindName() string {
	return kindName(i.Kind)
}

// FuncImport is a function import together with its place in the
// function index space and its signature.
type FuncImport struct {
	Import
	Type    FuncType
	FuncIdx uint32
}

// TableType describes a table with element type and size limits.
type TableType struct {
	Limits   Limits
	ElemType ValType
}

// MemoryType describes a linear memory with size limits in pages.
type MemoryType struct {
	Limits Limits
}

// Limits describes size constraints for tables and memories.
type Limits struct {
	Max      *uint64
	Min      uint64
	Shared   bool
	Memory64 bool
}

// GlobalType describes a global variable's type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Export describes an exported item.
type Export struct {
	Name string
	Idx  uint32
	Kind byte
}

// KindName returns the export kind as text.
func (e Export) KindName() string {
	return kindName(e.Kind)
}

// FuncBody represents a function's local declarations and bytecode.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte // instruction bytes including the final end opcode
	Offset int    // file offset of the body
}

// LocalEntry represents a group of local variables with the same type.
type LocalEntry struct {
	Count uint32
	Type  ValType
}

// SectionInfo summarizes a section for diagnostics.
type SectionInfo struct {
	Name string
	Size int
	ID   byte
}

// Types returns the function types of the type section.
func (m *Module) Types() []FuncType { return m.types }

// Imports returns all imports in declaration order.
func (m *Module) Imports() []Import { return m.imports }

// Exports returns all exports in declaration order.
func (m *Module) Exports() []Export { return m.exports }

// Code returns the bodies of the defined functions.
func (m *Module) Code() []FuncBody { return m.code }

// Start returns the start function index, if any.
func (m *Module) Start() (uint32, bool) {
	if m.start == nil {
		return 0, false
	}
	return *m.start, true
}

// Sections lists the module's sections in file order.
func (m *Module) Sections() []SectionInfo {
	infos := make([]SectionInfo, len(m.sections))
	for i, s := range m.sections {
		infos[i] = SectionInfo{ID: s.ID, Name: s.Name, Size: len(s.Payload)}
	}
	return infos
}

// NumImportedFuncs returns the number of imported functions.
func (m *Module) NumImportedFuncs() int {
	count := 0
	for _, imp := range m.imports {
		if imp.Kind == KindFunc {
			count++
		}
	}
	return count
}

// NumFuncs returns the size of the function index space.
func (m *Module) NumFuncs() int {
	return m.NumImportedFuncs() + len(m.funcs)
}

// FuncImports returns the function imports with their indices and types.
func (m *Module) FuncImports() []FuncImport {
	var out []FuncImport
	idx := uint32(0)
	for _, imp := range m.imports {
		if imp.Kind != KindFunc {
			continue
		}
		fi := FuncImport{Import: imp, FuncIdx: idx}
		if int(imp.TypeIdx) < len(m.types) {
			fi.Type = m.types[imp.TypeIdx]
		}
		out = append(out, fi)
		idx++
	}
	return out
}

// FuncType returns the signature of the function at funcIdx in the
// function index space (imports first).
func (m *Module) FuncType(funcIdx uint32) (FuncType, bool) {
	numImported := uint32(m.NumImportedFuncs())
	var typeIdx uint32
	if funcIdx < numImported {
		n := uint32(0)
		for _, imp := range m.imports {
			if imp.Kind != KindFunc {
				continue
			}
			if n == funcIdx {
				typeIdx = imp.TypeIdx
				break
			}
			n++
		}
	} else {
		local := funcIdx - numImported
		if int(local) >= len(m.funcs) {
			return FuncType{}, false
		}
		typeIdx = m.funcs[local]
	}
	if int(typeIdx) >= len(m.types) {
		return FuncType{}, false
	}
	return m.types[typeIdx], true
}

// ExportNames returns the export names of the function at funcIdx.
func (m *Module) ExportNames(funcIdx uint32) []string {
	var names []string
	for _, e := range m.exports {
		if e.Kind == KindFunc && e.Idx == funcIdx {
			names = append(names, e.Name)
		}
	}
	return names
}

// FuncName returns the debug name of a function from the name section.
func (m *Module) FuncName(funcIdx uint32) (string, bool) {
	name, ok := m.names[funcIdx]
	return name, ok
}

// Memory returns the module's first memory, imported or defined.
func (m *Module) Memory() (MemoryType, bool) {
	for _, imp := range m.imports {
		if imp.Kind == KindMemory && imp.Memory != nil {
			return *imp.Memory, true
		}
	}
	if len(m.memories) > 0 {
		return m.memories[0], true
	}
	return MemoryType{}, false
}

// CustomSection returns the data of the first custom section with name.
func (m *Module) CustomSection(name string) ([]byte, bool) {
	for _, s := range m.sections {
		if s.ID == SectionCustom && s.Name == name {
			return customData(s), true
		}
	}
	return nil, false
}

// Builtins returns the imports resolved to host builtins, keyed by
// function index.
func (m *Module) Builtins() map[uint32]string {
	out := make(map[uint32]string, len(m.builtins))
	for k, v := range m.builtins {
		out[k] = v
	}
	return out
}

// UnresolvedImports returns the function imports that are not resolved
// to a builtin.
func (m *Module) UnresolvedImports() []FuncImport {
	var out []FuncImport
	for _, fi := range m.FuncImports() {
		if _, ok := m.builtins[fi.FuncIdx]; ok {
			continue
		}
		out = append(out, fi)
	}
	return out
}

// Clone returns a deep copy of the module.
func (m *Module) Clone() *Module {
	c := &Module{
		sections: make([]Section, len(m.sections)),
		types:    make([]FuncType, len(m.types)),
		imports:  make([]Import, len(m.imports)),
		funcs:    append([]uint32(nil), m.funcs...),
		tables:   make([]TableType, len(m.tables)),
		memories: make([]MemoryType, len(m.memories)),
		exports:  append([]Export(nil), m.exports...),
		code:     make([]FuncBody, len(m.code)),
		names:    make(map[uint32]string, len(m.names)),
		builtins: make(map[uint32]string, len(m.builtins)),
	}
	for i, s := range m.sections {
		c.sections[i] = Section{
			ID:      s.ID,
			Name:    s.Name,
			Payload: append([]byte(nil), s.Payload...),
			header:  append([]byte(nil), s.header...),
		}
	}
	for i, t := range m.types {
		c.types[i] = t.clone()
	}
	for i, imp := range m.imports {
		c.imports[i] = imp
		if imp.Table != nil {
			t := cloneTable(*imp.Table)
			c.imports[i].Table = &t
		}
		if imp.Memory != nil {
			mem := MemoryType{Limits: cloneLimits(imp.Memory.Limits)}
			c.imports[i].Memory = &mem
		}
		if imp.Global != nil {
			g := *imp.Global
			c.imports[i].Global = &g
		}
	}
	for i, t := range m.tables {
		c.tables[i] = cloneTable(t)
	}
	for i, mem := range m.memories {
		c.memories[i] = MemoryType{Limits: cloneLimits(mem.Limits)}
	}
	for i, body := range m.code {
		c.code[i] = FuncBody{
			Locals: append([]LocalEntry(nil), body.Locals...),
			Code:   append([]byte(nil), body.Code...),
			Offset: body.Offset,
		}
	}
	if m.start != nil {
		s := *m.start
		c.start = &s
	}
	for k, v := range m.names {
		c.names[k] = v
	}
	for k, v := range m.builtins {
		c.builtins[k] = v
	}
	return c
}

func cloneTable(t TableType) TableType {
	return TableType{ElemType: t.ElemType, Limits: cloneLimits(t.Limits)}
}

func cloneLimits(l Limits) Limits {
	out := l
	if l.Max != nil {
		v := *l.Max
		out.Max = &v
	}
	return out
}
