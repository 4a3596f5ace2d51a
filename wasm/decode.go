package wasm

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/wippyai/wasmc/wasm/internal/binary"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("unsupported wasm version")
	ErrComponent      = errors.New("component-model binaries are not supported")
)

// ParseModule decodes a WebAssembly binary module.
//
// Only structural validation is performed: section framing and order,
// index bounds of the decoded sections, and function/code count agreement.
// Type checking of function bodies is left to the backend.
func ParseModule(data []byte) (*Module, error) {
	data = bytes.Clone(data)
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}

	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	switch version {
	case Version:
	case ComponentVersion:
		return nil, ErrComponent
	default:
		return nil, fmt.Errorf("%w: 0x%08x", ErrInvalidVersion, version)
	}

	m := &Module{
		names:    make(map[uint32]string),
		builtins: make(map[uint32]string),
	}

	var lastSectionOrder int
	for {
		headerStart := r.Position()
		sectionID, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, r.WrapError("section header", err)
		}

		if sectionID != SectionCustom {
			order := sectionOrder(sectionID)
			if order == 0 {
				return nil, fmt.Errorf("unknown section ID: 0x%02x", sectionID)
			}
			if order <= lastSectionOrder {
				return nil, fmt.Errorf("section %d appears out of order", sectionID)
			}
			lastSectionOrder = order
		}

		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}
		headerEnd := r.Position()

		payload, err := r.ReadBytes(int(sectionSize))
		if err != nil {
			return nil, r.WrapError("section data", err)
		}

		s := Section{
			ID:      sectionID,
			Payload: payload,
			header:  data[headerStart:headerEnd],
		}

		sr := binary.NewReaderAt(payload, headerEnd)
		if err := m.decodeSection(&s, sr); err != nil {
			return nil, err
		}
		m.sections = append(m.sections, s)
	}

	if err := m.checkStructure(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Module) decodeSection(s *Section, sr *binary.Reader) error {
	var (
		name string
		err  error
	)
	switch s.ID {
	case SectionCustom:
		name, err = sr.ReadName()
		if err != nil {
			return fmt.Errorf("custom section: %w", err)
		}
		s.Name = name
		return m.decodeCustom(name, sr.ReadRemaining())
	case SectionType:
		name, err = "type section", parseTypeSection(sr, m)
	case SectionImport:
		name, err = "import section", parseImportSection(sr, m)
	case SectionFunction:
		name, err = "function section", parseFunctionSection(sr, m)
	case SectionTable:
		name, err = "table section", parseTableSection(sr, m)
	case SectionMemory:
		name, err = "memory section", parseMemorySection(sr, m)
	case SectionExport:
		name, err = "export section", parseExportSection(sr, m)
	case SectionStart:
		name, err = "start section", parseStartSection(sr, m)
	case SectionCode:
		name, err = "code section", parseCodeSection(sr, m)
	default:
		// global, element, data, data count and tag sections are kept raw
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if sr.Len() != 0 {
		return fmt.Errorf("%s: %d trailing bytes", name, sr.Len())
	}
	return nil
}

// sectionOrder returns the canonical ordering for a section ID, or 0 for
// unknown IDs.
func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionTag:
		return 6
	case SectionGlobal:
		return 7
	case SectionExport:
		return 8
	case SectionStart:
		return 9
	case SectionElement:
		return 10
	case SectionDataCount:
		return 11
	case SectionCode:
		return 12
	case SectionData:
		return 13
	default:
		return 0
	}
}

func (m *Module) decodeCustom(name string, data []byte) error {
	switch name {
	case CustomSectionName:
		// Malformed name sections are ignored, as engines do.
		if names, err := parseFuncNames(data); err == nil {
			m.names = names
		}
	case CustomSectionBuiltins:
		builtins, err := decodeBuiltins(data)
		if err != nil {
			return fmt.Errorf("custom section %q: %w", name, err)
		}
		m.builtins = builtins
	}
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.types = make([]FuncType, 0, count)
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("read type form at index %d: %w", i, err)
		}
		if form != FuncTypeByte {
			return fmt.Errorf("unsupported type form 0x%02x at index %d", form, i)
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		m.types = append(m.types, FuncType{Params: params, Results: results})
	}
	return nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if int(count) > r.Len() {
		return nil, fmt.Errorf("value type count %d exceeds section size", count)
	}
	types := make([]ValType, count)
	for i := range types {
		types[i], err = readValType(r)
		if err != nil {
			return nil, err
		}
	}
	return types, nil
}

func readValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	vt := ValType(b)
	switch vt {
	case ValI32, ValI64, ValF32, ValF64, ValV128, ValFuncRef, ValExtern:
		return vt, nil
	case ValRefNull, ValRef:
		if _, err := r.ReadS33(); err != nil {
			return 0, err
		}
		return vt, nil
	default:
		return 0, fmt.Errorf("invalid value type 0x%02x", b)
	}
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.imports = make([]Import, 0, count)
	for i := uint32(0); i < count; i++ {
		var imp Import
		if imp.Module, err = r.ReadName(); err != nil {
			return fmt.Errorf("import %d module: %w", i, err)
		}
		if imp.Name, err = r.ReadName(); err != nil {
			return fmt.Errorf("import %d name: %w", i, err)
		}
		if imp.Kind, err = r.ReadByte(); err != nil {
			return err
		}
		switch imp.Kind {
		case KindFunc:
			imp.TypeIdx, err = r.ReadU32()
		case KindTable:
			var t TableType
			t, err = readTableType(r)
			imp.Table = &t
		case KindMemory:
			var l Limits
			l, err = readLimits(r)
			imp.Memory = &MemoryType{Limits: l}
		case KindGlobal:
			var g GlobalType
			g, err = readGlobalType(r)
			imp.Global = &g
		case KindTag:
			if _, err = r.ReadByte(); err == nil {
				imp.TypeIdx, err = r.ReadU32()
			}
		default:
			return fmt.Errorf("import %q: invalid kind 0x%02x", imp.Key(), imp.Kind)
		}
		if err != nil {
			return fmt.Errorf("import %q: %w", imp.Key(), err)
		}
		m.imports = append(m.imports, imp)
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if int(count) > r.Len() {
		return fmt.Errorf("function count %d exceeds section size", count)
	}
	m.funcs = make([]uint32, count)
	for i := range m.funcs {
		if m.funcs[i], err = r.ReadU32(); err != nil {
			return err
		}
	}
	return nil
}

func parseTableSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		t, err := readTableType(r)
		if err != nil {
			return fmt.Errorf("table %d: %w", i, err)
		}
		m.tables = append(m.tables, t)
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		l, err := readLimits(r)
		if err != nil {
			return fmt.Errorf("memory %d: %w", i, err)
		}
		m.memories = append(m.memories, MemoryType{Limits: l})
	}
	return nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, count)
	for i := uint32(0); i < count; i++ {
		var e Export
		if e.Name, err = r.ReadName(); err != nil {
			return fmt.Errorf("export %d: %w", i, err)
		}
		if _, dup := seen[e.Name]; dup {
			return fmt.Errorf("duplicate export name %q", e.Name)
		}
		seen[e.Name] = struct{}{}
		if e.Kind, err = r.ReadByte(); err != nil {
			return err
		}
		if e.Kind > KindTag {
			return fmt.Errorf("export %q: invalid kind 0x%02x", e.Name, e.Kind)
		}
		if e.Idx, err = r.ReadU32(); err != nil {
			return err
		}
		m.exports = append(m.exports, e)
	}
	return nil
}

func parseStartSection(r *binary.Reader, m *Module) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.start = &idx
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		size, err := r.ReadU32()
		if err != nil {
			return fmt.Errorf("body %d size: %w", i, err)
		}
		offset := r.Position()
		body, err := r.ReadBytes(int(size))
		if err != nil {
			return fmt.Errorf("body %d: %w", i, err)
		}
		fb, err := parseFuncBody(body, offset)
		if err != nil {
			return fmt.Errorf("body %d: %w", i, err)
		}
		m.code = append(m.code, fb)
	}
	return nil
}

func parseFuncBody(body []byte, offset int) (FuncBody, error) {
	br := binary.NewReaderAt(body, offset)
	groups, err := br.ReadU32()
	if err != nil {
		return FuncBody{}, err
	}
	if int(groups) > br.Len() {
		return FuncBody{}, fmt.Errorf("local group count %d exceeds body size", groups)
	}
	fb := FuncBody{Offset: offset, Locals: make([]LocalEntry, 0, groups)}
	var total uint64
	for j := uint32(0); j < groups; j++ {
		n, err := br.ReadU32()
		if err != nil {
			return FuncBody{}, err
		}
		total += uint64(n)
		if total > 50000 {
			return FuncBody{}, fmt.Errorf("too many locals: %d", total)
		}
		vt, err := readValType(br)
		if err != nil {
			return FuncBody{}, err
		}
		fb.Locals = append(fb.Locals, LocalEntry{Count: n, Type: vt})
	}
	fb.Code = br.ReadRemaining()
	if len(fb.Code) == 0 || fb.Code[len(fb.Code)-1] != OpEnd {
		return FuncBody{}, errors.New("function body does not end with end opcode")
	}
	return fb, nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return TableType{}, err
	}
	if b != byte(ValFuncRef) && b != byte(ValExtern) {
		return TableType{}, fmt.Errorf("unsupported table element type 0x%02x", b)
	}
	l, err := readLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: ValType(b), Limits: l}, nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	if flags > 0x07 {
		return Limits{}, fmt.Errorf("invalid limits flags 0x%02x", flags)
	}
	l := Limits{
		Shared:   flags&0x02 != 0,
		Memory64: flags&0x04 != 0,
	}
	read := r.ReadU64
	if !l.Memory64 {
		read = func() (uint64, error) {
			v, err := r.ReadU32()
			return uint64(v), err
		}
	}
	if l.Min, err = read(); err != nil {
		return Limits{}, err
	}
	if flags&0x01 != 0 {
		hi, err := read()
		if err != nil {
			return Limits{}, err
		}
		if hi < l.Min {
			return Limits{}, fmt.Errorf("limits max %d below min %d", hi, l.Min)
		}
		l.Max = &hi
	}
	return l, nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	vt, err := readValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, fmt.Errorf("invalid global mutability 0x%02x", mut)
	}
	return GlobalType{ValType: vt, Mutable: mut == 1}, nil
}

// checkStructure verifies cross-section index bounds.
func (m *Module) checkStructure() error {
	if len(m.funcs) != len(m.code) {
		return fmt.Errorf("function and code section counts differ: %d != %d", len(m.funcs), len(m.code))
	}
	for i, typeIdx := range m.funcs {
		if int(typeIdx) >= len(m.types) {
			return fmt.Errorf("function %d: type index %d out of range", i, typeIdx)
		}
	}
	for _, imp := range m.imports {
		if (imp.Kind == KindFunc || imp.Kind == KindTag) && int(imp.TypeIdx) >= len(m.types) {
			return fmt.Errorf("import %q: type index %d out of range", imp.Key(), imp.TypeIdx)
		}
	}
	numFuncs := uint32(m.NumFuncs())
	for _, e := range m.exports {
		if e.Kind == KindFunc && e.Idx >= numFuncs {
			return fmt.Errorf("export %q: function index %d out of range", e.Name, e.Idx)
		}
	}
	if m.start != nil && *m.start >= numFuncs {
		return fmt.Errorf("start function index %d out of range", *m.start)
	}
	for idx := range m.builtins {
		if idx >= uint32(m.NumImportedFuncs()) {
			return fmt.Errorf("builtin slot %d is not a function import", idx)
		}
	}
	return nil
}
