// Package object writes ELF64 relocatable objects and reads symbol tables
// of native objects (ELF, Mach-O and PE/COFF).
package object

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"runtime"
	"sort"
)

// Machine is the target architecture of an object.
type Machine int

const (
	MachineX86_64 Machine = iota
	MachineAArch64
)

func (m Machine) String() string {
	switch m {
	case MachineX86_64:
		return "x86_64"
	case MachineAArch64:
		return "aarch64"
	default:
		return fmt.Sprintf("machine(%d)", int(m))
	}
}

// HostMachine returns the machine of the running process.
func HostMachine() (Machine, error) {
	switch runtime.GOARCH {
	case "amd64":
		return MachineX86_64, nil
	case "arm64":
		return MachineAArch64, nil
	default:
		return 0, fmt.Errorf("unsupported host architecture %s", runtime.GOARCH)
	}
}

func (m Machine) elfMachine() elf.Machine {
	if m == MachineAArch64 {
		return elf.EM_AARCH64
	}
	return elf.EM_X86_64
}

// abs64 is the 64-bit absolute relocation type of the machine.
func (m Machine) abs64() uint32 {
	if m == MachineAArch64 {
		return uint32(elf.R_AARCH64_ABS64)
	}
	return uint32(elf.R_X86_64_64)
}

// SectionFlags describe how a section is mapped.
type SectionFlags uint8

const (
	FlagAlloc SectionFlags = 1 << iota
	FlagWrite
	FlagExec
)

func (f SectionFlags) elf() elf.SectionFlag {
	var out elf.SectionFlag
	if f&FlagAlloc != 0 {
		out |= elf.SHF_ALLOC
	}
	if f&FlagWrite != 0 {
		out |= elf.SHF_WRITE
	}
	if f&FlagExec != 0 {
		out |= elf.SHF_EXECINSTR
	}
	return out
}

// SymbolKind is the ELF symbol type.
type SymbolKind uint8

const (
	KindNone   SymbolKind = SymbolKind(elf.STT_NOTYPE)
	KindObject SymbolKind = SymbolKind(elf.STT_OBJECT)
	KindFunc   SymbolKind = SymbolKind(elf.STT_FUNC)
)

type section struct {
	name   string
	data   []byte
	relocs []reloc
	align  uint64
	flags  SectionFlags
	typ    elf.SectionType
}

type reloc struct {
	symbol string
	offset uint64
	addend int64
}

type symbol struct {
	name    string
	section int // 0 for undefined
	value   uint64
	size    uint64
	kind    SymbolKind
}

// Builder assembles an ELF64 little-endian relocatable object. Every
// symbol it emits is global.
type Builder struct {
	symIndex map[string]int
	sections []*section
	symbols  []symbol
	machine  Machine
}

// NewBuilder returns an empty object for machine.
func NewBuilder(machine Machine) *Builder {
	return &Builder{machine: machine, symIndex: make(map[string]int)}
}

// Machine returns the target machine.
func (b *Builder) Machine() Machine { return b.machine }

// AddSection appends a PROGBITS section and returns its index (starting
// at 1). An empty name panics.
func (b *Builder) AddSection(name string, flags SectionFlags, align uint64, data []byte) int {
	if name == "" {
		panic("object: empty section name")
	}
	if align == 0 {
		align = 1
	}
	b.sections = append(b.sections, &section{
		name:  name,
		data:  data,
		align: align,
		flags: flags,
		typ:   elf.SHT_PROGBITS,
	})
	return len(b.sections)
}

// AddNote appends an empty marker section such as .note.GNU-stack.
func (b *Builder) AddNote(name string) int {
	return b.AddSection(name, 0, 1, nil)
}

// Define adds a global symbol at offset within section. Defining a name
// twice is an error.
func (b *Builder) Define(name string, sectionIdx int, offset, size uint64, kind SymbolKind) error {
	if sectionIdx < 1 || sectionIdx > len(b.sections) {
		return fmt.Errorf("symbol %s: section %d out of range", name, sectionIdx)
	}
	if offset+size > uint64(len(b.sections[sectionIdx-1].data)) {
		return fmt.Errorf("symbol %s: [%d, %d) outside section %s", name, offset, offset+size, b.sections[sectionIdx-1].name)
	}
	if i, ok := b.symIndex[name]; ok {
		if b.symbols[i].section != 0 {
			return fmt.Errorf("symbol %s defined twice", name)
		}
		b.symbols[i] = symbol{name: name, section: sectionIdx, value: offset, size: size, kind: kind}
		return nil
	}
	b.symIndex[name] = len(b.symbols)
	b.symbols = append(b.symbols, symbol{name: name, section: sectionIdx, value: offset, size: size, kind: kind})
	return nil
}

// Undefined declares an external function symbol.
func (b *Builder) Undefined(name string) {
	if _, ok := b.symIndex[name]; ok {
		return
	}
	b.symIndex[name] = len(b.symbols)
	b.symbols = append(b.symbols, symbol{name: name, kind: KindFunc})
}

// Reloc adds a 64-bit absolute relocation at offset in section against
// target. Unknown targets are declared undefined.
func (b *Builder) Reloc(sectionIdx int, offset uint64, target string, addend int64) error {
	if sectionIdx < 1 || sectionIdx > len(b.sections) {
		return fmt.Errorf("relocation: section %d out of range", sectionIdx)
	}
	s := b.sections[sectionIdx-1]
	if offset+8 > uint64(len(s.data)) {
		return fmt.Errorf("relocation at %d outside section %s", offset, s.name)
	}
	b.Undefined(target)
	s.relocs = append(s.relocs, reloc{symbol: target, offset: offset, addend: addend})
	return nil
}

// Bytes lays out the object.
//
// Section order: null, user sections, one .rela section per section with
// relocations, .symtab, .strtab, .shstrtab.
func (b *Builder) Bytes() []byte {
	const (
		ehdrSize = 64
		shdrSize = 64
		symSize  = 24
		relaSize = 24
	)
	le := binary.LittleEndian

	shstrtab := newStrtab()
	strtab := newStrtab()

	type header struct {
		name      uint32
		typ       elf.SectionType
		flags     elf.SectionFlag
		offset    uint64
		size      uint64
		link      uint32
		info      uint32
		addralign uint64
		entsize   uint64
		data      []byte
	}
	headers := []header{{}}

	for _, s := range b.sections {
		headers = append(headers, header{
			name:      shstrtab.add(s.name),
			typ:       s.typ,
			flags:     s.flags.elf(),
			addralign: s.align,
			data:      s.data,
		})
	}

	numRela := 0
	for _, s := range b.sections {
		if len(s.relocs) > 0 {
			numRela++
		}
	}
	symtabSection := uint32(1 + len(b.sections) + numRela)

	// symbol table: null entry then globals in declaration order
	symtab := make([]byte, symSize*(len(b.symbols)+1))
	for i, sym := range b.symbols {
		e := symtab[symSize*(i+1):]
		le.PutUint32(e[0:], strtab.add(sym.name))
		e[4] = byte(elf.ST_INFO(elf.STB_GLOBAL, elf.SymType(sym.kind)))
		e[5] = 0
		le.PutUint16(e[6:], uint16(sym.section))
		le.PutUint64(e[8:], sym.value)
		le.PutUint64(e[16:], sym.size)
	}

	for i, s := range b.sections {
		if len(s.relocs) == 0 {
			continue
		}
		relocs := append([]reloc(nil), s.relocs...)
		sort.SliceStable(relocs, func(a, c int) bool { return relocs[a].offset < relocs[c].offset })
		data := make([]byte, relaSize*len(relocs))
		for j, r := range relocs {
			e := data[relaSize*j:]
			symIdx := uint64(b.symIndex[r.symbol] + 1)
			le.PutUint64(e[0:], r.offset)
			le.PutUint64(e[8:], symIdx<<32|uint64(b.machine.abs64()))
			le.PutUint64(e[16:], uint64(r.addend))
		}
		headers = append(headers, header{
			name:      shstrtab.add(".rela" + s.name),
			typ:       elf.SHT_RELA,
			flags:     elf.SHF_INFO_LINK,
			link:      symtabSection,
			info:      uint32(i + 1),
			addralign: 8,
			entsize:   relaSize,
			data:      data,
		})
	}

	headers = append(headers, header{
		name:      shstrtab.add(".symtab"),
		typ:       elf.SHT_SYMTAB,
		link:      symtabSection + 1,
		info:      1, // first non-local symbol
		addralign: 8,
		entsize:   symSize,
		data:      symtab,
	})
	headers = append(headers, header{
		name:      shstrtab.add(".strtab"),
		typ:       elf.SHT_STRTAB,
		addralign: 1,
		data:      strtab.bytes(),
	})
	shstrtabName := shstrtab.add(".shstrtab")
	headers = append(headers, header{
		name:      shstrtabName,
		typ:       elf.SHT_STRTAB,
		addralign: 1,
		data:      shstrtab.bytes(),
	})

	out := make([]byte, ehdrSize)
	for i := 1; i < len(headers); i++ {
		h := &headers[i]
		out = pad(out, h.addralign)
		h.offset = uint64(len(out))
		h.size = uint64(len(h.data))
		out = append(out, h.data...)
	}
	out = pad(out, 8)
	shoff := uint64(len(out))

	for _, h := range headers {
		e := make([]byte, shdrSize)
		le.PutUint32(e[0:], h.name)
		le.PutUint32(e[4:], uint32(h.typ))
		le.PutUint64(e[8:], uint64(h.flags))
		le.PutUint64(e[16:], 0)
		le.PutUint64(e[24:], h.offset)
		le.PutUint64(e[32:], h.size)
		le.PutUint32(e[40:], h.link)
		le.PutUint32(e[44:], h.info)
		le.PutUint64(e[48:], h.addralign)
		le.PutUint64(e[56:], h.entsize)
		out = append(out, e...)
	}

	copy(out[0:], []byte{0x7F, 'E', 'L', 'F', byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT), byte(elf.ELFOSABI_NONE)})
	le.PutUint16(out[16:], uint16(elf.ET_REL))
	le.PutUint16(out[18:], uint16(b.machine.elfMachine()))
	le.PutUint32(out[20:], uint32(elf.EV_CURRENT))
	le.PutUint64(out[24:], 0) // entry
	le.PutUint64(out[32:], 0) // phoff
	le.PutUint64(out[40:], shoff)
	le.PutUint32(out[48:], 0) // flags
	le.PutUint16(out[52:], ehdrSize)
	le.PutUint16(out[54:], 0) // phentsize
	le.PutUint16(out[56:], 0) // phnum
	le.PutUint16(out[58:], shdrSize)
	le.PutUint16(out[60:], uint16(len(headers)))
	le.PutUint16(out[62:], uint16(len(headers)-1))
	return out
}

func pad(b []byte, align uint64) []byte {
	if align <= 1 {
		return b
	}
	for uint64(len(b))%align != 0 {
		b = append(b, 0)
	}
	return b
}

type stringTable struct {
	offsets map[string]uint32
	data    []byte
}

func newStrtab() *stringTable {
	return &stringTable{data: []byte{0}, offsets: map[string]uint32{"": 0}}
}

func (s *stringTable) add(name string) uint32 {
	if off, ok := s.offsets[name]; ok {
		return off
	}
	off := uint32(len(s.data))
	s.data = append(s.data, name...)
	s.data = append(s.data, 0)
	s.offsets[name] = off
	return off
}

func (s *stringTable) bytes() []byte { return s.data }
