package object

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
)

// Format identifies a native object file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatELF
	FormatMachO
	FormatPE
)

func (f Format) String() string {
	switch f {
	case FormatELF:
		return "elf"
	case FormatMachO:
		return "mach-o"
	case FormatPE:
		return "pe"
	default:
		return "unknown"
	}
}

// ErrUnknownFormat is returned for inputs that are not ELF, Mach-O or PE.
var ErrUnknownFormat = stderrors.New("unknown object file format")

// Symbol is an entry of a native object's symbol table.
type Symbol struct {
	Name    string
	Section string
	Value   uint64
	Size    uint64
	Defined bool
	Global  bool
	Func    bool
}

// DetectFormat sniffs the object format from the leading bytes.
func DetectFormat(head []byte) Format {
	switch {
	case bytes.HasPrefix(head, []byte(elf.ELFMAG)):
		return FormatELF
	case bytes.HasPrefix(head, []byte("MZ")):
		return FormatPE
	case len(head) >= 4:
		be := uint32(head[0])<<24 | uint32(head[1])<<16 | uint32(head[2])<<8 | uint32(head[3])
		le := uint32(head[3])<<24 | uint32(head[2])<<16 | uint32(head[1])<<8 | uint32(head[0])
		for _, m := range []uint32{macho.Magic32, macho.Magic64} {
			if be == m || le == m {
				return FormatMachO
			}
		}
	}
	return FormatUnknown
}

// ReadSymbols returns the symbol table of an ELF, Mach-O or PE/COFF
// object. Objects without a symbol table yield no symbols.
func ReadSymbols(r io.ReaderAt) ([]Symbol, Format, error) {
	head := make([]byte, 4)
	n, err := r.ReadAt(head, 0)
	if err != nil && !stderrors.Is(err, io.EOF) {
		return nil, FormatUnknown, err
	}
	format := DetectFormat(head[:n])
	var syms []Symbol
	switch format {
	case FormatELF:
		syms, err = elfSymbols(r)
	case FormatMachO:
		syms, err = machoSymbols(r)
	case FormatPE:
		syms, err = peSymbols(r)
	default:
		return nil, format, ErrUnknownFormat
	}
	if err != nil {
		return nil, format, fmt.Errorf("read %s symbols: %w", format, err)
	}
	return syms, format, nil
}

// DefinedFuncs filters syms down to defined global functions, keyed by name.
func DefinedFuncs(syms []Symbol) map[string]Symbol {
	out := make(map[string]Symbol)
	for _, s := range syms {
		if s.Defined && s.Global && s.Func {
			out[s.Name] = s
		}
	}
	return out
}

func elfSymbols(r io.ReaderAt) ([]Symbol, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := f.Symbols()
	if err != nil {
		if stderrors.Is(err, elf.ErrNoSymbols) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Symbol, 0, len(raw))
	for _, s := range raw {
		bind := elf.ST_BIND(s.Info)
		sym := Symbol{
			Name:    s.Name,
			Value:   s.Value,
			Size:    s.Size,
			Defined: s.Section != elf.SHN_UNDEF && s.Section < elf.SHN_LORESERVE,
			Global:  bind == elf.STB_GLOBAL || bind == elf.STB_WEAK,
			Func:    elf.ST_TYPE(s.Info) == elf.STT_FUNC,
		}
		if sym.Defined && int(s.Section) < len(f.Sections) {
			sym.Section = f.Sections[s.Section].Name
		}
		out = append(out, sym)
	}
	return out, nil
}

func machoSymbols(r io.ReaderAt) ([]Symbol, error) {
	const (
		nExt  = 0x01
		nType = 0x0e
		nSect = 0x0e
	)
	f, err := macho.NewFile(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if f.Symtab == nil {
		return nil, nil
	}
	out := make([]Symbol, 0, len(f.Symtab.Syms))
	for _, s := range f.Symtab.Syms {
		sym := Symbol{
			// C symbols carry a leading underscore on Darwin
			Name:    strings.TrimPrefix(s.Name, "_"),
			Value:   s.Value,
			Defined: s.Type&nType == nSect,
			Global:  s.Type&nExt != 0,
		}
		if sym.Defined && s.Sect > 0 && int(s.Sect) <= len(f.Sections) {
			sec := f.Sections[s.Sect-1]
			sym.Section = sec.Seg + "," + sec.Name
			sym.Func = sec.Name == "__text"
		}
		out = append(out, sym)
	}
	return out, nil
}

func peSymbols(r io.ReaderAt) ([]Symbol, error) {
	const (
		classExternal = 2
		typeFunction  = 0x20
	)
	f, err := pe.NewFile(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make([]Symbol, 0, len(f.Symbols))
	for _, s := range f.Symbols {
		sym := Symbol{
			Name:    s.Name,
			Value:   uint64(s.Value),
			Defined: s.SectionNumber > 0,
			Global:  s.StorageClass == classExternal,
			Func:    s.Type == typeFunction,
		}
		if sym.Defined && int(s.SectionNumber) <= len(f.Sections) {
			sym.Section = f.Sections[s.SectionNumber-1].Name
		}
		out = append(out, sym)
	}
	return out, nil
}
