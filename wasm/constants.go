package wasm

// WebAssembly binary format magic number and version.
const (
	// Magic is the WebAssembly binary magic number ("\0asm" in little-endian).
	Magic uint32 = 0x6D736100

	// Version is the supported WebAssembly binary format version.
	Version uint32 = 0x01

	// ComponentVersion is the version/layer word of component-model binaries.
	ComponentVersion uint32 = 0x0001000D
)

// Section IDs define the binary identifiers for each module section.
const (
	SectionCustom    byte = 0
	SectionType      byte = 1
	SectionImport    byte = 2
	SectionFunction  byte = 3
	SectionTable     byte = 4
	SectionMemory    byte = 5
	SectionGlobal    byte = 6
	SectionExport    byte = 7
	SectionStart     byte = 8
	SectionElement   byte = 9
	SectionCode      byte = 10
	SectionData      byte = 11
	SectionDataCount byte = 12
	SectionTag       byte = 13
)

// Import/Export descriptor kinds.
const (
	KindFunc   byte = 0
	KindTable  byte = 1
	KindMemory byte = 2
	KindGlobal byte = 3
	KindTag    byte = 4
)

// Value type encodings.
const (
	ValI32     ValType = 0x7F
	ValI64     ValType = 0x7E
	ValF32     ValType = 0x7D
	ValF64     ValType = 0x7C
	ValV128    ValType = 0x7B
	ValFuncRef ValType = 0x70
	ValExtern  ValType = 0x6F

	// typed references carry a heap type immediate
	ValRefNull ValType = 0x63
	ValRef     ValType = 0x64
)

// FuncTypeByte introduces a function type in the type section.
const FuncTypeByte byte = 0x60

// BlockTypeEmpty is the block type byte of a block with no results.
const BlockTypeEmpty byte = 0x40

// PageSize is the size of a WebAssembly linear memory page.
const PageSize = 65536

// Custom section names understood by this package.
const (
	// CustomSectionName is the standard debug name section.
	CustomSectionName = "name"

	// CustomSectionBuiltins records imports resolved to host builtins.
	CustomSectionBuiltins = "wasmc.builtins"
)

func kindName(kind byte) string {
	switch kind {
	case KindFunc:
		return "func"
	case KindTable:
		return "table"
	case KindMemory:
		return "memory"
	case KindGlobal:
		return "global"
	case KindTag:
		return "tag"
	default:
		return "unknown"
	}
}
