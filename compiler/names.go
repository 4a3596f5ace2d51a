package compiler

import (
	"fmt"
	"strings"
)

// Symbol names defined by the Native backend.
const (
	SymModule     = "guest_module"
	SymModuleSize = "guest_module_size"
	SymImports    = "guest_import_table"
	SymHeapSpec   = "guest_heap_spec"
	SymMeta       = "guest_module_meta"

	funcPrefix     = "guest_func_"
	internalPrefix = "guest_internalfunc_"
)

// FuncSymbol returns the symbol of an exported function. Bytes outside
// [A-Za-z0-9_] are written as _xx in hex, so the mapping is deterministic
// and the result is a valid C identifier.
func FuncSymbol(export string) string {
	return funcPrefix + mangle(export)
}

// InternalFuncSymbol returns the symbol of a function by index.
func InternalFuncSymbol(idx uint32) string {
	return fmt.Sprintf("%s%d", internalPrefix, idx)
}

func mangle(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}
	return b.String()
}
