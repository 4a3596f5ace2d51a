package patch

import "github.com/wippyai/wasmc/wasm"

var (
	f32 = wasm.ValF32
	f64 = wasm.ValF64
	i32 = wasm.ValI32
)

func sig(params []wasm.ValType, results ...wasm.ValType) wasm.FuncType {
	return wasm.FuncType{Params: params, Results: results}
}

// knownSignatures lists primitives whose guest signature is fixed. A
// builtin for one of these names must be imported with exactly this type.
var knownSignatures = map[string]wasm.FuncType{
	"sqrt":   sig([]wasm.ValType{f64}, f64),
	"sqrtf":  sig([]wasm.ValType{f32}, f32),
	"fabs":   sig([]wasm.ValType{f64}, f64),
	"fabsf":  sig([]wasm.ValType{f32}, f32),
	"floor":  sig([]wasm.ValType{f64}, f64),
	"floorf": sig([]wasm.ValType{f32}, f32),
	"ceil":   sig([]wasm.ValType{f64}, f64),
	"ceilf":  sig([]wasm.ValType{f32}, f32),
	"trunc":  sig([]wasm.ValType{f64}, f64),
	"truncf": sig([]wasm.ValType{f32}, f32),
	"round":  sig([]wasm.ValType{f64}, f64),
	"exp":    sig([]wasm.ValType{f64}, f64),
	"expf":   sig([]wasm.ValType{f32}, f32),
	"log":    sig([]wasm.ValType{f64}, f64),
	"logf":   sig([]wasm.ValType{f32}, f32),
	"log2":   sig([]wasm.ValType{f64}, f64),
	"log10":  sig([]wasm.ValType{f64}, f64),
	"sin":    sig([]wasm.ValType{f64}, f64),
	"cos":    sig([]wasm.ValType{f64}, f64),
	"tan":    sig([]wasm.ValType{f64}, f64),
	"atan":   sig([]wasm.ValType{f64}, f64),
	"pow":    sig([]wasm.ValType{f64, f64}, f64),
	"powf":   sig([]wasm.ValType{f32, f32}, f32),
	"atan2":  sig([]wasm.ValType{f64, f64}, f64),
	"fmod":   sig([]wasm.ValType{f64, f64}, f64),
	"fmin":   sig([]wasm.ValType{f64, f64}, f64),
	"fmax":   sig([]wasm.ValType{f64, f64}, f64),

	"memcpy":  sig([]wasm.ValType{i32, i32, i32}, i32),
	"memmove": sig([]wasm.ValType{i32, i32, i32}, i32),
	"memset":  sig([]wasm.ValType{i32, i32, i32}, i32),
	"memcmp":  sig([]wasm.ValType{i32, i32, i32}, i32),
	"strlen":  sig([]wasm.ValType{i32}, i32),
}

// KnownSignature returns the fixed signature of a primitive builtin.
func KnownSignature(name string) (wasm.FuncType, bool) {
	ft, ok := knownSignatures[name]
	return ft, ok
}
