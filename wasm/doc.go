// Package wasm decodes and re-encodes WebAssembly core modules.
//
// The decoder keeps every section's original bytes next to the decoded
// views, so a module that is only inspected re-encodes to the exact input.
// Custom sections can be replaced, which is how builtin resolution is
// recorded without renumbering functions.
//
// # Parsing
//
//	data, _ := os.ReadFile("module.wasm")
//	m, err := wasm.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, fi := range m.FuncImports() {
//	    fmt.Println(fi.Key(), fi.Type)
//	}
//
// # Builtins
//
// SetBuiltins maps function imports to host symbols. The mapping lives in
// the "wasmc.builtins" custom section: a vector of (u32 function index,
// name) pairs sorted by index.
//
//	err := m.SetBuiltins(map[uint32]string{0: "host_sqrt"})
//	unresolved := m.UnresolvedImports()
//
// # Instructions
//
// DecodeInstructions turns a function body into instructions with rendered
// immediates. MVP, sign-extension, saturating truncation, bulk memory,
// reference types and tail calls are understood; SIMD and atomics are
// rejected with ErrUnsupportedInstruction.
package wasm
