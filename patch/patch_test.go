package patch_test

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasmc/errors"
	"github.com/wippyai/wasmc/internal/wasmtest"
	"github.com/wippyai/wasmc/object"
	"github.com/wippyai/wasmc/patch"
	"github.com/wippyai/wasmc/wasm"
)

// builtinsObject returns an ELF object defining each name as a function.
func builtinsObject(t *testing.T, names ...string) []byte {
	t.Helper()
	b := object.NewBuilder(object.MachineX86_64)
	text := b.AddSection(".text", object.FlagAlloc|object.FlagExec, 16, make([]byte, len(names)+1))
	for i, n := range names {
		require.NoError(t, b.Define(n, text, uint64(i), 1, object.KindFunc))
	}
	return b.Bytes()
}

func parse(t *testing.T, data []byte) *wasm.Module {
	t.Helper()
	m, err := wasm.ParseModule(data)
	require.NoError(t, err)
	return m
}

func TestModule(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/builtins.o", builtinsObject(t, "host_sqrt", "host_unused"), 0o644))

	m := parse(t, wasmtest.Sqrt())
	before := m.Encode()

	patched, delta, err := patch.Module(m, "/builtins.o", patch.WithFs(fs))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"sqrt": "host_sqrt"}, delta)
	assert.Empty(t, patched.UnresolvedImports())
	assert.Equal(t, map[uint32]string{0: "host_sqrt"}, patched.Builtins())

	assert.Equal(t, before, m.Encode(), "input module mutated")
	assert.Len(t, m.UnresolvedImports(), 1)
	assert.Equal(t, m.NumFuncs(), patched.NumFuncs())

	// the patched module survives a round trip
	re := parse(t, patched.Encode())
	assert.Equal(t, patched.Builtins(), re.Builtins())
}

func TestRoundTripProperty(t *testing.T) {
	b := wasmtest.New()
	b.ImportFunc("env", "sqrt", []byte{wasmtest.F64}, []byte{wasmtest.F64})
	b.ImportFunc("env", "print", []byte{wasmtest.I32}, nil)
	b.ImportFunc("wasi", "fd_write", []byte{wasmtest.I32, wasmtest.I32, wasmtest.I32, wasmtest.I32}, []byte{wasmtest.I32})
	b.ImportFunc("env", "memcpy", []byte{wasmtest.I32, wasmtest.I32, wasmtest.I32}, []byte{wasmtest.I32})
	b.Func(nil, nil, nil, nil)
	m := parse(t, b.Bytes())

	artifacts := [][]string{
		nil,
		{"host_sqrt"},
		{"host_print", "host_memcpy"},
		{"host_sqrt", "host_print", "host_memcpy", "host_fd_write", "host_other"},
	}
	for _, names := range artifacts {
		syms, _, err := object.ReadSymbols(bytes.NewReader(builtinsObject(t, names...)))
		require.NoError(t, err)

		patched, delta, err := patch.Apply(m, syms)
		require.NoError(t, err)

		imported := make(map[string]bool)
		for _, fi := range m.FuncImports() {
			imported[fi.Module+"/"+fi.Name] = true
		}
		unresolved := make(map[string]bool)
		for _, fi := range patched.UnresolvedImports() {
			unresolved[fi.Module+"/"+fi.Name] = true
		}
		for field := range delta {
			assert.True(t, imported["env/"+field], "delta key %s not an import", field)
			assert.False(t, unresolved["env/"+field], "delta key %s still unresolved", field)
		}
		// wasi/fd_write never matches: only env imports are builtins
		assert.True(t, unresolved["wasi/fd_write"])
	}
}

func TestSignatureMismatch(t *testing.T) {
	b := wasmtest.New()
	b.ImportFunc("env", "sqrt", []byte{wasmtest.F32}, []byte{wasmtest.F32})
	m := parse(t, b.Bytes())

	syms, _, err := object.ReadSymbols(bytes.NewReader(builtinsObject(t, "host_sqrt")))
	require.NoError(t, err)

	_, _, err = patch.Apply(m, syms)
	require.Error(t, err)
	assert.Equal(t, errors.KindSignatureMismatch, errors.KindOf(err))
	assert.True(t, errors.IsConfiguration(err))
	assert.Contains(t, err.Error(), "env/sqrt")
}

func TestUnknownNameAnySignature(t *testing.T) {
	b := wasmtest.New()
	b.ImportFunc("env", "custom_thing", []byte{wasmtest.I64}, nil)
	m := parse(t, b.Bytes())

	syms, _, err := object.ReadSymbols(bytes.NewReader(builtinsObject(t, "host_custom_thing")))
	require.NoError(t, err)

	_, delta, err := patch.Apply(m, syms)
	require.NoError(t, err)
	assert.Equal(t, "host_custom_thing", delta["custom_thing"])
}

func TestWithPrefix(t *testing.T) {
	m := parse(t, wasmtest.Sqrt())
	syms, _, err := object.ReadSymbols(bytes.NewReader(builtinsObject(t, "host_sqrt", "builtin_sqrt")))
	require.NoError(t, err)

	_, delta, err := patch.Apply(m, syms, patch.WithPrefix("builtin_"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"sqrt": "builtin_sqrt"}, delta)
}

func TestUndefinedSymbolsIgnored(t *testing.T) {
	b := object.NewBuilder(object.MachineX86_64)
	sec := b.AddSection(".data", object.FlagAlloc|object.FlagWrite, 8, make([]byte, 8))
	require.NoError(t, b.Reloc(sec, 0, "host_sqrt", 0))
	syms, _, err := object.ReadSymbols(bytes.NewReader(b.Bytes()))
	require.NoError(t, err)

	patched, delta, err := patch.Apply(parse(t, wasmtest.Sqrt()), syms)
	require.NoError(t, err)
	assert.Empty(t, delta)
	assert.Len(t, patched.UnresolvedImports(), 1)
}

func TestArtifactErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/notes.txt", []byte("not an object"), 0o644))
	m := parse(t, wasmtest.Sqrt())

	_, _, err := patch.Module(m, "/missing.o", patch.WithFs(fs))
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
	assert.Equal(t, errors.PhasePatch, errors.PhaseOf(err))

	_, _, err = patch.Module(m, "/notes.txt", patch.WithFs(fs))
	require.Error(t, err)
	assert.Equal(t, errors.KindArtifactRead, errors.KindOf(err))
	assert.ErrorIs(t, err, object.ErrUnknownFormat)
}

func TestKnownSignature(t *testing.T) {
	ft, ok := patch.KnownSignature("pow")
	require.True(t, ok)
	assert.Equal(t, "(f64, f64) -> f64", ft.String())

	_, ok = patch.KnownSignature("print")
	assert.False(t, ok)
}
