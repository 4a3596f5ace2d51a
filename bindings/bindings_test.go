package bindings_test

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasmc/bindings"
	"github.com/wippyai/wasmc/errors"
)

func randomBindings(r *rand.Rand) *bindings.Bindings {
	m := make(map[string]map[string]string)
	for i := 0; i < r.Intn(4)+1; i++ {
		ns := fmt.Sprintf("ns%d", r.Intn(3))
		if m[ns] == nil {
			m[ns] = make(map[string]string)
		}
		for j := 0; j < r.Intn(5); j++ {
			f := fmt.Sprintf("f%d", r.Intn(6))
			m[ns][f] = fmt.Sprintf("sym_%s_%s_%d", ns, f, r.Intn(2))
		}
	}
	return bindings.FromMap(m)
}

func TestExtendIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		b := randomBindings(r)

		once := bindings.Empty()
		require.NoError(t, once.Extend(b))

		twice := bindings.Empty()
		require.NoError(t, twice.Extend(b))
		require.NoError(t, twice.Extend(b))

		assert.True(t, once.Equal(twice), "iteration %d", i)
		assert.True(t, once.Equal(b))
	}
}

func TestExtendConflictAtomic(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 200; i++ {
		base := randomBindings(r)
		other := randomBindings(r)

		before, err := json.Marshal(base)
		require.NoError(t, err)
		snapshot := base.Clone()

		err = base.Extend(other)
		if err == nil {
			continue
		}
		var conflict *bindings.ConflictError
		require.ErrorAs(t, err, &conflict)

		after, err := json.Marshal(base)
		require.NoError(t, err)
		assert.Equal(t, string(before), string(after), "iteration %d", i)
		assert.True(t, base.Equal(snapshot))
	}
}

func TestConflictError(t *testing.T) {
	b := bindings.Env(map[string]string{"print": "host_print"})

	err := b.Extend(bindings.Env(map[string]string{"print": "other_print"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "env/print")
	assert.Contains(t, err.Error(), "host_print")
	assert.Contains(t, err.Error(), "other_print")
	assert.True(t, stderrors.Is(err, &errors.Error{Kind: errors.KindConflict}))

	var conflict *bindings.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "env", conflict.Namespace)
	assert.Equal(t, "print", conflict.Field)

	// identical re-declaration is fine
	require.NoError(t, b.Extend(bindings.Env(map[string]string{"print": "host_print"})))
	assert.Equal(t, 1, b.Len())
}

func TestLookup(t *testing.T) {
	b := bindings.FromMap(map[string]map[string]string{
		"env":  {"print": "host_print"},
		"wasi": {"fd_write": "host_fd_write"},
	})

	sym, err := b.Lookup("wasi", "fd_write")
	require.NoError(t, err)
	assert.Equal(t, "host_fd_write", sym)

	_, err = b.Lookup("env", "missing")
	assert.ErrorIs(t, err, bindings.ErrNotBound)

	var nilBindings *bindings.Bindings
	_, err = nilBindings.Lookup("env", "print")
	assert.ErrorIs(t, err, bindings.ErrNotBound)
}

func TestIterationOrder(t *testing.T) {
	b := bindings.FromMap(map[string]map[string]string{
		"zeta": {"b": "zb", "a": "za"},
		"env":  {"print": "host_print"},
		"none": {},
	})
	assert.Equal(t, []string{"env", "zeta"}, b.Namespaces())
	assert.Equal(t, []string{"a", "b"}, b.Fields("zeta"))

	var got []string
	b.Each(func(ns, field, sym string) {
		got = append(got, ns+"/"+field+"="+sym)
	})
	assert.Equal(t, []string{"env/print=host_print", "zeta/a=za", "zeta/b=zb"}, got)
}

func TestCloneAndFilter(t *testing.T) {
	b := bindings.Env(map[string]string{"print": "host_print", "sqrt": "host_sqrt"})

	c := b.Clone()
	require.NoError(t, c.Extend(bindings.Env(map[string]string{"exit": "host_exit"})))
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 3, c.Len())

	f := c.Filter(func(ns, field string) bool { return field != "print" })
	assert.Equal(t, []string{"exit", "sqrt"}, f.Fields("env"))
}

func TestZeroValue(t *testing.T) {
	var b bindings.Bindings
	require.NoError(t, b.Extend(bindings.Env(map[string]string{"print": "host_print"})))
	sym, err := b.Lookup("env", "print")
	require.NoError(t, err)
	assert.Equal(t, "host_print", sym)
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/b.json", []byte(`{"env": {"print": "host_print"}}`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/b.yaml", []byte("env:\n  print: host_print\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/bad.json", []byte(`{"env": ["x"]}`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/empty.yml", []byte("env:\n  print: \"\"\n"), 0o644))

	want := bindings.Env(map[string]string{"print": "host_print"})
	for _, path := range []string{"/b.json", "/b.yaml"} {
		b, err := bindings.Load(fs, path)
		require.NoError(t, err, path)
		assert.True(t, want.Equal(b), path)
	}

	tests := []struct {
		path string
		kind errors.Kind
	}{
		{"/missing.json", errors.KindNotFound},
		{"/bad.json", errors.KindInvalidData},
		{"/empty.yml", errors.KindInvalidData},
		{"/b.toml", errors.KindUnsupported},
	}
	for _, tt := range tests {
		_, err := bindings.Load(fs, tt.path)
		require.Error(t, err, tt.path)
		assert.Equal(t, tt.kind, errors.KindOf(err), tt.path)
		assert.True(t, errors.IsConfiguration(err), tt.path)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	b := bindings.FromMap(map[string]map[string]string{
		"env":  {"print": "host_print"},
		"wasi": {"fd_write": "host_fd_write"},
	})

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"env":{"print":"host_print"},"wasi":{"fd_write":"host_fd_write"}}`, string(data))

	back, err := bindings.Parse(data, bindings.FormatJSON)
	require.NoError(t, err)
	assert.True(t, b.Equal(back))
}
