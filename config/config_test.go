package config_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasmc/compiler"
	"github.com/wippyai/wasmc/config"
	"github.com/wippyai/wasmc/errors"
)

func TestByteSize(t *testing.T) {
	tests := map[string]int64{
		"65536":  65536,
		"64KiB":  64 << 10,
		"4 GiB":  4 << 30,
		"1MB":    1000 * 1000,
		" 2MiB ": 2 << 20,
	}
	for in, want := range tests {
		var b config.ByteSize
		require.NoError(t, b.UnmarshalText([]byte(in)), in)
		assert.True(t, b.Valid, in)
		assert.Equal(t, want, b.Int64, in)
	}

	var b config.ByteSize
	assert.Error(t, b.UnmarshalText([]byte("lots")))
	require.NoError(t, b.UnmarshalText([]byte("")))
	assert.False(t, b.Valid)
	assert.Equal(t, "4.0 GiB", config.SizeFrom(4<<30).String())
}

func TestApply(t *testing.T) {
	base := config.Default()
	layer := config.Config{
		OptLevel:  null.StringFrom("none"),
		GuardSize: config.SizeFrom(1 << 20),
		Bindings:  []string{"a.json"},
	}
	got := base.Apply(layer).Apply(config.Config{Bindings: []string{"b.yaml"}})

	assert.Equal(t, "none", got.OptLevel.String)
	assert.Equal(t, config.EmitObject, got.Emit.String, "unset fields keep the lower layer")
	assert.Equal(t, int64(1<<20), got.GuardSize.Int64)
	assert.Equal(t, []string{"a.json", "b.yaml"}, got.Bindings)
	assert.Empty(t, base.Bindings, "Apply does not alias the receiver")
}

func TestFromFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/wasmc.yaml", []byte(`
opt_level: speed
emit: so
min_reserved_size: 64KiB
max_reserved_size: 1GiB
guard_size: 65536
bindings:
  - env.json
`), 0o644))

	conf, err := config.FromFile(fs, "/wasmc.yaml", false)
	require.NoError(t, err)
	assert.Equal(t, "speed", conf.OptLevel.String)
	assert.Equal(t, "so", conf.Emit.String)
	assert.Equal(t, int64(64<<10), conf.MinReservedSize.Int64)
	assert.Equal(t, int64(1<<30), conf.MaxReservedSize.Int64)
	assert.Equal(t, int64(65536), conf.GuardSize.Int64)
	assert.Equal(t, []string{"env.json"}, conf.Bindings)
	assert.False(t, conf.Output.Valid)

	_, err = config.FromFile(fs, "/missing.yaml", false)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
	conf, err = config.FromFile(fs, "/missing.yaml", true)
	require.NoError(t, err)
	assert.False(t, conf.Emit.Valid)

	require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte("guard_size: [1"), 0o644))
	_, err = config.FromFile(fs, "/bad.yaml", false)
	assert.Equal(t, errors.KindInvalidData, errors.KindOf(err))
}

func TestFromFileRoundTrip(t *testing.T) {
	conf := config.Default()
	data, err := yaml.Marshal(conf)
	require.NoError(t, err)
	assert.Contains(t, string(data), "guard_size: 4.0 GiB")

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/c.yaml", data, 0o644))
	back, err := config.FromFile(fs, "/c.yaml", false)
	require.NoError(t, err)
	assert.Equal(t, conf.Heap(), back.Heap())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("WASMC_OPT_LEVEL", "speed")
	t.Setenv("WASMC_GUARD_SIZE", "2MiB")
	t.Setenv("WASMC_BINDINGS", "a.json,b.json")

	conf, err := config.FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "speed", conf.OptLevel.String)
	assert.Equal(t, int64(2<<20), conf.GuardSize.Int64)
	assert.Equal(t, []string{"a.json", "b.json"}, conf.Bindings)
	assert.False(t, conf.Emit.Valid)
	assert.False(t, conf.MaxReservedSize.Valid)

	t.Setenv("WASMC_MIN_RESERVED_SIZE", "huge")
	_, err = config.FromEnv()
	assert.Error(t, err)
}

func TestFromFlags(t *testing.T) {
	flags := config.FlagSet()
	require.NoError(t, flags.Parse([]string{
		"-O", "none", "--guard-size", "128KiB", "-b", "x.json", "-b", "y.yaml", "-o", "out.o",
	}))
	conf, err := config.FromFlags(flags)
	require.NoError(t, err)

	assert.Equal(t, "none", conf.OptLevel.String)
	assert.Equal(t, "out.o", conf.Output.String)
	assert.Equal(t, int64(128<<10), conf.GuardSize.Int64)
	assert.Equal(t, []string{"x.json", "y.yaml"}, conf.Bindings)
	assert.False(t, conf.Emit.Valid, "defaults of unchanged flags are not set")
	assert.False(t, conf.MinReservedSize.Valid)

	bad := config.FlagSet()
	require.NoError(t, bad.Parse([]string{"--max-reserved-size", "many"}))
	_, err = config.FromFlags(bad)
	assert.Error(t, err)
}

func TestLayeringPrecedence(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/wasmc.yaml", []byte("opt_level: none\nemit: ir\nguard_size: 64KiB\n"), 0o644))
	t.Setenv("WASMC_OPT_LEVEL", "speed")
	t.Setenv("WASMC_EMIT", "so")

	file, err := config.FromFile(fs, "/wasmc.yaml", false)
	require.NoError(t, err)
	env, err := config.FromEnv()
	require.NoError(t, err)
	flags := config.FlagSet()
	require.NoError(t, flags.Parse([]string{"--emit", "obj"}))
	cli, err := config.FromFlags(flags)
	require.NoError(t, err)

	conf := config.Default().Apply(file).Apply(env).Apply(cli)
	assert.Equal(t, "speed", conf.OptLevel.String)
	assert.Equal(t, "obj", conf.Emit.String)
	assert.Equal(t, uint64(64<<10), conf.Heap().GuardSize)
	assert.Equal(t, compiler.DefaultHeapSettings().MaxReservedSize, conf.Heap().MaxReservedSize)

	opt, err := conf.Opt()
	require.NoError(t, err)
	assert.Equal(t, compiler.OptSpeed, opt)
	require.NoError(t, conf.Validate())
}

func TestValidate(t *testing.T) {
	conf := config.Default()
	conf.Emit = null.StringFrom("exe")
	assert.Error(t, conf.Validate())

	conf = config.Default()
	conf.OptLevel = null.StringFrom("O9")
	err := conf.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}
