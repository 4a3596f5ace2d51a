// Package config layers compiler settings from a YAML file, the
// environment and command line flags.
//
// Each layer yields a Config whose unset fields are null; Apply copies
// the set fields of one layer over another:
//
//	conf := config.Default().Apply(fileConf).Apply(envConf).Apply(flagConf)
package config

import (
	stderrors "errors"
	"io/fs"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/afero"
	"gopkg.in/guregu/null.v3"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasmc/compiler"
	"github.com/wippyai/wasmc/errors"
	"github.com/wippyai/wasmc/patch"
)

// EnvPrefix prefixes every environment variable, e.g. WASMC_OPT_LEVEL.
const EnvPrefix = "wasmc"

// Output kinds.
const (
	EmitObject = "obj"
	EmitShared = "so"
	EmitIR     = "ir"
)

// ByteSize is an optional byte count that parses humanized sizes such as
// "4GiB" or "64 KiB".
type ByteSize struct {
	null.Int
}

// SizeFrom returns a set ByteSize.
func SizeFrom(n uint64) ByteSize {
	return ByteSize{null.IntFrom(int64(n))}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" || s == "null" {
		b.Valid = false
		return nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return err
	}
	b.Int = null.IntFrom(int64(n))
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	if !b.Valid {
		return []byte{}, nil
	}
	return []byte(humanize.IBytes(uint64(b.Int64))), nil
}

func (b ByteSize) String() string {
	text, _ := b.MarshalText()
	return string(text)
}

// Config holds every setting of a compilation.
type Config struct {
	Output          null.String `yaml:"output" envconfig:"output"`
	Emit            null.String `yaml:"emit" envconfig:"emit"`
	OptLevel        null.String `yaml:"opt_level" envconfig:"opt_level"`
	Builtins        null.String `yaml:"builtins" envconfig:"builtins"`
	BuiltinPrefix   null.String `yaml:"builtin_prefix" envconfig:"builtin_prefix"`
	Linker          null.String `yaml:"linker" envconfig:"linker"`
	TempDir         null.String `yaml:"temp_dir" envconfig:"temp_dir"`
	LogLevel        null.String `yaml:"log_level" envconfig:"log_level"`
	MinReservedSize ByteSize    `yaml:"min_reserved_size" envconfig:"min_reserved_size"`
	MaxReservedSize ByteSize    `yaml:"max_reserved_size" envconfig:"max_reserved_size"`
	GuardSize       ByteSize    `yaml:"guard_size" envconfig:"guard_size"`
	Bindings        []string    `yaml:"bindings" envconfig:"bindings"`
}

// Default returns the built-in settings.
func Default() Config {
	heap := compiler.DefaultHeapSettings()
	return Config{
		Emit:            null.StringFrom(EmitObject),
		OptLevel:        null.StringFrom(compiler.DefaultOptLevel.String()),
		BuiltinPrefix:   null.StringFrom(patch.DefaultPrefix),
		Linker:          null.StringFrom("ld"),
		LogLevel:        null.StringFrom("info"),
		MinReservedSize: SizeFrom(heap.MinReservedSize),
		MaxReservedSize: SizeFrom(heap.MaxReservedSize),
		GuardSize:       SizeFrom(heap.GuardSize),
	}
}

// Apply returns c with every set field of cfg copied over it. Bindings
// files accumulate.
func (c Config) Apply(cfg Config) Config {
	if cfg.Output.Valid {
		c.Output = cfg.Output
	}
	if cfg.Emit.Valid {
		c.Emit = cfg.Emit
	}
	if cfg.OptLevel.Valid {
		c.OptLevel = cfg.OptLevel
	}
	if cfg.Builtins.Valid {
		c.Builtins = cfg.Builtins
	}
	if cfg.BuiltinPrefix.Valid {
		c.BuiltinPrefix = cfg.BuiltinPrefix
	}
	if cfg.Linker.Valid {
		c.Linker = cfg.Linker
	}
	if cfg.TempDir.Valid {
		c.TempDir = cfg.TempDir
	}
	if cfg.LogLevel.Valid {
		c.LogLevel = cfg.LogLevel
	}
	if cfg.MinReservedSize.Valid {
		c.MinReservedSize = cfg.MinReservedSize
	}
	if cfg.MaxReservedSize.Valid {
		c.MaxReservedSize = cfg.MaxReservedSize
	}
	if cfg.GuardSize.Valid {
		c.GuardSize = cfg.GuardSize
	}
	if len(cfg.Bindings) > 0 {
		c.Bindings = append(append([]string(nil), c.Bindings...), cfg.Bindings...)
	}
	return c
}

// FromFile reads a YAML config file. A missing file yields an empty
// Config when optional is true.
func FromFile(fsys afero.Fs, path string, optional bool) (Config, error) {
	var conf Config
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			if optional {
				return conf, nil
			}
			return conf, errors.NotFound(errors.PhaseConfigure, path, err)
		}
		return conf, errors.IO(errors.PhaseConfigure, path, "read config", err)
	}
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return Config{}, errors.New(errors.PhaseConfigure, errors.KindInvalidData).
			Path(path).
			Detail("parse config").
			Cause(err).
			Build()
	}
	return conf, nil
}

// FromEnv reads WASMC_* environment variables.
func FromEnv() (Config, error) {
	var conf Config
	if err := envconfig.Process(EnvPrefix, &conf); err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfigure, errors.KindInvalidInput, err, "read environment")
	}
	return conf, nil
}

// Opt parses the optimization level.
func (c Config) Opt() (compiler.OptLevel, error) {
	if !c.OptLevel.Valid {
		return compiler.DefaultOptLevel, nil
	}
	l, err := compiler.ParseOptLevel(c.OptLevel.String)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseConfigure, errors.KindInvalidInput, err, "opt level")
	}
	return l, nil
}

// Heap returns the heap settings, falling back to the defaults for unset
// sizes.
func (c Config) Heap() compiler.HeapSettings {
	h := compiler.DefaultHeapSettings()
	if c.MinReservedSize.Valid {
		h.MinReservedSize = uint64(c.MinReservedSize.Int64)
	}
	if c.MaxReservedSize.Valid {
		h.MaxReservedSize = uint64(c.MaxReservedSize.Int64)
	}
	if c.GuardSize.Valid {
		h.GuardSize = uint64(c.GuardSize.Int64)
	}
	return h
}

// Validate checks the settings that can be checked without a module.
func (c Config) Validate() error {
	switch c.Emit.String {
	case EmitObject, EmitShared, EmitIR:
	default:
		return errors.InvalidInput(errors.PhaseConfigure, "emit must be one of obj, so, ir; got "+c.Emit.String)
	}
	if _, err := c.Opt(); err != nil {
		return err
	}
	for _, s := range []ByteSize{c.MinReservedSize, c.MaxReservedSize, c.GuardSize} {
		if s.Valid && s.Int64 < 0 {
			return errors.InvalidHeap("negative size %d", s.Int64)
		}
	}
	return nil
}
