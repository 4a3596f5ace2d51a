package config

import (
	"github.com/spf13/pflag"
	"gopkg.in/guregu/null.v3"
)

// FlagSet returns the flags understood by FromFlags.
func FlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.SortFlags = false
	flags.StringP("output", "o", "", "output `path`")
	flags.String("emit", EmitObject, "output kind: obj, so or ir")
	flags.StringP("opt-level", "O", "", "optimization level: none, speed or speed_and_size")
	flags.StringArrayP("bindings", "b", nil, "bindings `file` (.json, .yaml); repeatable")
	flags.String("builtins", "", "builtins object `file`")
	flags.String("builtin-prefix", "", "symbol prefix of builtins")
	flags.String("min-reserved-size", "", "minimum reserved heap `size`, e.g. 4GiB")
	flags.String("max-reserved-size", "", "maximum reserved heap `size`")
	flags.String("guard-size", "", "heap guard `size`")
	flags.String("linker", "", "linker used for --emit so")
	flags.String("temp-dir", "", "scratch directory root")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	return flags
}

// FromFlags returns the flags that were set on the command line.
func FromFlags(flags *pflag.FlagSet) (Config, error) {
	conf := Config{
		Output:        nullString(flags, "output"),
		Emit:          nullString(flags, "emit"),
		OptLevel:      nullString(flags, "opt-level"),
		Builtins:      nullString(flags, "builtins"),
		BuiltinPrefix: nullString(flags, "builtin-prefix"),
		Linker:        nullString(flags, "linker"),
		TempDir:       nullString(flags, "temp-dir"),
		LogLevel:      nullString(flags, "log-level"),
	}
	var err error
	if conf.Bindings, err = flags.GetStringArray("bindings"); err != nil {
		return Config{}, err
	}
	for name, dst := range map[string]*ByteSize{
		"min-reserved-size": &conf.MinReservedSize,
		"max-reserved-size": &conf.MaxReservedSize,
		"guard-size":        &conf.GuardSize,
	} {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return Config{}, err
		}
		if err := dst.UnmarshalText([]byte(v)); err != nil {
			return Config{}, err
		}
	}
	return conf, nil
}

func nullString(flags *pflag.FlagSet, key string) null.String {
	v, err := flags.GetString(key)
	if err != nil {
		panic(err)
	}
	return null.NewString(v, flags.Changed(key))
}
