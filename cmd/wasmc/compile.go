package main

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasmc"
	"github.com/wippyai/wasmc/bindings"
	"github.com/wippyai/wasmc/config"
	"github.com/wippyai/wasmc/linker"
)

func newCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <module.wasm>",
		Short: "Compile a module into an object, shared library or IR dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := newLogger(conf.LogLevel.String)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return compile(cmd.Context(), args[0], conf, log)
		},
	}
	cmd.Flags().AddFlagSet(config.FlagSet())
	return cmd
}

// loadConfig layers defaults, the config file, WASMC_* variables and flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	file, err := config.FromFile(afero.NewOsFs(), path, !cmd.Flags().Changed("config"))
	if err != nil {
		return config.Config{}, err
	}
	env, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	cli, err := config.FromFlags(cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	conf := config.Default().Apply(file).Apply(env).Apply(cli)
	return conf, conf.Validate()
}

// defaultOutput derives the output path from the module path.
func defaultOutput(module, emit string) string {
	ext := map[string]string{config.EmitObject: ".o", config.EmitShared: ".so", config.EmitIR: ".clif"}[emit]
	return strings.TrimSuffix(module, filepath.Ext(module)) + ext
}

// newDriver builds a driver for module from conf, applying bindings and
// builtins.
func newDriver(module string, conf config.Config, log *zap.Logger) (*wasmc.Driver, error) {
	fs := afero.NewOsFs()
	opts := []wasmc.Option{
		wasmc.WithLogger(log),
		wasmc.WithFs(fs),
		wasmc.WithBuiltinPrefix(conf.BuiltinPrefix.String),
		wasmc.WithLinker(linker.Command{Path: conf.Linker.String, Logger: log}),
	}
	if conf.TempDir.Valid {
		opts = append(opts, wasmc.WithTempDir(conf.TempDir.String))
	}
	d, err := wasmc.New(module, opts...)
	if err != nil {
		return nil, err
	}
	for _, path := range conf.Bindings {
		b, err := bindings.Load(fs, path)
		if err != nil {
			return nil, err
		}
		if err := d.WithBindings(b); err != nil {
			return nil, err
		}
	}
	if conf.Builtins.Valid {
		if err := d.WithBuiltins(conf.Builtins.String); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func compile(ctx context.Context, module string, conf config.Config, log *zap.Logger) error {
	d, err := newDriver(module, conf, log)
	if err != nil {
		return err
	}
	opt, err := conf.Opt()
	if err != nil {
		return err
	}
	if err := d.WithOptLevel(opt); err != nil {
		return err
	}
	if err := d.WithHeap(conf.Heap()); err != nil {
		return err
	}

	out := conf.Output.String
	if !conf.Output.Valid {
		out = defaultOutput(module, conf.Emit.String)
	}
	log.Info("compiling", zap.String("module", module), zap.String("emit", conf.Emit.String), zap.String("output", out))

	switch conf.Emit.String {
	case config.EmitShared:
		return d.SharedObjectFile(ctx, out)
	case config.EmitIR:
		return d.ClifIR(ctx, out)
	default:
		return d.ObjectFile(ctx, out)
	}
}
