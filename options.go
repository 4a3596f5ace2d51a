package wasmc

import (
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/wippyai/wasmc/compiler"
	"github.com/wippyai/wasmc/linker"
)

// Option configures a Driver at construction.
type Option func(*Driver)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithFs sets the filesystem used for the module, builtins artifacts and
// outputs. SharedObjectFile hands paths to an external linker, so it
// needs a filesystem backed by the OS.
func WithFs(fsys afero.Fs) Option {
	return func(d *Driver) {
		if fsys != nil {
			d.fs = fsys
		}
	}
}

// WithBackend replaces the native backend.
func WithBackend(b compiler.Backend) Option {
	return func(d *Driver) { d.backend = b }
}

// WithLinker replaces the system linker used by SharedObjectFile.
func WithLinker(l linker.Linker) Option {
	return func(d *Driver) {
		if l != nil {
			d.linker = l
		}
	}
}

// WithTempDir sets the directory under which SharedObjectFile creates its
// scratch directory. The default is the OS temp dir.
func WithTempDir(root string) Option {
	return func(d *Driver) { d.tempRoot = root }
}

// WithBuiltinPrefix sets the symbol prefix matched by Builtins.
func WithBuiltinPrefix(prefix string) Option {
	return func(d *Driver) { d.prefix = prefix }
}
