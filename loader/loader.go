// Package loader reads WebAssembly modules from a filesystem.
package loader

import (
	stderrors "errors"
	"io/fs"
	"os"

	"github.com/spf13/afero"

	"github.com/wippyai/wasmc/errors"
	"github.com/wippyai/wasmc/wasm"
)

// Load reads and decodes the module at path.
//
// A missing file is reported as a not_found error, unreadable bytes as
// io, and a binary that fails to decode as invalid_data. Component-model
// binaries and other binary versions are unsupported.
func Load(fsys afero.Fs, path string) (*wasm.Module, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return nil, errors.NotFound(errors.PhaseLoad, path, err)
		}
		return nil, errors.IO(errors.PhaseLoad, path, "read module", err)
	}
	return Parse(path, data)
}

// LoadFile reads a module from the OS filesystem.
func LoadFile(path string) (*wasm.Module, error) {
	return Load(afero.NewOsFs(), path)
}

// Parse decodes module bytes; path is only used for error context.
func Parse(path string, data []byte) (*wasm.Module, error) {
	m, err := wasm.ParseModule(data)
	if err == nil {
		return m, nil
	}
	switch {
	case stderrors.Is(err, wasm.ErrComponent):
		return nil, errors.New(errors.PhaseLoad, errors.KindUnsupported).
			Path(path).
			Detail("component-model binary; only core modules can be compiled").
			Cause(err).
			Build()
	case stderrors.Is(err, wasm.ErrInvalidVersion):
		return nil, errors.New(errors.PhaseLoad, errors.KindUnsupported).
			Path(path).
			Detail("unsupported binary version").
			Cause(err).
			Build()
	default:
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).
			Path(path).
			Detail("decode module").
			Cause(err).
			Build()
	}
}
