package compiler

import (
	"strings"

	"github.com/spf13/afero"

	"github.com/wippyai/wasmc/errors"
	"github.com/wippyai/wasmc/object"
)

// ObjectFile is an emitted relocatable object.
type ObjectFile struct {
	data    []byte
	symbols []string
	machine object.Machine
}

// NewObjectFile wraps object bytes produced by a backend. symbols lists
// the names the object defines.
func NewObjectFile(data []byte, machine object.Machine, symbols []string) *ObjectFile {
	return &ObjectFile{data: data, machine: machine, symbols: symbols}
}

// Bytes returns the object image.
func (o *ObjectFile) Bytes() []byte { return o.data }

// Machine returns the target machine.
func (o *ObjectFile) Machine() object.Machine { return o.machine }

// Symbols returns the defined symbol names.
func (o *ObjectFile) Symbols() []string { return o.symbols }

// Write stores the object at path on the OS filesystem.
func (o *ObjectFile) Write(path string) error {
	return o.WriteFs(afero.NewOsFs(), path)
}

// WriteFs stores the object at path in fsys.
func (o *ObjectFile) WriteFs(fsys afero.Fs, path string) error {
	if err := afero.WriteFile(fsys, path, o.data, 0o644); err != nil {
		return errors.IO(errors.PhaseIO, path, "write object file", err)
	}
	return nil
}

// FuncIR is the IR of one function.
type FuncIR struct {
	Name  string
	Body  string
	Index uint32
}

// IRDump is the textual IR of every defined function.
type IRDump struct {
	Funcs []FuncIR
}

func (d *IRDump) String() string {
	var b strings.Builder
	for i, f := range d.Funcs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f.Body)
	}
	return b.String()
}

// Write stores the dump at path on the OS filesystem.
func (d *IRDump) Write(path string) error {
	return d.WriteFs(afero.NewOsFs(), path)
}

// WriteFs stores the dump at path in fsys.
func (d *IRDump) WriteFs(fsys afero.Fs, path string) error {
	if err := afero.WriteFile(fsys, path, []byte(d.String()), 0o644); err != nil {
		return errors.IO(errors.PhaseIO, path, "write IR file", err)
	}
	return nil
}
