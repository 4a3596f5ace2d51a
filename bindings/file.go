package bindings

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasmc/errors"
)

// Format is a bindings file encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	default:
		return 0, false
	}
}

// Load reads a bindings file such as
//
//	{"env": {"print": "host_print"}}
//
// The format follows the extension (.json, .yaml or .yml).
func Load(fsys afero.Fs, path string) (*Bindings, error) {
	format, ok := FormatFor(path)
	if !ok {
		return nil, errors.New(errors.PhaseConfigure, errors.KindUnsupported).
			Path(path).
			Detail("unknown bindings file extension %q", filepath.Ext(path)).
			Build()
	}
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NotFound(errors.PhaseConfigure, path, err)
		}
		return nil, errors.IO(errors.PhaseConfigure, path, "read bindings", err)
	}
	b, err := Parse(data, format)
	if err != nil {
		return nil, errors.New(errors.PhaseConfigure, errors.KindInvalidData).
			Path(path).
			Detail("parse bindings").
			Cause(err).
			Build()
	}
	return b, nil
}

// Parse decodes bindings data in the given format.
func Parse(data []byte, format Format) (*Bindings, error) {
	b := Empty()
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, b)
	case FormatYAML:
		err = yaml.Unmarshal(data, b)
	default:
		err = fmt.Errorf("unknown format %d", format)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// MarshalJSON encodes the registry as a namespace -> field -> symbol object.
func (b *Bindings) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Map())
}

// UnmarshalJSON replaces the registry contents.
func (b *Bindings) UnmarshalJSON(data []byte) error {
	var m map[string]map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	return b.replace(m)
}

// MarshalYAML implements yaml.Marshaler.
func (b *Bindings) MarshalYAML() (any, error) {
	return b.Map(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *Bindings) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]map[string]string
	if err := node.Decode(&m); err != nil {
		return err
	}
	return b.replace(m)
}

func (b *Bindings) replace(m map[string]map[string]string) error {
	for ns, fields := range m {
		if ns == "" {
			return stderrors.New("empty namespace")
		}
		for f, sym := range fields {
			if f == "" {
				return fmt.Errorf("namespace %q: empty field name", ns)
			}
			if sym == "" {
				return fmt.Errorf("%s/%s: empty symbol", ns, f)
			}
		}
	}
	b.m = FromMap(m).m
	return nil
}
