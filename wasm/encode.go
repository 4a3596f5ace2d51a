package wasm

import (
	"fmt"
	"sort"

	"github.com/wippyai/wasmc/wasm/internal/binary"
)

// Encode serializes the module. Sections that were decoded and not
// replaced are emitted with their original bytes.
func (m *Module) Encode() []byte {
	size := 8
	for _, s := range m.sections {
		size += len(s.header) + len(s.Payload) + 6
	}
	w := binary.NewWriter(size)
	w.U32LE(Magic)
	w.U32LE(Version)

	for _, s := range m.sections {
		if s.header == nil {
			w.Section(s.ID, s.Payload)
			continue
		}
		w.Raw(s.header)
		w.Raw(s.Payload)
	}
	return w.Bytes()
}

// SetCustomSection replaces the first custom section called name, or
// appends a new one after all other sections. Later duplicates are dropped.
func (m *Module) SetCustomSection(name string, data []byte) error {
	w := binary.NewWriter(len(name) + len(data) + 5)
	w.Name(name)
	w.Raw(data)
	payload := w.Bytes()

	if err := m.decodeCustom(name, data); err != nil {
		return err
	}

	replaced := false
	out := m.sections[:0:0]
	for _, s := range m.sections {
		if s.ID == SectionCustom && s.Name == name {
			if replaced {
				continue
			}
			s = Section{ID: SectionCustom, Name: name, Payload: payload}
			replaced = true
		}
		out = append(out, s)
	}
	if !replaced {
		out = append(out, Section{ID: SectionCustom, Name: name, Payload: payload})
	}
	m.sections = out
	return nil
}

// StripCustomSections removes the custom sections for which keep returns
// false.
func (m *Module) StripCustomSections(keep func(name string) bool) {
	out := m.sections[:0:0]
	for _, s := range m.sections {
		if s.ID == SectionCustom && !keep(s.Name) {
			switch s.Name {
			case CustomSectionName:
				m.names = make(map[uint32]string)
			case CustomSectionBuiltins:
				m.builtins = make(map[uint32]string)
			}
			continue
		}
		out = append(out, s)
	}
	m.sections = out
}

// SetBuiltins records the given function imports as resolved to host
// builtin symbols. The function index space is unchanged.
func (m *Module) SetBuiltins(builtins map[uint32]string) error {
	numImported := uint32(m.NumImportedFuncs())
	for idx, sym := range builtins {
		if idx >= numImported {
			return fmt.Errorf("builtin slot %d is not a function import", idx)
		}
		if sym == "" {
			return fmt.Errorf("builtin slot %d has an empty symbol", idx)
		}
	}
	return m.SetCustomSection(CustomSectionBuiltins, encodeBuiltins(builtins))
}

func customData(s Section) []byte {
	r := binary.NewReader(s.Payload)
	if _, err := r.ReadName(); err != nil {
		return nil
	}
	return r.ReadRemaining()
}

func encodeBuiltins(builtins map[uint32]string) []byte {
	idxs := make([]uint32, 0, len(builtins))
	for idx := range builtins {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })

	w := binary.NewWriter(16 * len(idxs))
	w.U32(uint32(len(idxs)))
	for _, idx := range idxs {
		w.U32(idx)
		w.Name(builtins[idx])
	}
	return w.Bytes()
}

func decodeBuiltins(data []byte) (map[uint32]string, error) {
	r := binary.NewReader(data)
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]string, count)
	for i := uint32(0); i < count; i++ {
		idx, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		sym, err := r.ReadName()
		if err != nil {
			return nil, err
		}
		if _, dup := out[idx]; dup {
			return nil, fmt.Errorf("duplicate builtin slot %d", idx)
		}
		out[idx] = sym
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes", r.Len())
	}
	return out, nil
}

// parseFuncNames reads the function-names subsection of a name section.
func parseFuncNames(data []byte) (map[uint32]string, error) {
	const subsectionFuncNames = 1

	names := make(map[uint32]string)
	r := binary.NewReader(data)
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		sub, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, err
		}
		if id != subsectionFuncNames {
			continue
		}
		sr := binary.NewReader(sub)
		count, err := sr.ReadU32()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			idx, err := sr.ReadU32()
			if err != nil {
				return nil, err
			}
			name, err := sr.ReadName()
			if err != nil {
				return nil, err
			}
			names[idx] = name
		}
	}
	return names, nil
}
