package object_test

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/wippyai/wasmc/object"
)

func buildSample(t *testing.T, machine object.Machine) []byte {
	t.Helper()
	b := object.NewBuilder(machine)
	text := b.AddSection(".text", object.FlagAlloc|object.FlagExec, 16, []byte{0xC3, 0xC3})
	table := b.AddSection(".data.rel.imports", object.FlagAlloc|object.FlagWrite, 8, make([]byte, 16))
	b.AddNote(".note.GNU-stack")

	if err := b.Define("host_ret", text, 0, 1, object.KindFunc); err != nil {
		t.Fatal(err)
	}
	if err := b.Define("table", table, 0, 16, object.KindObject); err != nil {
		t.Fatal(err)
	}
	if err := b.Reloc(table, 8, "host_print", 0); err != nil {
		t.Fatal(err)
	}
	if err := b.Reloc(table, 0, "host_ret", 0); err != nil {
		t.Fatal(err)
	}
	return b.Bytes()
}

func TestBuilderParsesWithDebugELF(t *testing.T) {
	for _, machine := range []object.Machine{object.MachineX86_64, object.MachineAArch64} {
		t.Run(machine.String(), func(t *testing.T) {
			f, err := elf.NewFile(bytes.NewReader(buildSample(t, machine)))
			if err != nil {
				t.Fatalf("elf.NewFile: %v", err)
			}
			defer f.Close()

			if f.Type != elf.ET_REL {
				t.Errorf("type = %v", f.Type)
			}
			want := elf.EM_X86_64
			if machine == object.MachineAArch64 {
				want = elf.EM_AARCH64
			}
			if f.Machine != want {
				t.Errorf("machine = %v, want %v", f.Machine, want)
			}
			for _, name := range []string{".text", ".data.rel.imports", ".rela.data.rel.imports", ".note.GNU-stack", ".symtab", ".strtab", ".shstrtab"} {
				if f.Section(name) == nil {
					t.Errorf("missing section %s", name)
				}
			}

			syms, err := f.Symbols()
			if err != nil {
				t.Fatalf("Symbols: %v", err)
			}
			byName := make(map[string]elf.Symbol)
			for _, s := range syms {
				byName[s.Name] = s
			}
			if s, ok := byName["host_print"]; !ok || s.Section != elf.SHN_UNDEF {
				t.Errorf("host_print = %+v, %v", s, ok)
			}
			if s := byName["host_ret"]; elf.ST_TYPE(s.Info) != elf.STT_FUNC || elf.ST_BIND(s.Info) != elf.STB_GLOBAL {
				t.Errorf("host_ret info = %#x", s.Info)
			}
			if s := byName["table"]; s.Size != 16 || f.Sections[s.Section].Name != ".data.rel.imports" {
				t.Errorf("table = %+v", s)
			}
		})
	}
}

func TestBuilderRelocations(t *testing.T) {
	f, err := elf.NewFile(bytes.NewReader(buildSample(t, object.MachineX86_64)))
	if err != nil {
		t.Fatalf("elf.NewFile: %v", err)
	}
	defer f.Close()

	rela := f.Section(".rela.data.rel.imports")
	data, err := rela.Data()
	if err != nil {
		t.Fatalf("Data: %v", err)
	}
	if len(data) != 48 {
		t.Fatalf("rela size = %d", len(data))
	}
	syms, _ := f.Symbols()

	var targets []string
	for i := 0; i < 2; i++ {
		e := data[24*i:]
		off := binary.LittleEndian.Uint64(e[0:])
		info := binary.LittleEndian.Uint64(e[8:])
		if off != uint64(8*i) {
			t.Errorf("reloc %d offset = %d", i, off)
		}
		if elf.R_X86_64(info&0xffffffff) != elf.R_X86_64_64 {
			t.Errorf("reloc %d type = %d", i, info&0xffffffff)
		}
		// symbol indices count the null entry that Symbols omits
		targets = append(targets, syms[info>>32-1].Name)
	}
	if targets[0] != "host_ret" || targets[1] != "host_print" {
		t.Errorf("targets = %v", targets)
	}
}

func TestBuilderErrors(t *testing.T) {
	b := object.NewBuilder(object.MachineX86_64)
	sec := b.AddSection(".rodata", object.FlagAlloc, 8, make([]byte, 8))

	if err := b.Define("x", 5, 0, 0, object.KindObject); err == nil {
		t.Error("expected error for bad section")
	}
	if err := b.Define("x", sec, 4, 8, object.KindObject); err == nil {
		t.Error("expected error for symbol past section end")
	}
	if err := b.Define("x", sec, 0, 8, object.KindObject); err != nil {
		t.Fatal(err)
	}
	if err := b.Define("x", sec, 0, 8, object.KindObject); err == nil {
		t.Error("expected error for duplicate symbol")
	}
	if err := b.Reloc(sec, 4, "y", 0); err == nil {
		t.Error("expected error for relocation past section end")
	}
}

func TestReadSymbolsELF(t *testing.T) {
	syms, format, err := object.ReadSymbols(bytes.NewReader(buildSample(t, object.MachineX86_64)))
	if err != nil {
		t.Fatalf("ReadSymbols: %v", err)
	}
	if format != object.FormatELF {
		t.Errorf("format = %v", format)
	}

	funcs := object.DefinedFuncs(syms)
	if len(funcs) != 1 {
		t.Fatalf("defined funcs = %v", funcs)
	}
	if s := funcs["host_ret"]; s.Section != ".text" || s.Size != 1 {
		t.Errorf("host_ret = %+v", s)
	}
}

func TestReadSymbolsUnknown(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty": nil,
		"text":  []byte("hello world"),
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := object.ReadSymbols(bytes.NewReader(data))
			if err != object.ErrUnknownFormat {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestReadSymbolsCorrupt(t *testing.T) {
	data := buildSample(t, object.MachineX86_64)[:80]
	if _, _, err := object.ReadSymbols(bytes.NewReader(data)); err == nil {
		t.Error("expected error for truncated ELF")
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		head []byte
		want object.Format
	}{
		{[]byte{0x7F, 'E', 'L', 'F'}, object.FormatELF},
		{[]byte{'M', 'Z', 0x90, 0x00}, object.FormatPE},
		{[]byte{0xCF, 0xFA, 0xED, 0xFE}, object.FormatMachO},
		{[]byte{0xFE, 0xED, 0xFA, 0xCE}, object.FormatMachO},
		{[]byte{0x00, 0x61, 0x73, 0x6D}, object.FormatUnknown},
	}
	for _, tt := range tests {
		if got := object.DetectFormat(tt.head); got != tt.want {
			t.Errorf("DetectFormat(%x) = %v, want %v", tt.head, got, tt.want)
		}
	}
}
