package wasm_test

import (
	"errors"
	"testing"

	"github.com/wippyai/wasmc/wasm"
)

func TestDecodeInstructions(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want []string
	}{
		{"add", []byte{0x20, 0x00, 0x20, 0x01, 0x6A, 0x0B},
			[]string{"local.get 0", "local.get 1", "i32.add", "end"}},
		{"consts", []byte{0x41, 0x7F, 0x42, 0x80, 0x01, 0x44, 0, 0, 0, 0, 0, 0, 0xF0, 0x3F, 0x0B},
			[]string{"i32.const -1", "i64.const 128", "f64.const 1", "end"}},
		{"block", []byte{0x02, 0x7F, 0x41, 0x01, 0x0B, 0x02, 0x40, 0x0B, 0x0B},
			[]string{"block (result i32)", "i32.const 1", "end", "block", "end", "end"}},
		{"memory", []byte{0x28, 0x02, 0x08, 0x3F, 0x00, 0x0B},
			[]string{"i32.load offset=8 align=4", "memory.size 0", "end"}},
		{"br_table", []byte{0x0E, 0x02, 0x00, 0x01, 0x02, 0x0B},
			[]string{"br_table 0 1 2", "end"}},
		{"misc", []byte{0xFC, 0x00, 0xFC, 0x0A, 0x00, 0x00, 0x0B},
			[]string{"i32.trunc_sat_f32_s", "memory.copy 0 0", "end"}},
		{"refs", []byte{0xD0, 0x70, 0xD1, 0xD2, 0x03, 0x0B},
			[]string{"ref.null func", "ref.is_null", "ref.func 3", "end"}},
		{"call", []byte{0x10, 0x05, 0x11, 0x01, 0x00, 0x0B},
			[]string{"call 5", "call_indirect 1 0", "end"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins, err := wasm.DecodeInstructions(tt.code)
			if err != nil {
				t.Fatalf("DecodeInstructions: %v", err)
			}
			if len(ins) != len(tt.want) {
				t.Fatalf("got %d instructions, want %d: %v", len(ins), len(tt.want), ins)
			}
			for i, w := range tt.want {
				if got := ins[i].String(); got != w {
					t.Errorf("instruction %d = %q, want %q", i, got, w)
				}
			}
		})
	}
}

func TestDecodeInstructionsUnsupported(t *testing.T) {
	for name, code := range map[string][]byte{
		"simd":    {0xFD, 0x0C, 0x0B},
		"atomic":  {0xFE, 0x00, 0x0B},
		"unknown": {0x27, 0x0B},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := wasm.DecodeInstructions(code)
			if !errors.Is(err, wasm.ErrUnsupportedInstruction) {
				t.Errorf("got %v, want ErrUnsupportedInstruction", err)
			}
		})
	}
}

func TestDecodeInstructionsTruncated(t *testing.T) {
	if _, err := wasm.DecodeInstructions([]byte{0x41}); err == nil {
		t.Error("expected error for truncated immediate")
	}
}

func TestInstructionCallTarget(t *testing.T) {
	ins, err := wasm.DecodeInstructions([]byte{0x10, 0x07, 0x1A, 0x0B})
	if err != nil {
		t.Fatalf("DecodeInstructions: %v", err)
	}
	if idx, ok := ins[0].CallTarget(); !ok || idx != 7 {
		t.Errorf("CallTarget = %d, %v", idx, ok)
	}
	if _, ok := ins[1].CallTarget(); ok {
		t.Error("drop reported a call target")
	}
}
