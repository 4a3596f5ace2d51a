package binary

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestReaderReadByte(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	r := NewReader(data)

	for i, want := range data {
		if r.Position() != i {
			t.Errorf("position before read %d: got %d, want %d", i, r.Position(), i)
		}
		b, err := r.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte %d: %v", i, err)
		}
		if b != want {
			t.Errorf("ReadByte %d: got 0x%02x, want 0x%02x", i, b, want)
		}
	}

	_, err := r.ReadByte()
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestReaderReadBytes(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05})

	got, err := r.ReadBytes(3)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !bytes.Equal(got, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("ReadBytes: got %v, want [1 2 3]", got)
	}
	if r.Len() != 2 {
		t.Errorf("Len: got %d, want 2", r.Len())
	}

	_, err = r.ReadBytes(10)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestReaderAtPosition(t *testing.T) {
	r := NewReaderAt([]byte{0x01, 0x02}, 100)
	if r.Position() != 100 {
		t.Errorf("position: got %d, want 100", r.Position())
	}
	_, _ = r.ReadByte()
	if r.Position() != 101 {
		t.Errorf("position: got %d, want 101", r.Position())
	}
}

func TestReaderReadU32(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    uint32
		wantErr bool
	}{
		{"zero", []byte{0x00}, 0, false},
		{"one byte", []byte{0x7f}, 127, false},
		{"two bytes", []byte{0x80, 0x01}, 128, false},
		{"624485", []byte{0xe5, 0x8e, 0x26}, 624485, false},
		{"max", []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xffffffff, false},
		{"too large", []byte{0xff, 0xff, 0xff, 0xff, 0x1f}, 0, true},
		{"too long", []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00}, 0, true},
		{"truncated", []byte{0x80}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewReader(tt.data).ReadU32()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReaderReadSigned(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want int64
	}{
		{"zero", []byte{0x00}, 0},
		{"minus one", []byte{0x7f}, -1},
		{"minus 64", []byte{0x40}, -64},
		{"63", []byte{0x3f}, 63},
		{"-123456", []byte{0xc0, 0xbb, 0x78}, -123456},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewReader(tt.data).ReadS64()
			if err != nil {
				t.Fatalf("ReadS64: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
			got32, err := NewReader(tt.data).ReadS32()
			if err != nil {
				t.Fatalf("ReadS32: %v", err)
			}
			if int64(got32) != tt.want {
				t.Errorf("ReadS32 got %d, want %d", got32, tt.want)
			}
		})
	}

	if _, err := NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00}).ReadS32(); err == nil {
		t.Error("expected overflow for 6-byte s32")
	}
}

func TestReaderReadName(t *testing.T) {
	r := NewReader([]byte{0x03, 'e', 'n', 'v'})
	name, err := r.ReadName()
	if err != nil {
		t.Fatalf("ReadName: %v", err)
	}
	if name != "env" {
		t.Errorf("got %q, want env", name)
	}

	if _, err := NewReader([]byte{0x02, 0xff, 0xfe}).ReadName(); err == nil {
		t.Error("expected invalid UTF-8 error")
	}
}

func TestWriterRoundTrip(t *testing.T) {
	w := NewWriter(0)
	w.U32(624485)
	w.U32(0)
	w.Name("sqrt")
	w.Vec([]byte{0xaa, 0xbb})
	w.U32LE(0x6d736100)
	w.Section(0, []byte{0x01, 'x'})

	if !bytes.Equal(w.Bytes()[:3], []byte{0xe5, 0x8e, 0x26}) {
		t.Errorf("leb128: got % x", w.Bytes()[:3])
	}

	r := NewReader(w.Bytes())
	if v, _ := r.ReadU32(); v != 624485 {
		t.Errorf("u32: got %d", v)
	}
	if v, _ := r.ReadU32(); v != 0 {
		t.Errorf("zero: got %d", v)
	}
	if v, _ := r.ReadName(); v != "sqrt" {
		t.Errorf("name: got %q", v)
	}
	n, _ := r.ReadU32()
	if b, _ := r.ReadBytes(int(n)); !bytes.Equal(b, []byte{0xaa, 0xbb}) {
		t.Errorf("vec: got %v", b)
	}
	if v, _ := r.ReadU32LE(); v != 0x6d736100 {
		t.Errorf("u32le: got %x", v)
	}
	if b := r.ReadRemaining(); !bytes.Equal(b, []byte{0x00, 0x02, 0x01, 'x'}) {
		t.Errorf("section: got % x", b)
	}
	if w.Len() != len(w.Bytes()) {
		t.Errorf("len: got %d", w.Len())
	}
}

func TestParseError(t *testing.T) {
	r := NewReaderAt([]byte{}, 42)
	err := r.WrapError("import section", io.ErrUnexpectedEOF)

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatal("expected ParseError")
	}
	if pe.Position != 42 || pe.Section != "import section" {
		t.Errorf("unexpected ParseError: %+v", pe)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("ParseError should unwrap to cause")
	}
}
