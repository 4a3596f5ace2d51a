package binary

import "encoding/binary"

// Writer appends module encodings to a byte slice.
type Writer struct {
	b []byte
}

// NewWriter returns a Writer with capacity for sizeHint bytes.
func NewWriter(sizeHint int) *Writer {
	return &Writer{b: make([]byte, 0, sizeHint)}
}

// Bytes returns the encoding so far. The slice aliases the writer.
func (w *Writer) Bytes() []byte { return w.b }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.b) }

// Byte appends b.
func (w *Writer) Byte(b byte) { w.b = append(w.b, b) }

// Raw appends data unchanged.
func (w *Writer) Raw(data []byte) { w.b = append(w.b, data...) }

// U32 appends v as unsigned LEB128. Unsigned LEB128 and the uvarint
// format of encoding/binary are the same encoding.
func (w *Writer) U32(v uint32) { w.b = binary.AppendUvarint(w.b, uint64(v)) }

// U32LE appends v as four little-endian bytes.
func (w *Writer) U32LE(v uint32) { w.b = binary.LittleEndian.AppendUint32(w.b, v) }

// Vec appends data prefixed with its length.
func (w *Writer) Vec(data []byte) {
	w.U32(uint32(len(data)))
	w.Raw(data)
}

// Name appends a length-prefixed UTF-8 name.
func (w *Writer) Name(s string) {
	w.U32(uint32(len(s)))
	w.b = append(w.b, s...)
}

// Section appends a section with the given id and payload.
func (w *Writer) Section(id byte, payload []byte) {
	w.Byte(id)
	w.Vec(payload)
}
