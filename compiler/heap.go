package compiler

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/wippyai/wasmc/errors"
	"github.com/wippyai/wasmc/wasm"
)

// HeapSettings sizes the virtual memory reserved for a guest's linear
// memory. All values are in bytes.
type HeapSettings struct {
	// MinReservedSize is reserved when the instance is created.
	MinReservedSize uint64
	// MaxReservedSize caps how far the heap may grow.
	MaxReservedSize uint64
	// GuardSize is the unmapped region after the heap.
	GuardSize uint64
}

const gib = 1 << 30

// DefaultHeapSettings returns 4 GiB for every size.
func DefaultHeapSettings() HeapSettings {
	return HeapSettings{
		MinReservedSize: 4 * gib,
		MaxReservedSize: 4 * gib,
		GuardSize:       4 * gib,
	}
}

func (h HeapSettings) String() string {
	return fmt.Sprintf("min=%s max=%s guard=%s",
		humanize.IBytes(h.MinReservedSize),
		humanize.IBytes(h.MaxReservedSize),
		humanize.IBytes(h.GuardSize))
}

// Validate checks the settings against the host page size.
func (h HeapSettings) Validate() error {
	return h.validate(uint64(os.Getpagesize()))
}

func (h HeapSettings) validate(pageSize uint64) error {
	if h.MinReservedSize > h.MaxReservedSize {
		return errors.InvalidHeap("min reserved size %s exceeds max reserved size %s",
			humanize.IBytes(h.MinReservedSize), humanize.IBytes(h.MaxReservedSize))
	}
	for _, f := range []struct {
		name string
		v    uint64
	}{
		{"min reserved size", h.MinReservedSize},
		{"max reserved size", h.MaxReservedSize},
		{"guard size", h.GuardSize},
	} {
		if f.v%pageSize != 0 {
			return errors.InvalidHeap("%s %d is not a multiple of the %d byte page size", f.name, f.v, pageSize)
		}
	}
	return nil
}

// checkMemory verifies the module's initial memory fits the reservation.
func (h HeapSettings) checkMemory(mem wasm.MemoryType) error {
	if mem.Limits.Memory64 {
		return errors.Unsupported(errors.PhaseConfigure, "64-bit linear memory")
	}
	initial := mem.Limits.Min * wasm.PageSize
	if mem.Limits.Min > 65536 || initial > h.MaxReservedSize {
		return errors.InvalidHeap("initial memory of %d pages (%s) exceeds max reserved size %s",
			mem.Limits.Min, humanize.IBytes(initial), humanize.IBytes(h.MaxReservedSize))
	}
	return nil
}

// limitPages converts MaxReservedSize to wasm pages, capped at 4 GiB.
func (h HeapSettings) limitPages() uint32 {
	pages := h.MaxReservedSize / wasm.PageSize
	if pages > 65536 {
		pages = 65536
	}
	return uint32(pages)
}
