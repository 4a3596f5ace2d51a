package wasm

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/wasmc/wasm/internal/binary"
)

// ErrUnsupportedInstruction is returned for opcodes outside the supported
// instruction set (SIMD, threads, unknown prefixes).
var ErrUnsupportedInstruction = errors.New("unsupported instruction")

// Instruction is one decoded instruction of a function body.
type Instruction struct {
	// Args holds the rendered immediates in binary order.
	Args []string
	// Offset is the position of the opcode relative to the start of the
	// instruction stream.
	Offset int
	// Sub is the sub-opcode of 0xFC-prefixed instructions.
	Sub    uint32
	Opcode byte
}

// Name returns the text-format mnemonic of the instruction.
func (i Instruction) Name() string {
	if i.Opcode == OpPrefixMisc {
		if int(i.Sub) < len(miscNames) {
			return miscNames[i.Sub]
		}
		return fmt.Sprintf("misc.0x%x", i.Sub)
	}
	if n := opcodeNames[i.Opcode]; n != "" {
		return n
	}
	return fmt.Sprintf("op.0x%02x", i.Opcode)
}

func (i Instruction) String() string {
	if len(i.Args) == 0 {
		return i.Name()
	}
	return i.Name() + " " + strings.Join(i.Args, " ")
}

// CallTarget returns the callee of a direct call.
func (i Instruction) CallTarget() (uint32, bool) {
	if i.Opcode != OpCall && i.Opcode != OpReturnCall {
		return 0, false
	}
	v, err := strconv.ParseUint(i.Args[0], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// DecodeInstructions decodes an instruction stream such as FuncBody.Code.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	r := binary.NewReader(code)
	var out []Instruction
	for r.Len() > 0 {
		off := r.Position()
		op, _ := r.ReadByte()
		ins := Instruction{Opcode: op, Offset: off}
		if err := decodeImmediates(r, &ins); err != nil {
			return nil, fmt.Errorf("offset %d (%s): %w", off, ins.Name(), err)
		}
		out = append(out, ins)
	}
	return out, nil
}

func decodeImmediates(r *binary.Reader, ins *Instruction) error {
	u32 := func() error {
		v, err := r.ReadU32()
		if err == nil {
			ins.Args = append(ins.Args, strconv.FormatUint(uint64(v), 10))
		}
		return err
	}

	op := ins.Opcode
	switch {
	case op == OpBlock || op == OpLoop || op == OpIf:
		bt, err := r.ReadS33()
		if err != nil {
			return err
		}
		if s := blockTypeString(bt); s != "" {
			ins.Args = append(ins.Args, s)
		}
		return nil
	case op == OpBr || op == OpBrIf || op == OpCall || op == OpReturnCall,
		op >= OpLocalGet && op <= OpTableSet,
		op == OpRefFunc:
		return u32()
	case op == OpBrTable:
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		if int(n) > r.Len() {
			return fmt.Errorf("br_table length %d exceeds body", n)
		}
		for j := uint32(0); j <= n; j++ {
			if err := u32(); err != nil {
				return err
			}
		}
		return nil
	case op == OpCallIndirect || op == OpReturnCallIndirect:
		if err := u32(); err != nil {
			return err
		}
		return u32()
	case op == OpSelectType:
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		for j := uint32(0); j < n; j++ {
			vt, err := readValType(r)
			if err != nil {
				return err
			}
			ins.Args = append(ins.Args, vt.String())
		}
		return nil
	case op >= OpI32Load && op <= OpI64Store32:
		return memArg(r, ins)
	case op == OpMemorySize || op == OpMemoryGrow:
		return u32()
	case op == OpI32Const:
		v, err := r.ReadS32()
		if err == nil {
			ins.Args = append(ins.Args, strconv.FormatInt(int64(v), 10))
		}
		return err
	case op == OpI64Const:
		v, err := r.ReadS64()
		if err == nil {
			ins.Args = append(ins.Args, strconv.FormatInt(v, 10))
		}
		return err
	case op == OpF32Const:
		bits, err := r.ReadBytes(4)
		if err != nil {
			return err
		}
		v := math.Float32frombits(uint32(bits[0]) | uint32(bits[1])<<8 | uint32(bits[2])<<16 | uint32(bits[3])<<24)
		ins.Args = append(ins.Args, strconv.FormatFloat(float64(v), 'g', -1, 32))
		return nil
	case op == OpF64Const:
		v, err := r.ReadU64LE()
		if err == nil {
			ins.Args = append(ins.Args, strconv.FormatFloat(math.Float64frombits(v), 'g', -1, 64))
		}
		return err
	case op == OpRefNull:
		vt, err := r.ReadS33()
		if err == nil {
			ins.Args = append(ins.Args, heapTypeString(vt))
		}
		return err
	case op == OpPrefixMisc:
		return decodeMisc(r, ins, u32)
	case op == OpPrefixSIMD || op == OpPrefixAtomic:
		return fmt.Errorf("%w: prefix 0x%02x", ErrUnsupportedInstruction, op)
	case opcodeNames[op] != "":
		return nil
	default:
		return fmt.Errorf("%w: opcode 0x%02x", ErrUnsupportedInstruction, op)
	}
}

func decodeMisc(r *binary.Reader, ins *Instruction, u32 func() error) error {
	sub, err := r.ReadU32()
	if err != nil {
		return err
	}
	ins.Sub = sub
	switch sub {
	case 0, 1, 2, 3, 4, 5, 6, 7:
		return nil
	case MiscMemoryInit, MiscTableInit, MiscMemoryCopy, MiscTableCopy:
		if err := u32(); err != nil {
			return err
		}
		return u32()
	case MiscDataDrop, MiscMemoryFill, MiscElemDrop, MiscTableGrow, MiscTableSize, MiscTableFill:
		return u32()
	default:
		return fmt.Errorf("%w: 0xfc %d", ErrUnsupportedInstruction, sub)
	}
}

func memArg(r *binary.Reader, ins *Instruction) error {
	align, err := r.ReadU32()
	if err != nil {
		return err
	}
	// bit 6 of the alignment flags a memory index (multi-memory)
	if align&0x40 != 0 {
		mem, err := r.ReadU32()
		if err != nil {
			return err
		}
		align &^= 0x40
		ins.Args = append(ins.Args, "mem="+strconv.FormatUint(uint64(mem), 10))
	}
	offset, err := r.ReadU64()
	if err != nil {
		return err
	}
	ins.Args = append(ins.Args,
		"offset="+strconv.FormatUint(offset, 10),
		"align="+strconv.FormatUint(1<<align, 10))
	return nil
}

func blockTypeString(bt int64) string {
	switch bt {
	case -64:
		return ""
	case -1, -2, -3, -4, -5, -16, -17:
		return "(result " + ValType(byte(bt&0x7F)).String() + ")"
	default:
		if bt >= 0 {
			return "(type " + strconv.FormatInt(bt, 10) + ")"
		}
		return "(blocktype " + strconv.FormatInt(bt, 10) + ")"
	}
}

func heapTypeString(ht int64) string {
	switch ht {
	case -16:
		return "func"
	case -17:
		return "extern"
	default:
		return strconv.FormatInt(ht, 10)
	}
}
