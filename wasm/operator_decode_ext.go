package wasm

import (
	werrors "github.com/wasmforge/wasmparser/errors"
	"github.com/wasmforge/wasmparser/wasm/internal/binary"
)

// decodeGCOperator reads the sub-opcode and immediates of a 0xFB-prefixed
// struct/array/reference instruction.
func decodeGCOperator(r *binary.Reader, feat Features, op Op) (Op, error) {
	sub, err := r.ReadVarU32()
	if err != nil {
		return op, err
	}
	op.Code = uint32(OpPrefixGC)<<24 | sub
	if !feat.EnableGC {
		return op, werrors.UnsupportedFeature(op.Pos, "GC instruction")
	}

	switch sub {
	case GCStructNew, GCStructNewDefault, GCArrayNew, GCArrayNewDefault:
		op.TypeIdx, err = r.ReadVarU32()
		return op, err

	case GCStructGet, GCStructGetS, GCStructGetU, GCStructSet:
		if op.TypeIdx, err = r.ReadVarU32(); err != nil {
			return op, err
		}
		op.FieldIdx, err = r.ReadVarU32()
		return op, err

	case GCArrayNewFixed:
		if op.TypeIdx, err = r.ReadVarU32(); err != nil {
			return op, err
		}
		op.Size, err = r.ReadVarU32()
		return op, err

	case GCArrayNewData, GCArrayInitData:
		if op.TypeIdx, err = r.ReadVarU32(); err != nil {
			return op, err
		}
		op.DataIdx, err = r.ReadVarU32()
		return op, err

	case GCArrayNewElem, GCArrayInitElem:
		if op.TypeIdx, err = r.ReadVarU32(); err != nil {
			return op, err
		}
		op.ElemIdx, err = r.ReadVarU32()
		return op, err

	case GCArrayGet, GCArrayGetS, GCArrayGetU, GCArraySet, GCArrayFill:
		op.TypeIdx, err = r.ReadVarU32()
		return op, err

	case GCArrayCopy:
		if op.TypeIdx, err = r.ReadVarU32(); err != nil {
			return op, err
		}
		op.TypeIdx2, err = r.ReadVarU32()
		return op, err

	case GCArrayLen, GCAnyConvertExtern, GCExternConvertAny,
		GCRefI31, GCI31GetS, GCI31GetU:
		return op, nil

	case GCRefTest, GCRefTestNull, GCRefCast, GCRefCastNull:
		op.HeapType, err = r.ReadVarS33()
		return op, err

	case GCBrOnCast, GCBrOnCastFail:
		flags, err := r.ReadByte()
		if err != nil {
			return op, err
		}
		op.CastFlags = flags
		if op.LabelIdx, err = r.ReadVarU32(); err != nil {
			return op, err
		}
		if op.HeapType, err = r.ReadVarS33(); err != nil {
			return op, err
		}
		op.HeapType2, err = r.ReadVarS33()
		return op, err
	}
	return op, werrors.UnknownOpcode(op.Pos, byte(sub))
}

// decodeMiscOperator reads the sub-opcode and immediates of a
// 0xFC-prefixed saturating-truncation or bulk-memory instruction.
func decodeMiscOperator(r *binary.Reader, feat Features, op Op) (Op, error) {
	sub, err := r.ReadVarU32()
	if err != nil {
		return op, err
	}
	op.Code = uint32(OpPrefixMisc)<<24 | sub

	switch sub {
	case MiscI32TruncSatF32S, MiscI32TruncSatF32U, MiscI32TruncSatF64S, MiscI32TruncSatF64U,
		MiscI64TruncSatF32S, MiscI64TruncSatF32U, MiscI64TruncSatF64S, MiscI64TruncSatF64U:
		return op, nil

	case MiscMemoryInit:
		if !feat.EnableBulkMemory {
			return op, werrors.UnsupportedFeature(op.Pos, "memory.init")
		}
		if op.DataIdx, err = r.ReadVarU32(); err != nil {
			return op, err
		}
		op.MemIdx, err = r.ReadVarU32()
		return op, err

	case MiscDataDrop:
		if !feat.EnableBulkMemory {
			return op, werrors.UnsupportedFeature(op.Pos, "data.drop")
		}
		op.DataIdx, err = r.ReadVarU32()
		return op, err

	case MiscMemoryCopy:
		if !feat.EnableBulkMemory {
			return op, werrors.UnsupportedFeature(op.Pos, "memory.copy")
		}
		if op.MemIdx, err = r.ReadVarU32(); err != nil {
			return op, err
		}
		op.MemIdx2, err = r.ReadVarU32()
		return op, err

	case MiscMemoryFill:
		if !feat.EnableBulkMemory {
			return op, werrors.UnsupportedFeature(op.Pos, "memory.fill")
		}
		op.MemIdx, err = r.ReadVarU32()
		return op, err

	case MiscTableInit:
		if !feat.EnableBulkMemory {
			return op, werrors.UnsupportedFeature(op.Pos, "table.init")
		}
		if op.ElemIdx, err = r.ReadVarU32(); err != nil {
			return op, err
		}
		op.TableIdx, err = r.ReadVarU32()
		return op, err

	case MiscElemDrop:
		if !feat.EnableBulkMemory {
			return op, werrors.UnsupportedFeature(op.Pos, "elem.drop")
		}
		op.ElemIdx, err = r.ReadVarU32()
		return op, err

	case MiscTableCopy:
		if !feat.EnableBulkMemory {
			return op, werrors.UnsupportedFeature(op.Pos, "table.copy")
		}
		if op.TableIdx, err = r.ReadVarU32(); err != nil {
			return op, err
		}
		op.TableIdx2, err = r.ReadVarU32()
		return op, err

	case MiscTableGrow, MiscTableSize, MiscTableFill:
		if !feat.EnableReferenceTypes {
			return op, werrors.UnsupportedFeature(op.Pos, "table.grow/size/fill")
		}
		op.TableIdx, err = r.ReadVarU32()
		return op, err

	case MiscMemoryDiscard:
		if !feat.EnableBulkMemory {
			return op, werrors.UnsupportedFeature(op.Pos, "memory.discard")
		}
		op.MemIdx, err = r.ReadVarU32()
		return op, err
	}
	return op, werrors.UnknownOpcode(op.Pos, byte(sub))
}

// decodeSIMDOperator reads the sub-opcode and immediates of a
// 0xFD-prefixed 128-bit vector instruction.
func decodeSIMDOperator(r *binary.Reader, feat Features, op Op) (Op, error) {
	sub, err := r.ReadVarU32()
	if err != nil {
		return op, err
	}
	op.Code = uint32(OpPrefixSIMD)<<24 | sub
	if !feat.EnableSIMD {
		return op, werrors.UnsupportedFeature(op.Pos, "SIMD instruction")
	}

	switch {
	case sub <= SimdV128Load64Splat || sub == SimdV128Store:
		align, offset, memIdx, err := r.ReadMemArg()
		if err != nil {
			return op, err
		}
		op.Align, op.MemOffset, op.MemIdx = align, uint64(offset), memIdx
		return op, nil

	case sub == SimdV128Const:
		b, err := r.ReadBytes(16)
		if err != nil {
			return op, err
		}
		copy(op.V128[:], b)
		return op, nil

	case sub == SimdI8x16Shuffle:
		b, err := r.ReadBytes(16)
		if err != nil {
			return op, err
		}
		op.Lanes = append([]byte(nil), b...)
		return op, nil

	case sub >= SimdI8x16ExtractLaneS && sub <= SimdF64x2ReplaceLane:
		lane, err := r.ReadByte()
		if err != nil {
			return op, err
		}
		op.Lanes = []byte{lane}
		return op, nil

	case sub >= SimdV128Load8Lane && sub <= SimdV128Store64Lane:
		align, offset, memIdx, err := r.ReadMemArg()
		if err != nil {
			return op, err
		}
		lane, err := r.ReadByte()
		if err != nil {
			return op, err
		}
		op.Align, op.MemOffset, op.MemIdx = align, uint64(offset), memIdx
		op.Lanes = []byte{lane}
		return op, nil

	case sub == SimdV128Load32Zero || sub == SimdV128Load64Zero:
		align, offset, memIdx, err := r.ReadMemArg()
		if err != nil {
			return op, err
		}
		op.Align, op.MemOffset, op.MemIdx = align, uint64(offset), memIdx
		return op, nil
	}

	// All remaining SIMD opcodes (splats, arithmetic, comparisons,
	// bitwise, conversions, rounding, all_true/bitmask) take no
	// immediate beyond the sub-opcode itself.
	return op, nil
}

// decodeAtomicOperator reads the sub-opcode and immediates of a
// 0xFE-prefixed threads/atomics instruction.
func decodeAtomicOperator(r *binary.Reader, feat Features, op Op) (Op, error) {
	sub, err := r.ReadVarU32()
	if err != nil {
		return op, err
	}
	op.Code = uint32(OpPrefixAtomic)<<24 | sub
	if !feat.EnableThreads {
		return op, werrors.UnsupportedFeature(op.Pos, "atomic instruction")
	}

	if sub == AtomicFence {
		reserved, err := r.ReadByte()
		if err != nil {
			return op, err
		}
		if reserved != 0 {
			return op, werrors.InvalidLEB128(op.Pos, "atomic.fence reserved byte must be zero")
		}
		return op, nil
	}

	if sub <= AtomicWait64 || (sub >= AtomicI32Load && sub <= AtomicI64Rmw32CmpxchgU) {
		align, offset, memIdx, err := r.ReadMemArg()
		if err != nil {
			return op, err
		}
		op.Align, op.MemOffset, op.MemIdx = align, uint64(offset), memIdx
		return op, nil
	}
	return op, werrors.UnknownOpcode(op.Pos, byte(sub))
}
