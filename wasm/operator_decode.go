package wasm

import (
	werrors "github.com/wasmforge/wasmparser/errors"
	"github.com/wasmforge/wasmparser/wasm/internal/binary"
)

// DecodeOperator reads one instruction starting at the reader's current
// position, including whatever immediates that opcode carries, and
// returns it as an Op. It never inspects the operand stack; that is the
// OperatorValidator's job. Parser.Read calls it once per CodeOperator
// event; under SkipFunctionBody the Parser seeks straight to the body's
// declared end without decoding the remaining instructions.
func DecodeOperator(r *binary.Reader, feat Features) (Op, error) {
	pos := r.Pos()
	code, err := r.ReadByte()
	if err != nil {
		return Op{}, err
	}
	op := Op{Pos: pos, Code: uint32(code)}

	switch code {
	case OpUnreachable, OpNop, OpElse, OpEnd, OpReturn,
		OpDrop, OpSelect, OpRefIsNull, OpRefEq, OpRefAsNonNull,
		OpI32Eqz, OpI64Eqz, OpCatchAll, OpThrowRef:
		return op, nil

	case OpMemorySize, OpMemoryGrow:
		memIdx, err := r.ReadVarU32()
		if err != nil {
			return op, err
		}
		if memIdx != 0 && !feat.EnableMultiMemory {
			return op, werrors.UnsupportedFeature(pos, "non-zero memory index")
		}
		op.MemIdx = memIdx
		return op, nil

	case OpBlock, OpLoop, OpIf:
		bt, err := decodeBlockType(r)
		op.Block = bt
		return op, err

	case OpTry:
		if !feat.EnableExceptions {
			// Without exception handling, 0x06 is a reserved byte of the
			// baseline instruction set.
			return op, werrors.UnknownOpcode(pos, code)
		}
		bt, err := decodeBlockType(r)
		op.Block = bt
		return op, err

	case OpBr, OpBrIf:
		op.LabelIdx, err = r.ReadVarU32()
		return op, err

	case OpBrTable:
		count, err := r.ReadVarU32()
		if err != nil {
			return op, err
		}
		labels := make([]uint32, count)
		for i := range labels {
			if labels[i], err = r.ReadVarU32(); err != nil {
				return op, err
			}
		}
		op.LabelIdxs = labels
		op.LabelIdx, err = r.ReadVarU32()
		return op, err

	case OpCall:
		op.FuncIdx, err = r.ReadVarU32()
		return op, err

	case OpReturnCall:
		if !feat.EnableTailCall {
			return op, werrors.UnsupportedFeature(pos, "return_call")
		}
		op.FuncIdx, err = r.ReadVarU32()
		return op, err

	case OpCallIndirect:
		if op.TypeIdx, err = r.ReadVarU32(); err != nil {
			return op, err
		}
		op.TableIdx, err = r.ReadVarU32()
		return op, err

	case OpReturnCallIndirect:
		if !feat.EnableTailCall {
			return op, werrors.UnsupportedFeature(pos, "return_call_indirect")
		}
		if op.TypeIdx, err = r.ReadVarU32(); err != nil {
			return op, err
		}
		op.TableIdx, err = r.ReadVarU32()
		return op, err

	case OpCallRef, OpReturnCallRef:
		if code == OpReturnCallRef && !feat.EnableTailCall {
			return op, werrors.UnsupportedFeature(pos, "return_call_ref")
		}
		if !feat.EnableGC {
			return op, werrors.UnsupportedFeature(pos, "call_ref")
		}
		op.TypeIdx, err = r.ReadVarU32()
		return op, err

	case OpCatch:
		if !feat.EnableExceptions {
			return op, werrors.UnsupportedFeature(pos, "catch")
		}
		op.TagIdx, err = r.ReadVarU32()
		return op, err

	case OpThrow:
		if !feat.EnableExceptions {
			return op, werrors.UnsupportedFeature(pos, "throw")
		}
		op.TagIdx, err = r.ReadVarU32()
		return op, err

	case OpRethrow:
		if !feat.EnableExceptions {
			return op, werrors.UnsupportedFeature(pos, "rethrow")
		}
		op.LabelIdx, err = r.ReadVarU32()
		return op, err

	case OpDelegate:
		if !feat.EnableExceptions {
			return op, werrors.UnsupportedFeature(pos, "delegate")
		}
		op.LabelIdx, err = r.ReadVarU32()
		return op, err

	case OpTryTable:
		if !feat.EnableExceptions {
			return op, werrors.UnsupportedFeature(pos, "try_table")
		}
		bt, err := decodeBlockType(r)
		if err != nil {
			return op, err
		}
		op.Block = bt
		count, err := r.ReadVarU32()
		if err != nil {
			return op, err
		}
		catches := make([]CatchClause, count)
		for i := range catches {
			kind, err := r.ReadByte()
			if err != nil {
				return op, err
			}
			catches[i].Kind = kind
			if kind == CatchKindCatch || kind == CatchKindCatchRef {
				if catches[i].TagIdx, err = r.ReadVarU32(); err != nil {
					return op, err
				}
			}
			if catches[i].LabelIdx, err = r.ReadVarU32(); err != nil {
				return op, err
			}
		}
		op.Catches = catches
		return op, nil

	case OpRefNull:
		op.HeapType, err = r.ReadVarS33()
		return op, err

	case OpRefFunc:
		op.FuncIdx, err = r.ReadVarU32()
		return op, err

	case OpBrOnNull, OpBrOnNonNull:
		if !feat.EnableGC {
			return op, werrors.UnsupportedFeature(pos, "br_on_null/br_on_non_null")
		}
		op.LabelIdx, err = r.ReadVarU32()
		return op, err

	case OpSelectType:
		count, err := r.ReadVarU32()
		if err != nil {
			return op, err
		}
		types := make([]ValType, count)
		for i := range types {
			b, err := r.ReadByte()
			if err != nil {
				return op, err
			}
			types[i] = ValType(b)
		}
		op.SelectType = types
		return op, nil

	case OpLocalGet, OpLocalSet, OpLocalTee:
		op.LocalIdx, err = r.ReadVarU32()
		return op, err

	case OpGlobalGet, OpGlobalSet:
		op.GlobalIdx, err = r.ReadVarU32()
		return op, err

	case OpTableGet, OpTableSet:
		if !feat.EnableReferenceTypes {
			return op, werrors.UnsupportedFeature(pos, "table.get/table.set")
		}
		op.TableIdx, err = r.ReadVarU32()
		return op, err

	case OpI32Const:
		op.I32, err = r.ReadVarS32()
		return op, err

	case OpI64Const:
		op.I64, err = r.ReadVarS64()
		return op, err

	case OpF32Const:
		op.F32, err = r.ReadF32()
		return op, err

	case OpF64Const:
		op.F64, err = r.ReadF64()
		return op, err

	case OpPrefixGC:
		return decodeGCOperator(r, feat, op)

	case OpPrefixMisc:
		return decodeMiscOperator(r, feat, op)

	case OpPrefixSIMD:
		return decodeSIMDOperator(r, feat, op)

	case OpPrefixAtomic:
		return decodeAtomicOperator(r, feat, op)
	}

	if isMemoryOp(code) {
		return decodeMemArgOperator(r, feat, op)
	}
	if isBareNumericOp(code) {
		return op, nil
	}
	return op, werrors.UnknownOpcode(pos, code)
}

func isMemoryOp(code byte) bool {
	return code >= OpI32Load && code <= OpI64Store32
}

func decodeMemArgOperator(r *binary.Reader, feat Features, op Op) (Op, error) {
	align, offset, memIdx, err := r.ReadMemArg()
	if err != nil {
		return op, err
	}
	if memIdx != 0 && !feat.EnableMultiMemory {
		return op, werrors.UnsupportedFeature(op.Pos, "non-zero memory index")
	}
	op.Align = align
	op.MemOffset = uint64(offset)
	op.MemIdx = memIdx
	return op, nil
}

// isBareNumericOp reports whether code is one of the comparison, numeric,
// conversion, or sign-extension opcodes that carry no immediate operand.
func isBareNumericOp(code byte) bool {
	switch {
	case code >= OpI32Eq && code <= OpI32GeU:
		return true
	case code >= OpI64Eq && code <= OpI64GeU:
		return true
	case code >= OpF32Eq && code <= OpF32Ge:
		return true
	case code >= OpF64Eq && code <= OpF64Ge:
		return true
	case code >= OpI32Clz && code <= OpI32Rotr:
		return true
	case code >= OpI64Clz && code <= OpI64Rotr:
		return true
	case code >= OpF32Abs && code <= OpF32Copysign:
		return true
	case code >= OpF64Abs && code <= OpF64Copysign:
		return true
	case code >= OpI32WrapI64 && code <= OpF64ReinterpretI64:
		return true
	case code >= OpI32Extend8S && code <= OpI64Extend32S:
		return true
	}
	return false
}

// decodeBlockType reads a block/loop/if/try/try_table signature: empty,
// a single value type, or (multi-value) a function type index, all
// packed into the same s33 encoding space.
func decodeBlockType(r *binary.Reader) (BlockType, error) {
	v, err := r.ReadVarS33()
	if err != nil {
		return BlockType{}, err
	}
	if v == int64(BlockTypeVoid) {
		return BlockType{Kind: BlockTypeEmpty}, nil
	}
	if v < 0 {
		return BlockType{Kind: BlockTypeValue, ValType: ValType(byte(0x80 + v))}, nil
	}
	return BlockType{Kind: BlockTypeFuncType, TypeIdx: uint32(v)}, nil
}
