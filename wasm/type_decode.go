package wasm

import (
	werrors "github.com/wasmforge/wasmparser/errors"
	"github.com/wasmforge/wasmparser/wasm/internal/binary"
)

// decodeExtValType reads one value type, expanding the GC proposal's
// compound (ref null ht) / (ref ht) encoding when present.
func decodeExtValType(r *binary.Reader, feat Features) (ExtValType, error) {
	pos := r.Pos()
	b, err := r.PeekByte()
	if err != nil {
		return ExtValType{}, err
	}
	if b == byte(ValRefNull) || b == byte(ValRef) {
		if !feat.EnableGC {
			return ExtValType{}, werrors.UnsupportedFeature(pos, "(ref null? ht) value type")
		}
		r.ReadByte()
		nullable := b == byte(ValRefNull)
		ht, err := r.ReadVarS33()
		if err != nil {
			return ExtValType{}, err
		}
		return ExtValType{Kind: ExtValKindRef, RefType: RefType{Nullable: nullable, HeapType: ht}}, nil
	}
	vb, err := r.ReadByte()
	if err != nil {
		return ExtValType{}, err
	}
	return ExtValType{Kind: ExtValKindSimple, ValType: ValType(vb)}, nil
}

func simplifyExtTypes(exts []ExtValType) []ValType {
	out := make([]ValType, len(exts))
	for i, e := range exts {
		out[i] = e.ValType
	}
	return out
}

func anyRefKind(exts []ExtValType) bool {
	for _, e := range exts {
		if e.Kind == ExtValKindRef {
			return true
		}
	}
	return false
}

func decodeExtValTypeVec(r *binary.Reader, feat Features, maxLen int) ([]ExtValType, error) {
	n, err := r.ReadVarU32()
	if err != nil {
		return nil, err
	}
	if maxLen > 0 && int(n) > maxLen {
		return nil, werrors.LimitExceeded(r.Pos(), "vector", int(n), maxLen)
	}
	out := make([]ExtValType, n)
	for i := range out {
		if out[i], err = decodeExtValType(r, feat); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeFuncType(r *binary.Reader, feat Features) (FuncType, error) {
	params, err := decodeExtValTypeVec(r, feat, MaxWasmFunctionParam)
	if err != nil {
		return FuncType{}, err
	}
	results, err := decodeExtValTypeVec(r, feat, MaxWasmFunctionRet)
	if err != nil {
		return FuncType{}, err
	}
	ft := FuncType{}
	if anyRefKind(params) || anyRefKind(results) {
		ft.ExtParams = params
		ft.ExtResults = results
	} else {
		ft.Params = simplifyExtTypes(params)
		ft.Results = simplifyExtTypes(results)
	}
	return ft, nil
}

func decodeStorageType(r *binary.Reader, feat Features) (StorageType, error) {
	b, err := r.PeekByte()
	if err != nil {
		return StorageType{}, err
	}
	if b == PackedI8 || b == PackedI16 {
		r.ReadByte()
		return StorageType{Kind: StorageKindPacked, Packed: b}, nil
	}
	ext, err := decodeExtValType(r, feat)
	if err != nil {
		return StorageType{}, err
	}
	if ext.Kind == ExtValKindRef {
		return StorageType{Kind: StorageKindRef, RefType: ext.RefType}, nil
	}
	return StorageType{Kind: StorageKindVal, ValType: ext.ValType}, nil
}

func decodeFieldType(r *binary.Reader, feat Features) (FieldType, error) {
	st, err := decodeStorageType(r, feat)
	if err != nil {
		return FieldType{}, err
	}
	mb, err := r.ReadByte()
	if err != nil {
		return FieldType{}, err
	}
	return FieldType{Type: st, Mutable: mb == FieldMutable}, nil
}

func decodeStructType(r *binary.Reader, feat Features) (StructType, error) {
	n, err := r.ReadVarU32()
	if err != nil {
		return StructType{}, err
	}
	fields := make([]FieldType, n)
	for i := range fields {
		if fields[i], err = decodeFieldType(r, feat); err != nil {
			return StructType{}, err
		}
	}
	return StructType{Fields: fields}, nil
}

func decodeArrayType(r *binary.Reader, feat Features) (ArrayType, error) {
	f, err := decodeFieldType(r, feat)
	return ArrayType{Element: f}, err
}

func decodeCompTypeBody(r *binary.Reader, feat Features, tag byte) (CompType, error) {
	switch tag {
	case FuncTypeByte:
		ft, err := decodeFuncType(r, feat)
		return CompType{Kind: CompKindFunc, Func: &ft}, err
	case StructTypeByte:
		st, err := decodeStructType(r, feat)
		return CompType{Kind: CompKindStruct, Struct: &st}, err
	case ArrayTypeByte:
		at, err := decodeArrayType(r, feat)
		return CompType{Kind: CompKindArray, Array: &at}, err
	}
	return CompType{}, werrors.InvalidType(r.Pos(), int64(tag))
}

func decodeSubTypeBody(r *binary.Reader, feat Features, tag byte) (SubType, error) {
	if tag == SubTypeByte || tag == SubFinalByte {
		final := tag == SubFinalByte
		n, err := r.ReadVarU32()
		if err != nil {
			return SubType{}, err
		}
		parents := make([]uint32, n)
		for i := range parents {
			if parents[i], err = r.ReadVarU32(); err != nil {
				return SubType{}, err
			}
		}
		compTag, err := r.ReadByte()
		if err != nil {
			return SubType{}, err
		}
		ct, err := decodeCompTypeBody(r, feat, compTag)
		return SubType{CompType: ct, Parents: parents, Final: final}, err
	}
	ct, err := decodeCompTypeBody(r, feat, tag)
	return SubType{CompType: ct, Final: true}, err
}

func decodeTypeEntry(r *binary.Reader, feat Features) (TypeDef, error) {
	pos := r.Pos()
	tag, err := r.ReadByte()
	if err != nil {
		return TypeDef{}, err
	}
	switch tag {
	case FuncTypeByte:
		ft, err := decodeFuncType(r, feat)
		return TypeDef{Kind: TypeDefKindFunc, Func: &ft}, err
	case StructTypeByte, ArrayTypeByte, SubTypeByte, SubFinalByte:
		if !feat.EnableGC {
			return TypeDef{}, werrors.UnsupportedFeature(pos, "GC type definition")
		}
		sub, err := decodeSubTypeBody(r, feat, tag)
		return TypeDef{Kind: TypeDefKindSub, Sub: &sub}, err
	case RecTypeByte:
		if !feat.EnableGC {
			return TypeDef{}, werrors.UnsupportedFeature(pos, "recursive type group")
		}
		n, err := r.ReadVarU32()
		if err != nil {
			return TypeDef{}, err
		}
		subs := make([]SubType, n)
		for i := range subs {
			memberTag, err := r.ReadByte()
			if err != nil {
				return TypeDef{}, err
			}
			if subs[i], err = decodeSubTypeBody(r, feat, memberTag); err != nil {
				return TypeDef{}, err
			}
		}
		return TypeDef{Kind: TypeDefKindRec, Rec: &RecType{Types: subs}}, nil
	}
	return TypeDef{}, werrors.InvalidType(pos, int64(tag))
}

func decodeLimits(r *binary.Reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	lim := Limits{
		Shared:   flags&LimitsShared != 0,
		Memory64: flags&LimitsMemory64 != 0,
	}
	if lim.Memory64 {
		min, err := r.ReadVarU64()
		if err != nil {
			return Limits{}, err
		}
		lim.Min = min
		if flags&LimitsHasMax != 0 {
			max, err := r.ReadVarU64()
			if err != nil {
				return Limits{}, err
			}
			lim.Max = &max
		}
		return lim, nil
	}
	min, err := r.ReadVarU32()
	if err != nil {
		return Limits{}, err
	}
	lim.Min = uint64(min)
	if flags&LimitsHasMax != 0 {
		max, err := r.ReadVarU32()
		if err != nil {
			return Limits{}, err
		}
		m := uint64(max)
		lim.Max = &m
	}
	return lim, nil
}

func decodeTableType(r *binary.Reader, feat Features) (TableType, error) {
	b, err := r.PeekByte()
	if err != nil {
		return TableType{}, err
	}
	tt := TableType{}
	if b == 0x40 {
		// GC function-references proposal: table with an explicit
		// initializer expression, prefixed by a reserved zero byte.
		r.ReadByte()
		reserved, err := r.ReadByte()
		if err != nil {
			return TableType{}, err
		}
		if reserved != 0 {
			return TableType{}, werrors.InvalidLEB128(r.Pos(), "table reserved byte must be zero")
		}
		ext, err := decodeExtValType(r, feat)
		if err != nil {
			return TableType{}, err
		}
		if ext.Kind == ExtValKindRef {
			tt.RefElemType = &ext.RefType
		} else {
			tt.ElemType = byte(ext.ValType)
		}
		if tt.Limits, err = decodeLimits(r); err != nil {
			return TableType{}, err
		}
		if err := checkTableLimits(r.Pos(), tt.Limits); err != nil {
			return TableType{}, err
		}
		if tt.Init, err = decodeConstExpr(r, feat); err != nil {
			return TableType{}, err
		}
		return tt, nil
	}
	ext, err := decodeExtValType(r, feat)
	if err != nil {
		return TableType{}, err
	}
	if ext.Kind == ExtValKindRef {
		tt.RefElemType = &ext.RefType
	} else {
		tt.ElemType = byte(ext.ValType)
	}
	if tt.Limits, err = decodeLimits(r); err != nil {
		return TableType{}, err
	}
	if err := checkTableLimits(r.Pos(), tt.Limits); err != nil {
		return TableType{}, err
	}
	return tt, nil
}

func checkTableLimits(pos int, lim Limits) error {
	if lim.Min > MaxWasmTableEntries {
		return werrors.LimitExceeded(pos, "table entries", int(lim.Min), MaxWasmTableEntries)
	}
	if lim.Max != nil && *lim.Max > MaxWasmTableEntries {
		return werrors.LimitExceeded(pos, "table entries", int(*lim.Max), MaxWasmTableEntries)
	}
	return nil
}

func decodeMemoryType(r *binary.Reader) (MemoryType, error) {
	lim, err := decodeLimits(r)
	if err != nil {
		return MemoryType{}, err
	}
	// A memory64 memory's page count is bounded by the proposal's 2^48
	// page ceiling, not the MVP's 2^16; capping both at the 32-bit limit
	// would reject every legal memory64 declaration above 4GB.
	pageCap := MemoryMaxPages32
	if lim.Memory64 {
		pageCap = MemoryMaxPages64
	}
	if lim.Min > pageCap {
		return MemoryType{}, werrors.LimitExceeded(r.Pos(), "memory pages", int(lim.Min), int(pageCap))
	}
	if lim.Max != nil && *lim.Max > pageCap {
		return MemoryType{}, werrors.LimitExceeded(r.Pos(), "memory pages", int(*lim.Max), int(pageCap))
	}
	return MemoryType{Limits: lim}, nil
}

func decodeGlobalType(r *binary.Reader, feat Features) (GlobalType, error) {
	ext, err := decodeExtValType(r, feat)
	if err != nil {
		return GlobalType{}, err
	}
	mb, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	gt := GlobalType{Mutable: mb != 0}
	if ext.Kind == ExtValKindRef {
		gt.ExtType = &ext
	} else {
		gt.ValType = ext.ValType
	}
	return gt, nil
}

func decodeTagType(r *binary.Reader) (TagType, error) {
	attr, err := r.ReadByte()
	if err != nil {
		return TagType{}, err
	}
	typeIdx, err := r.ReadVarU32()
	return TagType{Attribute: attr, TypeIdx: typeIdx}, err
}

func decodeImportEntry(r *binary.Reader, feat Features) (Import, error) {
	mod, err := r.ReadName(MaxWasmStringSize)
	if err != nil {
		return Import{}, err
	}
	name, err := r.ReadName(MaxWasmStringSize)
	if err != nil {
		return Import{}, err
	}
	pos := r.Pos()
	kind, err := r.ReadByte()
	if err != nil {
		return Import{}, err
	}
	desc := ImportDesc{Kind: kind}
	switch kind {
	case KindFunc:
		desc.TypeIdx, err = r.ReadVarU32()
	case KindTable:
		var tt TableType
		tt, err = decodeTableType(r, feat)
		desc.Table = &tt
	case KindMemory:
		var mt MemoryType
		mt, err = decodeMemoryType(r)
		desc.Memory = &mt
	case KindGlobal:
		var gt GlobalType
		gt, err = decodeGlobalType(r, feat)
		desc.Global = &gt
	case KindTag:
		if !feat.EnableExceptions {
			return Import{}, werrors.UnsupportedFeature(pos, "tag import")
		}
		var tag TagType
		tag, err = decodeTagType(r)
		desc.Tag = &tag
	default:
		return Import{}, werrors.InvalidType(pos, int64(kind))
	}
	return Import{Module: mod, Name: name, Desc: desc}, err
}

func decodeExportEntry(r *binary.Reader) (Export, error) {
	name, err := r.ReadName(MaxWasmStringSize)
	if err != nil {
		return Export{}, err
	}
	pos := r.Pos()
	kind, err := r.ReadByte()
	if err != nil {
		return Export{}, err
	}
	if kind > KindTag {
		return Export{}, werrors.InvalidType(pos, int64(kind))
	}
	idx, err := r.ReadVarU32()
	return Export{Name: name, Kind: kind, Idx: idx}, err
}

// decodeConstExpr captures the raw bytes of a constant (initializer)
// expression, ending at and including its terminating "end" opcode. It
// does not type-check the expression; that is the OperatorValidator's
// constant-expression mode, run later against these same bytes.
func decodeConstExpr(r *binary.Reader, feat Features) ([]byte, error) {
	start := r.Pos()
	for {
		op, err := DecodeOperator(r, feat)
		if err != nil {
			return nil, err
		}
		if op.Code == uint32(OpEnd) {
			return r.Data()[start:r.Pos()], nil
		}
	}
}

func decodeElementEntry(r *binary.Reader, feat Features) (Element, error) {
	pos := r.Pos()
	flags, err := r.ReadVarU32()
	if err != nil {
		return Element{}, err
	}
	el := Element{Flags: flags}

	readFuncIdxVec := func() ([]uint32, error) {
		n, err := r.ReadVarU32()
		if err != nil {
			return nil, err
		}
		idxs := make([]uint32, n)
		for i := range idxs {
			if idxs[i], err = r.ReadVarU32(); err != nil {
				return nil, err
			}
		}
		return idxs, nil
	}
	readExprVec := func() ([][]byte, error) {
		n, err := r.ReadVarU32()
		if err != nil {
			return nil, err
		}
		exprs := make([][]byte, n)
		for i := range exprs {
			if exprs[i], err = decodeConstExpr(r, feat); err != nil {
				return nil, err
			}
		}
		return exprs, nil
	}

	switch flags {
	case 0:
		if el.Offset, err = decodeConstExpr(r, feat); err != nil {
			return Element{}, err
		}
		el.FuncIdxs, err = readFuncIdxVec()
	case 1:
		if el.ElemKind, err = r.ReadByte(); err != nil {
			return Element{}, err
		}
		el.FuncIdxs, err = readFuncIdxVec()
	case 2:
		if el.TableIdx, err = r.ReadVarU32(); err != nil {
			return Element{}, err
		}
		if el.Offset, err = decodeConstExpr(r, feat); err != nil {
			return Element{}, err
		}
		if el.ElemKind, err = r.ReadByte(); err != nil {
			return Element{}, err
		}
		el.FuncIdxs, err = readFuncIdxVec()
	case 3:
		if el.ElemKind, err = r.ReadByte(); err != nil {
			return Element{}, err
		}
		el.FuncIdxs, err = readFuncIdxVec()
	case 4:
		if el.Offset, err = decodeConstExpr(r, feat); err != nil {
			return Element{}, err
		}
		el.Exprs, err = readExprVec()
	case 5:
		ext, err2 := decodeExtValType(r, feat)
		if err2 != nil {
			return Element{}, err2
		}
		if ext.Kind == ExtValKindRef {
			el.RefType = &ext.RefType
		} else {
			el.Type = ext.ValType
		}
		el.Exprs, err = readExprVec()
	case 6:
		if el.TableIdx, err = r.ReadVarU32(); err != nil {
			return Element{}, err
		}
		if el.Offset, err = decodeConstExpr(r, feat); err != nil {
			return Element{}, err
		}
		ext, err2 := decodeExtValType(r, feat)
		if err2 != nil {
			return Element{}, err2
		}
		if ext.Kind == ExtValKindRef {
			el.RefType = &ext.RefType
		} else {
			el.Type = ext.ValType
		}
		el.Exprs, err = readExprVec()
	case 7:
		ext, err2 := decodeExtValType(r, feat)
		if err2 != nil {
			return Element{}, err2
		}
		if ext.Kind == ExtValKindRef {
			el.RefType = &ext.RefType
		} else {
			el.Type = ext.ValType
		}
		el.Exprs, err = readExprVec()
	default:
		return Element{}, werrors.InvalidType(pos, int64(flags))
	}
	return el, err
}

func decodeDataEntry(r *binary.Reader, feat Features) (DataSegment, error) {
	pos := r.Pos()
	flags, err := r.ReadVarU32()
	if err != nil {
		return DataSegment{}, err
	}
	ds := DataSegment{Flags: flags}
	switch flags {
	case 0:
		if ds.Offset, err = decodeConstExpr(r, feat); err != nil {
			return DataSegment{}, err
		}
		n, err := r.ReadVarU32()
		if err != nil {
			return DataSegment{}, err
		}
		ds.Init, err = r.ReadBytes(int(n))
		return ds, err
	case 1:
		n, err := r.ReadVarU32()
		if err != nil {
			return DataSegment{}, err
		}
		ds.Init, err = r.ReadBytes(int(n))
		return ds, err
	case 2:
		if ds.MemIdx, err = r.ReadVarU32(); err != nil {
			return DataSegment{}, err
		}
		if ds.Offset, err = decodeConstExpr(r, feat); err != nil {
			return DataSegment{}, err
		}
		n, err := r.ReadVarU32()
		if err != nil {
			return DataSegment{}, err
		}
		ds.Init, err = r.ReadBytes(int(n))
		return ds, err
	}
	return DataSegment{}, werrors.InvalidType(pos, int64(flags))
}
