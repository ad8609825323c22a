package wasm

import werrors "github.com/wasmforge/wasmparser/errors"

// EventKind discriminates the variants of Event. The operator set and the
// section grammar are both closed, so a single tagged struct dispatched on
// an enum is preferred here over a class hierarchy or an interface per
// variant: exhaustive switches over Kind are what both Parser and
// ValidatingParser are built around.
type EventKind int

const (
	EvBeginWasm EventKind = iota
	EvBeginSection
	EvTypeEntry
	EvImportEntry
	EvFunctionEntry
	EvTableEntry
	EvMemoryEntry
	EvGlobalEntry
	EvExportEntry
	EvStartEntry
	EvElementEntry
	EvDataEntry
	EvDataCountEntry
	EvTagEntry
	EvBeginFunctionBody
	EvFunctionBodyLocals
	EvCodeOperator
	EvEndFunctionBody
	EvSectionRawData
	EvEndSection
	EvEndWasm
	EvError
)

func (k EventKind) String() string {
	switch k {
	case EvBeginWasm:
		return "BeginWasm"
	case EvBeginSection:
		return "BeginSection"
	case EvTypeEntry:
		return "TypeSectionEntry"
	case EvImportEntry:
		return "ImportSectionEntry"
	case EvFunctionEntry:
		return "FunctionSectionEntry"
	case EvTableEntry:
		return "TableSectionEntry"
	case EvMemoryEntry:
		return "MemorySectionEntry"
	case EvGlobalEntry:
		return "GlobalSectionEntry"
	case EvExportEntry:
		return "ExportSectionEntry"
	case EvStartEntry:
		return "StartSectionEntry"
	case EvElementEntry:
		return "ElementSectionEntry"
	case EvDataEntry:
		return "DataSectionEntry"
	case EvDataCountEntry:
		return "DataCountSectionEntry"
	case EvTagEntry:
		return "TagSectionEntry"
	case EvBeginFunctionBody:
		return "BeginFunctionBody"
	case EvFunctionBodyLocals:
		return "FunctionBodyLocals"
	case EvCodeOperator:
		return "CodeOperator"
	case EvEndFunctionBody:
		return "EndFunctionBody"
	case EvSectionRawData:
		return "SectionRawData"
	case EvEndSection:
		return "EndSection"
	case EvEndWasm:
		return "EndWasm"
	case EvError:
		return "Error"
	default:
		return "Unknown"
	}
}

// ParserInput steers the parser at the states where steering is legal.
// An input that is not legal at the current state is treated as Default.
type ParserInput int

const (
	// Default proceeds through the state graph naturally.
	Default ParserInput = iota
	// SkipSection fast-forwards to the end of the current section and
	// transitions directly to EndSection. Legal any time a section is
	// open (after BeginSection, before EndSection).
	SkipSection
	// SkipFunctionBody fast-forwards to the declared end of the current
	// function body and emits EndFunctionBody. Legal between
	// BeginFunctionBody and EndFunctionBody.
	SkipFunctionBody
	// ReadSectionRawData emits a single SectionRawData event covering the
	// whole section instead of decoded entries. Legal only immediately
	// after BeginSection.
	ReadSectionRawData
)

// BlockType is a block/if/loop signature: either no result, a single
// value-type result, or (multi-value) a function-type index.
type BlockType struct {
	Kind     BlockTypeKind
	ValType  ValType
	TypeIdx  uint32
}

// BlockTypeKind discriminates BlockType.
type BlockTypeKind byte

const (
	BlockTypeEmpty BlockTypeKind = iota
	BlockTypeValue
	BlockTypeFuncType
)

// CatchClause is one arm of a try_table instruction.
type CatchClause struct {
	Kind     byte // CatchKindCatch, CatchKindCatchRef, CatchKindCatchAll, CatchKindCatchAllRef
	TagIdx   uint32
	LabelIdx uint32
}

// Op is a decoded instruction: an opcode (Code, with prefixed families
// folded into the high byte so the whole set dispatches on one integer)
// plus whichever immediate fields that opcode uses.
type Op struct {
	Pos  int
	Code uint32

	Block      BlockType
	LabelIdx   uint32
	LabelIdxs  []uint32
	FuncIdx    uint32
	TypeIdx    uint32
	TypeIdx2   uint32
	TableIdx   uint32
	TableIdx2  uint32
	MemIdx2    uint32
	LocalIdx   uint32
	GlobalIdx  uint32
	TagIdx     uint32
	ElemIdx    uint32
	DataIdx    uint32
	FieldIdx   uint32
	Align      uint32
	MemOffset  uint64
	MemIdx     uint32
	Size       uint32
	I32        int32
	I64        int64
	F32        float32
	F64        float64
	RefType    ValType
	HeapType   int64
	HeapType2  int64
	CastFlags  byte
	Lanes      []byte
	V128       [16]byte
	Catches    []CatchClause
	SelectType []ValType
}

// Event is the single tagged record the Parser yields. Only the fields
// relevant to Kind are populated; the struct is reused across Read calls
// so callers must not retain pointers to its slice fields past the next
// Read.
type Event struct {
	Kind EventKind
	Pos  int

	Version uint32
	Section byte

	SectionName string // custom sections
	RawData     []byte // SectionRawData

	TypeDef     TypeDef
	Import      Import
	FuncTypeIdx uint32
	Table       TableType
	Memory      MemoryType
	Global      Global
	Export      Export
	StartFunc   uint32
	Element     Element
	Data        DataSegment
	DataCount   uint32
	Tag         TagType

	BodyStart int
	BodyEnd   int
	Locals    []LocalEntry
	Op        Op

	Err *werrors.Error
}
