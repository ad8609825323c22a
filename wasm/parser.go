package wasm

import (
	werrors "github.com/wasmforge/wasmparser/errors"
	"github.com/wasmforge/wasmparser/wasm/internal/binary"
)

type parsePhase int

const (
	phaseStart parsePhase = iota
	phaseSectionStart
	phaseSectionBegun
	phaseEntries
	phaseCodeBodyBegun
	phaseCodeOperators
	phaseSectionEnd
	phaseEnd
	phaseError
)

// Parser is a pull-based, single-pass reader over a WebAssembly binary
// module. Each call to Read or ReadWithInput advances the cursor and
// returns exactly one Event; the Parser never buffers more than the
// event it is about to return. Once it yields an Error or EndWasm event
// it keeps yielding that same event on every subsequent call.
type Parser struct {
	r    *binary.Reader
	feat Features

	phase parsePhase
	ev    Event

	sectionID      byte
	sectionEnd     int
	lastSectionID  int
	seenSection    map[byte]bool
	entriesLeft    uint32
	bodyEnd        int
	bodyDepth      int
	codeFuncsTotal uint32
	codeFuncsSeen  uint32
}

// NewParser creates a Parser over data using the default feature set.
func NewParser(data []byte) *Parser {
	return NewParserWithFeatures(data, DefaultFeatures())
}

// NewParserWithFeatures creates a Parser that only accepts the encodings
// gated by feat.
func NewParserWithFeatures(data []byte, feat Features) *Parser {
	return &Parser{
		r:             binary.NewReader(data),
		feat:          feat,
		phase:         phaseStart,
		lastSectionID: -1,
		seenSection:   make(map[byte]bool),
	}
}

// Read advances the parser and returns the next event.
func (p *Parser) Read() (*Event, error) {
	return p.ReadWithInput(Default)
}

// ReadWithInput advances the parser, applying input where it is legal
// for the current state. An input that does not apply to the current
// state is silently treated as Default.
func (p *Parser) ReadWithInput(input ParserInput) (*Event, error) {
	switch p.phase {
	case phaseEnd:
		return &p.ev, nil
	case phaseError:
		return &p.ev, p.ev.Err
	}

	if input == SkipSection && p.sectionOpen() {
		p.r.SeekTo(p.sectionEnd)
		return p.emitEndSection()
	}

	switch p.phase {
	case phaseStart:
		return p.emitBeginWasm()
	case phaseSectionStart:
		return p.beginNextSection()
	case phaseSectionBegun:
		if input == ReadSectionRawData {
			return p.emitSectionRawData()
		}
		return p.beginEntries()
	case phaseEntries:
		return p.nextEntry()
	case phaseCodeBodyBegun:
		if input == SkipFunctionBody {
			p.r.SeekTo(p.bodyEnd)
			return p.emitEndFunctionBody()
		}
		return p.emitFunctionBodyLocals()
	case phaseCodeOperators:
		if input == SkipFunctionBody {
			p.r.SeekTo(p.bodyEnd)
			return p.emitEndFunctionBody()
		}
		return p.nextOperator()
	case phaseSectionEnd:
		return p.emitEndSection()
	}
	return p.fail(werrors.New(werrors.KindUnsupported).At(p.r.Pos()).Detail("parser in unknown state").Build())
}

func (p *Parser) sectionOpen() bool {
	switch p.phase {
	case phaseSectionBegun, phaseEntries, phaseCodeBodyBegun, phaseCodeOperators, phaseSectionEnd:
		return true
	}
	return false
}

func (p *Parser) fail(e *werrors.Error) (*Event, error) {
	p.ev = Event{Kind: EvError, Pos: e.Offset, Err: e}
	p.phase = phaseError
	return &p.ev, e
}

func (p *Parser) emitBeginWasm() (*Event, error) {
	magic, err := p.r.ReadU32LE()
	if err != nil {
		return p.fail(werrors.InvalidHeader(0, "truncated before magic number"))
	}
	if magic != Magic {
		return p.fail(werrors.InvalidHeader(0, "bad magic number"))
	}
	version, err := p.r.ReadU32LE()
	if err != nil {
		return p.fail(werrors.InvalidHeader(4, "truncated before version"))
	}
	if version != Version {
		return p.fail(werrors.InvalidHeader(4, "unsupported binary version"))
	}
	p.ev = Event{Kind: EvBeginWasm, Pos: 0, Version: version}
	p.phase = phaseSectionStart
	return &p.ev, nil
}

func (p *Parser) beginNextSection() (*Event, error) {
	if p.r.AtEnd() {
		p.ev = Event{Kind: EvEndWasm, Pos: p.r.Pos()}
		p.phase = phaseEnd
		return &p.ev, nil
	}
	pos := p.r.Pos()
	id, err := p.r.ReadByte()
	if err != nil {
		return p.fail(werrors.UnexpectedEOF(pos))
	}
	size, err := p.r.ReadVarU32()
	if err != nil {
		return p.fail(werrors.InvalidLEB128(pos, "bad section size"))
	}
	payloadStart := p.r.Pos()
	end := payloadStart + int(size)
	if end > p.r.Len() {
		return p.fail(werrors.BadSectionLength(pos, sectionName(id), int(size), p.r.Len()-payloadStart))
	}
	if id != SectionCustom {
		if p.seenSection[id] {
			return p.fail(werrors.DuplicateSection(pos, sectionName(id)))
		}
		if p.lastSectionID >= 0 && sectionOrder(id) <= sectionOrder(byte(p.lastSectionID)) {
			return p.fail(werrors.SectionOutOfOrder(pos, sectionName(id)))
		}
		p.seenSection[id] = true
		p.lastSectionID = int(id)
	}

	p.sectionID = id
	p.sectionEnd = end
	p.ev = Event{Kind: EvBeginSection, Pos: pos, Section: id}

	if id == SectionCustom {
		name, err := p.r.ReadName(MaxWasmStringSize)
		if err != nil {
			return p.fail(err.(*werrors.Error))
		}
		p.ev.SectionName = name
	}
	p.phase = phaseSectionBegun
	return &p.ev, nil
}

func (p *Parser) emitSectionRawData() (*Event, error) {
	data, err := p.r.ReadBytes(p.sectionEnd - p.r.Pos())
	if err != nil {
		return p.fail(err.(*werrors.Error))
	}
	p.ev = Event{Kind: EvSectionRawData, Pos: p.r.Pos() - len(data), RawData: data}
	p.phase = phaseSectionEnd
	return &p.ev, nil
}

func (p *Parser) emitEndSection() (*Event, error) {
	p.r.SeekTo(p.sectionEnd)
	p.ev = Event{Kind: EvEndSection, Pos: p.sectionEnd, Section: p.sectionID}
	p.phase = phaseSectionStart
	return &p.ev, nil
}

// beginEntries reads a section's leading entry count (or, for the
// single-value Start/DataCount sections and the count-less Custom
// section, handles those directly) and dispatches the first entry.
func (p *Parser) beginEntries() (*Event, error) {
	switch p.sectionID {
	case SectionCustom:
		return p.emitSectionRawData()
	case SectionStart:
		pos := p.r.Pos()
		idx, err := p.r.ReadVarU32()
		if err != nil {
			return p.fail(err.(*werrors.Error))
		}
		p.ev = Event{Kind: EvStartEntry, Pos: pos, StartFunc: idx}
		p.phase = phaseSectionEnd
		return &p.ev, nil
	case SectionDataCount:
		pos := p.r.Pos()
		n, err := p.r.ReadVarU32()
		if err != nil {
			return p.fail(err.(*werrors.Error))
		}
		p.ev = Event{Kind: EvDataCountEntry, Pos: pos, DataCount: n}
		p.phase = phaseSectionEnd
		return &p.ev, nil
	}

	pos := p.r.Pos()
	count, err := p.r.ReadVarU32()
	if err != nil {
		return p.fail(err.(*werrors.Error))
	}
	if p.sectionID == SectionCode {
		p.codeFuncsTotal = count
		p.codeFuncsSeen = 0
	}
	if lim := p.sectionEntryLimit(p.sectionID); lim > 0 && int(count) > lim {
		return p.fail(werrors.LimitExceeded(pos, sectionName(p.sectionID), int(count), lim))
	}
	p.entriesLeft = count
	if count == 0 {
		return p.emitEndSection()
	}
	return p.nextEntry()
}

// sectionEntryLimit returns the per-section entry-count cap. The
// single-table/single-memory MVP caps widen once the corresponding
// proposal (reference types for multiple tables, multi-memory for
// multiple memories) is enabled.
func (p *Parser) sectionEntryLimit(id byte) int {
	switch id {
	case SectionType:
		return MaxWasmTypes
	case SectionFunction, SectionCode:
		return MaxWasmFunctions
	case SectionTable:
		if p.feat.EnableReferenceTypes {
			return MaxWasmTablesMulti
		}
		return MaxWasmTables
	case SectionMemory:
		if p.feat.EnableMultiMemory {
			return MaxWasmMemoriesMulti
		}
		return MaxWasmMemories
	case SectionGlobal:
		return MaxWasmGlobals
	}
	return 0
}

// sectionOrder returns a section id's position in the canonical section
// sequence. This is not the same as the raw numeric id: the DataCount
// section carries id 12 but must physically precede Code (10) and Data
// (11), and the exception-handling Tag section (13) sits between Memory
// and Global. Custom sections may appear anywhere and never reach this
// function (their ordering is never checked).
func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionTag:
		return 6
	case SectionGlobal:
		return 7
	case SectionExport:
		return 8
	case SectionStart:
		return 9
	case SectionElement:
		return 10
	case SectionDataCount:
		return 11
	case SectionCode:
		return 12
	case SectionData:
		return 13
	}
	return 0
}

func sectionName(id byte) string {
	switch id {
	case SectionCustom:
		return "custom"
	case SectionType:
		return "type"
	case SectionImport:
		return "import"
	case SectionFunction:
		return "function"
	case SectionTable:
		return "table"
	case SectionMemory:
		return "memory"
	case SectionGlobal:
		return "global"
	case SectionExport:
		return "export"
	case SectionStart:
		return "start"
	case SectionElement:
		return "element"
	case SectionCode:
		return "code"
	case SectionData:
		return "data"
	case SectionDataCount:
		return "data count"
	case SectionTag:
		return "tag"
	}
	return "unknown"
}

func (p *Parser) nextEntry() (*Event, error) {
	pos := p.r.Pos()
	var err error

	switch p.sectionID {
	case SectionType:
		var td TypeDef
		td, err = decodeTypeEntry(p.r, p.feat)
		p.ev = Event{Kind: EvTypeEntry, Pos: pos, TypeDef: td}
	case SectionImport:
		var imp Import
		imp, err = decodeImportEntry(p.r, p.feat)
		p.ev = Event{Kind: EvImportEntry, Pos: pos, Import: imp}
	case SectionFunction:
		var idx uint32
		idx, err = p.r.ReadVarU32()
		p.ev = Event{Kind: EvFunctionEntry, Pos: pos, FuncTypeIdx: idx}
	case SectionTable:
		var tt TableType
		tt, err = decodeTableType(p.r, p.feat)
		p.ev = Event{Kind: EvTableEntry, Pos: pos, Table: tt}
	case SectionMemory:
		var mt MemoryType
		mt, err = decodeMemoryType(p.r)
		p.ev = Event{Kind: EvMemoryEntry, Pos: pos, Memory: mt}
	case SectionGlobal:
		var gt GlobalType
		if gt, err = decodeGlobalType(p.r, p.feat); err == nil {
			var init []byte
			init, err = decodeConstExpr(p.r, p.feat)
			p.ev = Event{Kind: EvGlobalEntry, Pos: pos, Global: Global{Type: gt, Init: init}}
		}
	case SectionExport:
		var ex Export
		ex, err = decodeExportEntry(p.r)
		p.ev = Event{Kind: EvExportEntry, Pos: pos, Export: ex}
	case SectionElement:
		var el Element
		el, err = decodeElementEntry(p.r, p.feat)
		p.ev = Event{Kind: EvElementEntry, Pos: pos, Element: el}
	case SectionCode:
		return p.beginFunctionBody()
	case SectionData:
		var ds DataSegment
		ds, err = decodeDataEntry(p.r, p.feat)
		p.ev = Event{Kind: EvDataEntry, Pos: pos, Data: ds}
	case SectionTag:
		if !p.feat.EnableExceptions {
			err = werrors.UnsupportedFeature(pos, "tag section entry")
		} else {
			var tag TagType
			tag, err = decodeTagType(p.r)
			p.ev = Event{Kind: EvTagEntry, Pos: pos, Tag: tag}
		}
	}
	if err != nil {
		if we, ok := err.(*werrors.Error); ok {
			return p.fail(we)
		}
		return p.fail(werrors.New(werrors.KindUnsupported).At(pos).Cause(err).Build())
	}

	p.entriesLeft--
	if p.entriesLeft == 0 {
		p.phase = phaseSectionEnd
	} else {
		p.phase = phaseEntries
	}
	return &p.ev, nil
}

func (p *Parser) beginFunctionBody() (*Event, error) {
	pos := p.r.Pos()
	size, err := p.r.ReadVarU32()
	if err != nil {
		return p.fail(err.(*werrors.Error))
	}
	if size > MaxWasmFunctionSize {
		return p.fail(werrors.LimitExceeded(pos, "function body size", int(size), MaxWasmFunctionSize))
	}
	bodyStart := p.r.Pos()
	bodyEnd := bodyStart + int(size)
	if bodyEnd > p.sectionEnd {
		return p.fail(werrors.BadCodeSection(pos, "function body extends past code section end"))
	}
	p.bodyEnd = bodyEnd
	p.bodyDepth = 0
	p.codeFuncsSeen++
	p.ev = Event{Kind: EvBeginFunctionBody, Pos: pos, BodyStart: bodyStart, BodyEnd: bodyEnd}
	p.phase = phaseCodeBodyBegun
	return &p.ev, nil
}

func (p *Parser) emitFunctionBodyLocals() (*Event, error) {
	pos := p.r.Pos()
	n, err := p.r.ReadVarU32()
	if err != nil {
		return p.fail(err.(*werrors.Error))
	}
	locals := make([]LocalEntry, n)
	var total uint64
	for i := range locals {
		count, err := p.r.ReadVarU32()
		if err != nil {
			return p.fail(err.(*werrors.Error))
		}
		ext, err := decodeExtValType(p.r, p.feat)
		if err != nil {
			return p.fail(err.(*werrors.Error))
		}
		if ext.Kind == ExtValKindRef {
			locals[i] = LocalEntry{Count: count, ExtType: &ext}
		} else {
			locals[i] = LocalEntry{Count: count, ValType: ext.ValType}
		}
		total += uint64(count)
		if total > MaxWasmFunctionLocal {
			return p.fail(werrors.LimitExceeded(pos, "function locals", int(total), MaxWasmFunctionLocal))
		}
	}
	p.ev = Event{Kind: EvFunctionBodyLocals, Pos: pos, Locals: locals, BodyStart: p.r.Pos(), BodyEnd: p.bodyEnd}
	p.phase = phaseCodeOperators
	return &p.ev, nil
}

func (p *Parser) nextOperator() (*Event, error) {
	if p.bodyDepth < 0 {
		// The body's own end was reported on the previous call.
		return p.emitEndFunctionBody()
	}
	if p.r.Pos() >= p.bodyEnd {
		return p.fail(werrors.BadCodeSection(p.r.Pos(), "function body missing terminating end"))
	}
	op, err := DecodeOperator(p.r, p.feat)
	if err != nil {
		if we, ok := err.(*werrors.Error); ok {
			return p.fail(we)
		}
		return p.fail(werrors.New(werrors.KindUnsupported).At(p.r.Pos()).Cause(err).Build())
	}

	if opensBlock(op.Code) {
		p.bodyDepth++
	} else if op.Code == uint32(OpEnd) {
		if p.bodyDepth == 0 {
			if p.r.Pos() != p.bodyEnd {
				return p.fail(werrors.BadCodeSection(op.Pos, "function body length does not match declared size"))
			}
			p.bodyDepth = -1
		} else {
			p.bodyDepth--
		}
	}
	p.ev = Event{Kind: EvCodeOperator, Pos: op.Pos, Op: op}
	return &p.ev, nil
}

// opensBlock reports whether code begins a nested control-flow frame
// whose matching "end" must not be mistaken for the function body's own
// terminating end.
func opensBlock(code uint32) bool {
	switch code {
	case uint32(OpBlock), uint32(OpLoop), uint32(OpIf), uint32(OpTry), uint32(OpTryTable):
		return true
	}
	return false
}

func (p *Parser) emitEndFunctionBody() (*Event, error) {
	p.r.SeekTo(p.bodyEnd)
	p.ev = Event{Kind: EvEndFunctionBody, Pos: p.bodyEnd}
	if p.codeFuncsSeen >= p.codeFuncsTotal {
		p.phase = phaseSectionEnd
	} else {
		p.phase = phaseEntries
	}
	return &p.ev, nil
}
