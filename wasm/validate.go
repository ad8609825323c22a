package wasm

import (
	werrors "github.com/wasmforge/wasmparser/errors"
	"github.com/wasmforge/wasmparser/wasm/internal/binary"
)

// Validate parses data end to end, checking every section, function
// body, and initializer expression against feat's enabled proposals, and
// returns the fully assembled Module on success.
func Validate(data []byte, feat Features) (*Module, error) {
	vp := newValidatingParser(data, feat)
	return vp.run()
}

// ValidateFunctionBody type-checks one function body's already-decoded
// locals and raw code bytes against ft and res, independent of a full
// module parse. Code must include the terminating "end" opcode.
func ValidateFunctionBody(res ModuleResources, feat Features, ft FuncType, locals []LocalEntry, code []byte) error {
	v := NewOperatorValidator(res, feat, ft, locals)
	r := binary.NewReader(code)
	for !r.AtEnd() {
		op, err := DecodeOperator(r, feat)
		if err != nil {
			return err
		}
		if err := v.Visit(op); err != nil {
			return err
		}
	}
	return v.Done()
}

// validatingParser drives a Parser to completion, assembling a Module
// and type-checking every function body and constant expression as its
// defining section arrives.
type validatingParser struct {
	p    *Parser
	feat Features
	mod  *Module
	res  *moduleResources

	curSection      byte
	curSectionName  string
	funcBodyType    FuncType
	funcBodyIdx     uint32
	funcValidator   *OperatorValidator
	codeBodiesSeen  uint32
	exportNames     map[string]bool
	sawDataCount    bool
	declDataCount   uint32
}

func newValidatingParser(data []byte, feat Features) *validatingParser {
	mod := &Module{}
	return &validatingParser{
		p:           NewParserWithFeatures(data, feat),
		feat:        feat,
		mod:         mod,
		res:         &moduleResources{m: mod},
		exportNames: make(map[string]bool),
	}
}

func (vp *validatingParser) run() (*Module, error) {
	for {
		ev, err := vp.p.Read()
		if err != nil {
			return nil, err
		}
		if err := vp.handle(ev); err != nil {
			return nil, err
		}
		if ev.Kind == EvEndWasm {
			return vp.mod, vp.finalChecks()
		}
	}
}

func (vp *validatingParser) handle(ev *Event) error {
	switch ev.Kind {
	case EvBeginSection:
		vp.curSection = ev.Section
		vp.curSectionName = ev.SectionName

	case EvTypeEntry:
		vp.mod.TypeDefs = append(vp.mod.TypeDefs, ev.TypeDef)
		if ev.TypeDef.Kind == TypeDefKindFunc {
			vp.mod.Types = append(vp.mod.Types, *ev.TypeDef.Func)
		} else {
			vp.mod.Types = append(vp.mod.Types, FuncType{})
		}

	case EvImportEntry:
		if err := vp.checkImport(ev.Import); err != nil {
			return err
		}
		vp.mod.Imports = append(vp.mod.Imports, ev.Import)

	case EvFunctionEntry:
		if int(ev.FuncTypeIdx) >= vp.mod.NumTypes() {
			return werrors.IndexOutOfBounds(ev.Pos, "type", int(ev.FuncTypeIdx), vp.mod.NumTypes())
		}
		vp.mod.Funcs = append(vp.mod.Funcs, ev.FuncTypeIdx)

	case EvTableEntry:
		vp.mod.Tables = append(vp.mod.Tables, ev.Table)

	case EvMemoryEntry:
		vp.mod.Memories = append(vp.mod.Memories, ev.Memory)

	case EvGlobalEntry:
		if err := vp.checkConstExpr(ev.Global.Init, globalInitValType(ev.Global.Type)); err != nil {
			return err
		}
		vp.mod.Globals = append(vp.mod.Globals, ev.Global)

	case EvExportEntry:
		if err := vp.checkExport(ev.Export); err != nil {
			return err
		}
		vp.mod.Exports = append(vp.mod.Exports, ev.Export)

	case EvStartEntry:
		if err := vp.checkStart(ev.StartFunc, ev.Pos); err != nil {
			return err
		}
		idx := ev.StartFunc
		vp.mod.Start = &idx

	case EvElementEntry:
		if err := vp.checkElement(ev.Element, ev.Pos); err != nil {
			return err
		}
		vp.mod.Elements = append(vp.mod.Elements, ev.Element)

	case EvBeginFunctionBody:
		idx := vp.res.NumFunctions() - uint32(len(vp.mod.Funcs)) + vp.codeBodiesSeen
		typeIdx, ok := vp.res.FunctionTypeIndex(idx)
		if !ok {
			return werrors.IndexOutOfBounds(ev.Pos, "function", int(idx), int(vp.res.NumFunctions()))
		}
		ft, ok := vp.res.FuncTypeAt(typeIdx)
		if !ok {
			return werrors.IndexOutOfBounds(ev.Pos, "type", int(typeIdx), vp.mod.NumTypes())
		}
		vp.funcBodyType = *ft
		vp.funcBodyIdx = idx

	case EvFunctionBodyLocals:
		vp.funcValidator = NewOperatorValidator(vp.res, vp.feat, vp.funcBodyType, ev.Locals)
		vp.mod.Code = append(vp.mod.Code, FuncBody{Locals: ev.Locals, Code: vp.p.r.Data()[ev.BodyStart:ev.BodyEnd]})

	case EvCodeOperator:
		if err := vp.funcValidator.Visit(ev.Op); err != nil {
			return err
		}

	case EvEndFunctionBody:
		if err := vp.funcValidator.Done(); err != nil {
			return err
		}
		vp.codeBodiesSeen++

	case EvDataCountEntry:
		n := ev.DataCount
		vp.mod.DataCount = &n
		vp.sawDataCount = true
		vp.declDataCount = n

	case EvDataEntry:
		if ev.Data.Flags != 1 {
			if err := vp.checkConstExpr(ev.Data.Offset, ValI32); err != nil {
				return err
			}
		}
		vp.mod.Data = append(vp.mod.Data, ev.Data)

	case EvTagEntry:
		if int(ev.Tag.TypeIdx) >= vp.mod.NumTypes() {
			return werrors.IndexOutOfBounds(ev.Pos, "type", int(ev.Tag.TypeIdx), vp.mod.NumTypes())
		}
		vp.mod.Tags = append(vp.mod.Tags, ev.Tag)

	case EvSectionRawData:
		if vp.curSection == SectionCustom {
			vp.mod.CustomSections = append(vp.mod.CustomSections, CustomSection{Name: vp.curSectionName, Data: ev.RawData})
		}

	case EvError:
		return ev.Err
	}
	return nil
}

func (vp *validatingParser) checkImport(imp Import) error {
	switch imp.Desc.Kind {
	case KindFunc:
		if int(imp.Desc.TypeIdx) >= vp.mod.NumTypes() {
			return werrors.IndexOutOfBounds(0, "type", int(imp.Desc.TypeIdx), vp.mod.NumTypes())
		}
	case KindTag:
		if imp.Desc.Tag != nil && int(imp.Desc.Tag.TypeIdx) >= vp.mod.NumTypes() {
			return werrors.IndexOutOfBounds(0, "type", int(imp.Desc.Tag.TypeIdx), vp.mod.NumTypes())
		}
	}
	return nil
}

func (vp *validatingParser) checkExport(ex Export) error {
	if vp.exportNames[ex.Name] {
		return werrors.New(werrors.KindDuplicateSection).In("export").
			Detail("duplicate export name %q", ex.Name).Build()
	}
	vp.exportNames[ex.Name] = true

	switch ex.Kind {
	case KindFunc:
		if ex.Idx >= vp.res.NumFunctions() {
			return werrors.IndexOutOfBounds(0, "function", int(ex.Idx), int(vp.res.NumFunctions()))
		}
	case KindTable:
		if ex.Idx >= vp.res.NumTables() {
			return werrors.IndexOutOfBounds(0, "table", int(ex.Idx), int(vp.res.NumTables()))
		}
	case KindMemory:
		if ex.Idx >= vp.res.NumMemories() {
			return werrors.IndexOutOfBounds(0, "memory", int(ex.Idx), int(vp.res.NumMemories()))
		}
	case KindGlobal:
		if ex.Idx >= vp.res.NumGlobals() {
			return werrors.IndexOutOfBounds(0, "global", int(ex.Idx), int(vp.res.NumGlobals()))
		}
	case KindTag:
		if ex.Idx >= vp.res.NumTags() {
			return werrors.IndexOutOfBounds(0, "tag", int(ex.Idx), int(vp.res.NumTags()))
		}
	}
	return nil
}

func (vp *validatingParser) checkStart(idx uint32, pos int) error {
	typeIdx, ok := vp.res.FunctionTypeIndex(idx)
	if !ok {
		return werrors.IndexOutOfBounds(pos, "function", int(idx), int(vp.res.NumFunctions()))
	}
	ft, ok := vp.res.FuncTypeAt(typeIdx)
	if !ok {
		return werrors.IndexOutOfBounds(pos, "type", int(typeIdx), vp.mod.NumTypes())
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return werrors.TypeMismatch(pos, "start", "start function must have type () -> ()")
	}
	return nil
}

func (vp *validatingParser) checkElement(el Element, pos int) error {
	active := el.Flags == 0 || el.Flags == 2 || el.Flags == 4 || el.Flags == 6
	if active {
		if el.TableIdx >= vp.res.NumTables() {
			return werrors.IndexOutOfBounds(pos, "table", int(el.TableIdx), int(vp.res.NumTables()))
		}
		if err := vp.checkConstExpr(el.Offset, ValI32); err != nil {
			return err
		}
	}
	for _, expr := range el.Exprs {
		elemType := el.Type
		if elemType == 0 {
			elemType = ValFuncRef
		}
		if err := vp.checkConstExpr(expr, elemType); err != nil {
			return err
		}
	}
	for _, idx := range el.FuncIdxs {
		if idx >= vp.res.NumFunctions() {
			return werrors.IndexOutOfBounds(pos, "function", int(idx), int(vp.res.NumFunctions()))
		}
	}
	return nil
}

func (vp *validatingParser) checkConstExpr(expr []byte, expect ValType) error {
	v := NewConstExprValidator(vp.res, vp.feat, expect)
	r := binary.NewReader(expr)
	for !r.AtEnd() {
		op, err := DecodeOperator(r, vp.feat)
		if err != nil {
			return err
		}
		if err := v.Visit(op); err != nil {
			return err
		}
	}
	return v.Done()
}

func (vp *validatingParser) finalChecks() error {
	if int(vp.codeBodiesSeen) != len(vp.mod.Funcs) {
		return werrors.New(werrors.KindBadCodeSection).In("code").
			Detail("function section declares %d functions but code section has %d bodies", len(vp.mod.Funcs), vp.codeBodiesSeen).
			Build()
	}
	if vp.sawDataCount && vp.declDataCount != uint32(len(vp.mod.Data)) {
		return werrors.New(werrors.KindBadSectionLength).In("data").
			Detail("data count section declares %d segments but data section has %d", vp.declDataCount, len(vp.mod.Data)).
			Build()
	}
	return nil
}

func globalInitValType(gt GlobalType) ValType {
	if gt.ExtType != nil && gt.ExtType.Kind != ExtValKindSimple {
		return abstractRefValType(gt.ExtType.RefType.HeapType)
	}
	if gt.ExtType != nil {
		return gt.ExtType.ValType
	}
	return gt.ValType
}
