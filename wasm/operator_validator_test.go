package wasm_test

import (
	"errors"
	"testing"

	werrors "github.com/wasmforge/wasmparser/errors"
	"github.com/wasmforge/wasmparser/wasm"
)

// fakeResources is a minimal ModuleResources double for tests that only
// need a handful of index-space entries, without building a full Module.
type fakeResources struct {
	types   []wasm.FuncType
	funcs   []uint32 // type index per function
	tables  []wasm.TableType
	globals []wasm.GlobalType
}

func (r *fakeResources) NumTypes() uint32 { return uint32(len(r.types)) }
func (r *fakeResources) FuncTypeAt(idx uint32) (*wasm.FuncType, bool) {
	if int(idx) >= len(r.types) {
		return nil, false
	}
	return &r.types[idx], true
}
func (r *fakeResources) NumFunctions() uint32 { return uint32(len(r.funcs)) }
func (r *fakeResources) FunctionTypeIndex(idx uint32) (uint32, bool) {
	if int(idx) >= len(r.funcs) {
		return 0, false
	}
	return r.funcs[idx], true
}
func (r *fakeResources) NumTables() uint32 { return uint32(len(r.tables)) }
func (r *fakeResources) TableAt(idx uint32) (wasm.TableType, bool) {
	if int(idx) >= len(r.tables) {
		return wasm.TableType{}, false
	}
	return r.tables[idx], true
}
func (r *fakeResources) NumMemories() uint32                             { return 0 }
func (r *fakeResources) MemoryAt(uint32) (wasm.MemoryType, bool)        { return wasm.MemoryType{}, false }
func (r *fakeResources) NumGlobals() uint32                             { return uint32(len(r.globals)) }
func (r *fakeResources) GlobalAt(idx uint32) (wasm.GlobalType, bool) {
	if int(idx) >= len(r.globals) {
		return wasm.GlobalType{}, false
	}
	return r.globals[idx], true
}
func (r *fakeResources) NumTags() uint32                          { return 0 }
func (r *fakeResources) TagAt(uint32) (wasm.TagType, bool)        { return wasm.TagType{}, false }
func (r *fakeResources) NumElements() uint32                      { return 0 }
func (r *fakeResources) ElementAt(uint32) (wasm.Element, bool)    { return wasm.Element{}, false }
func (r *fakeResources) DataCount() (uint32, bool)                { return 0, false }

func op(code byte) wasm.Op { return wasm.Op{Code: uint32(code)} }

func TestOperatorValidatorAddI32(t *testing.T) {
	ft := wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}
	v := wasm.NewOperatorValidator(&fakeResources{}, wasm.DefaultFeatures(), ft, nil)

	ops := []wasm.Op{
		{Code: uint32(wasm.OpI32Const), I32: 1},
		{Code: uint32(wasm.OpI32Const), I32: 2},
		op(wasm.OpI32Add),
		op(wasm.OpEnd),
	}
	for _, o := range ops {
		if err := v.Visit(o); err != nil {
			t.Fatalf("Visit(%v): %v", o, err)
		}
	}
	if err := v.Done(); err != nil {
		t.Fatalf("Done(): %v", err)
	}
}

func TestOperatorValidatorTypeMismatch(t *testing.T) {
	ft := wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}
	v := wasm.NewOperatorValidator(&fakeResources{}, wasm.DefaultFeatures(), ft, nil)

	if err := v.Visit(wasm.Op{Code: uint32(wasm.OpI32Const), I32: 1}); err != nil {
		t.Fatalf("i32.const: %v", err)
	}
	if err := v.Visit(wasm.Op{Code: uint32(wasm.OpF32Const), F32: 1.0}); err != nil {
		t.Fatalf("f32.const: %v", err)
	}

	err := v.Visit(op(wasm.OpI32Add))
	if err == nil {
		t.Fatal("expected a type mismatch")
	}
	var we *werrors.Error
	if !errors.As(err, &we) {
		t.Fatalf("expected *errors.Error, got %T", err)
	}
	if we.Kind != werrors.KindTypeMismatch {
		t.Errorf("Kind = %v, want KindTypeMismatch", we.Kind)
	}
}

func TestOperatorValidatorStackUnderflow(t *testing.T) {
	ft := wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}
	v := wasm.NewOperatorValidator(&fakeResources{}, wasm.DefaultFeatures(), ft, nil)

	err := v.Visit(op(wasm.OpI32Add))
	if err == nil {
		t.Fatal("expected a stack underflow")
	}
	var we *werrors.Error
	if !errors.As(err, &we) {
		t.Fatalf("expected *errors.Error, got %T", err)
	}
	if we.Kind != werrors.KindStackUnderflow {
		t.Errorf("Kind = %v, want KindStackUnderflow", we.Kind)
	}
}

func TestOperatorValidatorMissingResult(t *testing.T) {
	ft := wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}
	v := wasm.NewOperatorValidator(&fakeResources{}, wasm.DefaultFeatures(), ft, nil)

	if err := v.Visit(op(wasm.OpEnd)); err == nil {
		t.Fatal("expected an error for a function missing its declared i32 result")
	}
}

func TestOperatorValidatorLocalGetSet(t *testing.T) {
	ft := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}
	v := wasm.NewOperatorValidator(&fakeResources{}, wasm.DefaultFeatures(), ft, nil)

	ops := []wasm.Op{
		{Code: uint32(wasm.OpLocalGet), LocalIdx: 0},
		{Code: uint32(wasm.OpLocalSet), LocalIdx: 0},
		{Code: uint32(wasm.OpLocalGet), LocalIdx: 0},
		op(wasm.OpEnd),
	}
	for _, o := range ops {
		if err := v.Visit(o); err != nil {
			t.Fatalf("Visit(%v): %v", o, err)
		}
	}
	if err := v.Done(); err != nil {
		t.Fatalf("Done(): %v", err)
	}
}

func TestOperatorValidatorUnreachablePolymorphism(t *testing.T) {
	// Past `unreachable`, any number of pops type-checks: the stack is
	// polymorphic until the enclosing block's `end`, where the i32 from
	// i32.add meets the i32 result and the i64 below it is synthesized.
	ft := wasm.FuncType{Results: []wasm.ValType{wasm.ValI64, wasm.ValI32}}
	v := wasm.NewOperatorValidator(&fakeResources{}, wasm.DefaultFeatures(), ft, nil)

	ops := []wasm.Op{
		op(wasm.OpUnreachable),
		op(wasm.OpI32Add), // would underflow if reachable; fine when polymorphic
		op(wasm.OpEnd),
	}
	for _, o := range ops {
		if err := v.Visit(o); err != nil {
			t.Fatalf("Visit(%v): %v", o, err)
		}
	}
	if err := v.Done(); err != nil {
		t.Fatalf("Done(): %v", err)
	}
}

func TestConstExprValidatorAcceptsConst(t *testing.T) {
	v := wasm.NewConstExprValidator(&fakeResources{}, wasm.DefaultFeatures(), wasm.ValI32)

	if err := v.Visit(wasm.Op{Code: uint32(wasm.OpI32Const), I32: 42}); err != nil {
		t.Fatalf("i32.const: %v", err)
	}
	if err := v.Visit(op(wasm.OpEnd)); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := v.Done(); err != nil {
		t.Fatalf("Done(): %v", err)
	}
}

func TestConstExprValidatorRejectsLocalGet(t *testing.T) {
	v := wasm.NewConstExprValidator(&fakeResources{}, wasm.DefaultFeatures(), wasm.ValI32)

	err := v.Visit(wasm.Op{Code: uint32(wasm.OpLocalGet), LocalIdx: 0})
	if err == nil {
		t.Fatal("expected local.get to be rejected in a constant expression")
	}
	var we *werrors.Error
	if !errors.As(err, &we) {
		t.Fatalf("expected *errors.Error, got %T", err)
	}
	if we.Kind != werrors.KindIllegalConstExpr {
		t.Errorf("Kind = %v, want KindIllegalConstExpr", we.Kind)
	}
}

func TestConstExprValidatorGlobalGet(t *testing.T) {
	res := &fakeResources{globals: []wasm.GlobalType{{ValType: wasm.ValI32, Mutable: false}}}
	v := wasm.NewConstExprValidator(res, wasm.DefaultFeatures(), wasm.ValI32)

	if err := v.Visit(wasm.Op{Code: uint32(wasm.OpGlobalGet), GlobalIdx: 0}); err != nil {
		t.Fatalf("global.get: %v", err)
	}
	if err := v.Visit(op(wasm.OpEnd)); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := v.Done(); err != nil {
		t.Fatalf("Done(): %v", err)
	}
}
