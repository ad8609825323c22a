package wasm_test

import (
	"errors"
	"testing"

	werrors "github.com/wasmforge/wasmparser/errors"
	"github.com/wasmforge/wasmparser/wasm"
)

func TestValidateEmptyModule(t *testing.T) {
	mod, err := wasm.Validate(header(), wasm.DefaultFeatures())
	if err != nil {
		t.Fatalf("Validate(): %v", err)
	}
	if mod.NumTypes() != 0 {
		t.Errorf("NumTypes() = %d, want 0", mod.NumTypes())
	}
}

func TestValidateMinimalFunctionModule(t *testing.T) {
	mod, err := wasm.Validate(minimalFunctionModule(), wasm.DefaultFeatures())
	if err != nil {
		t.Fatalf("Validate(): %v", err)
	}
	if len(mod.Funcs) != 1 {
		t.Fatalf("len(Funcs) = %d, want 1", len(mod.Funcs))
	}
	if len(mod.Code) != 1 {
		t.Fatalf("len(Code) = %d, want 1", len(mod.Code))
	}
}

func TestValidateBadMagicPropagates(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x99, 0x01, 0x00, 0x00, 0x00}
	_, err := wasm.Validate(data, wasm.DefaultFeatures())
	if err == nil {
		t.Fatal("expected an error for bad magic")
	}
}

func TestValidateUnknownOpcodeInBody(t *testing.T) {
	data := header()
	data = append(data, 0x01, 0x04, 0x01, 0x60, 0x00, 0x00)
	data = append(data, 0x03, 0x02, 0x01, 0x00)
	data = append(data, 0x0A, 0x04, 0x01, 0x02, 0x00, 0x06)

	_, err := wasm.Validate(data, wasm.DefaultFeatures())
	if err == nil {
		t.Fatal("expected an error for opcode 0x06")
	}
	var we *werrors.Error
	if !errors.As(err, &we) {
		t.Fatalf("expected *errors.Error, got %T", err)
	}
	if we.Kind != werrors.KindUnknownOpcode {
		t.Errorf("Kind = %v, want KindUnknownOpcode", we.Kind)
	}
}

func TestValidateFunctionBodyTypeMismatch(t *testing.T) {
	data := header()
	data = append(data, 0x01, 0x04, 0x01, 0x60, 0x00, 0x00)
	data = append(data, 0x03, 0x02, 0x01, 0x00)
	// code: i32.const 1, f32.const 0, i32.add, end
	data = append(data, 0x0A, 0x0C, 0x01, 0x0A, 0x00,
		0x41, 0x01, // i32.const 1
		0x43, 0x00, 0x00, 0x00, 0x00, // f32.const 0
		0x6A, // i32.add
		0x0B) // end

	_, err := wasm.Validate(data, wasm.DefaultFeatures())
	if err == nil {
		t.Fatal("expected a type mismatch between i32 and f32 operands")
	}
	var we *werrors.Error
	if !errors.As(err, &we) {
		t.Fatalf("expected *errors.Error, got %T", err)
	}
	if we.Kind != werrors.KindTypeMismatch {
		t.Errorf("Kind = %v, want KindTypeMismatch", we.Kind)
	}
}

func TestValidateFunctionBodyStandalone(t *testing.T) {
	res := &fakeResources{types: []wasm.FuncType{{Results: []wasm.ValType{wasm.ValI32}}}}
	ft := wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}
	code := []byte{0x41, 0x05, 0x0B} // i32.const 5, end

	if err := wasm.ValidateFunctionBody(res, wasm.DefaultFeatures(), ft, nil, code); err != nil {
		t.Fatalf("ValidateFunctionBody(): %v", err)
	}
}

func TestValidateDuplicateExport(t *testing.T) {
	data := header()
	data = append(data, 0x01, 0x04, 0x01, 0x60, 0x00, 0x00)
	data = append(data, 0x03, 0x02, 0x01, 0x00)
	// export section: 2 entries both named "f", both func idx 0
	data = append(data, 0x07, 0x09, 0x02,
		0x01, 'f', 0x00, 0x00,
		0x01, 'f', 0x00, 0x00)
	data = append(data, 0x0A, 0x04, 0x01, 0x02, 0x00, 0x0B)

	_, err := wasm.Validate(data, wasm.DefaultFeatures())
	if err == nil {
		t.Fatal("expected an error for a duplicate export name")
	}
}

func TestValidateDataCountMismatch(t *testing.T) {
	data := header()
	data = append(data, 0x05, 0x03, 0x01, 0x00, 0x00) // memory: 1 entry, min 0
	data = append(data, 0x0C, 0x01, 0x02)              // data count: declares 2
	data = append(data, 0x0A, 0x01, 0x00)              // code: empty
	data = append(data, 0x0B, 0x06, 0x01, 0x00, 0x41, 0x00, 0x0B, 0x00) // data: 1 segment

	_, err := wasm.Validate(data, wasm.DefaultFeatures())
	if err == nil {
		t.Fatal("expected a data count / data section segment count mismatch")
	}
}
