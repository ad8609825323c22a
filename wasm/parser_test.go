package wasm_test

import (
	"errors"
	"testing"

	werrors "github.com/wasmforge/wasmparser/errors"
	"github.com/wasmforge/wasmparser/wasm"
)

// header returns the 8-byte magic+version prefix every module starts with.
func header() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
}

func TestParserEmptyModule(t *testing.T) {
	p := wasm.NewParser(header())

	ev, err := p.Read()
	if err != nil {
		t.Fatalf("BeginWasm: %v", err)
	}
	if ev.Kind != wasm.EvBeginWasm {
		t.Fatalf("got %v, want EvBeginWasm", ev.Kind)
	}

	ev, err = p.Read()
	if err != nil {
		t.Fatalf("EndWasm: %v", err)
	}
	if ev.Kind != wasm.EvEndWasm {
		t.Fatalf("got %v, want EvEndWasm", ev.Kind)
	}
}

func TestParserBadMagic(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x99, 0x01, 0x00, 0x00, 0x00}
	p := wasm.NewParser(data)

	_, err := p.Read()
	if err == nil {
		t.Fatal("expected an error for bad magic")
	}
	var we *werrors.Error
	if !errors.As(err, &we) {
		t.Fatalf("expected *errors.Error, got %T", err)
	}
	if we.Kind != werrors.KindInvalidHeader {
		t.Errorf("Kind = %v, want KindInvalidHeader", we.Kind)
	}
}

func TestParserStickyTerminalEvents(t *testing.T) {
	p := wasm.NewParser(header())

	var last *wasm.Event
	for i := 0; i < 3; i++ {
		ev, err := p.Read()
		if err != nil {
			t.Fatalf("Read() #%d: %v", i, err)
		}
		last = ev
	}
	if last.Kind != wasm.EvEndWasm {
		t.Fatalf("got %v, want EvEndWasm to repeat", last.Kind)
	}
}

// minimalFunctionModule builds a module with a type section declaring a
// single () -> () func type, a function section referencing it, and an
// empty code body.
func minimalFunctionModule() []byte {
	data := header()
	// type section: 1 entry, func type, 0 params, 0 results
	data = append(data, 0x01, 0x04, 0x01, 0x60, 0x00, 0x00)
	// function section: 1 entry, type index 0
	data = append(data, 0x03, 0x02, 0x01, 0x00)
	// code section: 1 body, size 2, 0 locals, end
	data = append(data, 0x0A, 0x04, 0x01, 0x02, 0x00, 0x0B)
	return data
}

func TestParserMinimalFunctionModule(t *testing.T) {
	p := wasm.NewParser(minimalFunctionModule())

	var kinds []wasm.EventKind
	for {
		ev, err := p.Read()
		if err != nil {
			t.Fatalf("Read(): %v", err)
		}
		kinds = append(kinds, ev.Kind)
		if ev.Kind == wasm.EvEndWasm {
			break
		}
	}

	want := []wasm.EventKind{
		wasm.EvBeginWasm,
		wasm.EvBeginSection, wasm.EvTypeEntry, wasm.EvEndSection,
		wasm.EvBeginSection, wasm.EvFunctionEntry, wasm.EvEndSection,
		wasm.EvBeginSection,
		wasm.EvBeginFunctionBody, wasm.EvFunctionBodyLocals, wasm.EvCodeOperator, wasm.EvEndFunctionBody,
		wasm.EvEndSection,
		wasm.EvEndWasm,
	}
	if len(kinds) != len(want) {
		t.Fatalf("got %d events %v, want %d events %v", len(kinds), kinds, len(want), want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d: got %v, want %v", i, kinds[i], want[i])
		}
	}
}

func TestParserSkipFunctionBody(t *testing.T) {
	p := wasm.NewParser(minimalFunctionModule())

	for {
		ev, err := p.Read()
		if err != nil {
			t.Fatalf("Read(): %v", err)
		}
		if ev.Kind == wasm.EvBeginFunctionBody {
			ev, err = p.ReadWithInput(wasm.SkipFunctionBody)
			if err != nil {
				t.Fatalf("ReadWithInput(SkipFunctionBody): %v", err)
			}
			if ev.Kind != wasm.EvEndFunctionBody {
				t.Fatalf("got %v, want EvEndFunctionBody", ev.Kind)
			}
			return
		}
		if ev.Kind == wasm.EvEndWasm {
			t.Fatal("reached EvEndWasm before a function body")
		}
	}
}

func TestParserUnknownOpcode(t *testing.T) {
	data := header()
	data = append(data, 0x01, 0x04, 0x01, 0x60, 0x00, 0x00)
	data = append(data, 0x03, 0x02, 0x01, 0x00)
	// code section: body contains the reserved/unassigned opcode 0x06
	data = append(data, 0x0A, 0x04, 0x01, 0x02, 0x00, 0x06)

	p := wasm.NewParser(data)
	var lastErr error
	for {
		ev, err := p.Read()
		if err != nil {
			lastErr = err
			break
		}
		if ev.Kind == wasm.EvEndWasm {
			break
		}
	}
	if lastErr == nil {
		t.Fatal("expected an error for opcode 0x06")
	}
	var we *werrors.Error
	if !errors.As(lastErr, &we) {
		t.Fatalf("expected *errors.Error, got %T", lastErr)
	}
	if we.Kind != werrors.KindUnknownOpcode {
		t.Errorf("Kind = %v, want KindUnknownOpcode", we.Kind)
	}
}

func TestParserDataCountBeforeCode(t *testing.T) {
	data := header()
	// memory section: 1 entry, no max, min 0
	data = append(data, 0x05, 0x03, 0x01, 0x00, 0x00)
	// data count section: 1
	data = append(data, 0x0C, 0x01, 0x01)
	// code section: empty
	data = append(data, 0x0A, 0x01, 0x00)
	// data section: 1 active segment against memory 0, offset i32.const 0, 0 bytes
	data = append(data, 0x0B, 0x06, 0x01, 0x00, 0x41, 0x00, 0x0B, 0x00)

	p := wasm.NewParser(data)
	for {
		ev, err := p.Read()
		if err != nil {
			t.Fatalf("DataCount before Code must parse cleanly: %v", err)
		}
		if ev.Kind == wasm.EvEndWasm {
			break
		}
	}
}
