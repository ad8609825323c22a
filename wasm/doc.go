// Package wasm implements a streaming, event-driven parser and validator
// for the WebAssembly binary module format.
//
// The package exposes two layers. A Parser walks a byte slice and emits one
// Event at a time (BeginWasm, BeginSection, per-section entries,
// BeginFunctionBody / CodeOperator / EndFunctionBody, EndSection, EndWasm);
// the caller pulls events by calling Read or ReadWithInput and never gets
// more than one event buffered at a time. A ValidatingParser drives a
// Parser, tracks the module's index spaces as sections arrive, and
// instantiates an OperatorValidator per function body to type-check its
// instruction stream against the WebAssembly stack-machine rules.
//
// # Streaming
//
//	p := wasm.NewParser(data)
//	for {
//	    ev, err := p.Read()
//	    if err != nil {
//	        break
//	    }
//	    switch ev.Kind {
//	    case wasm.EvBeginSection:
//	        // inspect ev.Section, optionally steer with ParserInput
//	    case wasm.EvEndWasm:
//	        return
//	    }
//	}
//
// Callers steer the parser with ParserInput: SkipSection and
// SkipFunctionBody fast-forward past a section or function body without
// decoding its entries; ReadSectionRawData yields the section's undecoded
// payload instead of entry events.
//
// # Validation
//
//	mod, err := wasm.Validate(data, wasm.Features{EnableBulkMemory: true})
//
// Validate drives a ValidatingParser to EndWasm and returns the assembled
// Module, or the first error encountered, classified by errors.Kind and carrying the byte
// offset of the fault. ValidateFunctionBody validates a single function
// body in isolation against a caller-supplied ModuleResources view, for
// callers (incremental compilers, tooling) that maintain their own module
// representation.
//
// # Feature flags
//
// Features gates which proposals the reader and validator accept:
// threads, reference-types, SIMD, bulk-memory, multi-value, plus the
// GC, exception-handling, tail-call, multi-memory, and memory64
// extensions layered on top of the WebAssembly 2.0 baseline. An opcode
// gated by a disabled feature fails with errors.KindUnsupported rather
// than errors.KindUnknownOpcode; byte 0x06 (legacy try) is the exception
// and fails with errors.KindUnknownOpcode while EnableExceptions is off.
// The v128 value type, the shared and memory64 limits flags, and function
// types with more than one result are accepted whichever flags are set.
//
// # Zero-copy
//
// Raw section payloads, data segment bytes, and initializer expressions
// are returned as sub-slices of the caller's input without copying;
// function bodies are reported as BodyStart/BodyEnd offsets into it.
// Names are decoded into Go strings, which copies their bytes. The input
// slice must remain valid and unmodified for the lifetime of the Parser.
package wasm
