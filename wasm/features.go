package wasm

// Features selects which WebAssembly proposals the Parser and
// OperatorValidator accept. An opcode that belongs to a disabled feature
// fails with errors.KindUnsupported rather than being silently ignored or
// misread as a different instruction; byte 0x06 (legacy try) fails with
// errors.KindUnknownOpcode instead while EnableExceptions is off. Value
// and limits encodings are not checked against these flags: the v128
// value type, the shared and memory64 limits flags, and function types
// with more than one result are accepted whichever flags are set.
type Features struct {
	EnableThreads        bool
	EnableReferenceTypes bool
	EnableSIMD           bool
	EnableBulkMemory     bool
	EnableMultiValue     bool
	DeterministicOnly    bool
	MutableGlobalImports bool

	// Supplemented beyond the baseline feature set.
	EnableGC           bool
	EnableExceptions   bool
	EnableTailCall     bool
	EnableMultiMemory  bool
	EnableMemory64     bool
}

// DefaultFeatures enables the WebAssembly 2.0 baseline (reference types,
// bulk memory, multi-value, sign extension, saturating truncation are all
// part of the 2.0 core spec) and nothing past it.
func DefaultFeatures() Features {
	return Features{
		EnableReferenceTypes: true,
		EnableBulkMemory:     true,
		EnableMultiValue:     true,
		MutableGlobalImports: true,
	}
}
