package wasm

// Hard numeric caps enforced while decoding (by the Parser and the type
// decoders it calls), independent of what the input declares. Breaching
// any of these fails errors.KindLimitExceeded, except MaxWasmStringSize,
// whose breach fails errors.KindStringTooLong.
const (
	MaxWasmTypes         = 1_000_000
	MaxWasmFunctions     = 1_000_000
	MaxWasmGlobals       = 1_000_000
	MaxWasmTables        = 1
	MaxWasmMemories      = 1
	// MaxWasmTablesMulti/MaxWasmMemoriesMulti relax the single-table/
	// single-memory cap above when EnableReferenceTypes (multiple tables)
	// or EnableMultiMemory (multiple memories) is set.
	MaxWasmTablesMulti   = 100
	MaxWasmMemoriesMulti = 100
	MaxWasmTableEntries  = 10_000_000
	MaxWasmStringSize    = 100_000
	MaxWasmFunctionSize  = 128 * 1024
	MaxWasmFunctionLocal = 50_000
	MaxWasmFunctionParam = 1000
	MaxWasmFunctionRet   = 1000
)
