package wasm

// ModuleResources is the read-only capability set an OperatorValidator
// needs to type-check a function body: the type, function, table,
// memory, global, tag, element, and data index spaces. ValidatingParser
// builds one incrementally as it observes Parser events; callers that
// maintain their own module representation can implement it directly and
// pass it to ValidateFunctionBody instead of going through a full module
// parse.
type ModuleResources interface {
	NumTypes() uint32
	FuncTypeAt(idx uint32) (*FuncType, bool)

	NumFunctions() uint32
	FunctionTypeIndex(funcIdx uint32) (uint32, bool)

	NumTables() uint32
	TableAt(idx uint32) (TableType, bool)

	NumMemories() uint32
	MemoryAt(idx uint32) (MemoryType, bool)

	NumGlobals() uint32
	GlobalAt(idx uint32) (GlobalType, bool)

	NumTags() uint32
	TagAt(idx uint32) (TagType, bool)

	NumElements() uint32
	ElementAt(idx uint32) (Element, bool)

	DataCount() (uint32, bool)
}

// moduleResources implements ModuleResources over a Module that is being
// filled in incrementally as section entries arrive; out-of-range
// lookups simply return ok=false rather than panicking, since a
// validator may query an index before its defining section has been
// fully read (the index-space size checks catch that case separately).
type moduleResources struct {
	m *Module
}

func (r *moduleResources) NumTypes() uint32 { return uint32(r.m.NumTypes()) }

func (r *moduleResources) FuncTypeAt(idx uint32) (*FuncType, bool) {
	if int(idx) >= r.m.NumTypes() {
		return nil, false
	}
	ft := r.m.getFuncTypeByIdx(idx)
	return ft, ft != nil
}

func (r *moduleResources) NumFunctions() uint32 {
	return uint32(r.m.NumImportedFuncs() + len(r.m.Funcs))
}

func (r *moduleResources) FunctionTypeIndex(funcIdx uint32) (uint32, bool) {
	numImported := uint32(r.m.NumImportedFuncs())
	if funcIdx < numImported {
		var seen uint32
		for _, imp := range r.m.Imports {
			if imp.Desc.Kind != KindFunc {
				continue
			}
			if seen == funcIdx {
				return imp.Desc.TypeIdx, true
			}
			seen++
		}
		return 0, false
	}
	local := funcIdx - numImported
	if int(local) >= len(r.m.Funcs) {
		return 0, false
	}
	return r.m.Funcs[local], true
}

func (r *moduleResources) NumTables() uint32 {
	return uint32(r.m.NumImportedTables() + len(r.m.Tables))
}

func (r *moduleResources) TableAt(idx uint32) (TableType, bool) {
	numImported := uint32(r.m.NumImportedTables())
	if idx < numImported {
		var seen uint32
		for _, imp := range r.m.Imports {
			if imp.Desc.Kind != KindTable {
				continue
			}
			if seen == idx {
				return *imp.Desc.Table, true
			}
			seen++
		}
		return TableType{}, false
	}
	local := idx - numImported
	if int(local) >= len(r.m.Tables) {
		return TableType{}, false
	}
	return r.m.Tables[local], true
}

func (r *moduleResources) NumMemories() uint32 {
	return uint32(r.m.NumImportedMemories() + len(r.m.Memories))
}

func (r *moduleResources) MemoryAt(idx uint32) (MemoryType, bool) {
	numImported := uint32(r.m.NumImportedMemories())
	if idx < numImported {
		var seen uint32
		for _, imp := range r.m.Imports {
			if imp.Desc.Kind != KindMemory {
				continue
			}
			if seen == idx {
				return *imp.Desc.Memory, true
			}
			seen++
		}
		return MemoryType{}, false
	}
	local := idx - numImported
	if int(local) >= len(r.m.Memories) {
		return MemoryType{}, false
	}
	return r.m.Memories[local], true
}

func (r *moduleResources) NumGlobals() uint32 {
	return uint32(r.m.NumImportedGlobals() + len(r.m.Globals))
}

func (r *moduleResources) GlobalAt(idx uint32) (GlobalType, bool) {
	numImported := uint32(r.m.NumImportedGlobals())
	if idx < numImported {
		var seen uint32
		for _, imp := range r.m.Imports {
			if imp.Desc.Kind != KindGlobal {
				continue
			}
			if seen == idx {
				return *imp.Desc.Global, true
			}
			seen++
		}
		return GlobalType{}, false
	}
	local := idx - numImported
	if int(local) >= len(r.m.Globals) {
		return GlobalType{}, false
	}
	return r.m.Globals[local].Type, true
}

func (r *moduleResources) NumTags() uint32 {
	return uint32(r.m.NumImportedTags() + len(r.m.Tags))
}

func (r *moduleResources) TagAt(idx uint32) (TagType, bool) {
	numImported := uint32(r.m.NumImportedTags())
	if idx < numImported {
		var seen uint32
		for _, imp := range r.m.Imports {
			if imp.Desc.Kind != KindTag {
				continue
			}
			if seen == idx {
				return *imp.Desc.Tag, true
			}
			seen++
		}
		return TagType{}, false
	}
	local := idx - numImported
	if int(local) >= len(r.m.Tags) {
		return TagType{}, false
	}
	return r.m.Tags[local], true
}

func (r *moduleResources) NumElements() uint32 { return uint32(len(r.m.Elements)) }

func (r *moduleResources) ElementAt(idx uint32) (Element, bool) {
	if int(idx) >= len(r.m.Elements) {
		return Element{}, false
	}
	return r.m.Elements[idx], true
}

func (r *moduleResources) DataCount() (uint32, bool) {
	if r.m.DataCount != nil {
		return *r.m.DataCount, true
	}
	if len(r.m.Data) > 0 {
		return uint32(len(r.m.Data)), true
	}
	return 0, false
}
