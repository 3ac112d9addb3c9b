package host

import (
	"fmt"
	"slices"

	kverrors "github.com/reglet-dev/kvrunner/domain/errors"
	wazeroadapter "github.com/reglet-dev/kvrunner/infrastructure/wazero"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Export names every guest must provide.
const (
	EntryExport  = "entry"
	MemoryExport = "memory"
)

var entryParams = []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}

// verifyContract checks exports and imports before any instance exists, so
// a mismatched guest fails at startup instead of on the first request.
func verifyContract(compiled wazero.CompiledModule, importModule string, wasi bool) error {
	if _, ok := compiled.ExportedMemories()[MemoryExport]; !ok {
		return &kverrors.InstantiationError{Reason: fmt.Sprintf("missing export %q", MemoryExport)}
	}
	if len(compiled.ImportedMemories()) > 0 {
		return &kverrors.InstantiationError{Reason: "imported memory is not supported"}
	}

	entry, ok := compiled.ExportedFunctions()[EntryExport]
	if !ok {
		return &kverrors.InstantiationError{Reason: fmt.Sprintf("missing export %q", EntryExport)}
	}
	if !slices.Equal(entry.ParamTypes(), entryParams) || len(entry.ResultTypes()) != 0 {
		return &kverrors.InstantiationError{Reason: fmt.Sprintf(
			"export %q has signature %s, want (i32, i32, i32) -> ()", EntryExport, signature(entry))}
	}

	for _, imp := range compiled.ImportedFunctions() {
		module, name, _ := imp.Import()
		switch {
		case module == importModule:
			want, ok := wazeroadapter.Signatures[name]
			if !ok {
				return &kverrors.InstantiationError{Reason: fmt.Sprintf("unknown import %s.%s", module, name)}
			}
			if !slices.Equal(imp.ParamTypes(), want) || len(imp.ResultTypes()) != 0 {
				return &kverrors.InstantiationError{Reason: fmt.Sprintf(
					"import %s.%s has signature %s", module, name, signature(imp))}
			}
		case wasi && module == wasi_snapshot_preview1.ModuleName:
		default:
			return &kverrors.InstantiationError{Reason: fmt.Sprintf("unknown import %s.%s", module, name)}
		}
	}
	return nil
}

func signature(def api.FunctionDefinition) string {
	return fmt.Sprintf("(%s) -> (%s)", typeList(def.ParamTypes()), typeList(def.ResultTypes()))
}

func typeList(types []api.ValueType) string {
	out := ""
	for i, t := range types {
		if i > 0 {
			out += ", "
		}
		out += api.ValueTypeName(t)
	}
	return out
}
