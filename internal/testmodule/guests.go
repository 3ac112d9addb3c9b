package testmodule

// Function indices shared by guests importing write_key then read_key.
const (
	writeKeyIdx = 0
	readKeyIdx  = 1
)

// Fixed data layout used by the assembled guests. It sits well above the
// request body at offset 8 for the short bodies the tests send.
const (
	WorldOffset   = 1024
	FooOffset     = 1032
	ScratchHeader = 1040
)

// Entry parameters.
var (
	resultHeader = LocalGet(0)
	bodyOffset   = LocalGet(1)
	bodyLength   = LocalGet(2)
)

func kvImports(module string) []Import {
	if module == "" {
		module = "env"
	}
	return []Import{
		{Module: module, Name: "write_key", Params: 4},
		{Module: module, Name: "read_key", Params: 3},
	}
}

func entry(body ...[]byte) Func {
	return Func{Export: "entry", Params: 3, Body: Seq(body...)}
}

func constants() []Segment {
	return []Segment{
		{Offset: WorldOffset, Bytes: []byte("world")},
		{Offset: FooOffset, Bytes: []byte("foo")},
	}
}

// storeResult writes the header (load(src), load(src+4)) to the entry's result header.
func storeResult(src int32) []byte {
	return Seq(
		resultHeader, I32Const(src), I32Load(0), I32Store(0),
		resultHeader, I32Const(src), I32Load(4), I32Store(4),
	)
}

// KVScenario is the illustrative guest:
//
//	write_key("world", body)
//	v := read_key("foo")
//	write_key("world", v)
//	return v
func KVScenario(importModule string) []byte {
	return Module{
		Imports: kvImports(importModule),
		Funcs: []Func{entry(
			I32Const(WorldOffset), I32Const(5), bodyOffset, bodyLength, Call(writeKeyIdx),
			I32Const(ScratchHeader), I32Const(FooOffset), I32Const(3), Call(readKeyIdx),
			I32Const(WorldOffset), I32Const(5),
			I32Const(ScratchHeader), I32Load(0),
			I32Const(ScratchHeader), I32Load(4),
			Call(writeKeyIdx),
			storeResult(ScratchHeader),
		)},
		Data: constants(),
	}.Encode()
}

// GrowThenRead grows memory by one page, then returns read_key("foo")
// with the host writing the header straight into the result header.
func GrowThenRead() []byte {
	return Module{
		Imports: kvImports(""),
		Funcs: []Func{entry(
			I32Const(1), MemoryGrow(),
			resultHeader, I32Const(FooOffset), I32Const(3), Call(readKeyIdx),
		)},
		Data: constants(),
	}.Encode()
}

// LookupBody returns the value stored under the request body.
func LookupBody() []byte {
	return Module{
		Imports: kvImports(""),
		Funcs: []Func{entry(
			resultHeader, bodyOffset, bodyLength, Call(readKeyIdx),
		)},
	}.Encode()
}

// Echo returns the request body.
func Echo() []byte {
	return Module{
		Imports: kvImports(""),
		Funcs: []Func{entry(
			resultHeader, bodyOffset, I32Store(0),
			resultHeader, bodyLength, I32Store(4),
		)},
	}.Encode()
}

// ConstResult returns the fixed handle (offset, length) without checking it.
func ConstResult(offset, length int32) []byte {
	return Module{
		Imports: kvImports(""),
		Funcs: []Func{entry(
			resultHeader, I32Const(offset), I32Store(0),
			resultHeader, I32Const(length), I32Store(4),
		)},
	}.Encode()
}

// WriteOutOfBounds calls write_key with a key range crossing the end of memory.
func WriteOutOfBounds() []byte {
	return Module{
		Imports: kvImports(""),
		Funcs: []Func{entry(
			I32Const(65534), I32Const(10), I32Const(0), I32Const(0), Call(writeKeyIdx),
		)},
	}.Encode()
}

// Trap executes unreachable.
func Trap() []byte {
	return Module{
		Imports: kvImports(""),
		Funcs:   []Func{entry(Unreachable())},
	}.Encode()
}

// NoImports is a valid guest that never calls the host and returns nothing.
func NoImports() []byte {
	return Module{Funcs: []Func{entry()}}.Encode()
}

// MissingEntry exports memory but no entry function.
func MissingEntry() []byte {
	return Module{
		Imports: kvImports(""),
		Funcs:   []Func{{Export: "run", Params: 3}},
	}.Encode()
}

// MissingMemory exports entry but no memory.
func MissingMemory() []byte {
	return Module{Funcs: []Func{entry()}, NoMemory: true}.Encode()
}

// WrongEntrySignature exports entry taking two parameters.
func WrongEntrySignature() []byte {
	return Module{Funcs: []Func{{Export: "entry", Params: 2}}}.Encode()
}

// ForeignImport imports a function the host does not provide.
func ForeignImport() []byte {
	return Module{
		Imports: []Import{{Module: "env", Name: "exec_command", Params: 1}},
		Funcs:   []Func{entry()},
	}.Encode()
}

// WrongImportSignature imports read_key with four parameters.
func WrongImportSignature() []byte {
	return Module{
		Imports: []Import{{Module: "env", Name: "read_key", Params: 4}},
		Funcs:   []Func{entry()},
	}.Encode()
}
