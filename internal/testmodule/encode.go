// Package testmodule assembles small WebAssembly guest binaries for tests.
//
// The guests follow the same ABI as production modules: they export
// "memory" and "entry(result_header, body_offset, body_length)" and import
// write_key/read_key. Every function takes i32 parameters and returns
// nothing, which is all the ABI needs.
package testmodule

const (
	magic   = "\x00asm"
	version = "\x01\x00\x00\x00"

	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11

	funcTypeByte = 0x60
	valTypeI32   = 0x7f

	kindFunc   = 0x00
	kindMemory = 0x02

	opUnreachable = 0x00
	opEnd         = 0x0b
	opCall        = 0x10
	opDrop        = 0x1a
	opLocalGet    = 0x20
	opI32Load     = 0x28
	opI32Store    = 0x36
	opMemoryGrow  = 0x40
	opI32Const    = 0x41
)

// Import is a function imported from the host. All params are i32.
type Import struct {
	Module string
	Name   string
	Params int
}

// Func is a function defined by the module. All params are i32.
type Func struct {
	Export string // empty if not exported
	Params int
	Body   []byte // instructions, without the trailing end
}

// Segment is an active data segment in memory 0.
type Segment struct {
	Bytes  []byte
	Offset int32
}

// Module describes a guest module.
type Module struct {
	Imports      []Import
	Funcs        []Func
	Data         []Segment
	MemoryPages  uint32
	NoMemory     bool
	ExportMemory string // defaults to "memory"
}

// Encode returns the binary encoding of m.
func (m Module) Encode() []byte {
	// Types are deduplicated by parameter count.
	typeIndex := map[int]uint32{}
	var typeOrder []int
	typeOf := func(params int) uint32 {
		if idx, ok := typeIndex[params]; ok {
			return idx
		}
		idx := uint32(len(typeOrder))
		typeIndex[params] = idx
		typeOrder = append(typeOrder, params)
		return idx
	}
	importTypes := make([]uint32, len(m.Imports))
	for i, imp := range m.Imports {
		importTypes[i] = typeOf(imp.Params)
	}
	funcTypes := make([]uint32, len(m.Funcs))
	for i, fn := range m.Funcs {
		funcTypes[i] = typeOf(fn.Params)
	}

	out := []byte(magic + version)

	var sec []byte
	sec = uleb(sec, uint32(len(typeOrder)))
	for _, params := range typeOrder {
		sec = append(sec, funcTypeByte)
		sec = uleb(sec, uint32(params))
		for i := 0; i < params; i++ {
			sec = append(sec, valTypeI32)
		}
		sec = uleb(sec, 0)
	}
	out = section(out, sectionType, sec)

	if len(m.Imports) > 0 {
		sec = uleb(nil, uint32(len(m.Imports)))
		for i, imp := range m.Imports {
			sec = name(sec, imp.Module)
			sec = name(sec, imp.Name)
			sec = append(sec, kindFunc)
			sec = uleb(sec, importTypes[i])
		}
		out = section(out, sectionImport, sec)
	}

	sec = uleb(nil, uint32(len(m.Funcs)))
	for _, t := range funcTypes {
		sec = uleb(sec, t)
	}
	out = section(out, sectionFunction, sec)

	if !m.NoMemory {
		pages := m.MemoryPages
		if pages == 0 {
			pages = 1
		}
		sec = uleb(nil, 1)
		sec = append(sec, 0x00) // limits: min only
		sec = uleb(sec, pages)
		out = section(out, sectionMemory, sec)
	}

	var exports [][]byte
	if !m.NoMemory {
		memName := m.ExportMemory
		if memName == "" {
			memName = "memory"
		}
		e := name(nil, memName)
		e = append(e, kindMemory)
		exports = append(exports, uleb(e, 0))
	}
	for i, fn := range m.Funcs {
		if fn.Export == "" {
			continue
		}
		e := name(nil, fn.Export)
		e = append(e, kindFunc)
		exports = append(exports, uleb(e, uint32(len(m.Imports)+i)))
	}
	sec = uleb(nil, uint32(len(exports)))
	for _, e := range exports {
		sec = append(sec, e...)
	}
	out = section(out, sectionExport, sec)

	sec = uleb(nil, uint32(len(m.Funcs)))
	for _, fn := range m.Funcs {
		body := uleb(nil, 0) // no locals beyond params
		body = append(body, fn.Body...)
		body = append(body, opEnd)
		sec = uleb(sec, uint32(len(body)))
		sec = append(sec, body...)
	}
	out = section(out, sectionCode, sec)

	if len(m.Data) > 0 {
		sec = uleb(nil, uint32(len(m.Data)))
		for _, d := range m.Data {
			sec = uleb(sec, 0) // active, memory 0
			sec = append(sec, I32Const(d.Offset)...)
			sec = append(sec, opEnd)
			sec = uleb(sec, uint32(len(d.Bytes)))
			sec = append(sec, d.Bytes...)
		}
		out = section(out, sectionData, sec)
	}

	return out
}

func section(out []byte, id byte, content []byte) []byte {
	out = append(out, id)
	out = uleb(out, uint32(len(content)))
	return append(out, content...)
}

func name(out []byte, s string) []byte {
	out = uleb(out, uint32(len(s)))
	return append(out, s...)
}

func uleb(out []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func sleb(out []byte, v int32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// I32Const pushes v.
func I32Const(v int32) []byte { return sleb([]byte{opI32Const}, v) }

// LocalGet pushes parameter idx.
func LocalGet(idx uint32) []byte { return uleb([]byte{opLocalGet}, idx) }

// Call calls function idx (imports are numbered first).
func Call(idx uint32) []byte { return uleb([]byte{opCall}, idx) }

// I32Load loads a u32 from the address on the stack plus offset.
func I32Load(offset uint32) []byte { return uleb([]byte{opI32Load, 0x02}, offset) }

// I32Store stores a u32 at the address on the stack plus offset.
func I32Store(offset uint32) []byte { return uleb([]byte{opI32Store, 0x02}, offset) }

// MemoryGrow grows memory 0 by the page count on the stack and discards the result.
func MemoryGrow() []byte { return []byte{opMemoryGrow, 0x00, opDrop} }

// Unreachable traps.
func Unreachable() []byte { return []byte{opUnreachable} }

// Seq concatenates instruction sequences.
func Seq(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
