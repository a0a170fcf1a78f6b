package bytecode

import (
	"encoding/binary"
	"os"
	"sort"
)

// SilcVersion is the current .silc format version.
// Increment when making incompatible changes to the format.
const SilcVersion uint16 = 1

// SilcMagic opens every .silc image.
var SilcMagic = []byte{'S', 'I', 'L', 'C'}

// Symbol names an image address.
type Symbol struct {
	Name string
	Addr uint32
}

// SilcFile is an assembled program: code, read-only data and a symbol table.
// Image addresses [0, len(Code)) are code; [len(Code), ImageSize()) are data.
type SilcFile struct {
	Mode    Mode
	Flags   uint8
	Code    []byte
	Data    []byte
	Symbols []Symbol // first-definition order
}

// ImageSize returns len(Code)+len(Data).
func (f *SilcFile) ImageSize() uint32 {
	return uint32(len(f.Code) + len(f.Data))
}

// Lookup finds a symbol by name.
func (f *SilcFile) Lookup(name string) (uint32, bool) {
	for _, s := range f.Symbols {
		if s.Name == name {
			return s.Addr, true
		}
	}
	return 0, false
}

// SymbolAt returns the first symbol defined at addr, or "".
func (f *SilcFile) SymbolAt(addr uint32) string {
	for _, s := range f.Symbols {
		if s.Addr == addr {
			return s.Name
		}
	}
	return ""
}

// SortedSymbols returns the symbols ordered by address, then name.
func (f *SilcFile) SortedSymbols() []Symbol {
	out := append([]Symbol(nil), f.Symbols...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Addr != out[j].Addr {
			return out[i].Addr < out[j].Addr
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Validate checks the structural rules a loader relies on.
func (f *SilcFile) Validate() error {
	if len(f.Code) == 0 {
		return InvalidBytecode("empty code segment")
	}
	seen := make(map[string]bool, len(f.Symbols))
	for _, s := range f.Symbols {
		if s.Name == "" {
			return InvalidBytecode("empty symbol name at 0x%04X", s.Addr)
		}
		if seen[s.Name] {
			return InvalidBytecode("duplicate symbol %q", s.Name)
		}
		seen[s.Name] = true
		if s.Addr > f.ImageSize() {
			return InvalidBytecode("symbol %q at 0x%04X outside image of %d bytes", s.Name, s.Addr, f.ImageSize())
		}
	}
	return nil
}

// Serialize encodes the file.
// Format:
//
//	[magic:4] [version:2] [mode:1] [flags:1]
//	[code_len:4] [code:...]
//	[data_len:4] [data:...]
//	[sym_count:4] ([name_len:2] [name:...] [addr:4])*
func (f *SilcFile) Serialize() ([]byte, error) {
	size := 8 + 4 + len(f.Code) + 4 + len(f.Data) + 4
	for _, s := range f.Symbols {
		if len(s.Name) > 0xFFFF {
			return nil, SerializationError("symbol name of %d bytes is too long", len(s.Name))
		}
		size += 6 + len(s.Name)
	}
	buf := make([]byte, 0, size)

	buf = append(buf, SilcMagic...)
	buf = binary.BigEndian.AppendUint16(buf, SilcVersion)
	buf = append(buf, byte(f.Mode), f.Flags)

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Code)))
	buf = append(buf, f.Code...)

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Data)))
	buf = append(buf, f.Data...)

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Symbols)))
	for _, s := range f.Symbols {
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(s.Name)))
		buf = append(buf, s.Name...)
		buf = binary.BigEndian.AppendUint32(buf, s.Addr)
	}
	return buf, nil
}

// DeserializeSilc decodes a .silc image. It checks framing only; call
// Validate for structural rules.
func DeserializeSilc(data []byte) (*SilcFile, error) {
	if len(data) < 8 {
		return nil, SerializationError("image too short: need at least 8 bytes, got %d", len(data))
	}
	if string(data[0:4]) != string(SilcMagic) {
		return nil, SerializationError("invalid magic: expected %q, got %q", SilcMagic, data[0:4])
	}
	version := binary.BigEndian.Uint16(data[4:6])
	if version > SilcVersion {
		return nil, SerializationError("format version %d is newer than supported version %d", version, SilcVersion)
	}

	f := &SilcFile{Mode: Mode(data[6]), Flags: data[7]}
	pos := 8

	section := func(what string) ([]byte, error) {
		if pos+4 > len(data) {
			return nil, SerializationError("unexpected end of image reading %s length at pos %d", what, pos)
		}
		n := int(binary.BigEndian.Uint32(data[pos:]))
		pos += 4
		if n < 0 || pos+n > len(data) {
			return nil, SerializationError("unexpected end of image reading %s: need %d bytes at pos %d", what, n, pos)
		}
		out := make([]byte, n)
		copy(out, data[pos:pos+n])
		pos += n
		return out, nil
	}

	var err error
	if f.Code, err = section("code"); err != nil {
		return nil, err
	}
	if f.Data, err = section("data"); err != nil {
		return nil, err
	}

	if pos+4 > len(data) {
		return nil, SerializationError("unexpected end of image reading symbol count")
	}
	count := binary.BigEndian.Uint32(data[pos:])
	pos += 4

	for i := uint32(0); i < count; i++ {
		if pos+2 > len(data) {
			return nil, SerializationError("unexpected end of image reading symbol %d name length", i)
		}
		nameLen := int(binary.BigEndian.Uint16(data[pos:]))
		pos += 2
		if pos+nameLen+4 > len(data) {
			return nil, SerializationError("unexpected end of image reading symbol %d", i)
		}
		name := string(data[pos : pos+nameLen])
		pos += nameLen
		f.Symbols = append(f.Symbols, Symbol{Name: name, Addr: binary.BigEndian.Uint32(data[pos:])})
		pos += 4
	}

	if pos != len(data) {
		return nil, SerializationError("%d trailing bytes after symbol table", len(data)-pos)
	}
	return f, nil
}

// WriteFile serializes f to path.
func (f *SilcFile) WriteFile(path string) error {
	data, err := f.Serialize()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return IOError(path, err)
	}
	return nil
}

// ReadFile loads and decodes a .silc file.
func ReadFile(path string) (*SilcFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, IOError(path, err)
	}
	return DeserializeSilc(data)
}
