package bytecode

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func sampleFile() *SilcFile {
	return &SilcFile{
		Mode: Mode128,
		Code: []byte{byte(OpNop), byte(OpHalt)},
		Data: []byte{0x01, 0x02, 0x03},
		Symbols: []Symbol{
			{Name: "start", Addr: 0},
			{Name: "table", Addr: 2},
		},
	}
}

func TestSilcSerializeRoundTrip(t *testing.T) {
	f := sampleFile()
	data, err := f.Serialize()
	if err != nil {
		t.Fatalf("Serialize error: %v", err)
	}
	if !bytes.HasPrefix(data, SilcMagic) {
		t.Fatalf("missing magic: % X", data[:4])
	}

	got, err := DeserializeSilc(data)
	if err != nil {
		t.Fatalf("DeserializeSilc error: %v", err)
	}
	if got.Mode != f.Mode || !bytes.Equal(got.Code, f.Code) || !bytes.Equal(got.Data, f.Data) {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if len(got.Symbols) != 2 || got.Symbols[1] != f.Symbols[1] {
		t.Errorf("symbols = %v", got.Symbols)
	}
}

func TestSilcHeaderLayout(t *testing.T) {
	f := &SilcFile{Mode: Mode16, Code: []byte{byte(OpHalt)}}
	data, _ := f.Serialize()
	want := []byte{
		'S', 'I', 'L', 'C',
		0x00, 0x01, // version
		0x02, 0x00, // mode, flags
		0x00, 0x00, 0x00, 0x01, byte(OpHalt),
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(data, want) {
		t.Errorf("Serialize() = % X\nwant          % X", data, want)
	}
}

func TestSilcDeserializeErrors(t *testing.T) {
	good, _ := sampleFile().Serialize()

	tests := []struct {
		name string
		data []byte
	}{
		{"too short", []byte("SIL")},
		{"bad magic", append([]byte("TTBC"), good[4:]...)},
		{"future version", append(append([]byte("SILC"), 0xFF, 0xFF), good[6:]...)},
		{"truncated code", good[:10]},
		{"truncated symbols", good[:len(good)-2]},
		{"trailing bytes", append(append([]byte{}, good...), 0x00)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeserializeSilc(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, &Error{Kind: KindSerialization}) {
				t.Errorf("error kind = %v, want serialization", KindOf(err))
			}
		})
	}
}

func TestSilcValidate(t *testing.T) {
	if err := sampleFile().Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}

	empty := &SilcFile{Mode: Mode8}
	if KindOf(empty.Validate()) != KindInvalidBytecode {
		t.Error("empty code accepted")
	}

	dup := sampleFile()
	dup.Symbols = append(dup.Symbols, Symbol{Name: "start", Addr: 1})
	if dup.Validate() == nil {
		t.Error("duplicate symbol accepted")
	}

	far := sampleFile()
	far.Symbols = append(far.Symbols, Symbol{Name: "far", Addr: 6})
	if far.Validate() == nil {
		t.Error("symbol past image accepted")
	}

	end := sampleFile()
	end.Symbols = append(end.Symbols, Symbol{Name: "end", Addr: 5})
	if err := end.Validate(); err != nil {
		t.Errorf("symbol at image end rejected: %v", err)
	}
}

func TestSilcLookup(t *testing.T) {
	f := sampleFile()
	if addr, ok := f.Lookup("table"); !ok || addr != 2 {
		t.Errorf("Lookup(table) = %d, %v", addr, ok)
	}
	if _, ok := f.Lookup("missing"); ok {
		t.Error("Lookup(missing) succeeded")
	}
	if got := f.SymbolAt(0); got != "start" {
		t.Errorf("SymbolAt(0) = %q", got)
	}
	if f.ImageSize() != 5 {
		t.Errorf("ImageSize() = %d, want 5", f.ImageSize())
	}
}

func TestSilcFileIO(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.silc")
	f := sampleFile()
	if err := f.WriteFile(path); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if !bytes.Equal(got.Code, f.Code) {
		t.Errorf("code = % X", got.Code)
	}

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.silc"))
	if KindOf(err) != KindIO || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}
}
