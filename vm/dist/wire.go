package dist

import (
	"fmt"

	"github.com/chazu/sil/pkg/sil"
	"github.com/chazu/sil/vm"
	"github.com/fxamacker/cbor/v2"
)

// cborEncMode is canonical so equal values always encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalDelta serializes a state delta to CBOR bytes.
func MarshalDelta(d vm.StateDelta) ([]byte, error) {
	m := DeltaMessage{From: d.From, Pair: d.Pair, Seq: d.Seq}
	for _, u := range d.Updates {
		if !u.Layer.Valid() {
			return nil, fmt.Errorf("dist: layer %d out of range", u.Layer)
		}
		m.Updates = append(m.Updates, LayerUpdate{Layer: uint8(u.Layer), Value: u.Value.ToU8()})
	}
	return cborEncMode.Marshal(&m)
}

// UnmarshalDelta deserializes a state delta from CBOR bytes.
func UnmarshalDelta(data []byte) (vm.StateDelta, error) {
	var m DeltaMessage
	if err := cbor.Unmarshal(data, &m); err != nil {
		return vm.StateDelta{}, fmt.Errorf("dist: unmarshal delta: %w", err)
	}
	d := vm.StateDelta{From: m.From, Pair: m.Pair, Seq: m.Seq}
	for _, u := range m.Updates {
		l := sil.Layer(u.Layer)
		if !l.Valid() {
			return vm.StateDelta{}, fmt.Errorf("dist: unmarshal delta: layer %d out of range", u.Layer)
		}
		d.Updates = append(d.Updates, sil.LayerValue{Layer: l, Value: sil.FromU8(u.Value)})
	}
	return d, nil
}

// MarshalSnapshot serializes a VM snapshot to CBOR bytes.
func MarshalSnapshot(s vm.Snapshot) ([]byte, error) {
	m := SnapshotMessage{
		State:     s.State,
		PC:        s.PC,
		Cycles:    s.Cycles,
		Registers: s.Registers[:],
		SilState:  s.SilState[:],
		Stack:     s.Stack,
		Heap:      s.Heap,
		Fault:     s.Fault,
	}
	return cborEncMode.Marshal(&m)
}

// UnmarshalSnapshot deserializes a VM snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (vm.Snapshot, error) {
	var m SnapshotMessage
	if err := cbor.Unmarshal(data, &m); err != nil {
		return vm.Snapshot{}, fmt.Errorf("dist: unmarshal snapshot: %w", err)
	}
	s := vm.Snapshot{
		State:  m.State,
		PC:     m.PC,
		Cycles: m.Cycles,
		Stack:  m.Stack,
		Heap:   m.Heap,
		Fault:  m.Fault,
	}
	if len(m.Registers) != len(s.Registers) {
		return vm.Snapshot{}, fmt.Errorf("dist: unmarshal snapshot: %d registers, want %d", len(m.Registers), len(s.Registers))
	}
	if len(m.SilState) != len(s.SilState) {
		return vm.Snapshot{}, fmt.Errorf("dist: unmarshal snapshot: %d layers, want %d", len(m.SilState), len(s.SilState))
	}
	copy(s.Registers[:], m.Registers)
	copy(s.SilState[:], m.SilState)
	return s, nil
}
