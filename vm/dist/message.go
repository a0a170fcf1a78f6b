// Package dist carries entanglement traffic between SIL VMs. State deltas
// and VM snapshots are encoded as canonical CBOR; Hub pairs VMs in-process
// and moves encoded deltas between them.
package dist

// LayerUpdate is one changed layer of a state vector.
type LayerUpdate struct {
	Layer uint8 `cbor:"1,keyasint"`
	Value uint8 `cbor:"2,keyasint"` // packed ByteSil
}

// DeltaMessage is the wire form of a vm.StateDelta.
type DeltaMessage struct {
	From    [16]byte      `cbor:"1,keyasint"`
	Pair    [16]byte      `cbor:"2,keyasint"`
	Seq     uint64        `cbor:"3,keyasint"`
	Updates []LayerUpdate `cbor:"4,keyasint,omitempty"`
}

// SnapshotMessage is the wire form of a vm.Snapshot.
type SnapshotMessage struct {
	State     string `cbor:"1,keyasint"`
	PC        uint32 `cbor:"2,keyasint"`
	Cycles    uint64 `cbor:"3,keyasint"`
	Registers []byte `cbor:"4,keyasint"`
	SilState  []byte `cbor:"5,keyasint"`
	Stack     []byte `cbor:"6,keyasint,omitempty"`
	Heap      []byte `cbor:"7,keyasint,omitempty"`
	Fault     string `cbor:"8,keyasint,omitempty"`
}
