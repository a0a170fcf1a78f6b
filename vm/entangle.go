package vm

import (
	"errors"

	"github.com/chazu/sil/pkg/sil"
	"github.com/google/uuid"
)

// NodeID names one VM instance taking part in a pairing.
type NodeID = uuid.UUID

// PairID names a pairing between two nodes.
type PairID = uuid.UUID

// NewNodeID returns a random node id.
func NewNodeID() NodeID {
	return uuid.New()
}

// StateDelta carries the layers of a SilState that changed since the sender
// last synchronized.
type StateDelta struct {
	From    NodeID
	Pair    PairID
	Seq     uint64
	Updates []sil.LayerValue
}

// Entanglement is the transport behind ESEND and ERECV. Implementations
// synchronize internally; the VM calls them from its own goroutine only.
type Entanglement interface {
	Node() NodeID
	Pair() PairID
	// Err reports whether the pairing is still live. A non-nil result
	// faults ESEND and ERECV even when there is nothing to exchange.
	Err() error
	Broadcast(d StateDelta) error
	// Receive returns every pending delta in arrival order.
	Receive() ([]StateDelta, error)
}

// ErrNotEntangled is the cause of EntanglementBroken when no link is set.
var ErrNotEntangled = errors.New("vm: no entanglement registered")

// Entangle binds a link. It survives Reset and Load.
func (v *Vsp) Entangle(link Entanglement) {
	v.link = link
	v.synced = v.silState
}

// Disentangle drops the link. Later ESEND/ERECV fault with EntanglementBroken.
func (v *Vsp) Disentangle() {
	v.link = nil
}

// Entangled returns the current link, or nil.
func (v *Vsp) Entangled() Entanglement {
	return v.link
}

func (v *Vsp) esend() *Fault {
	if v.link == nil {
		return &Fault{Kind: EntanglementBroken, Err: ErrNotEntangled}
	}
	if err := v.link.Err(); err != nil {
		return &Fault{Kind: EntanglementBroken, Err: err}
	}
	updates := v.synced.Diff(v.silState)
	if len(updates) == 0 {
		return nil
	}
	v.seq++
	d := StateDelta{From: v.link.Node(), Pair: v.link.Pair(), Seq: v.seq, Updates: updates}
	if err := v.link.Broadcast(d); err != nil {
		v.seq--
		return &Fault{Kind: EntanglementBroken, Err: err}
	}
	v.synced = v.silState
	return nil
}

func (v *Vsp) erecv() (sil.ByteSil, *Fault) {
	if v.link == nil {
		return sil.Null, &Fault{Kind: EntanglementBroken, Err: ErrNotEntangled}
	}
	deltas, err := v.link.Receive()
	if err != nil {
		return sil.Null, &Fault{Kind: EntanglementBroken, Err: err}
	}
	if len(deltas) == 0 {
		return sil.Null, nil
	}
	for _, d := range deltas {
		v.silState = v.silState.Apply(d.Updates)
		v.synced = v.synced.Apply(d.Updates)
	}
	return sil.One, nil
}
