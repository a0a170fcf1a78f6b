package dist

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/sil/vm"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("sil.dist")

var (
	// ErrTornDown is returned by a Link whose pairing was torn down.
	ErrTornDown = errors.New("dist: pairing torn down")

	// ErrUnknownPair is returned by Teardown for a pair the hub never made
	// or already removed.
	ErrUnknownPair = errors.New("dist: unknown pair")
)

// Hub pairs VMs running in the same process. Each Broadcast is encoded to
// CBOR and queued on the peer, so the two ends never share memory.
type Hub struct {
	mu    sync.Mutex
	pairs map[vm.PairID][2]*Link
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{pairs: make(map[vm.PairID][2]*Link)}
}

// Pair creates a pairing between nodes a and b and returns the link each
// side should pass to Vsp.Entangle.
func (h *Hub) Pair(a, b vm.NodeID) (vm.PairID, *Link, *Link) {
	id := uuid.New()
	la := &Link{hub: h, node: a, pair: id}
	lb := &Link{hub: h, node: b, pair: id}
	la.peer, lb.peer = lb, la

	h.mu.Lock()
	h.pairs[id] = [2]*Link{la, lb}
	h.mu.Unlock()

	log.Debugf("paired %s with %s as %s", a, b, id)
	return id, la, lb
}

// Teardown breaks both ends of a pairing. Pending deltas are dropped and
// every later Broadcast or Receive on either link fails with ErrTornDown.
func (h *Hub) Teardown(pair vm.PairID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ends, ok := h.pairs[pair]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPair, pair)
	}
	delete(h.pairs, pair)
	for _, l := range ends {
		l.broken = true
		l.inbox = nil
	}
	log.Debugf("tore down %s", pair)
	return nil
}

// Pairs returns the number of live pairings.
func (h *Hub) Pairs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pairs)
}

// Link is one end of a pairing. It implements vm.Entanglement. All link
// state is guarded by the hub's mutex.
type Link struct {
	hub    *Hub
	node   vm.NodeID
	pair   vm.PairID
	peer   *Link
	inbox  [][]byte
	broken bool
}

var _ vm.Entanglement = (*Link)(nil)

func (l *Link) Node() vm.NodeID { return l.node }

func (l *Link) Pair() vm.PairID { return l.pair }

// Err returns ErrTornDown once the pairing is torn down.
func (l *Link) Err() error {
	l.hub.mu.Lock()
	defer l.hub.mu.Unlock()
	if l.broken {
		return ErrTornDown
	}
	return nil
}

// Broadcast encodes d and queues it on the peer.
func (l *Link) Broadcast(d vm.StateDelta) error {
	data, err := MarshalDelta(d)
	if err != nil {
		return err
	}
	l.hub.mu.Lock()
	defer l.hub.mu.Unlock()
	if l.broken {
		return ErrTornDown
	}
	l.peer.inbox = append(l.peer.inbox, data)
	return nil
}

// Receive decodes and returns every queued delta in arrival order.
func (l *Link) Receive() ([]vm.StateDelta, error) {
	l.hub.mu.Lock()
	if l.broken {
		l.hub.mu.Unlock()
		return nil, ErrTornDown
	}
	queued := l.inbox
	l.inbox = nil
	l.hub.mu.Unlock()

	out := make([]vm.StateDelta, 0, len(queued))
	for _, data := range queued {
		d, err := UnmarshalDelta(data)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Pending returns the number of queued deltas.
func (l *Link) Pending() int {
	l.hub.mu.Lock()
	defer l.hub.mu.Unlock()
	return len(l.inbox)
}
