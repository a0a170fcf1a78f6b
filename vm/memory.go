package vm

import (
	"encoding/binary"

	"github.com/chazu/sil/pkg/bytecode"
)

// memory holds the image and the two fixed-capacity writable segments.
type memory struct {
	code []byte
	data []byte

	stack []byte
	sp    int

	heap    []byte
	heapTop int
}

func newMemory(file *bytecode.SilcFile, cfg Config) memory {
	return memory{
		code:  file.Code,
		data:  file.Data,
		stack: make([]byte, cfg.StackSize),
		heap:  make([]byte, cfg.HeapSize),
	}
}

func (m *memory) clear() {
	clear(m.stack)
	clear(m.heap)
	m.sp = 0
	m.heapTop = 0
}

func (m *memory) imageSize() uint32 {
	return uint32(len(m.code) + len(m.data))
}

func (m *memory) fault(kind FaultKind, addr uint32, seg Segment) *Fault {
	return &Fault{Kind: kind, Addr: addr, Segment: seg}
}

func segmentOf(space bytecode.Space) Segment {
	switch space {
	case bytecode.SpaceStack:
		return SegStack
	case bytecode.SpaceHeap:
		return SegHeap
	case bytecode.SpaceReserved:
		return SegReserved
	default:
		return SegCode
	}
}

// load reads one byte. Stack bytes at or above sp and heap bytes at or above
// the heap top are not addressable.
func (m *memory) load(addr uint32) (byte, *Fault) {
	space, off := bytecode.SplitAddr(addr)
	switch space {
	case bytecode.SpaceImage:
		switch {
		case off < uint32(len(m.code)):
			return m.code[off], nil
		case off < m.imageSize():
			return m.data[off-uint32(len(m.code))], nil
		}
		return 0, m.fault(AddressOutOfBounds, addr, SegData)
	case bytecode.SpaceStack:
		if off < uint32(m.sp) {
			return m.stack[off], nil
		}
		return 0, m.fault(AddressOutOfBounds, addr, SegStack)
	case bytecode.SpaceHeap:
		if off < uint32(m.heapTop) {
			return m.heap[off], nil
		}
		return 0, m.fault(AddressOutOfBounds, addr, SegHeap)
	}
	return 0, m.fault(InvalidSegment, addr, SegReserved)
}

// store writes one byte. The image is read-only.
func (m *memory) store(addr uint32, b byte) *Fault {
	space, off := bytecode.SplitAddr(addr)
	switch space {
	case bytecode.SpaceImage:
		switch {
		case off < uint32(len(m.code)):
			return m.fault(WriteToReadOnly, addr, SegCode)
		case off < m.imageSize():
			return m.fault(WriteToReadOnly, addr, SegData)
		}
		return m.fault(AddressOutOfBounds, addr, SegData)
	case bytecode.SpaceStack:
		if off < uint32(m.sp) {
			m.stack[off] = b
			return nil
		}
		return m.fault(AddressOutOfBounds, addr, SegStack)
	case bytecode.SpaceHeap:
		if off < uint32(m.heapTop) {
			m.heap[off] = b
			return nil
		}
		return m.fault(AddressOutOfBounds, addr, SegHeap)
	}
	return m.fault(InvalidSegment, addr, SegReserved)
}

// index offsets addr within its own space.
func index(addr uint32, i byte) uint32 {
	space, off := bytecode.SplitAddr(addr)
	off += uint32(i)
	if off > bytecode.OffsetMask {
		// Stays out of bounds instead of spilling into the next space.
		off = bytecode.OffsetMask
	}
	return bytecode.MakeAddr(space, off)
}

// target checks that addr is an executable code address.
func (m *memory) target(addr uint32) *Fault {
	space, off := bytecode.SplitAddr(addr)
	if space != bytecode.SpaceImage {
		return m.fault(InvalidSegment, addr, segmentOf(space))
	}
	if off >= m.imageSize() {
		return m.fault(AddressOutOfBounds, addr, SegCode)
	}
	if off >= uint32(len(m.code)) {
		return m.fault(InvalidSegment, addr, SegData)
	}
	return nil
}

func (m *memory) push(b ...byte) *Fault {
	if m.sp+len(b) > len(m.stack) {
		return m.fault(StackOverflow, bytecode.MakeAddr(bytecode.SpaceStack, uint32(m.sp)), SegStack)
	}
	copy(m.stack[m.sp:], b)
	m.sp += len(b)
	return nil
}

func (m *memory) pop(n int) ([]byte, *Fault) {
	if m.sp < n {
		return nil, m.fault(StackUnderflow, bytecode.MakeAddr(bytecode.SpaceStack, uint32(m.sp)), SegStack)
	}
	m.sp -= n
	return m.stack[m.sp : m.sp+n], nil
}

func (m *memory) pushAddr(addr uint32) *Fault {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], addr)
	return m.push(b[:]...)
}

func (m *memory) popAddr() (uint32, *Fault) {
	b, f := m.pop(4)
	if f != nil {
		return 0, f
	}
	return binary.BigEndian.Uint32(b), nil
}

func (m *memory) alloc(n int) *Fault {
	if m.heapTop+n > len(m.heap) {
		return m.fault(HeapOverflow, bytecode.MakeAddr(bytecode.SpaceHeap, uint32(m.heapTop)), SegHeap)
	}
	m.heapTop += n
	return nil
}
