package sil

import (
	"fmt"
	"strings"
)

// NumLayers is the fixed width of a State.
const NumLayers = 16

// Layer indexes a State. Valid layers are 0 through 15.
type Layer uint8

// Valid reports whether l addresses a layer.
func (l Layer) Valid() bool {
	return l < NumLayers
}

// Group is the semantic role of a run of layers.
type Group uint8

const (
	Perception  Group = iota // layers 0-4
	Processing               // layers 5-7
	Interaction              // layers 8-A
	Emergence                // layers B-C
	Meta                     // layers D-F
)

var groupBounds = [...]struct{ first, last Layer }{
	Perception:  {0x0, 0x4},
	Processing:  {0x5, 0x7},
	Interaction: {0x8, 0xA},
	Emergence:   {0xB, 0xC},
	Meta:        {0xD, 0xF},
}

// Layers returns the layer indices of g in order.
func (g Group) Layers() []Layer {
	b := groupBounds[g]
	out := make([]Layer, 0, b.last-b.first+1)
	for l := b.first; l <= b.last; l++ {
		out = append(out, l)
	}
	return out
}

func (g Group) String() string {
	switch g {
	case Perception:
		return "perception"
	case Processing:
		return "processing"
	case Interaction:
		return "interaction"
	case Emergence:
		return "emergence"
	case Meta:
		return "meta"
	default:
		return fmt.Sprintf("Group(%d)", g)
	}
}

// GroupOf returns the group that owns layer l.
func GroupOf(l Layer) Group {
	for g, b := range groupBounds {
		if l >= b.first && l <= b.last {
			return Group(g)
		}
	}
	panic(fmt.Sprintf("sil: layer %d out of range", l))
}

// State is a 16-layer state vector. It is a value type: every method that
// changes a layer returns a new State and leaves the receiver untouched.
type State [NumLayers]ByteSil

// Vacuum returns a state with every layer Null.
func Vacuum() State {
	return fill(Null)
}

// Neutral returns a state with every layer One.
func Neutral() State {
	return fill(One)
}

// Maximum returns a state with every layer Max.
func Maximum() State {
	return fill(Max)
}

func fill(v ByteSil) State {
	var s State
	for i := range s {
		s[i] = v
	}
	return s
}

// Get returns layer l. It panics if l > 15.
func (s State) Get(l Layer) ByteSil {
	return s[l]
}

// WithLayer returns a copy of s with layer l set to v. It panics if l > 15.
func (s State) WithLayer(l Layer, v ByteSil) State {
	s[l] = v
	return s
}

// Tensor multiplies the two states layer by layer.
func (s State) Tensor(o State) State {
	var out State
	for i := range s {
		out[i] = s[i].Mul(o[i])
	}
	return out
}

// Emergence returns layers B and C.
func (s State) Emergence() [2]ByteSil {
	return [2]ByteSil{s[0xB], s[0xC]}
}

// Perception returns layers 0 through 4.
func (s State) Perception() [5]ByteSil {
	return [5]ByteSil{s[0], s[1], s[2], s[3], s[4]}
}

// Processing returns layers 5 through 7.
func (s State) Processing() [3]ByteSil {
	return [3]ByteSil{s[5], s[6], s[7]}
}

// Interaction returns layers 8 through A.
func (s State) Interaction() [3]ByteSil {
	return [3]ByteSil{s[8], s[9], s[0xA]}
}

// Meta returns layers D through F.
func (s State) Meta() [3]ByteSil {
	return [3]ByteSil{s[0xD], s[0xE], s[0xF]}
}

// Bytes packs every layer.
func (s State) Bytes() [NumLayers]byte {
	var out [NumLayers]byte
	for i, v := range s {
		out[i] = v.ToU8()
	}
	return out
}

// StateFromBytes unpacks a state produced by Bytes.
func StateFromBytes(b [NumLayers]byte) State {
	var s State
	for i, v := range b {
		s[i] = FromU8(v)
	}
	return s
}

// LayerValue is one layer assignment.
type LayerValue struct {
	Layer Layer
	Value ByteSil
}

// Diff lists, in layer order, the layers of o that differ from s.
// Applying the result to s with WithLayer yields o.
func (s State) Diff(o State) []LayerValue {
	var out []LayerValue
	for i := range s {
		if s[i] != o[i] {
			out = append(out, LayerValue{Layer: Layer(i), Value: o[i]})
		}
	}
	return out
}

// Apply sets every listed layer in order.
func (s State) Apply(updates []LayerValue) State {
	for _, u := range updates {
		s[u.Layer] = u.Value
	}
	return s
}

func (s State) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range s {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(v.String())
	}
	sb.WriteByte(']')
	return sb.String()
}
