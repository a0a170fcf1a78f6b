package sil

import "fmt"

// Strategy selects the combinator used by State.Collapse.
type Strategy uint8

const (
	CollapseXor     Strategy = 0 // packed-byte xor
	CollapseProduct Strategy = 1 // Mul
	CollapseMix     Strategy = 2 // complex mean, pairwise
	CollapseMax     Strategy = 3 // largest magnitude

	numStrategies = 4
)

// Valid reports whether st names a known strategy.
func (st Strategy) Valid() bool {
	return st < numStrategies
}

func (st Strategy) String() string {
	switch st {
	case CollapseXor:
		return "xor"
	case CollapseProduct:
		return "product"
	case CollapseMix:
		return "mix"
	case CollapseMax:
		return "max"
	default:
		return fmt.Sprintf("Strategy(%d)", uint8(st))
	}
}

// ParseStrategy is the inverse of Strategy.String.
func ParseStrategy(name string) (Strategy, bool) {
	for st := Strategy(0); st < numStrategies; st++ {
		if st.String() == name {
			return st, true
		}
	}
	return 0, false
}

// Combine applies the strategy's combinator to acc and v.
// Unknown strategies fall back to xor.
func (st Strategy) Combine(acc, v ByteSil) ByteSil {
	switch st {
	case CollapseProduct:
		return acc.Mul(v)
	case CollapseMix:
		return acc.Mix(v)
	case CollapseMax:
		if v.Rho > acc.Rho || (v.Rho == acc.Rho && v.Theta > acc.Theta) {
			return v
		}
		return acc
	default:
		return acc.Xor(v)
	}
}

// Collapse folds the layers left to right: the accumulator starts at layer 0
// and combines layers 1 through 15 in order.
func (s State) Collapse(st Strategy) ByteSil {
	acc := s[0]
	for _, v := range s[1:] {
		acc = st.Combine(acc, v)
	}
	return acc
}
