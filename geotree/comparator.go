package geotree

import "math"

// Mode selects which priority comparator a FastTree uses (spec §4.10: one
// per scheduling mode).
type Mode int

const (
	ModePlacement Mode = iota
	ModeROAccess
	ModeRWAccess
	ModeBalancingPlacement
	ModeBalancingAccess
	ModeDrainingPlacement
	ModeDrainingAccess
	ModeGateway
)

// Comparator ranks two nodes' states for one scheduling mode (spec §4.10):
// reject branches lacking the required status bits or with no free slot,
// then order lexicographically by free-slot availability, fill-ratio
// spreading cap, taken-slot count, and fill ratio.
type Comparator struct {
	Required  Status
	SpreadCap float64
	Tolerance float64
}

func NewComparator(mode Mode, spreadCap, tolerance float64) Comparator {
	return Comparator{Required: requiredFor(mode), SpreadCap: spreadCap, Tolerance: tolerance}
}

func (c Comparator) eligible(s NodeState) bool {
	return s.Status&c.Required == c.Required && s.FreeSlots > 0
}

// Less reports whether a should be ranked ahead of (sort before) b.
func (c Comparator) Less(a, b NodeState) bool {
	ae, be := c.eligible(a), c.eligible(b)
	if ae != be {
		return ae
	}
	if !ae {
		return false
	}
	aCap, bCap := a.FillRatio <= c.SpreadCap, b.FillRatio <= c.SpreadCap
	if aCap != bCap {
		return aCap
	}
	if a.TakenSlots != b.TakenSlots {
		return a.TakenSlots < b.TakenSlots
	}
	if math.Abs(a.FillRatio-b.FillRatio) > c.Tolerance {
		return a.FillRatio < b.FillRatio
	}
	return false
}

// Equal reports whether a and b tie under this comparator's ordering -
// neither ranks strictly ahead of the other.
func (c Comparator) Equal(a, b NodeState) bool {
	return !c.Less(a, b) && !c.Less(b, a)
}

// weight returns the non-negative sampling weight for a node, typically
// its combined ul/dl score (spec §4.10's weight evaluator).
func weight(s NodeState) int {
	w := s.UlScore + s.DlScore + 1
	if w < 1 {
		return 1
	}
	return w
}
