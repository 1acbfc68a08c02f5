// Package geotree implements the geo-aware scheduling tree of spec §4.9 and
// §4.10: a mutable "slow" form keyed by dotted/double-colon geotag, and a
// compact breadth-first "fast" form built from it for scheduling decisions.
package geotree

import (
	"sort"
	"strings"

	"github.com/cern-eos/eos-sub029/cmn"
)

const geotagSep = "::"

// NodeState is the per-node scheduling state (spec §3's GeoTree node):
// a status bitset plus the aggregates used by the priority comparators.
type NodeState struct {
	Status     Status
	UlScore    int
	DlScore    int
	FillRatio  float64
	TotalSpace int64
	FreeSlots  int
	TakenSlots int
}

// SlowNode is one node of the mutable tree.
type SlowNode struct {
	Tag      string // this node's fragment, spec caps it at 8 chars
	FullTag  string
	Parent   *SlowNode
	Children map[string]*SlowNode
	IsLeaf   bool
	Host     string
	FSID     uint32
	State    NodeState
}

// SlowTree is the editable form described in spec §4.9.
type SlowTree struct {
	Root *SlowNode
}

func NewSlowTree() *SlowTree {
	return &SlowTree{Root: &SlowNode{Children: make(map[string]*SlowNode)}}
}

func splitGeotag(geotag string) []string {
	if geotag == "" {
		return nil
	}
	return strings.Split(geotag, geotagSep)
}

// Insert splits geotag on "::", walking from the root and creating
// intermediates as needed, then sets the terminal leaf's host/fsid/state
// (spec §4.9).
func (t *SlowTree) Insert(geotag, host string, fsid uint32, state NodeState) (*SlowNode, error) {
	parts := splitGeotag(geotag)
	if len(parts) == 0 {
		return nil, cmn.NewInvalidError("empty geotag")
	}
	cur := t.Root
	fullTag := ""
	for i, part := range parts {
		if fullTag == "" {
			fullTag = part
		} else {
			fullTag = fullTag + geotagSep + part
		}
		child, ok := cur.Children[part]
		if !ok {
			child = &SlowNode{Tag: part, FullTag: fullTag, Parent: cur, Children: make(map[string]*SlowNode)}
			cur.Children[part] = child
		}
		cur = child
		if i == len(parts)-1 {
			cur.IsLeaf = true
			cur.Host = host
			cur.FSID = fsid
			cur.State = state
		}
	}
	return cur, nil
}

// Remove locates the leaf named by geotag and ascends, dropping every
// ancestor whose child count falls to zero (spec §4.9).
func (t *SlowTree) Remove(geotag string) error {
	leaf, ok := t.find(geotag)
	if !ok {
		return cmn.NewNotFoundError("no leaf at geotag %q", geotag)
	}
	cur := leaf
	for cur.Parent != nil {
		parent := cur.Parent
		delete(parent.Children, cur.Tag)
		if len(parent.Children) > 0 {
			break
		}
		cur = parent
	}
	return nil
}

func (t *SlowTree) find(geotag string) (*SlowNode, bool) {
	cur := t.Root
	for _, part := range splitGeotag(geotag) {
		child, ok := cur.Children[part]
		if !ok {
			return nil, false
		}
		cur = child
	}
	return cur, cur != t.Root
}

// Update recomputes every intermediate node's aggregates bottom-up: summed
// ul/dl score, space-weighted fill ratio, taken/free slot totals, and a
// status that is the OR of children's statuses except Available, which is
// set only if some descendant carries it (spec §4.9).
func (t *SlowTree) Update() NodeState {
	return updateNode(t.Root)
}

func updateNode(n *SlowNode) NodeState {
	if n.IsLeaf {
		return n.State
	}
	tags := make([]string, 0, len(n.Children))
	for tag := range n.Children {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	var agg NodeState
	var weightedFill float64
	availableAny := false
	for _, tag := range tags {
		cs := updateNode(n.Children[tag])
		agg.UlScore += cs.UlScore
		agg.DlScore += cs.DlScore
		agg.TotalSpace += cs.TotalSpace
		agg.FreeSlots += cs.FreeSlots
		agg.TakenSlots += cs.TakenSlots
		agg.Status |= cs.Status &^ Available
		if cs.Status.Has(Available) {
			availableAny = true
		}
		weightedFill += cs.FillRatio * float64(cs.TotalSpace)
	}
	if availableAny {
		agg.Status = agg.Status.Set(Available)
	}
	if agg.TotalSpace > 0 {
		agg.FillRatio = weightedFill / float64(agg.TotalSpace)
	}
	n.State = agg
	return agg
}
