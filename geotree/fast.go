package geotree

import (
	"math/rand"
	"sort"

	"github.com/cern-eos/eos-sub029/cmn"
	"github.com/cern-eos/eos-sub029/internal/metrics"
)

// FastNode is one entry of the compact breadth-first array form (spec
// §4.10). Children of node i live in Fast.Branches[FirstBranchIdx :
// FirstBranchIdx+NumChildren], kept sorted by the tree's comparator.
type FastNode struct {
	Tag            string
	FullTag        string
	IsLeaf         bool
	Host           string
	FSID           uint32
	State          NodeState
	ParentIdx      int
	FirstBranchIdx int
	NumChildren    int
	LHPO           int // index, relative to FirstBranchIdx, of the last branch tying for top priority
}

// Fast is the compact form built from a SlowTree (spec §4.10).
type Fast struct {
	Nodes      []FastNode
	Branches   []int
	comparator Comparator

	geoIndex []int // indices into Nodes, sorted by FullTag, for ClosestAncestor
}

// BuildFast performs a breadth-first traversal of slow, assigning array
// indices in visitation order (index 0 is always the root), then sorts
// each node's branch slice by comparator and computes its LHPO. Children
// are visited in tag-sorted order so that two builds of the same slow tree
// with the same comparator produce the same node order and branch content,
// identical but for tie-break ordering within an LHPO group (spec §8
// testable property #7).
func BuildFast(slow *SlowTree, comparator Comparator) *Fast {
	f := &Fast{comparator: comparator}

	type queued struct {
		node      *SlowNode
		parentIdx int
	}
	queue := []queued{{slow.Root, -1}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		idx := len(f.Nodes)
		f.Nodes = append(f.Nodes, FastNode{
			Tag:       cur.node.Tag,
			FullTag:   cur.node.FullTag,
			IsLeaf:    cur.node.IsLeaf,
			Host:      cur.node.Host,
			FSID:      cur.node.FSID,
			State:     cur.node.State,
			ParentIdx: cur.parentIdx,
		})
		if cur.node.IsLeaf {
			continue
		}
		tags := make([]string, 0, len(cur.node.Children))
		for tag := range cur.node.Children {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		for _, tag := range tags {
			queue = append(queue, queued{cur.node.Children[tag], idx})
		}
	}

	// second pass: now that every node has an index, fill in branches.
	childrenOf := make([][]int, len(f.Nodes))
	for i, n := range f.Nodes {
		if n.ParentIdx >= 0 {
			childrenOf[n.ParentIdx] = append(childrenOf[n.ParentIdx], i)
		}
	}
	for i := range f.Nodes {
		children := childrenOf[i]
		if len(children) == 0 {
			continue
		}
		f.Nodes[i].FirstBranchIdx = len(f.Branches)
		f.Nodes[i].NumChildren = len(children)
		f.Branches = append(f.Branches, children...)
		f.resortBranch(i)
	}
	f.buildGeoIndex()
	return f
}

func (f *Fast) branchOf(nodeIdx int) []int {
	n := &f.Nodes[nodeIdx]
	return f.Branches[n.FirstBranchIdx : n.FirstBranchIdx+n.NumChildren]
}

func (f *Fast) resortBranch(nodeIdx int) {
	branch := f.branchOf(nodeIdx)
	sort.SliceStable(branch, func(i, j int) bool {
		return f.comparator.Less(f.Nodes[branch[i]].State, f.Nodes[branch[j]].State)
	})
	n := &f.Nodes[nodeIdx]
	n.LHPO = 0
	for n.LHPO+1 < len(branch) && f.comparator.Equal(f.Nodes[branch[n.LHPO+1]].State, f.Nodes[branch[0]].State) {
		n.LHPO++
	}
}

func (f *Fast) buildGeoIndex() {
	f.geoIndex = make([]int, len(f.Nodes))
	for i := range f.Nodes {
		f.geoIndex[i] = i
	}
	sort.Slice(f.geoIndex, func(i, j int) bool {
		return f.Nodes[f.geoIndex[i]].FullTag < f.Nodes[f.geoIndex[j]].FullTag
	})
}

// ClosestAncestor returns the deepest node whose FullTag is a "::"-prefix
// of geotag, descending dichotomically over the sorted geotag index rather
// than walking node-by-node (spec §4.13, carried from the original's
// dichotomic geotag lookup).
func (f *Fast) ClosestAncestor(geotag string) (int, bool) {
	parts := splitGeotag(geotag)
	for i := len(parts); i > 0; i-- {
		candidate := parts[0]
		for _, p := range parts[1:i] {
			candidate += geotagSep + p
		}
		pos := sort.Search(len(f.geoIndex), func(k int) bool {
			return f.Nodes[f.geoIndex[k]].FullTag >= candidate
		})
		if pos < len(f.geoIndex) && f.Nodes[f.geoIndex[pos]].FullTag == candidate {
			return f.geoIndex[pos], true
		}
	}
	if len(f.Nodes) > 0 {
		return 0, true // root is an ancestor of everything
	}
	return -1, false
}

// FindFreeSlot descends from start, sampling among tied top-priority
// branches (weighted by score) and retrying the next priority tier on a
// saturated pick when skipSaturated is set, re-entering from the parent
// when allowUpRoot is set and no descendant works (spec §4.10).
func (f *Fast) FindFreeSlot(start int, allowUpRoot, decrement, skipSaturated bool) (int, error) {
	idx, err := f.findFreeSlot(start, allowUpRoot, decrement, skipSaturated)
	if err != nil {
		metrics.SchedulingAttempts.WithLabelValues("failed").Inc()
		return idx, err
	}
	metrics.SchedulingAttempts.WithLabelValues("ok").Inc()
	return idx, nil
}

func (f *Fast) findFreeSlot(start int, allowUpRoot, decrement, skipSaturated bool) (int, error) {
	visited := make(map[int]bool)
	if idx, ok := f.tryDescend(start, decrement, skipSaturated, visited); ok {
		return idx, nil
	}
	if allowUpRoot && f.Nodes[start].ParentIdx >= 0 {
		return f.findFreeSlot(f.Nodes[start].ParentIdx, allowUpRoot, decrement, skipSaturated)
	}
	return -1, cmn.NewRangeError("no free slot found from node %d", start)
}

func (f *Fast) tryDescend(idx int, decrement, skipSaturated bool, visited map[int]bool) (int, bool) {
	if visited[idx] {
		return -1, false
	}
	node := &f.Nodes[idx]
	if node.IsLeaf {
		if node.State.FreeSlots <= 0 || !node.State.Status.Has(Available) {
			return -1, false
		}
		if decrement {
			f.DecrementFreeSlot(idx)
		}
		return idx, true
	}

	start, end := node.FirstBranchIdx, node.FirstBranchIdx+node.NumChildren
	for tierStart := start; tierStart < end; {
		tierEnd := tierStart
		for tierEnd+1 < end && f.comparator.Equal(f.Nodes[f.Branches[tierEnd+1]].State, f.Nodes[f.Branches[tierStart]].State) {
			tierEnd++
		}
		var candidates []int
		for _, ci := range f.Branches[tierStart : tierEnd+1] {
			if !visited[ci] {
				candidates = append(candidates, ci)
			}
		}
		if len(candidates) > 0 {
			picked := f.weightedPick(candidates)
			if res, ok := f.tryDescend(picked, decrement, skipSaturated, visited); ok {
				return res, true
			}
			if !skipSaturated {
				return -1, false
			}
			for _, ci := range candidates {
				visited[ci] = true
			}
		}
		tierStart = tierEnd + 1
	}
	visited[idx] = true
	return -1, false
}

// weightedPick samples one of candidates with probability proportional to
// weight(state), the ul/dl score evaluator (spec §4.10).
func (f *Fast) weightedPick(candidates []int) int {
	if len(candidates) == 1 {
		return candidates[0]
	}
	total := 0
	for _, ci := range candidates {
		total += weight(f.Nodes[ci].State)
	}
	r := rand.Intn(total)
	for _, ci := range candidates {
		w := weight(f.Nodes[ci].State)
		if r < w {
			return ci
		}
		r -= w
	}
	return candidates[len(candidates)-1]
}

// DecrementFreeSlot decrements leafIdx's free slot and bumps its taken
// slot, propagating the same change up to the root and re-sorting each
// affected branch (spec §4.10).
func (f *Fast) DecrementFreeSlot(leafIdx int) {
	f.adjustUp(leafIdx, -1)
}

// IncrementFreeSlot is the inverse of DecrementFreeSlot, used when a
// previously taken slot is released.
func (f *Fast) IncrementFreeSlot(leafIdx int) {
	f.adjustUp(leafIdx, 1)
}

func (f *Fast) adjustUp(leafIdx int, delta int) {
	idx := leafIdx
	for idx >= 0 {
		n := &f.Nodes[idx]
		n.State.FreeSlots += delta
		n.State.TakenSlots -= delta
		parentIdx := n.ParentIdx
		if parentIdx >= 0 {
			f.resortBranch(parentIdx)
		}
		idx = parentIdx
	}
}
