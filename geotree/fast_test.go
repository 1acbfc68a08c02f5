package geotree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildSampleSlow() *SlowTree {
	t := NewSlowTree()
	t.Insert("eu::cern::fs1", "host-a", 1, NodeState{Status: Available | Readable | Writable, TotalSpace: 100, FreeSlots: 2, TakenSlots: 0, FillRatio: 0.2})
	t.Insert("eu::cern::fs2", "host-a", 2, NodeState{Status: Available | Readable | Writable, TotalSpace: 100, FreeSlots: 2, TakenSlots: 0, FillRatio: 0.4})
	t.Insert("eu::desy::fs3", "host-b", 3, NodeState{Status: Available | Readable | Writable, TotalSpace: 100, FreeSlots: 0, TakenSlots: 2, FillRatio: 0.9})
	t.Insert("us::bnl::fs4", "host-c", 4, NodeState{Status: Available | Readable | Writable, TotalSpace: 100, FreeSlots: 3, TakenSlots: 0, FillRatio: 0.1})
	t.Update()
	return t
}

// property #6: after any sequence of FindFreeSlot/IncrementFreeSlot/
// DecrementFreeSlot, every node's branch slice remains sorted according to
// the tree's comparator and LHPO correctly bounds the leading tie group.
func TestFastTreeSortingInvariantHoldsAfterMutation(t *testing.T) {
	slow := buildSampleSlow()
	cmp := NewComparator(ModeRWAccess, 0.8, 0.05)
	fast := BuildFast(slow, cmp)

	assertSorted := func() {
		for i := range fast.Nodes {
			n := &fast.Nodes[i]
			if n.NumChildren == 0 {
				continue
			}
			branch := fast.branchOf(i)
			for k := 1; k < len(branch); k++ {
				require.False(t, cmp.Less(fast.Nodes[branch[k]].State, fast.Nodes[branch[k-1]].State),
					"branch of node %d not sorted at position %d", i, k)
			}
			for k := 0; k <= n.LHPO && k < len(branch); k++ {
				require.True(t, cmp.Equal(fast.Nodes[branch[k]].State, fast.Nodes[branch[0]].State))
			}
			if n.LHPO+1 < len(branch) {
				require.False(t, cmp.Equal(fast.Nodes[branch[n.LHPO+1]].State, fast.Nodes[branch[0]].State))
			}
		}
	}
	assertSorted()

	for i := 0; i < 3; i++ {
		idx, err := fast.FindFreeSlot(0, true, true, true)
		require.NoError(t, err)
		assertSorted()
		fast.IncrementFreeSlot(idx)
		assertSorted()
	}
}

// property #7: building the fast form twice from the same slow tree and
// comparator yields the same node order and branch membership (tie-break
// ordering within an LHPO group may differ, since ties carry no ordering
// guarantee).
func TestFastTreeBuildIsIdempotentModuloTies(t *testing.T) {
	slow := buildSampleSlow()
	cmp := NewComparator(ModeRWAccess, 0.8, 0.05)

	f1 := BuildFast(slow, cmp)
	f2 := BuildFast(slow, cmp)

	require.Equal(t, len(f1.Nodes), len(f2.Nodes))
	for i := range f1.Nodes {
		require.Equal(t, f1.Nodes[i].FullTag, f2.Nodes[i].FullTag)
		require.Equal(t, f1.Nodes[i].NumChildren, f2.Nodes[i].NumChildren)
	}

	set := func(f *Fast, nodeIdx int) map[string]bool {
		out := make(map[string]bool)
		for _, ci := range f.branchOf(nodeIdx) {
			out[f.Nodes[ci].FullTag] = true
		}
		return out
	}
	for i := range f1.Nodes {
		if f1.Nodes[i].NumChildren == 0 {
			continue
		}
		require.Equal(t, set(f1, i), set(f2, i))
	}
}

// scenario S4: placement selection prefers the least-filled eligible leaf
// under the spread cap, and draining/disabled leaves are never chosen.
func TestScenarioS4PlacementPrefersLeastFilled(t *testing.T) {
	slow := NewSlowTree()
	slow.Insert("eu::siteA", "host-a", 1, NodeState{Status: Available | Writable, TotalSpace: 100, FreeSlots: 1, TakenSlots: 0, FillRatio: 0.8})
	slow.Insert("eu::siteB", "host-b", 2, NodeState{Status: Available | Writable, TotalSpace: 100, FreeSlots: 1, TakenSlots: 0, FillRatio: 0.1})
	slow.Insert("eu::siteC", "host-c", 3, NodeState{Status: Disabled, TotalSpace: 100, FreeSlots: 5, TakenSlots: 0, FillRatio: 0.0})
	slow.Update()

	cmp := NewComparator(ModePlacement, 0.9, 0.01)
	fast := BuildFast(slow, cmp)

	idx, err := fast.FindFreeSlot(0, false, false, true)
	require.NoError(t, err)
	require.Equal(t, "eu::siteB", fast.Nodes[idx].FullTag)
}

func TestFindFreeSlotErrorsWhenNothingEligible(t *testing.T) {
	slow := NewSlowTree()
	slow.Insert("eu::siteA", "host-a", 1, NodeState{Status: Disabled, TotalSpace: 100, FreeSlots: 1, TakenSlots: 0})
	slow.Update()

	cmp := NewComparator(ModePlacement, 0.9, 0.01)
	fast := BuildFast(slow, cmp)

	_, err := fast.FindFreeSlot(0, false, false, true)
	require.Error(t, err)
}

func TestClosestAncestorFindsDeepestPrefixMatch(t *testing.T) {
	slow := buildSampleSlow()
	cmp := NewComparator(ModeRWAccess, 0.8, 0.05)
	fast := BuildFast(slow, cmp)

	idx, ok := fast.ClosestAncestor("eu::cern::fs1")
	require.True(t, ok)
	require.Equal(t, "eu::cern::fs1", fast.Nodes[idx].FullTag)

	idx, ok = fast.ClosestAncestor("eu::cern::fsUnknown")
	require.True(t, ok)
	require.Equal(t, "eu::cern", fast.Nodes[idx].FullTag)

	idx, ok = fast.ClosestAncestor("unknownregion")
	require.True(t, ok)
	require.Equal(t, "", fast.Nodes[idx].FullTag)
}
