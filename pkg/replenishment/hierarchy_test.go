package replenishment

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postOrderIDs(h *Hierarchy) []string {
	ids := make([]string, 0, h.Len())
	for _, node := range h.PostOrder() {
		ids = append(ids, node.ID)
	}
	return ids
}

func TestBuildHierarchy_PostOrder(t *testing.T) {
	tree := &HierarchyTree{
		RootID: "ROOT",
		Children: map[string][]string{
			"ROOT": {"EAST", "WEST"},
			"EAST": {"E1", "E2"},
			"WEST": {"W1"},
		},
	}

	h, err := BuildHierarchy(tree, []string{"ROOT", "EAST", "WEST", "E1", "E2", "W1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"E1", "E2", "EAST", "W1", "WEST", "ROOT"}, postOrderIDs(h))
	assert.Equal(t, []string{"ROOT", "EAST", "WEST", "E1", "E2", "W1"}, h.IDs())

	east, ok := h.Node("EAST")
	require.True(t, ok)
	assert.Equal(t, "ROOT", east.ParentID)
	assert.Equal(t, 1, east.Depth)
	assert.True(t, east.IsParentLevel())

	e1, _ := h.Node("E1")
	assert.Equal(t, 2, e1.Depth)
	assert.False(t, e1.IsParentLevel())
	assert.True(t, h.Root().IsRoot())
}

func TestBuildHierarchy_SingleWarehouse(t *testing.T) {
	h, err := BuildHierarchy(&HierarchyTree{RootID: "ROOT"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, h.Len())
	assert.Equal(t, []string{"ROOT"}, postOrderIDs(h))
	assert.True(t, h.Root().IsParentLevel())
}

func TestBuildHierarchy_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		tree   *HierarchyTree
		flat   []string
		reason string
	}{
		{
			name:   "nil tree",
			tree:   nil,
			reason: HierarchyReasonEmpty,
		},
		{
			name:   "root missing from flat set",
			tree:   &HierarchyTree{RootID: "ROOT"},
			flat:   []string{"OTHER"},
			reason: HierarchyReasonDangling,
		},
		{
			name:   "dangling child",
			tree:   &HierarchyTree{RootID: "ROOT", Children: map[string][]string{"ROOT": {"GHOST"}}},
			flat:   []string{"ROOT"},
			reason: HierarchyReasonDangling,
		},
		{
			name:   "self reference",
			tree:   &HierarchyTree{RootID: "ROOT", Children: map[string][]string{"ROOT": {"A"}, "A": {"A"}}},
			reason: HierarchyReasonCycle,
		},
		{
			name:   "root as child",
			tree:   &HierarchyTree{RootID: "ROOT", Children: map[string][]string{"ROOT": {"A"}, "A": {"ROOT"}}},
			reason: HierarchyReasonCycle,
		},
		{
			name:   "detached cycle",
			tree:   &HierarchyTree{RootID: "ROOT", Children: map[string][]string{"A": {"B"}, "B": {"A"}}},
			reason: HierarchyReasonCycle,
		},
		{
			name:   "two parents",
			tree:   &HierarchyTree{RootID: "ROOT", Children: map[string][]string{"ROOT": {"A", "B"}, "A": {"C"}, "B": {"C"}}},
			reason: HierarchyReasonMultipleParents,
		},
		{
			name:   "unreachable warehouse",
			tree:   &HierarchyTree{RootID: "ROOT", Children: map[string][]string{"ROOT": {"A"}}},
			flat:   []string{"ROOT", "A", "ISLAND"},
			reason: HierarchyReasonUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := BuildHierarchy(tt.tree, tt.flat)
			require.Error(t, err)
			assert.Nil(t, h)
			assert.True(t, errors.Is(err, ErrMalformedHierarchy))

			var herr *HierarchyError
			require.True(t, errors.As(err, &herr))
			assert.Equal(t, tt.reason, herr.Reason)
		})
	}
}

func TestHierarchy_DeepChainWithoutRecursion(t *testing.T) {
	const depth = 20000
	children := make(map[string][]string, depth)
	for i := 0; i < depth; i++ {
		children[fmt.Sprintf("W%d", i)] = []string{fmt.Sprintf("W%d", i+1)}
	}

	h, err := BuildHierarchy(&HierarchyTree{RootID: "W0", Children: children}, nil)
	require.NoError(t, err)

	order := h.PostOrder()
	require.Len(t, order, depth+1)
	assert.Equal(t, fmt.Sprintf("W%d", depth), order[0].ID)
	assert.Equal(t, "W0", order[depth].ID)
}
