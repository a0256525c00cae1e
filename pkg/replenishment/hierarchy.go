package replenishment

import (
	"fmt"
	"sort"
)

// Hierarchy reasons reported by HierarchyError
const (
	HierarchyReasonEmpty           = "empty"
	HierarchyReasonDangling        = "dangling"
	HierarchyReasonCycle           = "cycle"
	HierarchyReasonMultipleParents = "multiple_parents"
	HierarchyReasonUnreachable     = "unreachable"
)

// Hierarchy is a validated arena of warehouse nodes addressed by id
// 検証済みの倉庫階層（IDで参照するノードの集合）
type Hierarchy struct {
	rootID string
	nodes  map[string]*WarehouseNode
	order  []string // 幅優先順
}

// BuildHierarchy validates the adjacency list and builds the node arena.
// Cycles, self references, dangling or unreachable ids and warehouses with
// more than one parent are rejected before any traversal takes place.
// 隣接リストを検証して倉庫階層を構築
func BuildHierarchy(tree *HierarchyTree, flat []string) (*Hierarchy, error) {
	if tree == nil || tree.RootID == "" {
		return nil, NewHierarchyError(HierarchyReasonEmpty, "", "ルート倉庫が指定されていません")
	}

	known := make(map[string]bool, len(flat)+1)
	for _, id := range flat {
		if id != "" {
			known[id] = true
		}
	}
	if len(known) == 0 {
		// フラットな一覧が無い場合は隣接リストから推定
		known[tree.RootID] = true
		for parent, children := range tree.Children {
			known[parent] = true
			for _, child := range children {
				known[child] = true
			}
		}
	}
	if !known[tree.RootID] {
		return nil, NewHierarchyError(HierarchyReasonDangling, tree.RootID, "ルート倉庫が倉庫一覧に存在しません")
	}

	parents := make([]string, 0, len(tree.Children))
	for parent := range tree.Children {
		parents = append(parents, parent)
	}
	sort.Strings(parents)

	parentOf := make(map[string]string, len(known))
	for _, parent := range parents {
		if !known[parent] {
			return nil, NewHierarchyError(HierarchyReasonDangling, parent, "未知の倉庫が親として参照されています")
		}
		for _, child := range tree.Children[parent] {
			switch {
			case !known[child]:
				return nil, NewHierarchyError(HierarchyReasonDangling, child, fmt.Sprintf("倉庫 %s の子が倉庫一覧に存在しません", parent))
			case child == parent:
				return nil, NewHierarchyError(HierarchyReasonCycle, child, "倉庫が自身を子として参照しています")
			case child == tree.RootID:
				return nil, NewHierarchyError(HierarchyReasonCycle, child, fmt.Sprintf("ルート倉庫が倉庫 %s の子として参照されています", parent))
			}
			if existing, ok := parentOf[child]; ok {
				return nil, NewHierarchyError(HierarchyReasonMultipleParents, child,
					fmt.Sprintf("親倉庫が複数あります (%s, %s)", existing, parent))
			}
			parentOf[child] = parent
		}
	}

	h := &Hierarchy{
		rootID: tree.RootID,
		nodes:  make(map[string]*WarehouseNode, len(known)),
	}

	queue := []string{tree.RootID}
	h.nodes[tree.RootID] = newWarehouseNode(tree.RootID, "", 0)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		h.order = append(h.order, id)

		node := h.nodes[id]
		for _, child := range tree.Children[id] {
			node.Children = append(node.Children, child)
			h.nodes[child] = newWarehouseNode(child, id, node.Depth+1)
			queue = append(queue, child)
		}
	}

	if len(h.nodes) != len(known) {
		return nil, unreachableError(known, h.nodes, parentOf)
	}

	return h, nil
}

// unreachableError reports the first id not reachable from the root, as a
// cycle when following its parent chain revisits a warehouse
func unreachableError(known map[string]bool, reached map[string]*WarehouseNode, parentOf map[string]string) error {
	missing := make([]string, 0)
	for id := range known {
		if _, ok := reached[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)

	id := missing[0]
	seen := map[string]bool{id: true}
	for current := parentOf[id]; current != ""; current = parentOf[current] {
		if seen[current] {
			return NewHierarchyError(HierarchyReasonCycle, id, "倉庫階層に循環参照があります")
		}
		seen[current] = true
	}
	return NewHierarchyError(HierarchyReasonUnreachable, id, "ルート倉庫から到達できない倉庫があります")
}

func newWarehouseNode(id, parentID string, depth int) *WarehouseNode {
	return &WarehouseNode{
		ID:           id,
		ParentID:     parentID,
		Depth:        depth,
		groupIndex:   make(map[groupKey]*ComputationGroup),
		PurchaseData: make(map[string]*ProductCalculationRow),
	}
}

// Root returns the purchasing warehouse
func (h *Hierarchy) Root() *WarehouseNode {
	return h.nodes[h.rootID]
}

// RootID returns the id of the purchasing warehouse
func (h *Hierarchy) RootID() string {
	return h.rootID
}

// Node returns the node of a warehouse
func (h *Hierarchy) Node(id string) (*WarehouseNode, bool) {
	node, ok := h.nodes[id]
	return node, ok
}

// Len returns the number of warehouses
func (h *Hierarchy) Len() int {
	return len(h.nodes)
}

// IDs returns every warehouse id, root first, in breadth-first order
func (h *Hierarchy) IDs() []string {
	ids := make([]string, len(h.order))
	copy(ids, h.order)
	return ids
}

// PostOrder returns every node with each warehouse after all of its descendants.
// The walk uses an explicit stack and never recurses.
// 子倉庫を親倉庫より先に並べる（後行順）
func (h *Hierarchy) PostOrder() []*WarehouseNode {
	type frame struct {
		node *WarehouseNode
		next int
	}

	out := make([]*WarehouseNode, 0, len(h.nodes))
	stack := []frame{{node: h.Root()}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.node.Children) {
			child := h.nodes[top.node.Children[top.next]]
			top.next++
			stack = append(stack, frame{node: child})
			continue
		}
		out = append(out, top.node)
		stack = stack[:len(stack)-1]
	}
	return out
}

// IsParentLevel reports whether a node orders for others: the root or any warehouse with children
func (n *WarehouseNode) IsParentLevel() bool {
	return n.IsRoot() || len(n.Children) > 0
}
