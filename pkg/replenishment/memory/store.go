// Package memory provides in-memory implementations of the replenishment collaborators
package memory

import (
	"context"
	"sync"

	"github.com/nemonet1337/zaiReplenish/pkg/replenishment"
	"github.com/nemonet1337/zaiReplenish/pkg/schedule"
)

// Store keeps rows, the warehouse hierarchy, arriving stock, supplier calendars
// and written lines in memory. It is safe for concurrent use.
// メモリ上のストア（全コラボレーターを実装）
type Store struct {
	*schedule.Registry

	mu         sync.RWMutex
	rows       []replenishment.ProductCalculationRow
	warehouses map[string]bool
	children   map[string][]string
	arriving   map[string][]replenishment.ArrivingProduct
	lines      []replenishment.PurchaseLine

	// WriteErr is returned by Write when set
	WriteErr error
}

// すべてのインターフェースを実装することを明示
var (
	_ replenishment.RowSource                  = (*Store)(nil)
	_ replenishment.WarehouseHierarchyProvider = (*Store)(nil)
	_ replenishment.ArrivingProductsProvider   = (*Store)(nil)
	_ replenishment.ScheduleSource             = (*Store)(nil)
	_ replenishment.ReplenishmentWriter        = (*Store)(nil)
	_ replenishment.TransactionalWriter        = (*Store)(nil)
)

// NewStore creates an empty store
// 新しいメモリストアを作成
func NewStore() *Store {
	return &Store{
		Registry:   schedule.NewRegistry(),
		warehouses: make(map[string]bool),
		children:   make(map[string][]string),
		arriving:   make(map[string][]replenishment.ArrivingProduct),
	}
}

// Dependencies returns the store wired as every collaborator of a Manager
func (s *Store) Dependencies() replenishment.Dependencies {
	return replenishment.Dependencies{
		Rows:      s,
		Hierarchy: s,
		Arriving:  s,
		Schedules: s,
		Writer:    s,
	}
}

// AddWarehouse registers a warehouse under parentID ("" for a root)
func (s *Store) AddWarehouse(id, parentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warehouses[id] = true
	if parentID != "" {
		s.warehouses[parentID] = true
		s.children[parentID] = append(s.children[parentID], id)
	}
}

// SetHierarchy registers every warehouse of an adjacency list
func (s *Store) SetHierarchy(tree replenishment.HierarchyTree) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tree.RootID != "" {
		s.warehouses[tree.RootID] = true
	}
	for parent, children := range tree.Children {
		s.warehouses[parent] = true
		for _, child := range children {
			s.warehouses[child] = true
		}
		s.children[parent] = append(s.children[parent], children...)
	}
}

// AddRows appends calculation rows
func (s *Store) AddRows(rows ...replenishment.ProductCalculationRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rows...)
	for _, row := range rows {
		s.warehouses[row.WarehouseID] = true
	}
}

// AddArriving appends in-transit stock of a warehouse
func (s *Store) AddArriving(warehouseID string, products ...replenishment.ArrivingProduct) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arriving[warehouseID] = append(s.arriving[warehouseID], products...)
}

// ListCalculationRows returns copies of the rows of the supplier in the given warehouses
func (s *Store) ListCalculationRows(ctx context.Context, q replenishment.RowQuery) ([]replenishment.ProductCalculationRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(q.WarehouseIDs))
	for _, id := range q.WarehouseIDs {
		wanted[id] = true
	}

	out := make([]replenishment.ProductCalculationRow, 0, len(s.rows))
	for _, row := range s.rows {
		if q.SupplierID != "" && row.SupplierID != "" && row.SupplierID != q.SupplierID {
			continue
		}
		if len(wanted) > 0 && !wanted[row.WarehouseID] {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// GetHierarchy returns the subtree rooted at warehouseID and its flat id set.
// Cyclic data is returned as found and rejected by BuildHierarchy.
func (s *Store) GetHierarchy(ctx context.Context, warehouseID string) (*replenishment.HierarchyTree, []string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.warehouses[warehouseID] {
		return nil, nil, replenishment.ErrWarehouseNotFound
	}

	tree := &replenishment.HierarchyTree{
		RootID:   warehouseID,
		Children: make(map[string][]string),
	}
	flat := []string{warehouseID}
	visited := map[string]bool{warehouseID: true}
	queue := []string{warehouseID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		children := s.children[id]
		if len(children) == 0 {
			continue
		}
		tree.Children[id] = append([]string(nil), children...)
		for _, child := range children {
			if visited[child] {
				continue
			}
			visited[child] = true
			flat = append(flat, child)
			queue = append(queue, child)
		}
	}
	return tree, flat, nil
}

// GetArrivingProducts returns the in-transit stock of a warehouse
func (s *Store) GetArrivingProducts(ctx context.Context, warehouseID string) ([]replenishment.ArrivingProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]replenishment.ArrivingProduct(nil), s.arriving[warehouseID]...), nil
}

// Write records one purchase line
func (s *Store) Write(ctx context.Context, line replenishment.PurchaseLine) error {
	if s.WriteErr != nil {
		return s.WriteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
	return nil
}

// WithinTransaction buffers the lines written by fn and keeps them only when fn succeeds
// トランザクション内で書き込み（失敗時は破棄）
func (s *Store) WithinTransaction(ctx context.Context, fn func(w replenishment.ReplenishmentWriter) error) error {
	tx := &txWriter{err: s.WriteErr}
	if err := fn(tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, tx.lines...)
	return nil
}

// Lines returns the committed lines
func (s *Store) Lines() []replenishment.PurchaseLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]replenishment.PurchaseLine(nil), s.lines...)
}

// ListLines returns the committed lines of one purchase order
func (s *Store) ListLines(ctx context.Context, orderID string) ([]replenishment.PurchaseLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []replenishment.PurchaseLine
	for _, line := range s.lines {
		if line.OrderID == orderID {
			out = append(out, line)
		}
	}
	return out, nil
}

type txWriter struct {
	err   error
	lines []replenishment.PurchaseLine
}

func (w *txWriter) Write(ctx context.Context, line replenishment.PurchaseLine) error {
	if w.err != nil {
		return w.err
	}
	w.lines = append(w.lines, line)
	return nil
}
