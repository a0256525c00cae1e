package replenishment

import (
	"time"
)

// ArrivingStockIndex maps warehouse → product → day offset → quantity for
// goods already in transit. It is read-only once built.
// 入荷予定在庫の索引（倉庫→商品→日数オフセット→数量）
type ArrivingStockIndex struct {
	now         time.Time
	byWarehouse map[string]map[string]map[int]float64
}

// NewArrivingStockIndex creates an empty index anchored at now
func NewArrivingStockIndex(now time.Time) *ArrivingStockIndex {
	return &ArrivingStockIndex{
		now:         truncateDay(now),
		byWarehouse: make(map[string]map[string]map[int]float64),
	}
}

// Add buckets arriving products of a warehouse by their day offset from now.
// Overdue arrivals are counted as arriving today.
// 入荷予定を基準日からの日数で振り分け
func (ix *ArrivingStockIndex) Add(warehouseID string, products []ArrivingProduct) {
	byProduct, ok := ix.byWarehouse[warehouseID]
	if !ok {
		byProduct = make(map[string]map[int]float64)
		ix.byWarehouse[warehouseID] = byProduct
	}

	for _, p := range products {
		if p.Quantity <= 0 || p.ProductID == "" {
			continue
		}
		offset := max(0, daysBetween(ix.now, truncateDay(p.ArrivalDate)))
		buckets, ok := byProduct[p.ProductID]
		if !ok {
			buckets = make(map[int]float64)
			byProduct[p.ProductID] = buckets
		}
		buckets[offset] += p.Quantity
	}
}

// Has reports whether the product has dated in-transit stock at the warehouse
func (ix *ArrivingStockIndex) Has(warehouseID, productID string) bool {
	_, ok := ix.byWarehouse[warehouseID][productID]
	return ok
}

// Quantities returns a copy of the day-offset buckets of a product
func (ix *ArrivingStockIndex) Quantities(warehouseID, productID string) map[int]float64 {
	buckets := ix.byWarehouse[warehouseID][productID]
	out := make(map[int]float64, len(buckets))
	for offset, qty := range buckets {
		out[offset] = qty
	}
	return out
}

// Between sums the quantity arriving at offsets in [from, to]
func (ix *ArrivingStockIndex) Between(warehouseID, productID string, from, to int) float64 {
	total := 0.0
	for offset, qty := range ix.byWarehouse[warehouseID][productID] {
		if offset >= from && offset <= to {
			total += qty
		}
	}
	return total
}

// PreCredit seeds the projected stock of a row with in-transit quantities:
// arrivals up to the first arrival count toward RemainingAfterFirst, arrivals
// between the first and second arrival toward RemainingAfterSecond. Rows without
// dated arrivals credit ArrivingQuantity at the first arrival.
// 入荷予定数量を予測在庫に事前計上
func (ix *ArrivingStockIndex) PreCredit(row *ProductCalculationRow) {
	first := row.Window.FirstDays
	second := first + row.Window.SecondDays

	if ix == nil || !ix.Has(row.WarehouseID, row.ProductID) {
		row.RemainingAfterFirst = max(0, sanitize(row.ArrivingQuantity))
		row.RemainingAfterSecond = 0
		return
	}

	row.RemainingAfterFirst = ix.Between(row.WarehouseID, row.ProductID, 0, first)
	row.RemainingAfterSecond = ix.Between(row.WarehouseID, row.ProductID, first+1, second)
}
