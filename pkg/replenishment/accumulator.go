package replenishment

// OrderedSalesAccumulator folds unfulfilled ordered sales into sales once per
// warehouse and product, and keeps the network-wide cumulative demand of each
// product. It lives for one run and is passed explicitly to every calculation.
// 受注残を販売数へ一度だけ加算し、商品別の累積需要を保持する（1回の実行のみ有効）
type OrderedSalesAccumulator struct {
	folded map[foldKey]float64
	totals map[string]float64
}

type foldKey struct {
	warehouseID string
	productID   string
}

// NewOrderedSalesAccumulator creates an empty accumulator
func NewOrderedSalesAccumulator() *OrderedSalesAccumulator {
	return &OrderedSalesAccumulator{
		folded: make(map[foldKey]float64),
		totals: make(map[string]float64),
	}
}

// Fold returns the effective sales of a row (sales + unfulfilled ordered sales).
// Repeated calls for the same warehouse and product return the first value.
func (a *OrderedSalesAccumulator) Fold(row *ProductCalculationRow) float64 {
	key := foldKey{warehouseID: row.WarehouseID, productID: row.ProductID}
	if sales, ok := a.folded[key]; ok {
		return sales
	}

	sales := max(0, sanitize(row.Sales)) + max(0, sanitize(row.OrderedSales))
	a.folded[key] = sales
	a.totals[row.ProductID] += sales
	return sales
}

// Total returns the cumulative demand of a product across every folded warehouse
func (a *OrderedSalesAccumulator) Total(productID string) float64 {
	return a.totals[productID]
}

// Len returns the number of folded (warehouse, product) pairs
func (a *OrderedSalesAccumulator) Len() int {
	return len(a.folded)
}
