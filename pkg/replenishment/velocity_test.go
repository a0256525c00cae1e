package replenishment

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// velocityRow は販売速度 sales/days の検証用の行を作成
func velocityRow(productID string, sales, days, available float64, window ArrivalWindow) *ProductCalculationRow {
	return &ProductCalculationRow{
		ProductID:         productID,
		WarehouseID:       "WH-ROOT",
		SupplierID:        "SUP-1",
		Settings:          CalculationSettings{Type: CalculationTypeVelocity},
		Sales:             sales,
		DaysInStock:       days,
		AvailableQuantity: available,
		BackorderAllowed:  true,
		Window:            window,
	}
}

func individual(row *ProductCalculationRow) *ComputationGroup {
	return &ComputationGroup{Kind: GroupIndividual, Key: row.ProductID, WarehouseID: row.WarehouseID, Rows: []*ProductCalculationRow{row}}
}

func rootCalculation(group *ComputationGroup) GroupCalculation {
	return GroupCalculation{Group: group, ParentLevel: true, Purchasing: true}
}

func leafCalculation(group *ComputationGroup) GroupCalculation {
	return GroupCalculation{Group: group}
}

func newTestCalculator(config *Config) *VelocityCalculator {
	return NewVelocityCalculator(config, zap.NewNop())
}

func scenarioThreeGroup() *ComputationGroup {
	window := ArrivalWindow{FirstDays: 10, SecondDays: 20}
	return &ComputationGroup{
		Kind:         GroupParentProduct,
		Key:          "PARENT-1",
		MOQ:          200,
		RemainingMOQ: 200,
		Window:       window,
		Rows: []*ProductCalculationRow{
			velocityRow("A", 120, 30, 20, window),
			velocityRow("B", 30, 30, 50, window),
		},
	}
}

func TestVelocityCalculator_FormulaTypes(t *testing.T) {
	tests := []struct {
		name string
		row  ProductCalculationRow
		want float64
	}{
		{
			name: "warehouse MOQ top-up",
			row:  ProductCalculationRow{Settings: CalculationSettings{Type: CalculationTypeWarehouseMOQ, WarehouseMOQ: 20}, AvailableQuantity: 5},
			want: 15,
		},
		{
			name: "warehouse MOQ already covered",
			row:  ProductCalculationRow{Settings: CalculationSettings{Type: CalculationTypeWarehouseMOQ, WarehouseMOQ: 20}, AvailableQuantity: 25},
			want: 0,
		},
		{
			name: "negative available reads Available",
			row:  ProductCalculationRow{Settings: CalculationSettings{Type: CalculationTypeNegativeAvailable}, Available: -8, AvailableQuantity: 3},
			want: 8,
		},
		{
			name: "negative available ignores AvailableQuantity",
			row:  ProductCalculationRow{Settings: CalculationSettings{Type: CalculationTypeNegativeAvailable}, Available: 2, AvailableQuantity: -40},
			want: 0,
		},
		{
			name: "negative with reserved",
			row:  ProductCalculationRow{Settings: CalculationSettings{Type: CalculationTypeNegativeWithReserved}, AvailableQuantity: -10, ReservedQuantity: 4},
			want: 6,
		},
		{
			name: "inherit parent settings",
			row: ProductCalculationRow{
				Settings:          CalculationSettings{Type: CalculationTypeInherit},
				ParentSettings:    &CalculationSettings{Type: CalculationTypeWarehouseMOQ, WarehouseMOQ: 20},
				AvailableQuantity: 5,
			},
			want: 15,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := tt.row
			row.ProductID = "P-1"
			out := newTestCalculator(nil).Calculate(rootCalculation(individual(&row)), NewOrderedSalesAccumulator())

			assert.Equal(t, tt.want, out.Quantities["P-1"])
			assert.Equal(t, tt.want, row.OrderQuantity)
		})
	}
}

func TestVelocityCalculator_InheritWithoutParentFallsBackToVelocity(t *testing.T) {
	row := velocityRow("P-1", 30, 30, 0, ArrivalWindow{FirstDays: 10, SecondDays: 20})
	row.Settings.Type = CalculationTypeInherit

	out := newTestCalculator(nil).Calculate(rootCalculation(individual(row)), NewOrderedSalesAccumulator())

	assert.Equal(t, CalculationTypeVelocity, row.Settings.Type)
	assert.Equal(t, 30.0, out.Quantities["P-1"])
}

func TestVelocityCalculator_Projection(t *testing.T) {
	row := velocityRow("P-1", 120, 30, 20, ArrivalWindow{FirstDays: 10, SecondDays: 20})

	newTestCalculator(nil).Calculate(rootCalculation(individual(row)), NewOrderedSalesAccumulator())

	assert.Equal(t, 4.0, row.SalesPerDay)
	assert.Equal(t, 5.0, row.RemainingStockDays)
	assert.Equal(t, 40.0, row.SalesUntilFirstArrival)
	assert.Equal(t, -20.0, row.RemainingAfterFirst)
	assert.Equal(t, 80.0, row.SalesUntilSecondArrival)
	assert.Equal(t, -100.0, row.RemainingAfterSecond)
	assert.Equal(t, 100.0, row.StockNeeded)
	assert.Equal(t, 100.0, row.OrderQuantity)
}

func TestVelocityCalculator_OrderedSalesFoldedIntoVelocity(t *testing.T) {
	row := velocityRow("P-1", 20, 10, 0, ArrivalWindow{FirstDays: 5})
	row.OrderedSales = 10

	acc := NewOrderedSalesAccumulator()
	newTestCalculator(nil).Calculate(rootCalculation(individual(row)), acc)

	assert.Equal(t, 3.0, row.SalesPerDay)
	assert.Equal(t, 30.0, acc.Total("P-1"))
}

func TestVelocityCalculator_PeriodCapsDaysInStock(t *testing.T) {
	row := velocityRow("P-1", 60, 90, 0, ArrivalWindow{FirstDays: 1})
	row.Settings.PeriodDays = 30

	newTestCalculator(nil).Calculate(rootCalculation(individual(row)), NewOrderedSalesAccumulator())

	assert.Equal(t, 2.0, row.SalesPerDay)
}

func TestVelocityCalculator_GroupedConvergence(t *testing.T) {
	group := scenarioThreeGroup()

	out := newTestCalculator(nil).Calculate(rootCalculation(group), NewOrderedSalesAccumulator())

	assert.True(t, out.Converged)
	assert.Equal(t, 2, out.Passes)
	assert.Equal(t, 200.0, out.Total)
	assert.Equal(t, 200.0, out.Quantities["A"])
	assert.Equal(t, 0.0, out.Quantities["B"])
}

func TestVelocityCalculator_PassBoundStillReachesMOQ(t *testing.T) {
	group := scenarioThreeGroup()
	config := DefaultConfig()
	config.MaxConvergencePasses = 1

	out := newTestCalculator(config).Calculate(rootCalculation(group), NewOrderedSalesAccumulator())

	assert.Equal(t, 1, out.Passes)
	assert.True(t, out.Converged)
	assert.GreaterOrEqual(t, out.Total, 200.0)
}

func TestVelocityCalculator_NonConvergentWithoutSales(t *testing.T) {
	window := ArrivalWindow{FirstDays: 10, SecondDays: 20}
	group := &ComputationGroup{
		Kind:         GroupAttributeConfig,
		Key:          "CFG-1",
		MOQ:          50,
		RemainingMOQ: 50,
		Rows: []*ProductCalculationRow{
			velocityRow("A", 0, 30, 10, window),
			velocityRow("B", 0, 0, 10, window),
		},
	}

	out := newTestCalculator(nil).Calculate(rootCalculation(group), NewOrderedSalesAccumulator())

	assert.False(t, out.Converged)
	assert.Equal(t, 0, out.Passes)
	assert.Equal(t, 0.0, out.Total)
}

func TestVelocityCalculator_BackorderDisallowed(t *testing.T) {
	window := ArrivalWindow{FirstDays: 12}

	allowed := velocityRow("P-1", 30, 30, 0, window)
	newTestCalculator(nil).Calculate(rootCalculation(individual(allowed)), NewOrderedSalesAccumulator())

	disallowed := velocityRow("P-1", 30, 30, 0, window)
	disallowed.BackorderAllowed = false
	newTestCalculator(nil).Calculate(rootCalculation(individual(disallowed)), NewOrderedSalesAccumulator())

	require.Equal(t, -12.0, disallowed.RemainingAfterFirst)
	assert.Equal(t, 12.0, disallowed.StockNeeded-allowed.StockNeeded)
}

func TestVelocityCalculator_NonDivisibleRoundsUp(t *testing.T) {
	row := &ProductCalculationRow{
		ProductID:         "P-1",
		Settings:          CalculationSettings{Type: CalculationTypeWarehouseMOQ, WarehouseMOQ: 8.2},
		AvailableQuantity: 5,
	}
	newTestCalculator(nil).Calculate(rootCalculation(individual(row)), NewOrderedSalesAccumulator())
	assert.Equal(t, 4.0, row.OrderQuantity)

	divisible := &ProductCalculationRow{
		ProductID:         "P-2",
		Settings:          CalculationSettings{Type: CalculationTypeWarehouseMOQ, WarehouseMOQ: 8.2},
		AvailableQuantity: 5,
		Divisible:         true,
	}
	newTestCalculator(nil).Calculate(rootCalculation(individual(divisible)), NewOrderedSalesAccumulator())
	assert.InDelta(t, 3.2, divisible.OrderQuantity, 1e-9)
}

func TestVelocityCalculator_ChildContribution(t *testing.T) {
	tests := []struct {
		name      string
		sales     float64
		available float64
		child     float64
		want      float64
	}{
		{"no own stock", 0, 0, 30, 30},
		{"own shortfall plus child", 30, 0, 30, 60},
		{"surplus covers part of child", 0, 20, 30, 10},
		{"surplus covers child", 0, 50, 30, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := velocityRow("X", tt.sales, 30, tt.available, ArrivalWindow{FirstDays: 10, SecondDays: 20})
			in := rootCalculation(individual(row))
			in.ChildQuantities = map[string]float64{"X": tt.child}

			newTestCalculator(nil).Calculate(in, NewOrderedSalesAccumulator())

			assert.Equal(t, tt.want, row.StockNeeded)
		})
	}
}

func TestVelocityCalculator_BufferOnlyAtParentLevel(t *testing.T) {
	window := ArrivalWindow{FirstDays: 10}

	parent := velocityRow("P-1", 30, 30, 0, window)
	parent.Settings.BufferMultiplier = 1.5
	newTestCalculator(nil).Calculate(rootCalculation(individual(parent)), NewOrderedSalesAccumulator())
	assert.Equal(t, 15.0, parent.OrderQuantity)

	leaf := velocityRow("P-1", 30, 30, 0, window)
	leaf.Settings.BufferMultiplier = 1.5
	newTestCalculator(nil).Calculate(leafCalculation(individual(leaf)), NewOrderedSalesAccumulator())
	assert.Equal(t, 10.0, leaf.OrderQuantity)
}

func TestVelocityCalculator_OrderFloor(t *testing.T) {
	window := ArrivalWindow{FirstDays: 3}

	t.Run("supplier MOQ applies when purchasing", func(t *testing.T) {
		row := velocityRow("P-1", 30, 30, 0, window)
		row.SupplierMOQ = 12
		out := newTestCalculator(nil).Calculate(rootCalculation(individual(row)), NewOrderedSalesAccumulator())
		assert.Equal(t, 12.0, row.OrderQuantity)
		assert.Empty(t, out.MOQCarry)
	})

	t.Run("supplier MOQ ignored for transfers", func(t *testing.T) {
		row := velocityRow("P-1", 30, 30, 0, window)
		row.SupplierMOQ = 12
		newTestCalculator(nil).Calculate(leafCalculation(individual(row)), NewOrderedSalesAccumulator())
		assert.Equal(t, 3.0, row.OrderQuantity)
	})

	t.Run("child floor is carried", func(t *testing.T) {
		row := velocityRow("P-1", 30, 30, 0, window)
		row.Settings.MinOrderCount = 10
		row.ClusterMinimum = 8
		out := newTestCalculator(nil).Calculate(leafCalculation(individual(row)), NewOrderedSalesAccumulator())
		assert.Equal(t, 3.0, row.OrderQuantity)
		assert.Equal(t, 3.0, out.Quantities["P-1"])
		assert.Equal(t, 7.0, out.MOQCarry["P-1"])
	})

	t.Run("child floor carry is whole units", func(t *testing.T) {
		row := velocityRow("P-1", 30, 30, 0, window)
		row.Settings.MinOrderCount = 9.5
		out := newTestCalculator(nil).Calculate(leafCalculation(individual(row)), NewOrderedSalesAccumulator())
		assert.Equal(t, 3.0, row.OrderQuantity)
		assert.Equal(t, 7.0, out.MOQCarry["P-1"])
	})

	t.Run("parent level applies the floor directly", func(t *testing.T) {
		row := velocityRow("P-1", 30, 30, 0, window)
		row.Settings.MinOrderCount = 10
		in := leafCalculation(individual(row))
		in.ParentLevel = true
		out := newTestCalculator(nil).Calculate(in, NewOrderedSalesAccumulator())
		assert.Equal(t, 10.0, row.OrderQuantity)
		assert.Empty(t, out.MOQCarry)
	})

	t.Run("no floor without an order", func(t *testing.T) {
		row := velocityRow("P-1", 0, 30, 0, window)
		row.Settings.MinOrderCount = 10
		out := newTestCalculator(nil).Calculate(leafCalculation(individual(row)), NewOrderedSalesAccumulator())
		assert.Equal(t, 0.0, row.OrderQuantity)
		assert.Empty(t, out.MOQCarry)
	})
}

func TestVelocityCalculator_QuantitiesStayFinite(t *testing.T) {
	window := ArrivalWindow{FirstDays: 7, SecondDays: 7}
	rows := []*ProductCalculationRow{
		velocityRow("NAN", math.NaN(), 30, math.NaN(), window),
		velocityRow("INF", math.Inf(1), 30, 0, window),
		velocityRow("ZERO-DAYS", 50, 0, -5, window),
		velocityRow("NEG", -10, 30, math.Inf(-1), window),
	}
	group := &ComputationGroup{Kind: GroupParentProduct, Key: "P", MOQ: 40, RemainingMOQ: 40, Rows: rows}

	out := newTestCalculator(nil).Calculate(rootCalculation(group), NewOrderedSalesAccumulator())

	for _, row := range rows {
		q := out.Quantities[row.ProductID]
		assert.False(t, math.IsNaN(q) || math.IsInf(q, 0), row.ProductID)
		assert.GreaterOrEqual(t, q, 0.0, row.ProductID)
		assert.Equal(t, math.Trunc(q), q, row.ProductID)
		assert.False(t, math.IsNaN(row.SalesPerDay) || math.IsInf(row.SalesPerDay, 0), row.ProductID)
	}
}

func TestVelocityCalculator_IdempotentWithFreshAccumulators(t *testing.T) {
	first := newTestCalculator(nil).Calculate(rootCalculation(scenarioThreeGroup()), NewOrderedSalesAccumulator())
	second := newTestCalculator(nil).Calculate(rootCalculation(scenarioThreeGroup()), NewOrderedSalesAccumulator())

	assert.Equal(t, first.Quantities, second.Quantities)
	assert.Equal(t, first.Passes, second.Passes)
}

func TestOrderedSalesAccumulator_FoldsOnce(t *testing.T) {
	acc := NewOrderedSalesAccumulator()
	row := &ProductCalculationRow{ProductID: "P-1", WarehouseID: "WH-A", Sales: 10, OrderedSales: 5}

	assert.Equal(t, 15.0, acc.Fold(row))
	row.Sales = 100
	assert.Equal(t, 15.0, acc.Fold(row))

	other := &ProductCalculationRow{ProductID: "P-1", WarehouseID: "WH-B", Sales: 4, OrderedSales: -3}
	assert.Equal(t, 4.0, acc.Fold(other))

	assert.Equal(t, 19.0, acc.Total("P-1"))
	assert.Equal(t, 2, acc.Len())
}
