package replenishment

import (
	"math"

	"go.uber.org/zap"
)

// quantityEpsilon absorbs float noise before rounding up to whole units
const quantityEpsilon = 1e-9

// GroupCalculation is the input of one computation-group calculation
// 計算グループ1件分の入力
type GroupCalculation struct {
	Group *ComputationGroup
	// 直下の子倉庫で確定した商品別数量（子倉庫のMOQ繰越分を加算済み）
	ChildQuantities map[string]float64
	// 子倉庫を持つ倉庫、またはルート倉庫
	ParentLevel bool
	// ルート倉庫（仕入先への発注）
	Purchasing bool
}

// GroupOutcome is the result of one computation-group calculation
// 計算グループ1件分の結果
type GroupOutcome struct {
	Quantities map[string]float64
	Total      float64
	Passes     int
	Converged  bool
	// 末端倉庫でMOQ下限に満たなかった商品別の不足分（親倉庫で精算）
	MOQCarry map[string]float64
}

// VelocityCalculator computes per-product order quantities for one group.
// It holds no state between calls; the sales accumulator is passed explicitly.
// 販売速度ベースの発注数計算（呼び出し間で状態を持たない）
type VelocityCalculator struct {
	config *Config
	logger *zap.Logger
}

// NewVelocityCalculator creates a new calculator
// 新しい計算機を作成
func NewVelocityCalculator(config *Config, logger *zap.Logger) *VelocityCalculator {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VelocityCalculator{
		config: config,
		logger: logger,
	}
}

// Calculate computes the order quantity of every row in the group
// グループ内の全商品の発注数を計算
func (c *VelocityCalculator) Calculate(in GroupCalculation, acc *OrderedSalesAccumulator) GroupOutcome {
	group := in.Group
	out := GroupOutcome{
		Quantities: make(map[string]float64, len(group.Rows)),
		MOQCarry:   make(map[string]float64),
		Converged:  true,
	}

	velocityRows := make([]*ProductCalculationRow, 0, len(group.Rows))
	for _, row := range group.Rows {
		resolveInheritance(row)

		switch row.Settings.Type {
		case CalculationTypeWarehouseMOQ:
			row.InitialQuantity = max(0, row.Settings.WarehouseMOQ-row.AvailableQuantity)
		case CalculationTypeNegativeAvailable:
			// 計算方式3は Available を参照する（AvailableQuantity ではない）
			row.InitialQuantity = max(0, -row.Available)
		case CalculationTypeNegativeWithReserved:
			row.InitialQuantity = max(0, -(row.AvailableQuantity + row.ReservedQuantity))
		default:
			c.project(row, in.ChildQuantities[row.ProductID], acc)
			row.InitialQuantity = row.StockNeeded
			velocityRows = append(velocityRows, row)
		}
		row.InitialQuantity = sanitize(row.InitialQuantity)
		row.OrderQuantity = row.InitialQuantity
	}

	if group.Kind != GroupIndividual && group.RemainingMOQ > 0 {
		out.Passes, out.Converged = c.balance(group, velocityRows, acc)
		if !out.Converged {
			c.logger.Debug("グループMOQに到達しませんでした",
				zap.String("group", group.Kind.String()),
				zap.String("key", group.Key),
				zap.Float64("remaining_moq", group.RemainingMOQ),
				zap.Int("passes", out.Passes),
			)
		}
	}

	for _, row := range group.Rows {
		carry := c.finalize(row, in)
		if carry > 0 {
			out.MOQCarry[row.ProductID] += carry
		}
		out.Quantities[row.ProductID] += row.OrderQuantity
		out.Total += row.OrderQuantity
	}

	return out
}

// resolveInheritance copies the parent product's settings into a type-0 row.
// A missing or itself-inheriting parent configuration falls back to the velocity forecast.
func resolveInheritance(row *ProductCalculationRow) {
	if row.Settings.Type != CalculationTypeInherit {
		return
	}
	if row.ParentSettings == nil || row.ParentSettings.Type == CalculationTypeInherit || !row.ParentSettings.Type.Valid() {
		row.Settings.Type = CalculationTypeVelocity
		return
	}
	row.Settings = *row.ParentSettings
}

// project runs the velocity forecast of one row up to stock-needed-between-orders.
// RemainingAfterFirst/Second arrive pre-credited with in-transit stock and are added to.
// 販売速度から次回・次々回入荷時点の残在庫と必要数を算出
func (c *VelocityCalculator) project(row *ProductCalculationRow, child float64, acc *OrderedSalesAccumulator) {
	sales := acc.Fold(row)

	days := row.DaysInStock
	if period := float64(row.Settings.PeriodDays); period > 0 && days > period {
		days = period
	}
	row.SalesPerDay = safeDiv(sales, days)

	row.RemainingStockDays = 0
	if row.AvailableQuantity > 0 {
		row.RemainingStockDays = safeDiv(row.AvailableQuantity, row.SalesPerDay)
	}

	row.SalesUntilFirstArrival = math.Round(row.SalesPerDay * float64(row.Window.FirstDays))
	row.RemainingAfterFirst += row.AvailableQuantity - row.SalesUntilFirstArrival

	row.SalesUntilSecondArrival = math.Round(row.SalesPerDay * float64(row.Window.SecondDays))
	row.RemainingAfterSecond += row.RemainingAfterFirst - row.SalesUntilSecondArrival

	child = max(0, sanitize(child))
	needed := child
	switch {
	case row.RemainingAfterSecond < 0:
		needed += ceilQuantity(-row.RemainingAfterSecond)
	case child > row.RemainingAfterSecond:
		// 余剰で子倉庫の不足分を賄えない部分のみ
		needed = child - row.RemainingAfterSecond
	default:
		needed = 0
	}

	if !row.BackorderAllowed && row.RemainingAfterFirst < 0 {
		needed += -row.RemainingAfterFirst
	}

	row.StockNeeded = sanitize(needed)
}

// balance spreads the group MOQ over its velocity rows by sales share and
// converges until the MOQ is met. It returns the number of convergence passes.
// グループMOQを販売構成比で配分し、MOQに達するまで収束計算する
func (c *VelocityCalculator) balance(group *ComputationGroup, rows []*ProductCalculationRow, acc *OrderedSalesAccumulator) (int, bool) {
	target := group.RemainingMOQ

	total := 0.0
	for _, row := range group.Rows {
		total += row.OrderQuantity
	}
	if len(rows) == 0 {
		return 0, total >= target
	}

	average := groupAverageSalesPerDay(rows)
	shares := salesShares(rows, acc)

	sufficiency := 1.0
	total += c.sellout(rows, shares, max(0, target-total), sufficiency)

	passes := 0
	for total < target && passes < c.config.MaxConvergencePasses {
		if average <= 0 {
			break
		}
		next := (target - total) / average
		if next <= 1 {
			break
		}
		sufficiency = next
		total += c.sellout(rows, shares, target-total, sufficiency)
		passes++
	}

	if total < target && passes > 0 && average > 0 {
		total += distributeShortfall(rows, shares, target-total)
	}

	return passes, total >= target
}

// sellout adds each row's share of the remaining MOQ, scaled by how soon the
// row sells out after the second arrival, and returns the quantity added.
func (c *VelocityCalculator) sellout(rows []*ProductCalculationRow, shares map[string]float64, remaining, sufficiency float64) float64 {
	added := 0.0
	for _, row := range rows {
		surplus := max(0, row.RemainingAfterSecond)

		proportion := math.Inf(1)
		if row.SalesPerDay > 0 && sufficiency > 0 {
			proportion = surplus / row.SalesPerDay / sufficiency
		}

		needed := remaining * shares[row.ProductID]
		quantity := 0.0
		if proportion < 1 {
			quantity = ceilQuantity((1 - proportion) * needed)
		}

		row.OrderQuantity += quantity
		added += quantity
	}
	return added
}

// distributeShortfall tops the group up to its MOQ by sales share
func distributeShortfall(rows []*ProductCalculationRow, shares map[string]float64, shortfall float64) float64 {
	added := 0.0
	for _, row := range rows {
		share := shares[row.ProductID]
		if share <= 0 {
			continue
		}
		quantity := ceilQuantity(shortfall * share)
		row.OrderQuantity += quantity
		added += quantity
	}
	return added
}

// finalize clamps, buffers, applies the MOQ/clustering floor and rounds one row.
// Below parent level the floor is not applied; the missing amount is returned
// as MOQ carry for the parent to reconcile.
// 最終調整（クランプ・バッファ・MOQ下限・切り上げ）
func (c *VelocityCalculator) finalize(row *ProductCalculationRow, in GroupCalculation) float64 {
	quantity := sanitize(row.OrderQuantity)

	if in.ParentLevel && row.Settings.BufferMultiplier > 0 {
		quantity = max(quantity, sanitize(row.InitialQuantity*row.Settings.BufferMultiplier))
	}

	floor := 0.0
	if row.Settings.Type == CalculationTypeVelocity && quantity > 0 {
		floor = max(row.Settings.WarehouseMOQ, row.ClusterMinimum, row.Settings.MinOrderCount)
		if in.Purchasing {
			floor = max(floor, row.SupplierMOQ)
		}
		// 末端倉庫の移動数は下限で膨らませず、差分を親倉庫で精算する
		if in.ParentLevel {
			quantity = max(quantity, floor)
		}
	}

	if !row.Divisible {
		quantity = ceilQuantity(quantity)
	}
	row.OrderQuantity = sanitize(quantity)

	if in.ParentLevel || floor <= row.OrderQuantity {
		return 0
	}
	carry := floor - row.OrderQuantity
	if !row.Divisible {
		carry = ceilQuantity(carry)
	}
	return sanitize(carry)
}

func groupAverageSalesPerDay(rows []*ProductCalculationRow) float64 {
	if len(rows) == 0 {
		return 0
	}
	sum := 0.0
	for _, row := range rows {
		sum += row.SalesPerDay
	}
	return sanitize(sum / float64(len(rows)))
}

// salesShares uses the accumulated network demand so a parent-level group
// reflects everything its children have already folded
func salesShares(rows []*ProductCalculationRow, acc *OrderedSalesAccumulator) map[string]float64 {
	shares := make(map[string]float64, len(rows))
	sum := 0.0
	for _, row := range rows {
		sum += acc.Total(row.ProductID)
	}
	if sum <= 0 {
		return shares
	}
	for _, row := range rows {
		shares[row.ProductID] = acc.Total(row.ProductID) / sum
	}
	return shares
}

// sanitize clamps negative, infinite and NaN values to zero
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// safeDiv returns 0 for a missing denominator
func safeDiv(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return sanitize(numerator / denominator)
}

func ceilQuantity(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Ceil(v - quantityEpsilon)
}
