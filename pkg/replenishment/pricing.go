package replenishment

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const (
	unitPricePlaces  = 4
	totalPricePlaces = 2
)

// BuildPurchaseLine converts a final row into a writer line. The quantity is
// rounded up to whole packages when a package size is known and the unit price
// is recomputed from the total package price. ok is false for a zero quantity.
// 確定した行から発注明細を作成（梱包単位へ切り上げ、単価を再計算）
func BuildPurchaseLine(orderID string, row *ProductCalculationRow, arrival time.Time) (PurchaseLine, bool) {
	quantity := sanitize(row.OrderQuantity)
	if quantity <= 0 {
		return PurchaseLine{}, false
	}

	packages := 0.0
	if row.PackageSize > 0 {
		packages = math.Ceil(quantity/row.PackageSize - quantityEpsilon)
		quantity = packages * row.PackageSize
		if !row.Divisible && quantity != math.Floor(quantity) {
			// 分割不可の商品は整数個に切り上げ、梱包数を取り直す
			quantity = ceilQuantity(quantity)
			packages = math.Ceil(quantity/row.PackageSize - quantityEpsilon)
		}
	}

	var total decimal.Decimal
	switch {
	case packages > 0 && row.PackagePrice > 0:
		total = decimal.NewFromFloat(row.PackagePrice).Mul(decimal.NewFromFloat(packages))
	default:
		total = decimal.NewFromFloat(row.UnitCost).Mul(decimal.NewFromFloat(quantity))
	}

	unit := decimal.Zero
	if qty := decimal.NewFromFloat(quantity); !qty.IsZero() {
		unit = total.Div(qty)
	}

	return PurchaseLine{
		OrderID:     orderID,
		ProductID:   row.ProductID,
		Quantity:    quantity,
		Packages:    packages,
		UnitPrice:   unit.Round(unitPricePlaces),
		TotalPrice:  total.Round(totalPricePlaces),
		ArrivalDate: arrival,
		Attributes:  lineAttributes(row),
	}, true
}

func lineAttributes(row *ProductCalculationRow) map[string]string {
	attrs := map[string]string{
		"warehouse_id":     row.WarehouseID,
		"calculation_type": row.Settings.Type.String(),
		"group":            row.Group.String(),
	}
	if row.ParentProductID != "" {
		attrs["parent_product_id"] = row.ParentProductID
	}
	if row.AttributeConfigID != "" {
		attrs["attribute_config_id"] = row.AttributeConfigID
	}
	return attrs
}
