package replenishment

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// 英数字、ハイフン、アンダースコア、ドット、スラッシュのみ許可
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_./-]+$`)

const maxIDLength = 255

func validateID(field, label, id string) error {
	if strings.TrimSpace(id) == "" {
		return NewValidationError(field, label+"が空です", id)
	}
	if len(id) > maxIDLength {
		return NewValidationError(field, label+"が長すぎます", id)
	}
	if !idPattern.MatchString(id) {
		return NewValidationError(field, label+"に無効な文字が含まれています", id)
	}
	return nil
}

// ValidateWarehouseID 倉庫IDの形式をバリデーション
func ValidateWarehouseID(warehouseID string) error {
	return validateID("warehouse_id", "倉庫ID", warehouseID)
}

// ValidateProductID 商品IDの形式をバリデーション
func ValidateProductID(productID string) error {
	return validateID("product_id", "商品ID", productID)
}

// ValidateSupplierID 仕入先IDの形式をバリデーション
func ValidateSupplierID(supplierID string) error {
	return validateID("supplier_id", "仕入先ID", supplierID)
}

// ValidateCalculationType 計算方式をバリデーション
func ValidateCalculationType(t CalculationType) error {
	if !t.Valid() {
		return NewValidationError("calculation_type", "未知の計算方式です", fmt.Sprintf("%d", int(t)))
	}
	return nil
}

// ValidateSettings 補充設定をバリデーション
func ValidateSettings(field string, s *CalculationSettings) error {
	if s == nil {
		return nil
	}
	if !s.Type.Valid() {
		return NewValidationError(field+".type", "未知の計算方式です", fmt.Sprintf("%d", int(s.Type)))
	}
	if s.PeriodDays < 0 {
		return NewValidationError(field+".period_days", "集計期間は0以上である必要があります", fmt.Sprintf("%d", s.PeriodDays))
	}
	if err := validateNonNegative(field+".min_order_count", s.MinOrderCount); err != nil {
		return err
	}
	if err := validateNonNegative(field+".buffer_multiplier", s.BufferMultiplier); err != nil {
		return err
	}
	return validateNonNegative(field+".warehouse_moq", s.WarehouseMOQ)
}

func validateNonNegative(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NewValidationError(field, "数値が有限ではありません", fmt.Sprintf("%v", v))
	}
	if v < 0 {
		return NewValidationError(field, "負の値は許可されていません", fmt.Sprintf("%v", v))
	}
	return nil
}

// ValidateRow 計算行全体をバリデーション
func ValidateRow(row *ProductCalculationRow) error {
	if row == nil {
		return NewValidationError("row", "計算行が指定されていません", "nil")
	}
	if err := ValidateProductID(row.ProductID); err != nil {
		return err
	}
	if err := ValidateWarehouseID(row.WarehouseID); err != nil {
		return err
	}
	if err := ValidateSettings("settings", &row.Settings); err != nil {
		return err
	}
	if err := ValidateSettings("parent_settings", row.ParentSettings); err != nil {
		return err
	}

	nonNegative := []struct {
		field string
		value float64
	}{
		{"supplier_moq", row.SupplierMOQ},
		{"attribute_config_moq", row.AttributeConfigMOQ},
		{"parent_moq", row.ParentMOQ},
		{"cluster_minimum", row.ClusterMinimum},
		{"days_in_stock", row.DaysInStock},
		{"package_size", row.PackageSize},
		{"package_price", row.PackagePrice},
		{"unit_cost", row.UnitCost},
	}
	for _, f := range nonNegative {
		if err := validateNonNegative(f.field, f.value); err != nil {
			return err
		}
	}
	// 分割不可の商品は梱包単位も整数でなければ端数の発注数になる
	if !row.Divisible && row.PackageSize > 0 && math.Abs(row.PackageSize-math.Round(row.PackageSize)) > quantityEpsilon {
		return NewValidationError("package_size", "分割不可の商品の梱包単位は整数である必要があります", fmt.Sprintf("%v", row.PackageSize))
	}
	if row.LeadTimeDays < 0 {
		return NewValidationError("lead_time_days", "リードタイムは0以上である必要があります", fmt.Sprintf("%d", row.LeadTimeDays))
	}
	return nil
}

// ValidateRunRequest 実行要求をバリデーション
func ValidateRunRequest(req RunRequest) error {
	if err := ValidateSupplierID(req.SupplierID); err != nil {
		return err
	}
	if err := ValidateWarehouseID(req.WarehouseID); err != nil {
		return err
	}
	if req.PeriodDays < 0 {
		return NewValidationError("period_days", "集計期間は0以上である必要があります", fmt.Sprintf("%d", req.PeriodDays))
	}
	if req.OrderID != "" && len(req.OrderID) > maxIDLength {
		return NewValidationError("order_id", "発注書IDが長すぎます", req.OrderID)
	}
	return nil
}
