// Package replenishment provides the hierarchical replenishment-quantity engine
package replenishment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CalculationType selects the replenishment formula for a product
// 商品ごとの補充計算方式
type CalculationType int

const (
	CalculationTypeInherit              CalculationType = 0 // 親商品の設定を継承
	CalculationTypeVelocity             CalculationType = 1 // 販売速度による予測
	CalculationTypeWarehouseMOQ         CalculationType = 2 // 倉庫MOQまで補充
	CalculationTypeNegativeAvailable    CalculationType = 3 // マイナス在庫を補填
	CalculationTypeNegativeWithReserved CalculationType = 4 // 予約込みのマイナス在庫を補填
)

func (t CalculationType) String() string {
	switch t {
	case CalculationTypeInherit:
		return "inherit"
	case CalculationTypeVelocity:
		return "velocity"
	case CalculationTypeWarehouseMOQ:
		return "warehouse_moq"
	case CalculationTypeNegativeAvailable:
		return "negative_available"
	case CalculationTypeNegativeWithReserved:
		return "negative_with_reserved"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the known calculation types
func (t CalculationType) Valid() bool {
	return t >= CalculationTypeInherit && t <= CalculationTypeNegativeWithReserved
}

// CalculationSettings is the per-warehouse replenishment configuration of a product
// 商品の倉庫別補充設定
type CalculationSettings struct {
	Type             CalculationType `json:"type" yaml:"type"`                           // 計算方式
	PeriodDays       int             `json:"period_days" yaml:"period_days"`             // 集計期間（日）
	MinOrderCount    float64         `json:"min_order_count" yaml:"min_order_count"`     // 最小発注数
	BufferMultiplier float64         `json:"buffer_multiplier" yaml:"buffer_multiplier"` // バッファ倍率
	WarehouseMOQ     float64         `json:"warehouse_moq" yaml:"warehouse_moq"`         // 倉庫MOQ
}

// ProductCalculationRow is one product's snapshot for one warehouse and period.
// The derived fields are scratch values written during a single run.
// 1商品×1倉庫の計算用スナップショット（派生フィールドは1回の実行中のみ有効）
type ProductCalculationRow struct {
	ProductID         string `json:"product_id" yaml:"product_id"`
	WarehouseID       string `json:"warehouse_id" yaml:"warehouse_id"`
	SupplierID        string `json:"supplier_id" yaml:"supplier_id"`
	ParentProductID   string `json:"parent_product_id,omitempty" yaml:"parent_product_id"`
	AttributeConfigID string `json:"attribute_config_id,omitempty" yaml:"attribute_config_id"`

	OnhandQuantity    float64 `json:"onhand_quantity" yaml:"onhand_quantity"`       // 実在庫
	AvailableQuantity float64 `json:"available_quantity" yaml:"available_quantity"` // 利用可能数量
	Available         float64 `json:"available" yaml:"available"`                   // 利用可能（計算方式3専用）
	ReservedQuantity  float64 `json:"reserved_quantity" yaml:"reserved_quantity"`   // 予約済み数量
	OrderedQuantity   float64 `json:"ordered_quantity" yaml:"ordered_quantity"`     // 発注済み数量
	ArrivingQuantity  float64 `json:"arriving_quantity" yaml:"arriving_quantity"`   // 入荷予定数量（日付不明）

	Settings       CalculationSettings  `json:"settings" yaml:"settings"`
	ParentSettings *CalculationSettings `json:"parent_settings,omitempty" yaml:"parent_settings"`

	ClusterMinimum   float64 `json:"cluster_minimum" yaml:"cluster_minimum"`     // クラスタリング推奨最小値
	Sales            float64 `json:"sales" yaml:"sales"`                         // 期間内販売数
	OrderedSales     float64 `json:"ordered_sales" yaml:"ordered_sales"`         // 未出荷の受注数
	DaysInStock      float64 `json:"days_in_stock" yaml:"days_in_stock"`         // 在庫日数
	Divisible        bool    `json:"divisible" yaml:"divisible"`                 // 小数発注可
	BackorderAllowed bool    `json:"backorder_allowed" yaml:"backorder_allowed"` // バックオーダー可

	SupplierMOQ        float64 `json:"supplier_moq" yaml:"supplier_moq"`                 // 仕入先の商品別MOQ
	AttributeConfigMOQ float64 `json:"attribute_config_moq" yaml:"attribute_config_moq"` // 属性構成グループMOQ
	ParentMOQ          float64 `json:"parent_moq" yaml:"parent_moq"`                     // 親商品グループMOQ
	LeadTimeDays       int     `json:"lead_time_days" yaml:"lead_time_days"`             // リードタイム上書き（0=仕入先設定）

	PackageSize  float64 `json:"package_size" yaml:"package_size"`   // 梱包入数
	PackagePrice float64 `json:"package_price" yaml:"package_price"` // 梱包単価
	UnitCost     float64 `json:"unit_cost" yaml:"unit_cost"`         // 単価

	// 派生フィールド
	Group                   GroupKind     `json:"group" yaml:"-"`
	SalesPerDay             float64       `json:"sales_per_day" yaml:"-"`
	RemainingStockDays      float64       `json:"remaining_stock_days" yaml:"-"`
	SalesUntilFirstArrival  float64       `json:"sales_until_first_arrival" yaml:"-"`
	RemainingAfterFirst     float64       `json:"remaining_after_first" yaml:"-"`
	SalesUntilSecondArrival float64       `json:"sales_until_second_arrival" yaml:"-"`
	RemainingAfterSecond    float64       `json:"remaining_after_second" yaml:"-"`
	StockNeeded             float64       `json:"stock_needed" yaml:"-"`
	InitialQuantity         float64       `json:"initial_quantity" yaml:"-"`
	OrderQuantity           float64       `json:"order_quantity" yaml:"-"`
	Window                  ArrivalWindow `json:"window" yaml:"-"`
}

// ArrivalWindow holds the day offsets of the next two replenishment arrivals.
// SecondDays is measured from the first arrival.
// 次回・次々回入荷までの日数
type ArrivalWindow struct {
	FirstDays     int       `json:"first_days"`
	SecondDays    int       `json:"second_days"`
	OrderDate     time.Time `json:"order_date"`
	FirstArrival  time.Time `json:"first_arrival"`
	SecondArrival time.Time `json:"second_arrival"`
}

// ScheduleSlot is a resolved order date and its delivery lead time
type ScheduleSlot struct {
	Date         time.Time `json:"date"`
	DeliveryDays int       `json:"delivery_days"`
}

// ScheduleKey identifies the supply calendar of a supplier for a warehouse
type ScheduleKey struct {
	SupplierID  string `json:"supplier_id" yaml:"supplier_id"`
	WarehouseID string `json:"warehouse_id" yaml:"warehouse_id"`
}

// GroupKind is the tag of a computation group
// 計算グループの種別
type GroupKind int

const (
	GroupIndividual      GroupKind = iota // 単品
	GroupAttributeConfig                  // 属性構成グループ
	GroupParentProduct                    // 親商品グループ
)

func (k GroupKind) String() string {
	switch k {
	case GroupIndividual:
		return "individual"
	case GroupAttributeConfig:
		return "attribute_config"
	case GroupParentProduct:
		return "parent_product"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON output
func (k GroupKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name written by MarshalText
func (k *GroupKind) UnmarshalText(text []byte) error {
	for _, candidate := range []GroupKind{GroupIndividual, GroupAttributeConfig, GroupParentProduct} {
		if candidate.String() == string(text) {
			*k = candidate
			return nil
		}
	}
	return NewValidationError("group", "未知のグループ種別です", string(text))
}

// ComputationGroup is a set of rows calculated together at one warehouse
// 同一倉庫でまとめて計算される行の集合
type ComputationGroup struct {
	Kind         GroupKind
	Key          string
	WarehouseID  string
	MOQ          float64 // グループMOQ
	RemainingMOQ float64 // 単品で確定済みの数量を差し引いた残りMOQ
	LeadTimeDays int
	Schedule     ScheduleKey
	Window       ArrivalWindow
	Rows         []*ProductCalculationRow
}

type groupKey struct {
	kind GroupKind
	key  string
}

// WarehouseNode is one entry of the hierarchy arena
// 倉庫階層のノード
type WarehouseNode struct {
	ID       string
	ParentID string
	Children []string
	Depth    int

	Individuals []*ComputationGroup
	Groups      []*ComputationGroup
	groupIndex  map[groupKey]*ComputationGroup

	// 計算後の商品別結果
	PurchaseData map[string]*ProductCalculationRow
}

// IsRoot reports whether the node is the purchasing warehouse
func (n *WarehouseNode) IsRoot() bool {
	return n.ParentID == ""
}

// HierarchyTree is the adjacency list supplied by a WarehouseHierarchyProvider
// 倉庫階層の隣接リスト
type HierarchyTree struct {
	RootID   string              `json:"root_id" yaml:"root_id"`
	Children map[string][]string `json:"children" yaml:"children"`
}

// ArrivingProduct is a quantity already in transit to a warehouse
// 入荷予定の商品
type ArrivingProduct struct {
	ProductID   string    `json:"product_id" yaml:"product_id" db:"product_id"`
	ArrivalDate time.Time `json:"arrival_date" yaml:"arrival_date" db:"arrival_date"`
	Quantity    float64   `json:"quantity" yaml:"quantity" db:"quantity"`
}

// RowQuery selects the calculation rows of one run
type RowQuery struct {
	SupplierID   string
	WarehouseIDs []string
	PeriodDays   int
}

// RunRequest describes one supplier/warehouse/period replenishment run
// 1回の補充計算の要求
type RunRequest struct {
	OrderID     string    `json:"order_id"`     // 発注書ID（空の場合は自動採番）
	SupplierID  string    `json:"supplier_id"`  // 仕入先ID
	WarehouseID string    `json:"warehouse_id"` // 発注元（ルート）倉庫ID
	PeriodDays  int       `json:"period_days"`  // 販売集計期間
	Now         time.Time `json:"now"`          // 基準日（ゼロ値の場合は現在時刻）
}

// PurchaseLine is one purchase or transfer order line handed to the writer
// 発注明細
type PurchaseLine struct {
	OrderID     string            `json:"order_id" db:"order_id"`
	ProductID   string            `json:"product_id" db:"product_id"`
	Quantity    float64           `json:"quantity" db:"quantity"`
	Packages    float64           `json:"packages" db:"packages"`
	UnitPrice   decimal.Decimal   `json:"unit_price" db:"unit_price"`
	TotalPrice  decimal.Decimal   `json:"total_price" db:"total_price"`
	ArrivalDate time.Time         `json:"arrival_date" db:"arrival_date"`
	Attributes  map[string]string `json:"attributes" db:"-"`
}

// GroupSummary reports how a computation group was balanced
type GroupSummary struct {
	Kind        GroupKind `json:"kind"`
	Key         string    `json:"key"`
	WarehouseID string    `json:"warehouse_id"`
	MOQ         float64   `json:"moq"`
	Total       float64   `json:"total"`
	Passes      int       `json:"passes"`
	Converged   bool      `json:"converged"`
}

// Plan is the outcome of one run
// 補充計算の結果
type Plan struct {
	RunID         string                        `json:"run_id"`
	OrderID       string                        `json:"order_id"`
	SupplierID    string                        `json:"supplier_id"`
	WarehouseID   string                        `json:"warehouse_id"`
	GeneratedAt   time.Time                     `json:"generated_at"`
	Quantities    map[string]float64            `json:"quantities"` // ルート倉庫の商品別発注数
	Transfers     map[string]map[string]float64 `json:"transfers"`  // 子倉庫の商品別移動数
	ChildMOQCarry map[string]map[string]float64 `json:"child_moq_carry"`
	Groups        []GroupSummary                `json:"groups"`
	Rows          []*ProductCalculationRow      `json:"rows"`
	Lines         []PurchaseLine                `json:"lines"`
}

// NewRunID generates a new run ID
// 新しい実行IDを生成
func NewRunID() string {
	return uuid.New().String()
}

// NewOrderID generates a purchase order ID for runs without one
func NewOrderID() string {
	return "PO-" + uuid.New().String()
}
