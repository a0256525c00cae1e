package replenishment

import (
	"context"
	"time"
)

// Planner defines the entry points of the replenishment engine
// 補充計算エンジンのインターフェースを定義
type Planner interface {
	// 計算のみ（書き込みなし）
	Plan(ctx context.Context, req RunRequest) (*Plan, error)
	// 計算して発注明細を書き込む
	Run(ctx context.Context, req RunRequest) (*Plan, error)
	// 独立した複数の実行を並行処理
	RunAll(ctx context.Context, reqs []RunRequest) ([]*Plan, error)
}

// SupplyScheduleResolver returns the next valid order date on or after from.
// Implementations cover the on-demand, weekly and monthly supplier calendars.
// 仕入先カレンダーから次回発注日とリードタイムを求める
type SupplyScheduleResolver interface {
	NextOrderDate(ctx context.Context, from time.Time) (ScheduleSlot, error)
}

// ScheduleSource looks up the supply calendar of a supplier for a warehouse
type ScheduleSource interface {
	ScheduleFor(ctx context.Context, key ScheduleKey) (SupplyScheduleResolver, error)
}

// WarehouseHierarchyProvider returns the hierarchy rooted at warehouseID and the flat id set
// 倉庫階層と倉庫IDの一覧を返す
type WarehouseHierarchyProvider interface {
	GetHierarchy(ctx context.Context, warehouseID string) (*HierarchyTree, []string, error)
}

// ArrivingProductsProvider lists goods in transit to a warehouse
// 入荷予定商品を返す
type ArrivingProductsProvider interface {
	GetArrivingProducts(ctx context.Context, warehouseID string) ([]ArrivingProduct, error)
}

// RowSource loads the pre-joined calculation rows of a run
// 計算用の結合済み行を読み込む
type RowSource interface {
	ListCalculationRows(ctx context.Context, q RowQuery) ([]ProductCalculationRow, error)
}

// ReplenishmentWriter persists one order line
// 発注明細を永続化する
type ReplenishmentWriter interface {
	Write(ctx context.Context, line PurchaseLine) error
}

// TransactionalWriter is implemented by writers that can commit all lines of a run at once
// 1回の実行の明細をまとめてコミットできるライター
type TransactionalWriter interface {
	WithinTransaction(ctx context.Context, fn func(w ReplenishmentWriter) error) error
}

// Dependencies bundles the collaborators of a Manager
type Dependencies struct {
	Rows      RowSource
	Hierarchy WarehouseHierarchyProvider
	Arriving  ArrivingProductsProvider
	Schedules ScheduleSource
	Writer    ReplenishmentWriter
}
