// Package storage implements the replenishment collaborators on PostgreSQL
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nemonet1337/zaiReplenish/pkg/replenishment"
	"github.com/nemonet1337/zaiReplenish/pkg/schedule"
)

// DefaultMaxDepth bounds the recursive hierarchy query
const DefaultMaxDepth = 64

// PostgreSQLStorage implements every replenishment collaborator using PostgreSQL
// PostgreSQLを使用した補充計算ストレージ
type PostgreSQLStorage struct {
	db       *sqlx.DB
	logger   *zap.Logger
	maxDepth int
}

// インターフェースを実装することを明示
var (
	_ replenishment.RowSource                  = (*PostgreSQLStorage)(nil)
	_ replenishment.WarehouseHierarchyProvider = (*PostgreSQLStorage)(nil)
	_ replenishment.ArrivingProductsProvider   = (*PostgreSQLStorage)(nil)
	_ replenishment.ScheduleSource             = (*PostgreSQLStorage)(nil)
	_ replenishment.TransactionalWriter        = (*PostgreSQLStorage)(nil)
)

// Options tunes the connection pool
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MaxDepth        int
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
// 新しいPostgreSQLストレージインスタンスを作成
func NewPostgreSQLStorage(ctx context.Context, dsn string, opts Options, logger *zap.Logger) (*PostgreSQLStorage, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	// 接続プール設定
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	s := NewFromDB(db, logger)
	if opts.MaxDepth > 0 {
		s.maxDepth = opts.MaxDepth
	}
	return s, nil
}

// NewFromDB wraps an existing connection
func NewFromDB(db *sqlx.DB, logger *zap.Logger) *PostgreSQLStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgreSQLStorage{db: db, logger: logger, maxDepth: DefaultMaxDepth}
}

// Dependencies returns the storage wired as every collaborator of a Manager
func (s *PostgreSQLStorage) Dependencies() replenishment.Dependencies {
	return replenishment.Dependencies{
		Rows:      s,
		Hierarchy: s,
		Arriving:  s,
		Schedules: s,
		Writer:    s,
	}
}

// calculationRecord is the column layout of calculation_rows
type calculationRecord struct {
	ProductID         string `db:"product_id"`
	WarehouseID       string `db:"warehouse_id"`
	SupplierID        string `db:"supplier_id"`
	ParentProductID   string `db:"parent_product_id"`
	AttributeConfigID string `db:"attribute_config_id"`

	OnhandQuantity    float64 `db:"onhand_quantity"`
	AvailableQuantity float64 `db:"available_quantity"`
	Available         float64 `db:"available"`
	ReservedQuantity  float64 `db:"reserved_quantity"`
	OrderedQuantity   float64 `db:"ordered_quantity"`
	ArrivingQuantity  float64 `db:"arriving_quantity"`

	CalcType         int     `db:"calc_type"`
	PeriodDays       int     `db:"period_days"`
	MinOrderCount    float64 `db:"min_order_count"`
	BufferMultiplier float64 `db:"buffer_multiplier"`
	WarehouseMOQ     float64 `db:"warehouse_moq"`

	ParentCalcType         sql.NullInt32   `db:"parent_calc_type"`
	ParentPeriodDays       sql.NullInt32   `db:"parent_period_days"`
	ParentMinOrderCount    sql.NullFloat64 `db:"parent_min_order_count"`
	ParentBufferMultiplier sql.NullFloat64 `db:"parent_buffer_multiplier"`
	ParentWarehouseMOQ     sql.NullFloat64 `db:"parent_warehouse_moq"`

	ClusterMinimum   float64 `db:"cluster_minimum"`
	Sales            float64 `db:"sales"`
	OrderedSales     float64 `db:"ordered_sales"`
	DaysInStock      float64 `db:"days_in_stock"`
	Divisible        bool    `db:"divisible"`
	BackorderAllowed bool    `db:"backorder_allowed"`

	SupplierMOQ        float64 `db:"supplier_moq"`
	AttributeConfigMOQ float64 `db:"attribute_config_moq"`
	ParentMOQ          float64 `db:"parent_moq"`
	LeadTimeDays       int     `db:"lead_time_days"`

	PackageSize  float64 `db:"package_size"`
	PackagePrice float64 `db:"package_price"`
	UnitCost     float64 `db:"unit_cost"`

	UpdatedAt time.Time `db:"updated_at"`
}

func (r calculationRecord) toRow() replenishment.ProductCalculationRow {
	row := replenishment.ProductCalculationRow{
		ProductID:         r.ProductID,
		WarehouseID:       r.WarehouseID,
		SupplierID:        r.SupplierID,
		ParentProductID:   r.ParentProductID,
		AttributeConfigID: r.AttributeConfigID,
		OnhandQuantity:    r.OnhandQuantity,
		AvailableQuantity: r.AvailableQuantity,
		Available:         r.Available,
		ReservedQuantity:  r.ReservedQuantity,
		OrderedQuantity:   r.OrderedQuantity,
		ArrivingQuantity:  r.ArrivingQuantity,
		Settings: replenishment.CalculationSettings{
			Type:             replenishment.CalculationType(r.CalcType),
			PeriodDays:       r.PeriodDays,
			MinOrderCount:    r.MinOrderCount,
			BufferMultiplier: r.BufferMultiplier,
			WarehouseMOQ:     r.WarehouseMOQ,
		},
		ClusterMinimum:     r.ClusterMinimum,
		Sales:              r.Sales,
		OrderedSales:       r.OrderedSales,
		DaysInStock:        r.DaysInStock,
		Divisible:          r.Divisible,
		BackorderAllowed:   r.BackorderAllowed,
		SupplierMOQ:        r.SupplierMOQ,
		AttributeConfigMOQ: r.AttributeConfigMOQ,
		ParentMOQ:          r.ParentMOQ,
		LeadTimeDays:       r.LeadTimeDays,
		PackageSize:        r.PackageSize,
		PackagePrice:       r.PackagePrice,
		UnitCost:           r.UnitCost,
	}

	// 親倉庫設定は計算方式がある場合のみ
	if r.ParentCalcType.Valid {
		row.ParentSettings = &replenishment.CalculationSettings{
			Type:             replenishment.CalculationType(r.ParentCalcType.Int32),
			PeriodDays:       int(r.ParentPeriodDays.Int32),
			MinOrderCount:    r.ParentMinOrderCount.Float64,
			BufferMultiplier: r.ParentBufferMultiplier.Float64,
			WarehouseMOQ:     r.ParentWarehouseMOQ.Float64,
		}
	}
	return row
}

// ListCalculationRows retrieves the snapshot rows of a run
// 実行対象の計算行を取得
func (s *PostgreSQLStorage) ListCalculationRows(ctx context.Context, q replenishment.RowQuery) ([]replenishment.ProductCalculationRow, error) {
	query := `
		SELECT *
		FROM calculation_rows
		WHERE warehouse_id = ANY($1)
		  AND (supplier_id = $2 OR supplier_id = '')
		  AND ($3 = 0 OR period_days IN (0, $3))
		ORDER BY warehouse_id, product_id`

	var records []calculationRecord
	if err := s.db.SelectContext(ctx, &records, query, pq.Array(q.WarehouseIDs), q.SupplierID, q.PeriodDays); err != nil {
		return nil, fmt.Errorf("計算行の取得に失敗しました: %w", err)
	}

	rows := make([]replenishment.ProductCalculationRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, r.toRow())
	}

	s.logger.Debug("計算行取得",
		zap.String("supplier_id", q.SupplierID),
		zap.Int("warehouses", len(q.WarehouseIDs)),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// hierarchyEdge is one row of the recursive hierarchy query
type hierarchyEdge struct {
	ID       string `db:"id"`
	ParentID string `db:"parent_id"`
	Depth    int    `db:"depth"`
	Cycle    bool   `db:"cycle"`
}

// GetHierarchy walks the warehouses table downward from warehouseID
// 倉庫階層を再帰クエリで取得
func (s *PostgreSQLStorage) GetHierarchy(ctx context.Context, warehouseID string) (*replenishment.HierarchyTree, []string, error) {
	query := `
		WITH RECURSIVE tree AS (
			SELECT id, COALESCE(parent_id, '') AS parent_id, 0 AS depth, ARRAY[id]::VARCHAR[] AS path, FALSE AS cycle
			FROM warehouses
			WHERE id = $1
			UNION ALL
			SELECT w.id, w.parent_id, t.depth + 1, t.path || w.id, w.id = ANY(t.path)
			FROM warehouses w
			JOIN tree t ON w.parent_id = t.id
			WHERE NOT t.cycle AND t.depth < $2
		)
		SELECT id, parent_id, depth, cycle FROM tree ORDER BY depth, id`

	var edges []hierarchyEdge
	if err := s.db.SelectContext(ctx, &edges, query, warehouseID, s.maxDepth); err != nil {
		return nil, nil, fmt.Errorf("倉庫階層の取得に失敗しました: %w", err)
	}
	return treeFromEdges(warehouseID, edges, s.maxDepth)
}

// treeFromEdges converts the query rows into an adjacency list. Edges that
// close a cycle are kept so BuildHierarchy can report them.
func treeFromEdges(rootID string, edges []hierarchyEdge, maxDepth int) (*replenishment.HierarchyTree, []string, error) {
	if len(edges) == 0 {
		return nil, nil, replenishment.ErrWarehouseNotFound
	}

	tree := &replenishment.HierarchyTree{
		RootID:   rootID,
		Children: make(map[string][]string),
	}
	flat := make([]string, 0, len(edges))
	seen := make(map[string]bool, len(edges))
	for _, e := range edges {
		if e.Depth > 0 {
			tree.Children[e.ParentID] = append(tree.Children[e.ParentID], e.ID)
		}
		if e.Depth >= maxDepth && !e.Cycle {
			return nil, nil, replenishment.NewHierarchyError(replenishment.HierarchyReasonCycle, e.ID,
				fmt.Sprintf("倉庫階層が上限 %d 段を超えています", maxDepth))
		}
		if !seen[e.ID] {
			seen[e.ID] = true
			flat = append(flat, e.ID)
		}
	}
	return tree, flat, nil
}

// GetArrivingProducts retrieves in-transit stock of a warehouse
// 倉庫の入荷予定を取得
func (s *PostgreSQLStorage) GetArrivingProducts(ctx context.Context, warehouseID string) ([]replenishment.ArrivingProduct, error) {
	query := `
		SELECT product_id, arrival_date, quantity
		FROM arriving_products
		WHERE warehouse_id = $1 AND quantity > 0
		ORDER BY arrival_date, product_id`

	var products []replenishment.ArrivingProduct
	if err := s.db.SelectContext(ctx, &products, query, warehouseID); err != nil {
		return nil, fmt.Errorf("入荷予定の取得に失敗しました: %w", err)
	}
	return products, nil
}

// scheduleRecord is the column layout of supplier_schedules
type scheduleRecord struct {
	SupplierID    string         `db:"supplier_id"`
	WarehouseID   string         `db:"warehouse_id"`
	Frequency     string         `db:"frequency"`
	Weekdays      pq.StringArray `db:"weekdays"`
	IntervalWeeks int            `db:"interval_weeks"`
	AnchorDate    string         `db:"anchor_date"`
	MonthDays     pq.Int64Array  `db:"month_days"`
	DeliveryDays  int            `db:"delivery_days"`
	WorkingDays   pq.StringArray `db:"working_days"`
	Holidays      pq.StringArray `db:"holidays"`
	HorizonDays   int            `db:"horizon_days"`
}

func (r scheduleRecord) definition() schedule.Definition {
	monthDays := make([]int, 0, len(r.MonthDays))
	for _, d := range r.MonthDays {
		monthDays = append(monthDays, int(d))
	}
	return schedule.Definition{
		Frequency:     schedule.Frequency(r.Frequency),
		Weekdays:      r.Weekdays,
		IntervalWeeks: r.IntervalWeeks,
		AnchorDate:    r.AnchorDate,
		MonthDays:     monthDays,
		DeliveryDays:  r.DeliveryDays,
		WorkingDays:   r.WorkingDays,
		Holidays:      r.Holidays,
		HorizonDays:   r.HorizonDays,
	}
}

// ScheduleFor loads the supplier calendar of a warehouse, falling back to the
// supplier-wide row stored with an empty warehouse id
// 仕入先カレンダーを取得
func (s *PostgreSQLStorage) ScheduleFor(ctx context.Context, key replenishment.ScheduleKey) (replenishment.SupplyScheduleResolver, error) {
	query := `
		SELECT supplier_id, warehouse_id, frequency, weekdays, interval_weeks, anchor_date,
		       month_days, delivery_days, working_days, holidays, horizon_days
		FROM supplier_schedules
		WHERE supplier_id = $1 AND warehouse_id IN ($2, '')
		ORDER BY warehouse_id DESC
		LIMIT 1`

	var record scheduleRecord
	if err := s.db.GetContext(ctx, &record, query, key.SupplierID, key.WarehouseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, replenishment.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("仕入先カレンダーの取得に失敗しました: %w", err)
	}
	return schedule.FromDefinition(record.definition())
}

// Write inserts one purchase line outside a transaction
// 発注明細を登録
func (s *PostgreSQLStorage) Write(ctx context.Context, line replenishment.PurchaseLine) error {
	return insertLine(ctx, s.db, line)
}

// WithinTransaction runs fn against a transaction and commits only when fn succeeds
// トランザクション内で発注明細を登録
func (s *PostgreSQLStorage) WithinTransaction(ctx context.Context, fn func(w replenishment.ReplenishmentWriter) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗しました: %w", err)
	}

	if err := fn(&txWriter{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("ロールバックに失敗しました", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションコミットに失敗しました: %w", err)
	}
	return nil
}

type txWriter struct {
	tx *sqlx.Tx
}

func (w *txWriter) Write(ctx context.Context, line replenishment.PurchaseLine) error {
	return insertLine(ctx, w.tx, line)
}

func insertLine(ctx context.Context, exec sqlx.ExecerContext, line replenishment.PurchaseLine) error {
	attributes, err := json.Marshal(line.Attributes)
	if err != nil {
		return fmt.Errorf("属性のJSON変換に失敗しました: %w", err)
	}

	var arrival sql.NullTime
	if !line.ArrivalDate.IsZero() {
		arrival = sql.NullTime{Time: line.ArrivalDate, Valid: true}
	}

	query := `
		INSERT INTO purchase_order_lines (id, order_id, product_id, quantity, packages, unit_price, total_price, arrival_date, attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = exec.ExecContext(ctx, query,
		uuid.New(),
		line.OrderID,
		line.ProductID,
		line.Quantity,
		line.Packages,
		line.UnitPrice,
		line.TotalPrice,
		arrival,
		attributes,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("発注明細は既に存在します: 発注書 %s 商品 %s", line.OrderID, line.ProductID)
		}
		return fmt.Errorf("発注明細の登録に失敗しました: %w", err)
	}
	return nil
}

// lineRecord is the column layout of purchase_order_lines
type lineRecord struct {
	ID          string          `db:"id"`
	OrderID     string          `db:"order_id"`
	ProductID   string          `db:"product_id"`
	Quantity    float64         `db:"quantity"`
	Packages    float64         `db:"packages"`
	UnitPrice   decimal.Decimal `db:"unit_price"`
	TotalPrice  decimal.Decimal `db:"total_price"`
	ArrivalDate sql.NullTime    `db:"arrival_date"`
	Attributes  []byte          `db:"attributes"`
	CreatedAt   time.Time       `db:"created_at"`
}

func (r lineRecord) toLine() (replenishment.PurchaseLine, error) {
	line := replenishment.PurchaseLine{
		OrderID:    r.OrderID,
		ProductID:  r.ProductID,
		Quantity:   r.Quantity,
		Packages:   r.Packages,
		UnitPrice:  r.UnitPrice,
		TotalPrice: r.TotalPrice,
	}
	if r.ArrivalDate.Valid {
		line.ArrivalDate = r.ArrivalDate.Time
	}
	if len(r.Attributes) > 0 {
		if err := json.Unmarshal(r.Attributes, &line.Attributes); err != nil {
			return line, fmt.Errorf("属性のJSON解析に失敗しました: %w", err)
		}
	}
	return line, nil
}

// ListLines retrieves the written lines of a purchase order
// 発注書の明細を取得
func (s *PostgreSQLStorage) ListLines(ctx context.Context, orderID string) ([]replenishment.PurchaseLine, error) {
	query := `
		SELECT id, order_id, product_id, quantity, packages, unit_price, total_price, arrival_date, attributes, created_at
		FROM purchase_order_lines
		WHERE order_id = $1
		ORDER BY product_id`

	var records []lineRecord
	if err := s.db.SelectContext(ctx, &records, query, orderID); err != nil {
		return nil, fmt.Errorf("発注明細の取得に失敗しました: %w", err)
	}

	lines := make([]replenishment.PurchaseLine, 0, len(records))
	for _, r := range records {
		line, err := r.toLine()
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Ping checks database connectivity
// データベース接続をチェック
func (s *PostgreSQLStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
// データベース接続を閉じる
func (s *PostgreSQLStorage) Close() error {
	return s.db.Close()
}
