package replenishment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Manager implements the Planner interface
// Plannerインターフェースの実装
type Manager struct {
	deps         Dependencies     // 外部コラボレーター
	logger       *zap.Logger      // ログ
	config       *Config          // 設定
	metrics      *Metrics         // メトリクス（nil可）
	orchestrator *Orchestrator    // 階層計算
	now          func() time.Time // 基準時刻
}

// インターフェースを実装することを明示
var _ Planner = (*Manager)(nil)

// Config holds configuration for the replenishment manager
// 補充計算マネージャーの設定を保持
type Config struct {
	MaxConvergencePasses int `yaml:"max_convergence_passes"` // MOQ収束計算の上限回数
	RunConcurrency       int `yaml:"run_concurrency"`        // RunAllの同時実行数
	DefaultPeriodDays    int `yaml:"default_period_days"`    // 集計期間の既定値
}

// DefaultConfig returns the default manager configuration
// 既定の設定を返す
func DefaultConfig() *Config {
	return &Config{
		MaxConvergencePasses: 64,
		RunConcurrency:       4,
		DefaultPeriodDays:    30,
	}
}

// NewManager creates a new replenishment manager
// 新しい補充計算マネージャーを作成
func NewManager(deps Dependencies, logger *zap.Logger, config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	} else {
		// 呼び出し元の設定は書き換えない
		copied := *config
		config = &copied
	}
	if config.MaxConvergencePasses <= 0 {
		config.MaxConvergencePasses = DefaultConfig().MaxConvergencePasses
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	calculator := NewVelocityCalculator(config, logger)
	return &Manager{
		deps:         deps,
		logger:       logger,
		config:       config,
		orchestrator: NewOrchestrator(calculator, logger),
		now:          time.Now,
	}
}

// WithMetrics attaches Prometheus collectors
func (m *Manager) WithMetrics(metrics *Metrics) *Manager {
	m.metrics = metrics
	return m
}

// WithClock replaces the clock used when a request has no reference date
func (m *Manager) WithClock(now func() time.Time) *Manager {
	if now != nil {
		m.now = now
	}
	return m
}

// Plan computes the replenishment plan of one run without writing anything
// 補充数を計算（書き込みなし）
func (m *Manager) Plan(ctx context.Context, req RunRequest) (*Plan, error) {
	start := time.Now()
	plan, err := m.plan(ctx, req)
	if err != nil {
		m.fail(req, "plan", start, err)
		return nil, err
	}
	m.metrics.observeRun("planned", time.Since(start))
	return plan, nil
}

// Run computes the plan and hands every root line to the writer.
// Nothing is written when any step fails.
// 補充数を計算して発注明細を書き込む
func (m *Manager) Run(ctx context.Context, req RunRequest) (*Plan, error) {
	start := time.Now()
	plan, err := m.plan(ctx, req)
	if err != nil {
		m.fail(req, "run", start, err)
		return nil, err
	}

	if err := m.write(ctx, plan); err != nil {
		m.fail(req, "write", start, err)
		return nil, err
	}

	m.metrics.observeRun("written", time.Since(start))
	m.metrics.addLines(len(plan.Lines))
	m.logger.Info("発注明細書き込み完了",
		zap.String("run_id", plan.RunID),
		zap.String("order_id", plan.OrderID),
		zap.Int("lines", len(plan.Lines)),
	)
	return plan, nil
}

// RunAll executes independent runs concurrently. Each run owns its own
// hierarchy, arriving-stock index and accumulators.
// 独立した複数の実行を並行処理
func (m *Manager) RunAll(ctx context.Context, reqs []RunRequest) ([]*Plan, error) {
	plans := make([]*Plan, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	if m.config.RunConcurrency > 0 {
		g.SetLimit(m.config.RunConcurrency)
	}
	for i, req := range reqs {
		g.Go(func() error {
			plan, err := m.Run(gctx, req)
			if err != nil {
				return fmt.Errorf("仕入先 %s / 倉庫 %s: %w", req.SupplierID, req.WarehouseID, err)
			}
			plans[i] = plan
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return plans, err
	}
	return plans, nil
}

func (m *Manager) plan(ctx context.Context, req RunRequest) (*Plan, error) {
	if err := ValidateRunRequest(req); err != nil {
		return nil, err
	}
	if m.deps.Rows == nil || m.deps.Hierarchy == nil || m.deps.Schedules == nil {
		return nil, errors.New("補充計算の依存関係が設定されていません")
	}

	now := req.Now
	if now.IsZero() {
		now = m.now()
	}
	periodDays := req.PeriodDays
	if periodDays == 0 {
		periodDays = m.config.DefaultPeriodDays
	}

	m.logger.Info("補充計算開始",
		zap.String("supplier_id", req.SupplierID),
		zap.String("warehouse_id", req.WarehouseID),
		zap.Int("period_days", periodDays),
		zap.Time("now", now),
	)

	hierarchy, err := m.loadHierarchy(ctx, req.WarehouseID)
	if err != nil {
		return nil, err
	}

	arriving, err := m.loadArriving(ctx, hierarchy, now)
	if err != nil {
		return nil, err
	}

	rows, err := m.deps.Rows.ListCalculationRows(ctx, RowQuery{
		SupplierID:   req.SupplierID,
		WarehouseIDs: hierarchy.IDs(),
		PeriodDays:   periodDays,
	})
	if err != nil {
		return nil, NewStorageError("list_calculation_rows", "計算行の取得に失敗しました", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	rows = append([]ProductCalculationRow(nil), rows...)
	for i := range rows {
		if err := ValidateRow(&rows[i]); err != nil {
			return nil, err
		}
		if rows[i].Settings.PeriodDays == 0 {
			rows[i].Settings.PeriodDays = periodDays
		}
	}

	result, err := m.orchestrator.Execute(ctx, RunInput{
		SupplierID: req.SupplierID,
		Hierarchy:  hierarchy,
		Rows:       rows,
		Arriving:   arriving,
		Windows:    NewDateWindowResolver(m.deps.Schedules, now),
	})
	if err != nil {
		return nil, err
	}
	m.metrics.observeGroups(result.Groups)

	orderID := req.OrderID
	if orderID == "" {
		orderID = NewOrderID()
	}

	plan := &Plan{
		RunID:         NewRunID(),
		OrderID:       orderID,
		SupplierID:    req.SupplierID,
		WarehouseID:   req.WarehouseID,
		GeneratedAt:   now,
		Quantities:    result.Quantities,
		Transfers:     result.Transfers,
		ChildMOQCarry: result.ChildMOQCarry,
		Groups:        result.Groups,
		Rows:          result.Rows,
		Lines:         buildLines(orderID, hierarchy.Root()),
	}

	m.logger.Info("補充計算完了",
		zap.String("run_id", plan.RunID),
		zap.String("supplier_id", req.SupplierID),
		zap.String("warehouse_id", req.WarehouseID),
		zap.Int("rows", len(plan.Rows)),
		zap.Int("lines", len(plan.Lines)),
		zap.Int("groups", len(plan.Groups)),
	)

	return plan, nil
}

func (m *Manager) loadHierarchy(ctx context.Context, warehouseID string) (*Hierarchy, error) {
	tree, flat, err := m.deps.Hierarchy.GetHierarchy(ctx, warehouseID)
	if err != nil {
		if errors.Is(err, ErrWarehouseNotFound) || errors.Is(err, ErrMalformedHierarchy) {
			return nil, err
		}
		return nil, NewStorageError("get_hierarchy", "倉庫階層の取得に失敗しました", err)
	}
	if tree != nil && tree.RootID == "" {
		tree.RootID = warehouseID
	}
	if tree != nil && tree.RootID != warehouseID {
		return nil, NewHierarchyError(HierarchyReasonDangling, tree.RootID,
			fmt.Sprintf("要求された倉庫 %s とルート倉庫が一致しません", warehouseID))
	}
	return BuildHierarchy(tree, flat)
}

func (m *Manager) loadArriving(ctx context.Context, hierarchy *Hierarchy, now time.Time) (*ArrivingStockIndex, error) {
	index := NewArrivingStockIndex(now)
	if m.deps.Arriving == nil {
		return index, nil
	}
	for _, id := range hierarchy.IDs() {
		products, err := m.deps.Arriving.GetArrivingProducts(ctx, id)
		if err != nil {
			return nil, NewStorageError("get_arriving_products", fmt.Sprintf("倉庫 %s の入荷予定取得に失敗しました", id), err)
		}
		index.Add(id, products)
	}
	return index, nil
}

// buildLines turns the root purchase data into priced lines ordered by product
func buildLines(orderID string, root *WarehouseNode) []PurchaseLine {
	productIDs := make([]string, 0, len(root.PurchaseData))
	for productID := range root.PurchaseData {
		productIDs = append(productIDs, productID)
	}
	sort.Strings(productIDs)

	lines := make([]PurchaseLine, 0, len(productIDs))
	for _, productID := range productIDs {
		row := root.PurchaseData[productID]
		if line, ok := BuildPurchaseLine(orderID, row, row.Window.FirstArrival); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

// write hands the lines to the writer, inside one transaction when supported
func (m *Manager) write(ctx context.Context, plan *Plan) error {
	if m.deps.Writer == nil {
		return fmt.Errorf("%w: ライターが設定されていません", ErrWriteFailed)
	}

	writeAll := func(w ReplenishmentWriter) error {
		for _, line := range plan.Lines {
			if err := w.Write(ctx, line); err != nil {
				return fmt.Errorf("商品 %s: %w", line.ProductID, err)
			}
		}
		return nil
	}

	var err error
	if tw, ok := m.deps.Writer.(TransactionalWriter); ok {
		err = tw.WithinTransaction(ctx, writeAll)
	} else {
		err = writeAll(m.deps.Writer)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

func (m *Manager) fail(req RunRequest, stage string, start time.Time, err error) {
	m.metrics.observeRun("failed", time.Since(start))
	m.logger.Error("補充計算に失敗しました",
		zap.String("stage", stage),
		zap.String("supplier_id", req.SupplierID),
		zap.String("warehouse_id", req.WarehouseID),
		zap.Error(err),
	)
}
