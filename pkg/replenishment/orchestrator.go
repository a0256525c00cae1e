package replenishment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// WindowResolver resolves the arrival window of a schedule key.
// DateWindowResolver is the production implementation.
type WindowResolver interface {
	Resolve(ctx context.Context, key ScheduleKey, leadTimeDays int) (ArrivalWindow, error)
}

// RunInput is everything one orchestrator run needs. Rows are copied before use.
// 1回の階層計算の入力
type RunInput struct {
	SupplierID string
	Hierarchy  *Hierarchy
	Rows       []ProductCalculationRow
	Arriving   *ArrivingStockIndex
	Windows    WindowResolver
}

// RunResult is the outcome of one orchestrator run
// 1回の階層計算の結果
type RunResult struct {
	Hierarchy     *Hierarchy
	Quantities    map[string]float64            // ルート倉庫の商品別発注数
	Transfers     map[string]map[string]float64 // 子倉庫ごとの商品別移動数
	ChildMOQCarry map[string]map[string]float64 // 子倉庫ごとの商品別MOQ繰越
	Groups        []GroupSummary
	Rows          []*ProductCalculationRow
	Accumulator   *OrderedSalesAccumulator
	Elapsed       time.Duration
}

// Orchestrator buckets rows into computation groups and evaluates the
// warehouse hierarchy leaf to root. One Execute call is one independent run.
// 倉庫階層を子から親の順に計算するオーケストレーター
type Orchestrator struct {
	calculator *VelocityCalculator
	logger     *zap.Logger
}

// NewOrchestrator creates a new orchestrator
// 新しいオーケストレーターを作成
func NewOrchestrator(calculator *VelocityCalculator, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if calculator == nil {
		calculator = NewVelocityCalculator(nil, logger)
	}
	return &Orchestrator{
		calculator: calculator,
		logger:     logger,
	}
}

// Execute runs the full hierarchy calculation with fresh accumulators
// 階層全体の補充数を計算
func (o *Orchestrator) Execute(ctx context.Context, in RunInput) (*RunResult, error) {
	if in.Hierarchy == nil {
		return nil, NewHierarchyError(HierarchyReasonEmpty, "", "倉庫階層が構築されていません")
	}
	if in.Windows == nil {
		return nil, fmt.Errorf("入荷ウィンドウの解決手段がありません: %w", ErrUnresolvableSchedule)
	}

	start := time.Now()
	run := &orchestratorRun{
		Orchestrator: o,
		in:           in,
		acc:          NewOrderedSalesAccumulator(),
		placed:       make(map[foldKey]bool, len(in.Rows)),
		result: &RunResult{
			Hierarchy:     in.Hierarchy,
			Quantities:    make(map[string]float64),
			Transfers:     make(map[string]map[string]float64),
			ChildMOQCarry: make(map[string]map[string]float64),
		},
	}

	if err := run.bucket(ctx); err != nil {
		return nil, err
	}
	if err := run.walk(ctx); err != nil {
		return nil, err
	}

	run.result.Accumulator = run.acc
	run.result.Elapsed = time.Since(start)

	o.logger.Info("階層計算完了",
		zap.String("supplier_id", in.SupplierID),
		zap.String("root_warehouse_id", in.Hierarchy.RootID()),
		zap.Int("warehouses", in.Hierarchy.Len()),
		zap.Int("rows", len(run.result.Rows)),
		zap.Int("root_products", len(run.result.Quantities)),
		zap.Duration("elapsed", run.result.Elapsed),
	)

	return run.result, nil
}

// orchestratorRun holds the mutable state of one Execute call
type orchestratorRun struct {
	*Orchestrator
	in     RunInput
	acc    *OrderedSalesAccumulator
	placed map[foldKey]bool
	result *RunResult
}

// bucket copies the input rows, classifies them and places them into the
// computation groups of their warehouse
// 行を分類して倉庫ごとの計算グループに振り分け
func (r *orchestratorRun) bucket(ctx context.Context) error {
	for i := range r.in.Rows {
		row := r.in.Rows[i]
		resetDerived(&row)

		node, ok := r.in.Hierarchy.Node(row.WarehouseID)
		if !ok {
			return NewValidationError("warehouse_id", "倉庫階層に存在しない倉庫の行です", row.WarehouseID)
		}
		if r.placed[foldKey{warehouseID: row.WarehouseID, productID: row.ProductID}] {
			return NewValidationError("product_id", fmt.Sprintf("倉庫 %s で商品が重複しています", row.WarehouseID), row.ProductID)
		}

		if err := r.place(ctx, node, &row); err != nil {
			return err
		}
	}
	return nil
}

// place classifies one row and attaches it to a group with its window resolved
func (r *orchestratorRun) place(ctx context.Context, node *WarehouseNode, row *ProductCalculationRow) error {
	row.Group = classify(row, node, r.in.SupplierID)

	var group *ComputationGroup
	if row.Group == GroupIndividual {
		window, err := r.in.Windows.Resolve(ctx, r.scheduleKey(row), row.LeadTimeDays)
		if err != nil {
			return err
		}
		group = &ComputationGroup{
			Kind:         GroupIndividual,
			Key:          row.ProductID,
			WarehouseID:  node.ID,
			MOQ:          row.SupplierMOQ,
			LeadTimeDays: row.LeadTimeDays,
			Schedule:     r.scheduleKey(row),
			Window:       window,
		}
		node.Individuals = append(node.Individuals, group)
	} else {
		gk := groupKeyOf(row.Group, row)
		existing, ok := node.groupIndex[gk]
		if !ok {
			// 初出時にグループのMOQ・リードタイム・入荷ウィンドウを確定
			window, err := r.in.Windows.Resolve(ctx, r.scheduleKey(row), row.LeadTimeDays)
			if err != nil {
				return err
			}
			moq := row.ParentMOQ
			if row.Group == GroupAttributeConfig {
				moq = row.AttributeConfigMOQ
			}
			existing = &ComputationGroup{
				Kind:         row.Group,
				Key:          gk.key,
				WarehouseID:  node.ID,
				MOQ:          max(0, sanitize(moq)),
				RemainingMOQ: max(0, sanitize(moq)),
				LeadTimeDays: row.LeadTimeDays,
				Schedule:     r.scheduleKey(row),
				Window:       window,
			}
			node.groupIndex[gk] = existing
			node.Groups = append(node.Groups, existing)
		}
		group = existing
	}

	r.placed[foldKey{warehouseID: node.ID, productID: row.ProductID}] = true
	row.Window = group.Window
	r.in.Arriving.PreCredit(row)
	group.Rows = append(group.Rows, row)
	r.result.Rows = append(r.result.Rows, row)
	return nil
}

// classify assigns the grouping strategy of a row by precedence
// 行の計算グループ種別を優先順位に従って決定
func classify(row *ProductCalculationRow, node *WarehouseNode, supplierID string) GroupKind {
	switch {
	case row.SupplierMOQ > 0, !node.IsRoot(), supplierID == "":
		return GroupIndividual
	case row.AttributeConfigID != "" && row.ParentProductID != "":
		return GroupAttributeConfig
	case row.ParentProductID != "" && row.ParentMOQ > 0:
		return GroupParentProduct
	default:
		return GroupIndividual
	}
}

func groupKeyOf(kind GroupKind, row *ProductCalculationRow) groupKey {
	if kind == GroupAttributeConfig {
		return groupKey{kind: kind, key: row.AttributeConfigID}
	}
	return groupKey{kind: kind, key: row.ParentProductID}
}

func (r *orchestratorRun) scheduleKey(row *ProductCalculationRow) ScheduleKey {
	supplierID := r.in.SupplierID
	if supplierID == "" {
		supplierID = row.SupplierID
	}
	return ScheduleKey{SupplierID: supplierID, WarehouseID: row.WarehouseID}
}

// walk evaluates every warehouse after all of its children
// 子倉庫を先に、親倉庫を後に計算
func (r *orchestratorRun) walk(ctx context.Context) error {
	for _, node := range r.in.Hierarchy.PostOrder() {
		childQuantities, childRows := r.childContribution(node)

		// 子倉庫にのみ存在する商品は通過用の行を作成
		productIDs := make([]string, 0, len(childRows))
		for productID := range childRows {
			if !r.placed[foldKey{warehouseID: node.ID, productID: productID}] {
				productIDs = append(productIDs, productID)
			}
		}
		sort.Strings(productIDs)
		for _, productID := range productIDs {
			if err := r.place(ctx, node, passThroughRow(childRows[productID], node.ID)); err != nil {
				return err
			}
		}

		in := GroupCalculation{
			ChildQuantities: childQuantities,
			ParentLevel:     node.IsParentLevel(),
			Purchasing:      node.IsRoot(),
		}

		for _, group := range node.Individuals {
			in.Group = group
			outcome := r.calculator.Calculate(in, r.acc)
			r.merge(node, group, outcome)
			r.commitIndividual(node, group, outcome)
		}

		for _, group := range node.Groups {
			in.Group = group
			outcome := r.calculator.Calculate(in, r.acc)
			r.merge(node, group, outcome)
			r.result.Groups = append(r.result.Groups, GroupSummary{
				Kind:        group.Kind,
				Key:         group.Key,
				WarehouseID: node.ID,
				MOQ:         group.MOQ,
				Total:       outcome.Total,
				Passes:      outcome.Passes,
				Converged:   outcome.Converged,
			})
		}

		r.logger.Debug("倉庫計算完了",
			zap.String("warehouse_id", node.ID),
			zap.Int("depth", node.Depth),
			zap.Int("individuals", len(node.Individuals)),
			zap.Int("groups", len(node.Groups)),
			zap.Int("products", len(node.PurchaseData)),
		)
	}
	return nil
}

// childContribution sums the final quantities of every direct child by product.
// Each child's MOQ carry is reconciled here, so only this parent pass sees it.
// 直下の子倉庫の確定数量とMOQ繰越を商品別に合算
func (r *orchestratorRun) childContribution(node *WarehouseNode) (map[string]float64, map[string]*ProductCalculationRow) {
	quantities := make(map[string]float64)
	templates := make(map[string]*ProductCalculationRow)
	for _, childID := range node.Children {
		child, ok := r.in.Hierarchy.Node(childID)
		if !ok {
			continue
		}
		carry := r.result.ChildMOQCarry[childID]
		for productID, row := range child.PurchaseData {
			quantities[productID] += row.OrderQuantity + carry[productID]
			if _, ok := templates[productID]; !ok && row.OrderQuantity > 0 {
				templates[productID] = row
			}
		}
	}
	return quantities, templates
}

// merge records the group's rows as the warehouse's purchase data
func (r *orchestratorRun) merge(node *WarehouseNode, group *ComputationGroup, outcome GroupOutcome) {
	for _, row := range group.Rows {
		node.PurchaseData[row.ProductID] = row
		if node.IsRoot() {
			r.result.Quantities[row.ProductID] = row.OrderQuantity
			continue
		}
		transfers, ok := r.result.Transfers[node.ID]
		if !ok {
			transfers = make(map[string]float64)
			r.result.Transfers[node.ID] = transfers
		}
		transfers[row.ProductID] = row.OrderQuantity
	}
	if len(outcome.MOQCarry) == 0 {
		return
	}
	carries, ok := r.result.ChildMOQCarry[node.ID]
	if !ok {
		carries = make(map[string]float64, len(outcome.MOQCarry))
		r.result.ChildMOQCarry[node.ID] = carries
	}
	for productID, carry := range outcome.MOQCarry {
		carries[productID] += carry
	}
}

// commitIndividual lowers the remaining MOQ of every group containing the
// individually ordered product so the quantity isn't ordered twice
// 単品で確定した数量を所属グループの残りMOQから差し引く
func (r *orchestratorRun) commitIndividual(node *WarehouseNode, group *ComputationGroup, outcome GroupOutcome) {
	for _, row := range group.Rows {
		committed := outcome.Quantities[row.ProductID]
		if committed <= 0 || row.ParentProductID == "" {
			continue
		}
		containing := []groupKey{{kind: GroupParentProduct, key: row.ParentProductID}}
		if row.AttributeConfigID != "" {
			containing = append(containing, groupKey{kind: GroupAttributeConfig, key: row.AttributeConfigID})
		}
		for _, gk := range containing {
			if target, ok := node.groupIndex[gk]; ok {
				target.RemainingMOQ = max(0, target.RemainingMOQ-committed)
			}
		}
	}
}

// passThroughRow creates the parent-level row of a product only stocked by children
func passThroughRow(template *ProductCalculationRow, warehouseID string) *ProductCalculationRow {
	return &ProductCalculationRow{
		ProductID:        template.ProductID,
		WarehouseID:      warehouseID,
		SupplierID:       template.SupplierID,
		ParentProductID:  template.ParentProductID,
		Settings:         CalculationSettings{Type: CalculationTypeVelocity},
		Divisible:        template.Divisible,
		BackorderAllowed: true,
		PackageSize:      template.PackageSize,
		PackagePrice:     template.PackagePrice,
		UnitCost:         template.UnitCost,
	}
}

// resetDerived clears scratch fields carried over from a previous run
func resetDerived(row *ProductCalculationRow) {
	row.Group = GroupIndividual
	row.SalesPerDay = 0
	row.RemainingStockDays = 0
	row.SalesUntilFirstArrival = 0
	row.RemainingAfterFirst = 0
	row.SalesUntilSecondArrival = 0
	row.RemainingAfterSecond = 0
	row.StockNeeded = 0
	row.InitialQuantity = 0
	row.OrderQuantity = 0
	row.Window = ArrivalWindow{}
	if row.ParentSettings != nil {
		settings := *row.ParentSettings
		row.ParentSettings = &settings
	}
}
