package memory

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nemonet1337/zaiReplenish/pkg/replenishment"
	"github.com/nemonet1337/zaiReplenish/pkg/schedule"
)

// ScheduleEntry binds a calendar definition to a supplier and warehouse
type ScheduleEntry struct {
	SupplierID          string `yaml:"supplier_id"`
	WarehouseID         string `yaml:"warehouse_id"`
	schedule.Definition `yaml:",inline"`
}

// Fixture is a self-contained run description loaded from YAML
// YAMLで記述された補充計算の入力一式
type Fixture struct {
	OrderID     string    `yaml:"order_id"`
	SupplierID  string    `yaml:"supplier_id"`
	WarehouseID string    `yaml:"warehouse_id"`
	PeriodDays  int       `yaml:"period_days"`
	Now         time.Time `yaml:"now"`

	Hierarchy replenishment.HierarchyTree                `yaml:"hierarchy"`
	Schedules []ScheduleEntry                            `yaml:"schedules"`
	Arriving  map[string][]replenishment.ArrivingProduct `yaml:"arriving"`
	Rows      []replenishment.ProductCalculationRow      `yaml:"rows"`
}

// LoadFixture reads a fixture file
// フィクスチャファイルを読み込む
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("フィクスチャの読み込みに失敗しました: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes a YAML fixture
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("フィクスチャの解析に失敗しました: %w", err)
	}
	if f.WarehouseID == "" {
		f.WarehouseID = f.Hierarchy.RootID
	}
	if f.Hierarchy.RootID == "" {
		f.Hierarchy.RootID = f.WarehouseID
	}
	if f.WarehouseID == "" {
		return nil, replenishment.NewValidationError("warehouse_id", "発注元倉庫が指定されていません", "")
	}
	return &f, nil
}

// Store builds a memory store holding the fixture data
func (f *Fixture) Store() (*Store, error) {
	store := NewStore()
	store.SetHierarchy(f.Hierarchy)
	store.AddRows(f.Rows...)
	for warehouseID, products := range f.Arriving {
		store.AddArriving(warehouseID, products...)
	}
	for _, entry := range f.Schedules {
		supplierID := entry.SupplierID
		if supplierID == "" {
			supplierID = f.SupplierID
		}
		key := replenishment.ScheduleKey{SupplierID: supplierID, WarehouseID: entry.WarehouseID}
		if err := store.RegisterDefinition(key, entry.Definition); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// Request returns the run request described by the fixture
func (f *Fixture) Request() replenishment.RunRequest {
	return replenishment.RunRequest{
		OrderID:     f.OrderID,
		SupplierID:  f.SupplierID,
		WarehouseID: f.WarehouseID,
		PeriodDays:  f.PeriodDays,
		Now:         f.Now,
	}
}
