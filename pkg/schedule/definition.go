package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nemonet1337/zaiReplenish/pkg/replenishment"
)

// Definition is the serialisable form of a supplier order calendar
// 仕入先カレンダーの定義（YAML/JSON/DB）
type Definition struct {
	Frequency     Frequency `json:"frequency" yaml:"frequency" db:"frequency"`
	Weekdays      []string  `json:"weekdays,omitempty" yaml:"weekdays" db:"-"`
	IntervalWeeks int       `json:"interval_weeks,omitempty" yaml:"interval_weeks" db:"interval_weeks"`
	AnchorDate    string    `json:"anchor_date,omitempty" yaml:"anchor_date" db:"anchor_date"`
	MonthDays     []int     `json:"month_days,omitempty" yaml:"month_days" db:"-"`
	DeliveryDays  int       `json:"delivery_days" yaml:"delivery_days" db:"delivery_days"`
	WorkingDays   []string  `json:"working_days,omitempty" yaml:"working_days" db:"-"`
	Holidays      []string  `json:"holidays,omitempty" yaml:"holidays" db:"-"`
	HorizonDays   int       `json:"horizon_days,omitempty" yaml:"horizon_days" db:"horizon_days"`
}

// FromDefinition builds the resolver described by a definition
// 定義から発注カレンダーを作成
func FromDefinition(def Definition) (replenishment.SupplyScheduleResolver, error) {
	workdays, err := ParseWeekdays(def.WorkingDays)
	if err != nil {
		return nil, err
	}
	holidays, err := ParseDates(def.Holidays)
	if err != nil {
		return nil, err
	}
	if def.DeliveryDays < 0 {
		return nil, replenishment.NewValidationError("delivery_days", "納品日数は0以上である必要があります", fmt.Sprintf("%d", def.DeliveryDays))
	}
	calendar := NewCalendar(workdays, holidays)

	switch def.Frequency {
	case FrequencyOnDemand, "":
		return &OnDemand{
			DeliveryDays: def.DeliveryDays,
			Calendar:     calendar,
			HorizonDays:  def.HorizonDays,
		}, nil

	case FrequencyWeekly:
		weekdays, err := ParseWeekdays(def.Weekdays)
		if err != nil {
			return nil, err
		}
		if len(weekdays) == 0 {
			return nil, replenishment.NewValidationError("weekdays", "発注曜日が指定されていません", "")
		}
		var anchor time.Time
		if def.AnchorDate != "" {
			anchor, err = time.Parse(DateLayout, def.AnchorDate)
			if err != nil {
				return nil, replenishment.NewValidationError("anchor_date", "基準日の形式が不正です", def.AnchorDate)
			}
		}
		return &Weekly{
			Weekdays:      weekdays,
			IntervalWeeks: def.IntervalWeeks,
			Anchor:        anchor,
			DeliveryDays:  def.DeliveryDays,
			Calendar:      calendar,
			HorizonDays:   def.HorizonDays,
		}, nil

	case FrequencyMonthly:
		if len(def.MonthDays) == 0 {
			return nil, replenishment.NewValidationError("month_days", "発注日が指定されていません", "")
		}
		for _, d := range def.MonthDays {
			if d < -30 || d > 31 {
				return nil, replenishment.NewValidationError("month_days", "発注日が範囲外です", fmt.Sprintf("%d", d))
			}
		}
		return &Monthly{
			Days:         def.MonthDays,
			DeliveryDays: def.DeliveryDays,
			Calendar:     calendar,
			HorizonDays:  def.HorizonDays,
		}, nil

	default:
		return nil, replenishment.NewValidationError("frequency", "未知の発注頻度です", string(def.Frequency))
	}
}

// Registry is an in-process ScheduleSource. A supplier-wide calendar registered
// with an empty warehouse id serves every warehouse without its own entry.
// 仕入先カレンダーの登録簿
type Registry struct {
	mu        sync.RWMutex
	resolvers map[replenishment.ScheduleKey]replenishment.SupplyScheduleResolver
}

var _ replenishment.ScheduleSource = (*Registry)(nil)

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		resolvers: make(map[replenishment.ScheduleKey]replenishment.SupplyScheduleResolver),
	}
}

// Register stores the calendar of a supplier for a warehouse ("" = every warehouse)
func (r *Registry) Register(key replenishment.ScheduleKey, resolver replenishment.SupplyScheduleResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[key] = resolver
}

// RegisterDefinition builds and stores a calendar from its definition
func (r *Registry) RegisterDefinition(key replenishment.ScheduleKey, def Definition) error {
	resolver, err := FromDefinition(def)
	if err != nil {
		return fmt.Errorf("仕入先 %s のカレンダー: %w", key.SupplierID, err)
	}
	r.Register(key, resolver)
	return nil
}

// ScheduleFor returns the warehouse-specific calendar, falling back to the supplier-wide one
func (r *Registry) ScheduleFor(ctx context.Context, key replenishment.ScheduleKey) (replenishment.SupplyScheduleResolver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if resolver, ok := r.resolvers[key]; ok {
		return resolver, nil
	}
	if resolver, ok := r.resolvers[replenishment.ScheduleKey{SupplierID: key.SupplierID}]; ok {
		return resolver, nil
	}
	return nil, replenishment.ErrScheduleNotFound
}
