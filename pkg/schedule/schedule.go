package schedule

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/nemonet1337/zaiReplenish/pkg/replenishment"
)

// DefaultHorizonDays bounds the forward search for an order date
const DefaultHorizonDays = 730

// Frequency is the ordering cadence of a supplier
// 発注頻度
type Frequency string

const (
	FrequencyOnDemand Frequency = "on_demand" // 随時
	FrequencyWeekly   Frequency = "weekly"    // 毎週（隔週含む）
	FrequencyMonthly  Frequency = "monthly"   // 毎月
)

// すべての発注カレンダーがインターフェースを実装することを明示
var (
	_ replenishment.SupplyScheduleResolver = (*OnDemand)(nil)
	_ replenishment.SupplyScheduleResolver = (*Weekly)(nil)
	_ replenishment.SupplyScheduleResolver = (*Monthly)(nil)
)

// OnDemand allows an order on any working day
// 随時発注（稼働日ならいつでも）
type OnDemand struct {
	DeliveryDays int
	Calendar     *Calendar
	HorizonDays  int
}

// NextOrderDate returns the first working day on or after from
func (s *OnDemand) NextOrderDate(ctx context.Context, from time.Time) (replenishment.ScheduleSlot, error) {
	return search(ctx, from, s.HorizonDays, s.DeliveryDays, func(day time.Time) bool {
		return s.Calendar.IsWorkingDay(day)
	})
}

// Weekly allows orders on fixed weekdays every IntervalWeeks weeks counted from Anchor
// 曜日指定の定期発注（IntervalWeeks 週ごと）
type Weekly struct {
	Weekdays      []time.Weekday
	IntervalWeeks int
	Anchor        time.Time
	DeliveryDays  int
	Calendar      *Calendar
	HorizonDays   int
}

// NextOrderDate returns the first scheduled working weekday on or after from
func (s *Weekly) NextOrderDate(ctx context.Context, from time.Time) (replenishment.ScheduleSlot, error) {
	if len(s.Weekdays) == 0 {
		return replenishment.ScheduleSlot{}, fmt.Errorf("%w: 発注曜日が設定されていません", replenishment.ErrUnresolvableSchedule)
	}
	days := make(map[time.Weekday]bool, len(s.Weekdays))
	for _, d := range s.Weekdays {
		days[d] = true
	}
	interval := max(1, s.IntervalWeeks)
	anchor := weekStart(truncateDay(s.Anchor))

	return search(ctx, from, s.HorizonDays, s.DeliveryDays, func(day time.Time) bool {
		if !days[day.Weekday()] || !s.Calendar.IsWorkingDay(day) {
			return false
		}
		if interval == 1 || s.Anchor.IsZero() {
			return true
		}
		weeks := int(math.Round(weekStart(day).Sub(anchor).Hours()/24)) / 7
		return ((weeks%interval)+interval)%interval == 0
	})
}

// Monthly allows orders on fixed days of the month. Days beyond the end of a
// month fall on its last day; 0 or a negative value counts from the month end (-1 = last day).
// 日付指定の月次発注
type Monthly struct {
	Days         []int
	DeliveryDays int
	Calendar     *Calendar
	HorizonDays  int
}

// NextOrderDate returns the first scheduled working day of the month on or after from
func (s *Monthly) NextOrderDate(ctx context.Context, from time.Time) (replenishment.ScheduleSlot, error) {
	if len(s.Days) == 0 {
		return replenishment.ScheduleSlot{}, fmt.Errorf("%w: 発注日が設定されていません", replenishment.ErrUnresolvableSchedule)
	}
	days := append([]int(nil), s.Days...)
	sort.Ints(days)

	return search(ctx, from, s.HorizonDays, s.DeliveryDays, func(day time.Time) bool {
		if !s.Calendar.IsWorkingDay(day) {
			return false
		}
		last := daysInMonth(day)
		for _, d := range days {
			target := d
			switch {
			case d == 0:
				target = last
			case d < 0:
				target = last + d + 1
			case d > last:
				target = last
			}
			if day.Day() == target {
				return true
			}
		}
		return false
	})
}

// search walks forward day by day from from until match succeeds or the horizon is exhausted
func search(ctx context.Context, from time.Time, horizon, deliveryDays int, match func(time.Time) bool) (replenishment.ScheduleSlot, error) {
	if horizon <= 0 {
		horizon = DefaultHorizonDays
	}
	day := truncateDay(from)
	for i := 0; i <= horizon; i++ {
		if i%32 == 0 {
			if err := ctx.Err(); err != nil {
				return replenishment.ScheduleSlot{}, err
			}
		}
		if match(day) {
			return replenishment.ScheduleSlot{Date: day, DeliveryDays: max(0, deliveryDays)}, nil
		}
		day = day.AddDate(0, 0, 1)
	}
	return replenishment.ScheduleSlot{}, fmt.Errorf("%w: %d日以内に発注可能日がありません", replenishment.ErrUnresolvableSchedule, horizon)
}

func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7 // 月曜始まり
	return t.AddDate(0, 0, -offset)
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
