package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemonet1337/zaiReplenish/pkg/replenishment"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(DateLayout, s)
	require.NoError(t, err)
	return d
}

func weekdaysMonFri() []time.Weekday {
	return []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
}

func TestOnDemand_SkipsWeekendsAndHolidays(t *testing.T) {
	s := &OnDemand{
		DeliveryDays: 3,
		Calendar:     NewCalendar(weekdaysMonFri(), []time.Time{date(t, "2024-01-01")}),
	}

	slot, err := s.NextOrderDate(context.Background(), date(t, "2023-12-30"))
	require.NoError(t, err)
	assert.Equal(t, date(t, "2024-01-02"), slot.Date)
	assert.Equal(t, 3, slot.DeliveryDays)
}

func TestOnDemand_NilCalendarOrdersToday(t *testing.T) {
	s := &OnDemand{}
	from := time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC)

	slot, err := s.NextOrderDate(context.Background(), from)
	require.NoError(t, err)
	assert.Equal(t, date(t, "2024-05-10"), slot.Date)
}

func TestWeekly_NextOrderDate(t *testing.T) {
	tests := []struct {
		name     string
		schedule *Weekly
		from     string
		want     string
	}{
		{
			name:     "same week",
			schedule: &Weekly{Weekdays: []time.Weekday{time.Wednesday}},
			from:     "2024-01-01",
			want:     "2024-01-03",
		},
		{
			name:     "on the weekday itself",
			schedule: &Weekly{Weekdays: []time.Weekday{time.Monday, time.Thursday}},
			from:     "2024-01-04",
			want:     "2024-01-04",
		},
		{
			name: "biweekly skips the off week",
			schedule: &Weekly{
				Weekdays:      []time.Weekday{time.Wednesday},
				IntervalWeeks: 2,
				Anchor:        date(t, "2024-01-01"),
			},
			from: "2024-01-04",
			want: "2024-01-17",
		},
		{
			name: "holiday on the weekday",
			schedule: &Weekly{
				Weekdays: []time.Weekday{time.Wednesday},
				Calendar: NewCalendar(nil, []time.Time{date(t, "2024-01-03")}),
			},
			from: "2024-01-01",
			want: "2024-01-10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot, err := tt.schedule.NextOrderDate(context.Background(), date(t, tt.from))
			require.NoError(t, err)
			assert.Equal(t, date(t, tt.want), slot.Date)
		})
	}
}

func TestMonthly_NextOrderDate(t *testing.T) {
	tests := []struct {
		name     string
		schedule *Monthly
		from     string
		want     string
	}{
		{"day beyond month end", &Monthly{Days: []int{31}}, "2024-02-01", "2024-02-29"},
		{"last day", &Monthly{Days: []int{-1}}, "2024-04-05", "2024-04-30"},
		{"earliest of several days", &Monthly{Days: []int{20, 5}}, "2024-03-06", "2024-03-20"},
		{
			"holiday skips to next month",
			&Monthly{Days: []int{15}, Calendar: NewCalendar(nil, []time.Time{date(t, "2024-03-15")})},
			"2024-03-01",
			"2024-04-15",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot, err := tt.schedule.NextOrderDate(context.Background(), date(t, tt.from))
			require.NoError(t, err)
			assert.Equal(t, date(t, tt.want), slot.Date)
		})
	}
}

func TestSearch_UnresolvableWithinHorizon(t *testing.T) {
	s := &Weekly{
		Weekdays:    []time.Weekday{time.Sunday},
		Calendar:    NewCalendar([]time.Weekday{time.Monday}, nil),
		HorizonDays: 30,
	}

	_, err := s.NextOrderDate(context.Background(), date(t, "2024-01-01"))
	require.Error(t, err)
	assert.ErrorIs(t, err, replenishment.ErrUnresolvableSchedule)
}

func TestSearch_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&OnDemand{}).NextOrderDate(ctx, date(t, "2024-01-01"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromDefinition(t *testing.T) {
	resolver, err := FromDefinition(Definition{
		Frequency:    FrequencyWeekly,
		Weekdays:     []string{"tue", "金"},
		DeliveryDays: 5,
		Holidays:     []string{"2024-01-02"},
	})
	require.NoError(t, err)

	slot, err := resolver.NextOrderDate(context.Background(), date(t, "2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, date(t, "2024-01-05"), slot.Date)
	assert.Equal(t, 5, slot.DeliveryDays)

	monthly, err := FromDefinition(Definition{Frequency: FrequencyMonthly, MonthDays: []int{10}})
	require.NoError(t, err)
	assert.IsType(t, &Monthly{}, monthly)

	onDemand, err := FromDefinition(Definition{})
	require.NoError(t, err)
	assert.IsType(t, &OnDemand{}, onDemand)
}

func TestFromDefinition_Invalid(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{"unknown frequency", Definition{Frequency: "yearly"}},
		{"weekly without weekdays", Definition{Frequency: FrequencyWeekly}},
		{"unknown weekday", Definition{Frequency: FrequencyWeekly, Weekdays: []string{"someday"}}},
		{"monthly without days", Definition{Frequency: FrequencyMonthly}},
		{"month day out of range", Definition{Frequency: FrequencyMonthly, MonthDays: []int{32}}},
		{"bad holiday", Definition{Holidays: []string{"2024/01/01"}}},
		{"negative delivery days", Definition{DeliveryDays: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromDefinition(tt.def)
			assert.Error(t, err)
		})
	}
}

func TestRegistry_FallsBackToSupplierWideCalendar(t *testing.T) {
	registry := NewRegistry()
	specific := &OnDemand{DeliveryDays: 1}
	wide := &OnDemand{DeliveryDays: 7}
	registry.Register(replenishment.ScheduleKey{SupplierID: "SUP-1", WarehouseID: "WH-A"}, specific)
	registry.Register(replenishment.ScheduleKey{SupplierID: "SUP-1"}, wide)

	got, err := registry.ScheduleFor(context.Background(), replenishment.ScheduleKey{SupplierID: "SUP-1", WarehouseID: "WH-A"})
	require.NoError(t, err)
	assert.Same(t, specific, got)

	got, err = registry.ScheduleFor(context.Background(), replenishment.ScheduleKey{SupplierID: "SUP-1", WarehouseID: "WH-B"})
	require.NoError(t, err)
	assert.Same(t, wide, got)

	_, err = registry.ScheduleFor(context.Background(), replenishment.ScheduleKey{SupplierID: "SUP-2"})
	assert.ErrorIs(t, err, replenishment.ErrScheduleNotFound)
}

func TestRegistry_WithDateWindowResolver(t *testing.T) {
	registry := NewRegistry()
	key := replenishment.ScheduleKey{SupplierID: "SUP-1", WarehouseID: "WH-A"}
	require.NoError(t, registry.RegisterDefinition(key, Definition{
		Frequency:    FrequencyWeekly,
		Weekdays:     []string{"mon"},
		DeliveryDays: 3,
	}))

	resolver := replenishment.NewDateWindowResolver(registry, date(t, "2024-01-01"))
	window, err := resolver.Resolve(context.Background(), key, 0)
	require.NoError(t, err)

	// 1/1発注→1/4入荷、1/8発注→1/11入荷
	assert.Equal(t, 3, window.FirstDays)
	assert.Equal(t, 7, window.SecondDays)
	assert.Equal(t, date(t, "2024-01-04"), window.FirstArrival)
	assert.Equal(t, date(t, "2024-01-11"), window.SecondArrival)
}
