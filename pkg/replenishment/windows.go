package replenishment

import (
	"context"
	"fmt"
	"math"
	"time"
)

// DateWindowResolver derives the arrival windows of products and groups.
// Resolvers are looked up once per schedule key and windows are memoized
// by (schedule key, lead-time day count). One instance serves one run.
// 入荷ウィンドウの算出（スケジュールキーとリードタイム日数でメモ化）
type DateWindowResolver struct {
	source    ScheduleSource
	now       time.Time
	resolvers map[ScheduleKey]SupplyScheduleResolver
	memo      map[windowKey]ArrivalWindow
	walks     int
}

type windowKey struct {
	schedule     ScheduleKey
	leadTimeDays int
}

// NewDateWindowResolver creates a resolver anchored at now
func NewDateWindowResolver(source ScheduleSource, now time.Time) *DateWindowResolver {
	return &DateWindowResolver{
		source:    source,
		now:       truncateDay(now),
		resolvers: make(map[ScheduleKey]SupplyScheduleResolver),
		memo:      make(map[windowKey]ArrivalWindow),
	}
}

// Resolve returns the first and second arrival windows for a schedule key.
// leadTimeDays > 0 overrides the delivery days reported by the calendar.
// 次回・次々回入荷までの日数を返す
func (r *DateWindowResolver) Resolve(ctx context.Context, key ScheduleKey, leadTimeDays int) (ArrivalWindow, error) {
	if leadTimeDays < 0 {
		leadTimeDays = 0
	}
	memoKey := windowKey{schedule: key, leadTimeDays: leadTimeDays}
	if window, ok := r.memo[memoKey]; ok {
		return window, nil
	}

	resolver, err := r.resolver(ctx, key)
	if err != nil {
		return ArrivalWindow{}, err
	}

	r.walks++
	first, err := resolver.NextOrderDate(ctx, r.now)
	if err != nil {
		return ArrivalWindow{}, NewScheduleError(key, r.now, err)
	}
	orderDate := truncateDay(first.Date)
	if orderDate.Before(r.now) {
		return ArrivalWindow{}, NewScheduleError(key, r.now, fmt.Errorf("%w: 発注日が基準日より前です", ErrUnresolvableSchedule))
	}

	// 次々回は次回発注日の翌日以降から探索
	nextFrom := orderDate.AddDate(0, 0, 1)
	second, err := resolver.NextOrderDate(ctx, nextFrom)
	if err != nil {
		return ArrivalWindow{}, NewScheduleError(key, nextFrom, err)
	}
	secondOrder := truncateDay(second.Date)
	if secondOrder.Before(nextFrom) {
		return ArrivalWindow{}, NewScheduleError(key, nextFrom, fmt.Errorf("%w: 発注日が基準日より前です", ErrUnresolvableSchedule))
	}

	firstDelivery, secondDelivery := first.DeliveryDays, second.DeliveryDays
	if leadTimeDays > 0 {
		firstDelivery, secondDelivery = leadTimeDays, leadTimeDays
	}

	firstArrival := orderDate.AddDate(0, 0, max(0, firstDelivery))
	secondArrival := secondOrder.AddDate(0, 0, max(0, secondDelivery))

	window := ArrivalWindow{
		FirstDays:     daysBetween(r.now, firstArrival),
		SecondDays:    max(0, daysBetween(firstArrival, secondArrival)),
		OrderDate:     orderDate,
		FirstArrival:  firstArrival,
		SecondArrival: secondArrival,
	}
	r.memo[memoKey] = window
	return window, nil
}

// Walks returns the number of calendar walks performed (memo misses)
func (r *DateWindowResolver) Walks() int {
	return r.walks
}

func (r *DateWindowResolver) resolver(ctx context.Context, key ScheduleKey) (SupplyScheduleResolver, error) {
	if resolver, ok := r.resolvers[key]; ok {
		return resolver, nil
	}
	if r.source == nil {
		return nil, NewScheduleError(key, r.now, ErrScheduleNotFound)
	}
	resolver, err := r.source.ScheduleFor(ctx, key)
	if err != nil {
		return nil, NewScheduleError(key, r.now, err)
	}
	if resolver == nil {
		return nil, NewScheduleError(key, r.now, ErrScheduleNotFound)
	}
	r.resolvers[key] = resolver
	return resolver, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func daysBetween(from, to time.Time) int {
	return int(math.Round(to.Sub(from).Hours() / 24))
}
