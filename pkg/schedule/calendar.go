// Package schedule provides supplier order calendars that resolve the next order date
package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the layout of holiday and anchor dates
const DateLayout = "2006-01-02"

// Calendar defines the working weekdays and holidays on which orders can be placed
// 発注可能な曜日と休日の定義
type Calendar struct {
	workdays map[time.Weekday]bool
	holidays map[string]bool
}

// NewCalendar creates a calendar. An empty weekday list means every day is a working day.
// 新しいカレンダーを作成
func NewCalendar(workdays []time.Weekday, holidays []time.Time) *Calendar {
	c := &Calendar{
		workdays: make(map[time.Weekday]bool, len(workdays)),
		holidays: make(map[string]bool, len(holidays)),
	}
	for _, d := range workdays {
		c.workdays[d] = true
	}
	for _, h := range holidays {
		c.holidays[h.Format(DateLayout)] = true
	}
	return c
}

// IsWorkingDay reports whether orders can be placed on t
func (c *Calendar) IsWorkingDay(t time.Time) bool {
	if c == nil {
		return true
	}
	if c.holidays[t.Format(DateLayout)] {
		return false
	}
	return len(c.workdays) == 0 || c.workdays[t.Weekday()]
}

// Holidays returns the holiday dates in ascending order
func (c *Calendar) Holidays() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.holidays))
	for h := range c.holidays {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday, "日": time.Sunday,
	"mon": time.Monday, "monday": time.Monday, "月": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday, "火": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday, "水": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday, "木": time.Thursday,
	"fri": time.Friday, "friday": time.Friday, "金": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday, "土": time.Saturday,
}

// ParseWeekday parses an English or Japanese weekday name
// 曜日名を解析
func ParseWeekday(name string) (time.Weekday, error) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("未知の曜日です: %q", name)
	}
	return d, nil
}

// ParseWeekdays parses a list of weekday names
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		d, err := ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// ParseDates parses dates in DateLayout
func ParseDates(values []string) ([]time.Time, error) {
	out := make([]time.Time, 0, len(values))
	for _, v := range values {
		t, err := time.Parse(DateLayout, strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("日付の形式が不正です %q: %w", v, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
