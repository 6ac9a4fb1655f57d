package bucket

import (
	"sort"

	"github.com/dotcommander/asanasense/internal/asana"
	"github.com/dotcommander/asanasense/internal/rules"
)

// Buckets groups task display strings by timeframe, then by date key.
// The date key is YYYY-MM-DD or rules.All for tasks without a relevant date.
type Buckets map[rules.Timeframe]map[string][]string

// Build groups tasks from scratch. Completed tasks are keyed by completion
// date under past; open tasks by due date under future.
func Build(tasks []asana.Task) Buckets {
	b := Buckets{
		rules.TimeframePast:   {},
		rules.TimeframeFuture: {},
	}

	for _, task := range tasks {
		timeframe := rules.TimeframeFuture
		date := task.DueOn
		if task.Completed {
			timeframe = rules.TimeframePast
			date = task.CompletedAt
		}

		key := dateKey(date)
		display := task.Name
		if key != rules.All {
			display = key + " - " + task.Name
		}
		b[timeframe][key] = append(b[timeframe][key], display)
	}
	return b
}

func dateKey(s string) string {
	if s == "" {
		return rules.All
	}
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

// Select concatenates the task lists of every date key in the rule's
// timeframe that matches boundary, walking keys in ascending lexical order.
func (b Buckets) Select(timeframe rules.Timeframe, boundary string) []string {
	byDate := b[timeframe]
	keys := make([]string, 0, len(byDate))
	for k := range byDate {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []string{}
	for _, k := range keys {
		if matches(k, timeframe, boundary) {
			out = append(out, byDate[k]...)
		}
	}
	return out
}

// matches reports whether a date key falls inside a rule's boundary.
// Undated completed tasks never count toward a past rule.
func matches(key string, timeframe rules.Timeframe, boundary string) bool {
	switch timeframe {
	case rules.TimeframePast:
		if key == rules.All {
			return false
		}
		return key >= boundary
	case rules.TimeframeFuture:
		if boundary == rules.All {
			return true
		}
		return key <= boundary
	}
	return false
}
