// Package stats reduces a window of inspection submissions into the aggregate
// figures shown in scheduled reports. Everything here is pure: callers fetch
// and filter submissions first.
package stats

import (
	"math"
	"sort"

	"safetyreports/internal/types"
)

// Literal values of the safe-to-operate field that are tallied. Anything
// else, including a missing field, is ignored.
const (
	ComplianceYes = "Yes"
	ComplianceNo  = "No"
)

// KeyCount is a failure count for one location, asset or checklist item.
type KeyCount struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	Count int    `json:"count"`
}

// Compliance is the safe-to-operate tally.
type Compliance struct {
	Yes int `json:"yes"`
	No  int `json:"no"`
}

// Summary is the aggregate over one report window. It is never persisted.
type Summary struct {
	TotalInspections        int            `json:"total_inspections"`
	InspectionsWithFailures int            `json:"inspections_with_failures"`
	TotalFailures           int            `json:"total_failures"`
	FailuresByItem          map[string]int `json:"failures_by_item"`
	FailuresByLocation      []KeyCount     `json:"failures_by_location"`
	FailuresByAsset         []KeyCount     `json:"failures_by_asset"`
	SafeToOperate           Compliance     `json:"safe_to_operate"`
}

// Compute reduces subs into a Summary.
//
// Every "Fail" entry counts toward TotalFailures. Only vocabulary items get a
// FailuresByItem counter; every vocabulary item is present, zero or not. A
// submission with at least one failure counts once toward
// InspectionsWithFailures and once toward its location and asset. Location
// and asset rankings are sorted by count descending, ties kept in
// first-encountered order.
func Compute(subs []types.Submission) Summary {
	s := Summary{
		TotalInspections: len(subs),
		FailuresByItem:   make(map[string]int, len(InspectionItems)),
	}
	for _, it := range InspectionItems {
		s.FailuresByItem[it.Key] = 0
	}

	locations := newCounter()
	assets := newCounter()

	for _, sub := range subs {
		view := sub.Inspection()

		failed := 0
		for item, result := range view.Checklist {
			if result != types.ResultFail {
				continue
			}
			failed++
			if IsKnownItem(item) {
				s.FailuresByItem[item]++
			}
		}
		s.TotalFailures += failed

		if failed > 0 {
			s.InspectionsWithFailures++
			if sub.Location != "" {
				locations.add(sub.Location)
			}
			if view.AssetID != "" {
				assets.add(view.AssetID)
			}
		}

		switch view.SafeToOperate {
		case ComplianceYes:
			s.SafeToOperate.Yes++
		case ComplianceNo:
			s.SafeToOperate.No++
		}
	}

	s.FailuresByLocation = locations.ranked()
	s.FailuresByAsset = assets.ranked()
	return s
}

// PassRate returns round((1 - withFailures/total) * 100), or 0 when the
// window holds no inspections.
func PassRate(s Summary) int {
	if s.TotalInspections == 0 {
		return 0
	}
	ratio := float64(s.InspectionsWithFailures) / float64(s.TotalInspections)
	return int(math.Round((1 - ratio) * 100))
}

// Percent returns part as a whole-number percentage of total, 0 when total
// is 0.
func Percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

// RankedItems returns the vocabulary items ordered by failure count
// descending, ties in vocabulary order. Zero counts are included.
func (s Summary) RankedItems() []KeyCount {
	out := make([]KeyCount, 0, len(InspectionItems))
	for _, it := range InspectionItems {
		out = append(out, KeyCount{Key: it.Key, Label: it.Label, Count: s.FailuresByItem[it.Key]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// TopAssets returns at most n entries of FailuresByAsset.
func (s Summary) TopAssets(n int) []KeyCount {
	if n < 0 || len(s.FailuresByAsset) <= n {
		return s.FailuresByAsset
	}
	return s.FailuresByAsset[:n]
}

// SortMostRecentFirst orders subs by SubmittedAt descending in place. Equal
// timestamps fall back to ID so the order is total.
func SortMostRecentFirst(subs []types.Submission) {
	sort.SliceStable(subs, func(i, j int) bool {
		if !subs[i].SubmittedAt.Equal(subs[j].SubmittedAt) {
			return subs[i].SubmittedAt.After(subs[j].SubmittedAt)
		}
		return subs[i].ID < subs[j].ID
	})
}

// counter is a count-by-key reduction that remembers first-seen order.
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

func (c *counter) ranked() []KeyCount {
	out := make([]KeyCount, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, KeyCount{Key: k, Count: c.counts[k]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}
