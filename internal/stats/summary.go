package stats

import (
	"sort"

	"digiprofile/api/internal/wardstat"
)

type WardTotal struct {
	WardNumber int     `json:"wardNumber"`
	Total      int64   `json:"total"`
	Percent    Percent `json:"percent"`
}

type CategoryTotal struct {
	Category string  `json:"category"`
	Label    string  `json:"label,omitempty"`
	Total    int64   `json:"total"`
	Percent  Percent `json:"percent"`
}

// Summary is the badge strip plus per-ward and per-category totals.
type Summary struct {
	Badges     Badges          `json:"badges"`
	Wards      []WardTotal     `json:"wards"`
	Categories []CategoryTotal `json:"categories"`
	Records    int             `json:"records"`
}

// BuildSummary totals records per ward and per category. Categories follow
// order; percentages use the same largest-remainder split as the table.
func BuildSummary(records []wardstat.Record, order []string, labelFn func(string) string) Summary {
	idx := categoryOrder(order)
	chart := BuildChart(records, ChartOptions{TopN: len(records) + 1, Label: labelFn})
	summary := Summary{Badges: chart.Badges, Records: len(records)}

	byWard := groupByWard(records)
	wards := make([]int, 0, len(byWard))
	for w := range byWard {
		wards = append(wards, w)
	}
	sort.Ints(wards)
	wardValues := make([]int64, len(wards))
	for i, w := range wards {
		for _, r := range byWard[w] {
			wardValues[i] += r.Value
		}
	}
	for i, p := range shares(wardValues) {
		summary.Wards = append(summary.Wards, WardTotal{WardNumber: wards[i], Total: wardValues[i], Percent: p})
	}

	buckets := chart.Buckets
	sort.SliceStable(buckets, func(a, b int) bool { return idx.less(buckets[a].Key, buckets[b].Key) })
	for _, b := range buckets {
		summary.Categories = append(summary.Categories, CategoryTotal{
			Category: b.Key,
			Label:    b.Label,
			Total:    b.Value,
			Percent:  b.Percent,
		})
	}
	return summary
}
