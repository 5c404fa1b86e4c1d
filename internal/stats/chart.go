package stats

import (
	"sort"

	"digiprofile/api/internal/wardstat"
)

type Axis string

const (
	AxisCategory Axis = "category"
	AxisWard     Axis = "ward"
)

// OtherKey names the bucket that collects categories outside the top N.
const OtherKey = "other"

const DefaultTopN = 5

func ParseAxis(value string) Axis {
	if Axis(value) == AxisWard {
		return AxisWard
	}
	return AxisCategory
}

type ChartOptions struct {
	Axis  Axis
	Ward  int
	TopN  int
	Label func(code string) string
	// OtherLabel is the display label of the other bucket.
	OtherLabel string
}

// Bucket is one series of the chart: a single top category, or the other
// bucket holding every remaining category.
type Bucket struct {
	Key        string   `json:"key"`
	Label      string   `json:"label,omitempty"`
	Categories []string `json:"categories"`
	Value      int64    `json:"value"`
	Percent    Percent  `json:"percent"`
}

type WardBar struct {
	WardNumber int     `json:"wardNumber"`
	Values     []int64 `json:"values"`
	Total      int64   `json:"total"`
}

type Badges struct {
	TotalValue      int64   `json:"totalValue"`
	WardCount       int     `json:"wardCount"`
	LeadingCategory string  `json:"leadingCategory,omitempty"`
	LeadingLabel    string  `json:"leadingLabel,omitempty"`
	LeadingShare    Percent `json:"leadingShare"`
}

// Chart holds the bar and pie series. Buckets double as pie slices and, on the
// category axis, as bars. On the ward axis Wards carries one stacked bar per
// ward whose Values align with Buckets.
type Chart struct {
	Axis    Axis      `json:"axis"`
	Buckets []Bucket  `json:"buckets"`
	Wards   []WardBar `json:"wards,omitempty"`
	Badges  Badges    `json:"badges"`
}

func (c Chart) Empty() bool {
	return c.Badges.TotalValue == 0 && len(c.Buckets) == 0
}

// BuildChart ranks categories by total value, descending with ties broken by
// code, keeps the top N as their own buckets and folds the rest into other.
func BuildChart(records []wardstat.Record, opts ChartOptions) Chart {
	topN := opts.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	filtered := filter(records, opts.Ward, "")
	chart := Chart{Axis: ParseAxis(string(opts.Axis))}

	totals := make(map[string]int64)
	for _, r := range filtered {
		totals[r.Category] += r.Value
		chart.Badges.TotalValue += r.Value
	}
	ranked := make([]string, 0, len(totals))
	for code := range totals {
		ranked = append(ranked, code)
	}
	sort.Slice(ranked, func(a, b int) bool {
		va, vb := totals[ranked[a]], totals[ranked[b]]
		if va != vb {
			return va > vb
		}
		return ranked[a] < ranked[b]
	})

	bucketOf := make(map[string]int, len(ranked))
	for i, code := range ranked {
		if i < topN {
			bucketOf[code] = len(chart.Buckets)
			chart.Buckets = append(chart.Buckets, Bucket{
				Key:        code,
				Label:      label(opts.Label, code),
				Categories: []string{code},
				Value:      totals[code],
			})
			continue
		}
		if i == topN {
			other := opts.OtherLabel
			if other == "" {
				other = "Other"
			}
			chart.Buckets = append(chart.Buckets, Bucket{Key: OtherKey, Label: other})
		}
		last := len(chart.Buckets) - 1
		bucketOf[code] = last
		chart.Buckets[last].Categories = append(chart.Buckets[last].Categories, code)
		chart.Buckets[last].Value += totals[code]
	}

	values := make([]int64, len(chart.Buckets))
	for i, b := range chart.Buckets {
		values[i] = b.Value
	}
	for i, p := range shares(values) {
		chart.Buckets[i].Percent = p
	}

	byWard := groupByWard(filtered)
	chart.Badges.WardCount = len(byWard)
	if len(ranked) > 0 {
		lead := ranked[0]
		chart.Badges.LeadingCategory = lead
		chart.Badges.LeadingLabel = label(opts.Label, lead)
		chart.Badges.LeadingShare = chart.Buckets[bucketOf[lead]].Percent
	}

	if chart.Axis == AxisWard {
		wards := make([]int, 0, len(byWard))
		for ward := range byWard {
			wards = append(wards, ward)
		}
		sort.Ints(wards)
		for _, ward := range wards {
			bar := WardBar{WardNumber: ward, Values: make([]int64, len(chart.Buckets))}
			for _, r := range byWard[ward] {
				bar.Values[bucketOf[r.Category]] += r.Value
				bar.Total += r.Value
			}
			chart.Wards = append(chart.Wards, bar)
		}
	}
	return chart
}
