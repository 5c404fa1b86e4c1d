package stats

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digiprofile/api/internal/wardstat"
)

func rec(ward int, category string, value int64) wardstat.Record {
	return wardstat.Record{
		ID:         fmt.Sprintf("r_%d_%s", ward, category),
		Dataset:    "d",
		WardNumber: ward,
		Category:   category,
		Value:      value,
	}
}

// randomRecords produces at most one record per (ward, category).
func randomRecords(rng *rand.Rand) []wardstat.Record {
	codes := []string{"A", "B", "C", "D", "E", "F", "G", "H"}
	var out []wardstat.Record
	wards := 1 + rng.Intn(9)
	for ward := 1; ward <= wards; ward++ {
		for _, code := range codes {
			if rng.Intn(3) == 0 {
				continue
			}
			out = append(out, rec(ward, code, int64(rng.Intn(500))))
		}
	}
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func sum(records []wardstat.Record) int64 {
	var total int64
	for _, r := range records {
		total += r.Value
	}
	return total
}

func TestSharesLargestRemainder(t *testing.T) {
	assert.Equal(t, []Percent{3334, 3333, 3333}, shares([]int64{1, 1, 1}))
	assert.Equal(t, []Percent{0, 0}, shares([]int64{0, 0}))
	assert.Equal(t, []Percent{10000, 0}, shares([]int64{7, 0}))
	assert.Equal(t, []Percent{1667, 3333, 5000}, shares([]int64{1, 2, 3}))
	assert.Equal(t, []Percent{10000, 0}, shares([]int64{5, -2}))
	assert.Equal(t, "33.34", Percent(3334).String())
	assert.Equal(t, "0.05", Percent(5).String())
}

func TestSharesLargeValues(t *testing.T) {
	const huge = int64(1) << 62
	got := shares([]int64{huge, 1})
	assert.Equal(t, []Percent{10000, 0}, got)

	got = shares([]int64{huge, huge / 3})
	assert.Equal(t, []Percent{7500, 2500}, got)

	table := BuildTable([]wardstat.Record{rec(1, "A", 1_000_000_000_000_000), rec(1, "B", 1)}, TableOptions{})
	require.Len(t, table.Sections, 1)
	var total Percent
	for _, row := range table.Sections[0].Rows {
		total += row.Percent
	}
	assert.Equal(t, whole, total)
}

func TestListTableGroupsByWardWithSubtotals(t *testing.T) {
	records := []wardstat.Record{
		rec(2, "B", 30), rec(1, "B", 10), rec(1, "A", 30), rec(2, "A", 0),
	}
	table := BuildTable(records, TableOptions{View: ViewList, CategoryOrder: []string{"A", "B"}})

	assert.Equal(t, []int{1, 2}, table.Wards)
	assert.Equal(t, []string{"A", "B"}, table.Categories)
	require.Len(t, table.Sections, 2)
	assert.Equal(t, 1, table.Sections[0].WardNumber)
	assert.Equal(t, int64(40), table.Sections[0].Subtotal)
	assert.Equal(t, "A", table.Sections[0].Rows[0].Category)
	assert.Equal(t, Percent(7500), table.Sections[0].Rows[0].Percent)
	assert.Equal(t, Percent(2500), table.Sections[0].Rows[1].Percent)
	assert.Equal(t, Percent(10000), table.Sections[1].Rows[1].Percent)
	assert.Equal(t, int64(70), table.GrandTotal)
}

func TestTableFiltersKeepDropdownValues(t *testing.T) {
	records := []wardstat.Record{rec(1, "A", 5), rec(2, "A", 6), rec(2, "B", 7)}

	table := BuildTable(records, TableOptions{Ward: 2, Category: "B"})
	assert.Equal(t, []int{1, 2}, table.Wards)
	assert.Equal(t, []string{"A", "B"}, table.Categories)
	assert.Equal(t, int64(7), table.GrandTotal)
	assert.Equal(t, 1, table.RowCount)

	empty := BuildTable(records, TableOptions{Ward: 9})
	assert.True(t, empty.Empty())
	assert.Zero(t, empty.GrandTotal)
}

func TestGridTablePivot(t *testing.T) {
	records := []wardstat.Record{rec(1, "A", 1), rec(1, "B", 2), rec(3, "B", 4)}
	table := BuildTable(records, TableOptions{View: ViewGrid, Label: func(c string) string { return "cat " + c }})

	require.Len(t, table.Columns, 2)
	assert.Equal(t, Column{Category: "A", Label: "cat A"}, table.Columns[0])
	require.Len(t, table.Grid, 2)
	assert.Equal(t, GridRow{WardNumber: 1, Cells: []int64{1, 2}, Total: 3}, table.Grid[0])
	assert.Equal(t, GridRow{WardNumber: 3, Cells: []int64{0, 4}, Total: 4}, table.Grid[1])
	assert.Equal(t, []int64{1, 6}, table.ColumnTotals)
	assert.Equal(t, int64(7), table.GrandTotal)
}

func TestChartTopNAndOther(t *testing.T) {
	records := []wardstat.Record{
		rec(1, "A", 50), rec(1, "B", 40), rec(2, "C", 40), rec(2, "D", 5), rec(3, "E", 3),
	}
	chart := BuildChart(records, ChartOptions{TopN: 2})

	require.Len(t, chart.Buckets, 3)
	assert.Equal(t, "A", chart.Buckets[0].Key)
	assert.Equal(t, "B", chart.Buckets[1].Key, "ties break by code")
	assert.Equal(t, OtherKey, chart.Buckets[2].Key)
	assert.Equal(t, []string{"C", "D", "E"}, chart.Buckets[2].Categories)
	assert.Equal(t, int64(48), chart.Buckets[2].Value)

	assert.Equal(t, int64(138), chart.Badges.TotalValue)
	assert.Equal(t, 3, chart.Badges.WardCount)
	assert.Equal(t, "A", chart.Badges.LeadingCategory)
	assert.Equal(t, "36.23", chart.Badges.LeadingShare.String())
}

func TestChartLeadingShareMatchesBucket(t *testing.T) {
	chart := BuildChart([]wardstat.Record{rec(1, "A", 1), rec(1, "B", 1), rec(1, "C", 1)}, ChartOptions{})
	require.Len(t, chart.Buckets, 3)
	assert.Equal(t, chart.Buckets[0].Percent, chart.Badges.LeadingShare)
	assert.Equal(t, "33.34", chart.Badges.LeadingShare.String())
}

func TestChartNoOtherWhenEverythingFits(t *testing.T) {
	chart := BuildChart([]wardstat.Record{rec(1, "A", 1), rec(1, "B", 2)}, ChartOptions{})
	require.Len(t, chart.Buckets, 2)
	for _, b := range chart.Buckets {
		assert.NotEqual(t, OtherKey, b.Key)
	}
}

func TestChartWardAxisStacksBuckets(t *testing.T) {
	records := []wardstat.Record{rec(2, "A", 5), rec(1, "A", 1), rec(1, "B", 3), rec(2, "C", 1)}
	chart := BuildChart(records, ChartOptions{Axis: AxisWard, TopN: 1})

	require.Len(t, chart.Buckets, 2)
	require.Len(t, chart.Wards, 2)
	assert.Equal(t, WardBar{WardNumber: 1, Values: []int64{1, 3}, Total: 4}, chart.Wards[0])
	assert.Equal(t, WardBar{WardNumber: 2, Values: []int64{5, 1}, Total: 6}, chart.Wards[1])
}

func TestChartEmpty(t *testing.T) {
	chart := BuildChart(nil, ChartOptions{})
	assert.True(t, chart.Empty())
	assert.Zero(t, chart.Badges.LeadingShare)
}

func TestSummary(t *testing.T) {
	records := []wardstat.Record{rec(1, "B", 1), rec(2, "A", 3)}
	summary := BuildSummary(records, []string{"A", "B"}, nil)

	assert.Equal(t, 2, summary.Records)
	assert.Equal(t, []WardTotal{{WardNumber: 1, Total: 1, Percent: 2500}, {WardNumber: 2, Total: 3, Percent: 7500}}, summary.Wards)
	require.Len(t, summary.Categories, 2)
	assert.Equal(t, "A", summary.Categories[0].Category)
	assert.Equal(t, int64(4), summary.Badges.TotalValue)
}

func TestAggregationProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		records := randomRecords(rng)
		want := sum(records)

		list := BuildTable(records, TableOptions{View: ViewList})
		grid := BuildTable(records, TableOptions{View: ViewGrid})
		assert.Equal(t, want, list.GrandTotal)
		assert.Equal(t, want, grid.GrandTotal)

		for _, section := range list.Sections {
			var subtotal int64
			var percent Percent
			for _, row := range section.Rows {
				subtotal += row.Value
				percent += row.Percent
			}
			assert.Equal(t, section.Subtotal, subtotal)
			if section.Subtotal > 0 {
				assert.Equal(t, Percent(10000), percent, "ward %d", section.WardNumber)
			} else {
				assert.Zero(t, percent)
			}
		}

		var gridSum int64
		for _, total := range grid.ColumnTotals {
			gridSum += total
		}
		assert.Equal(t, want, gridSum)

		topN := 1 + rng.Intn(6)
		byCategory := BuildChart(records, ChartOptions{Axis: AxisCategory, TopN: topN})
		byWard := BuildChart(records, ChartOptions{Axis: AxisWard, TopN: topN})
		assert.Equal(t, want, byCategory.Badges.TotalValue)
		assert.Equal(t, byCategory.Badges, byWard.Badges)

		seen := map[string]int{}
		var bucketSum int64
		for _, b := range byCategory.Buckets {
			bucketSum += b.Value
			for _, c := range b.Categories {
				seen[c]++
			}
		}
		assert.Equal(t, want, bucketSum)
		assert.Len(t, seen, len(list.Categories))
		for c, n := range seen {
			assert.Equal(t, 1, n, "category %s in more than one bucket", c)
		}

		var stacked int64
		for _, w := range byWard.Wards {
			stacked += w.Total
		}
		assert.Equal(t, want, stacked)
	}
}
