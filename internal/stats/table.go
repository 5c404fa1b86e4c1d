package stats

import (
	"sort"

	"digiprofile/api/internal/wardstat"
)

type View string

const (
	ViewList View = "list"
	ViewGrid View = "grid"
)

// ParseView maps a query value to a view, defaulting to list.
func ParseView(value string) View {
	if View(value) == ViewGrid {
		return ViewGrid
	}
	return ViewList
}

// TableOptions filters and orders a table. Ward 0 and Category "" mean no
// filter. CategoryOrder, when set, orders categories by their position in it;
// unknown codes sort last alphabetically. Label, when set, fills row labels.
type TableOptions struct {
	View          View
	Ward          int
	Category      string
	CategoryOrder []string
	Label         func(code string) string
}

type TableRow struct {
	ID         string  `json:"id"`
	WardNumber int     `json:"wardNumber"`
	Category   string  `json:"category"`
	Label      string  `json:"label,omitempty"`
	Value      int64   `json:"value"`
	Percent    Percent `json:"percent"`
}

// WardSection is one ward block of the list view.
type WardSection struct {
	WardNumber int        `json:"wardNumber"`
	Rows       []TableRow `json:"rows"`
	Subtotal   int64      `json:"subtotal"`
}

// GridRow is one ward of the pivot view; Cells align with Table.Columns.
type GridRow struct {
	WardNumber int     `json:"wardNumber"`
	Cells      []int64 `json:"cells"`
	Total      int64   `json:"total"`
}

type Column struct {
	Category string `json:"category"`
	Label    string `json:"label,omitempty"`
}

type Table struct {
	View       View     `json:"view"`
	Wards      []int    `json:"wards"`
	Categories []string `json:"categories"`

	Sections []WardSection `json:"sections,omitempty"`

	Columns      []Column  `json:"columns,omitempty"`
	Grid         []GridRow `json:"grid,omitempty"`
	ColumnTotals []int64   `json:"columnTotals,omitempty"`

	GrandTotal int64 `json:"grandTotal"`
	RowCount   int   `json:"rowCount"`
}

// Empty reports whether the filtered table has no rows.
func (t Table) Empty() bool {
	return t.RowCount == 0
}

// BuildTable groups records by ward for the list view or pivots them into a
// ward by category grid. Filter dropdown values come from the unfiltered input.
func BuildTable(records []wardstat.Record, opts TableOptions) Table {
	order := categoryOrder(opts.CategoryOrder)
	table := Table{
		View:       ParseView(string(opts.View)),
		Wards:      uniqueWards(records),
		Categories: uniqueCategories(records, order),
	}

	filtered := filter(records, opts.Ward, opts.Category)
	table.RowCount = len(filtered)
	byWard := groupByWard(filtered)
	wards := make([]int, 0, len(byWard))
	for ward := range byWard {
		wards = append(wards, ward)
	}
	sort.Ints(wards)

	for _, r := range filtered {
		table.GrandTotal += r.Value
	}

	if table.View == ViewGrid {
		columns := uniqueCategories(filtered, order)
		index := make(map[string]int, len(columns))
		for i, code := range columns {
			index[code] = i
			table.Columns = append(table.Columns, Column{Category: code, Label: label(opts.Label, code)})
		}
		table.ColumnTotals = make([]int64, len(columns))
		for _, ward := range wards {
			row := GridRow{WardNumber: ward, Cells: make([]int64, len(columns))}
			for _, r := range byWard[ward] {
				i := index[r.Category]
				row.Cells[i] += r.Value
				row.Total += r.Value
				table.ColumnTotals[i] += r.Value
			}
			table.Grid = append(table.Grid, row)
		}
		return table
	}

	for _, ward := range wards {
		rows := byWard[ward]
		sort.SliceStable(rows, func(a, b int) bool {
			return order.less(rows[a].Category, rows[b].Category)
		})
		values := make([]int64, len(rows))
		section := WardSection{WardNumber: ward, Rows: make([]TableRow, len(rows))}
		for i, r := range rows {
			values[i] = r.Value
			section.Subtotal += r.Value
		}
		percents := shares(values)
		for i, r := range rows {
			section.Rows[i] = TableRow{
				ID:         r.ID,
				WardNumber: r.WardNumber,
				Category:   r.Category,
				Label:      label(opts.Label, r.Category),
				Value:      r.Value,
				Percent:    percents[i],
			}
		}
		table.Sections = append(table.Sections, section)
	}
	return table
}

func filter(records []wardstat.Record, ward int, category string) []wardstat.Record {
	out := make([]wardstat.Record, 0, len(records))
	for _, r := range records {
		if ward > 0 && r.WardNumber != ward {
			continue
		}
		if category != "" && r.Category != category {
			continue
		}
		out = append(out, r)
	}
	return out
}

func groupByWard(records []wardstat.Record) map[int][]wardstat.Record {
	out := make(map[int][]wardstat.Record)
	for _, r := range records {
		out[r.WardNumber] = append(out[r.WardNumber], r)
	}
	return out
}

func uniqueWards(records []wardstat.Record) []int {
	seen := make(map[int]struct{})
	wards := make([]int, 0)
	for _, r := range records {
		if _, ok := seen[r.WardNumber]; ok {
			continue
		}
		seen[r.WardNumber] = struct{}{}
		wards = append(wards, r.WardNumber)
	}
	sort.Ints(wards)
	return wards
}

func uniqueCategories(records []wardstat.Record, order orderIndex) []string {
	seen := make(map[string]struct{})
	codes := make([]string, 0)
	for _, r := range records {
		if _, ok := seen[r.Category]; ok {
			continue
		}
		seen[r.Category] = struct{}{}
		codes = append(codes, r.Category)
	}
	sort.Slice(codes, func(a, b int) bool { return order.less(codes[a], codes[b]) })
	return codes
}

type orderIndex map[string]int

func categoryOrder(codes []string) orderIndex {
	idx := make(orderIndex, len(codes))
	for i, c := range codes {
		if _, ok := idx[c]; !ok {
			idx[c] = i
		}
	}
	return idx
}

func (o orderIndex) less(a, b string) bool {
	ia, okA := o[a]
	ib, okB := o[b]
	switch {
	case okA && okB:
		return ia < ib
	case okA != okB:
		return okA
	default:
		return a < b
	}
}

func label(fn func(string) string, code string) string {
	if fn == nil {
		return ""
	}
	return fn(code)
}
