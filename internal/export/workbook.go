package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"digiprofile/api/internal/catalog"
	"digiprofile/api/internal/stats"
	"digiprofile/api/internal/wardstat"
)

const (
	sheetRecords = "Records"
	sheetGrid    = "Grid"
)

// Workbook writes the dataset as an xlsx file with a list sheet (one row per
// record, with its share of the ward total) and a ward by category grid.
// The list sheet is laid out so it can be re-imported unchanged.
func Workbook(ds catalog.Dataset, records []wardstat.Record, lang catalog.Lang) (*Result, error) {
	labelFn := func(code string) string { return ds.Label(code, lang) }
	list := stats.BuildTable(records, stats.TableOptions{View: stats.ViewList, CategoryOrder: ds.Codes(), Label: labelFn})
	grid := stats.BuildTable(records, stats.TableOptions{View: stats.ViewGrid, CategoryOrder: ds.Codes(), Label: labelFn})

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetRecords); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetGrid); err != nil {
		return nil, fmt.Errorf("add grid sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("style: %w", err)
	}

	if err := writeListSheet(f, ds, list, bold); err != nil {
		return nil, err
	}
	if err := writeGridSheet(f, grid, bold); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(ds.Slug) + ".xlsx",
		MimeType: mimeXLSX,
	}, nil
}

func writeListSheet(f *excelize.File, ds catalog.Dataset, table stats.Table, bold int) error {
	header := []any{"wardNumber", ds.CategoryField, "label", string(ds.Metric), "percentOfWard"}
	if err := f.SetSheetRow(sheetRecords, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(sheetRecords, "A1", "E1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	row := 2
	for _, section := range table.Sections {
		for _, r := range section.Rows {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			values := []any{r.WardNumber, r.Category, r.Label, r.Value, r.Percent.Float()}
			if err := f.SetSheetRow(sheetRecords, cell, &values); err != nil {
				return fmt.Errorf("write row %d: %w", row, err)
			}
			row++
		}
	}
	return f.SetColWidth(sheetRecords, "B", "C", 28)
}

func writeGridSheet(f *excelize.File, table stats.Table, bold int) error {
	header := []any{"wardNumber"}
	for _, col := range table.Columns {
		header = append(header, col.Label)
	}
	header = append(header, "total")
	if err := f.SetSheetRow(sheetGrid, "A1", &header); err != nil {
		return fmt.Errorf("write grid header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheetGrid, "A1", last, bold); err != nil {
		return fmt.Errorf("style grid header: %w", err)
	}

	row := 2
	for _, g := range table.Grid {
		values := []any{g.WardNumber}
		for _, v := range g.Cells {
			values = append(values, v)
		}
		values = append(values, g.Total)
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetGrid, cell, &values); err != nil {
			return fmt.Errorf("write grid row %d: %w", row, err)
		}
		row++
	}

	totals := []any{"total"}
	for _, v := range table.ColumnTotals {
		totals = append(totals, v)
	}
	totals = append(totals, table.GrandTotal)
	cell, _ := excelize.CoordinatesToCellName(1, row)
	if err := f.SetSheetRow(sheetGrid, cell, &totals); err != nil {
		return fmt.Errorf("write grid totals: %w", err)
	}
	end, _ := excelize.CoordinatesToCellName(len(totals), row)
	return f.SetCellStyle(sheetGrid, cell, end, bold)
}
