package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"digiprofile/api/internal/catalog"
	"digiprofile/api/internal/wardstat"
)

// ParseWorkbook reads the first sheet of an xlsx upload. The header row names
// the columns: the ward ("wardNumber" or "ward"), the category ("category",
// the dataset's category field, or "code") and the value ("value" or the
// metric name). Category cells may hold the code or a label in either
// language. Every row is validated; when any row fails, no records are
// returned and the error is ImportErrors. A slot repeated within the file is
// a row error.
func ParseWorkbook(r io.Reader, ds catalog.Dataset, maxWard int) ([]wardstat.Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadWorkbook, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: no sheets", ErrBadWorkbook)
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadWorkbook, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty sheet", ErrBadWorkbook)
	}

	cols, err := headerColumns(rows[0], ds)
	if err != nil {
		return nil, err
	}
	codes := categoryLookup(ds)

	var (
		records []wardstat.Record
		failed  ImportErrors
		seen    = map[wardstat.Key]int{}
	)
	for i, row := range rows[1:] {
		rowNum := i + 2
		ward, category, value := cell(row, cols.ward), cell(row, cols.category), cell(row, cols.value)
		if ward == "" && category == "" && value == "" {
			continue
		}
		if code, ok := codes[strings.ToLower(category)]; ok {
			category = code
		}
		rec, errs := wardstat.Validate(ds, maxWard, wardstat.RawFromStrings(latinDigits(ward), category, latinDigits(value)))
		if errs == nil {
			if first, dup := seen[rec.Key()]; dup {
				errs = wardstat.FieldErrors{{
					Field:   "category",
					Code:    wardstat.CodeDuplicate,
					Message: fmt.Sprintf("ward %d %s already given on row %d", rec.WardNumber, rec.Category, first),
				}}
			} else {
				seen[rec.Key()] = rowNum
			}
		}
		if errs != nil {
			failed = append(failed, RowError{Row: rowNum, Errors: errs})
			continue
		}
		records = append(records, rec)
	}
	if len(failed) > 0 {
		return nil, failed
	}
	return records, nil
}

type columns struct {
	ward, category, value int
}

func headerColumns(header []string, ds catalog.Dataset) (columns, error) {
	cols := columns{ward: -1, category: -1, value: -1}
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		switch {
		case key == "wardnumber" || key == "ward":
			setOnce(&cols.ward, i)
		case key == "category" || key == "code" || key == strings.ToLower(ds.CategoryField):
			setOnce(&cols.category, i)
		case key == "value" || key == string(ds.Metric):
			setOnce(&cols.value, i)
		}
	}
	var missing []string
	if cols.ward < 0 {
		missing = append(missing, "wardNumber")
	}
	if cols.category < 0 {
		missing = append(missing, ds.CategoryField)
	}
	if cols.value < 0 {
		missing = append(missing, string(ds.Metric))
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("%w: missing columns %s", ErrBadWorkbook, strings.Join(missing, ", "))
	}
	return cols, nil
}

func setOnce(dst *int, i int) {
	if *dst < 0 {
		*dst = i
	}
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

// categoryLookup maps lowercased codes and labels to codes.
func categoryLookup(ds catalog.Dataset) map[string]string {
	out := make(map[string]string, len(ds.Categories)*3)
	for _, c := range ds.Categories {
		for _, alias := range []string{c.Label.Ne, c.Label.En, c.Code} {
			if alias != "" {
				out[strings.ToLower(alias)] = c.Code
			}
		}
	}
	return out
}

// latinDigits rewrites Devanagari digits as ASCII.
func latinDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '०' && r <= '९' {
			return '0' + (r - '०')
		}
		return r
	}, s)
}
