package export

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"digiprofile/api/internal/catalog"
	"digiprofile/api/internal/wardstat"
)

func incomeDataset(t *testing.T) catalog.Dataset {
	t.Helper()
	ds, ok := catalog.MustLoad().Lookup("ward-wise-annual-income-sustenance")
	require.True(t, ok)
	return ds
}

func sampleRecords() []wardstat.Record {
	return []wardstat.Record{
		{ID: "r1", WardNumber: 1, Category: "TWELVE_MONTHS", Value: 30},
		{ID: "r2", WardNumber: 1, Category: "UPTO_THREE_MONTHS", Value: 10},
		{ID: "r3", WardNumber: 2, Category: "UPTO_THREE_MONTHS", Value: 5},
	}
}

// buildWorkbook writes rows to the first sheet of a new xlsx file.
func buildWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestParseFormat(t *testing.T) {
	for input, want := range map[string]Format{"": FormatXLSX, "XLSX": FormatXLSX, " pdf ": FormatPDF} {
		got, err := ParseFormat(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
	_, err := ParseFormat("docx")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestPercentEncodeForDataURL(t *testing.T) {
	assert.Equal(t, "a%20b%3Cp%3E~", percentEncodeForDataURL("a b<p>~"))
	assert.Equal(t, "%E0%A4%B5", percentEncodeForDataURL("व"))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "ward-wise-major-skills", sanitizeFilename("ward-wise-major-skills"))
	assert.Equal(t, "Ward-report-2024", sanitizeFilename("Ward report: 2024!"))
	assert.Equal(t, "dataset", sanitizeFilename("वडा"))
}

func TestWorkbookRoundTripsThroughImport(t *testing.T) {
	ds := incomeDataset(t)
	result, err := Workbook(ds, sampleRecords(), catalog.LangEnglish)
	require.NoError(t, err)
	assert.Equal(t, "ward-wise-annual-income-sustenance.xlsx", result.Filename)
	assert.Equal(t, mimeXLSX, result.MimeType)

	records, err := ParseWorkbook(bytes.NewReader(result.Data), ds, 32)
	require.NoError(t, err)
	require.Len(t, records, 3)

	got := map[wardstat.Key]int64{}
	for _, r := range records {
		assert.Equal(t, ds.Slug, r.Dataset)
		got[r.Key()] = r.Value
	}
	assert.Equal(t, map[wardstat.Key]int64{
		{WardNumber: 1, Category: "TWELVE_MONTHS"}:     30,
		{WardNumber: 1, Category: "UPTO_THREE_MONTHS"}: 10,
		{WardNumber: 2, Category: "UPTO_THREE_MONTHS"}: 5,
	}, got)
}

func TestWorkbookGridSheet(t *testing.T) {
	ds := incomeDataset(t)
	result, err := Workbook(ds, sampleRecords(), catalog.LangEnglish)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(result.Data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{sheetRecords, sheetGrid}, f.GetSheetList())

	rows, err := f.GetRows(sheetGrid)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"wardNumber", "Up to 3 months", "Whole year", "total"},
		{"1", "10", "30", "40"},
		{"2", "5", "0", "5"},
		{"total", "15", "30", "45"},
	}, rows)
}

func TestParseWorkbookAcceptsLabelsAndDevanagariDigits(t *testing.T) {
	ds := incomeDataset(t)
	buf := buildWorkbook(t, [][]any{
		{"Ward", "monthsSustained", "households"},
		{"३", "वर्षभरि", "१२"},
		{4, "3 to 6 months", 8},
		{},
	})

	records, err := ParseWorkbook(buf, ds, 32)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, wardstat.Key{WardNumber: 3, Category: "TWELVE_MONTHS"}, records[0].Key())
	assert.Equal(t, int64(12), records[0].Value)
	assert.Equal(t, "THREE_TO_SIX_MONTHS", records[1].Category)
}

func TestParseWorkbookCollectsRowErrors(t *testing.T) {
	ds := incomeDataset(t)
	buf := buildWorkbook(t, [][]any{
		{"wardNumber", "category", "value"},
		{1, "TWELVE_MONTHS", 5},
		{40, "TWELVE_MONTHS", -1},
		{1, "TWELVE_MONTHS", 7},
		{2, "FOREVER", 1},
	})

	records, err := ParseWorkbook(buf, ds, 32)
	assert.Nil(t, records)
	var rowErrs ImportErrors
	require.True(t, errors.As(err, &rowErrs), "got %v", err)
	require.Len(t, rowErrs, 3)

	assert.Equal(t, 3, rowErrs[0].Row)
	assert.True(t, rowErrs[0].Errors.Has("wardNumber"))
	assert.True(t, rowErrs[0].Errors.Has("value"))
	assert.Equal(t, 4, rowErrs[1].Row)
	assert.Equal(t, wardstat.CodeDuplicate, rowErrs[1].Errors[0].Code)
	assert.Equal(t, 5, rowErrs[2].Row)
	assert.Equal(t, wardstat.CodeInvalidEnum, rowErrs[2].Errors[0].Code)
}

func TestParseWorkbookRejectsMissingColumnsAndGarbage(t *testing.T) {
	ds := incomeDataset(t)
	_, err := ParseWorkbook(buildWorkbook(t, [][]any{{"ward", "value"}}), ds, 32)
	assert.True(t, errors.Is(err, ErrBadWorkbook))
	assert.Contains(t, err.Error(), "monthsSustained")

	_, err = ParseWorkbook(bytes.NewReader([]byte("not a zip")), ds, 32)
	assert.True(t, errors.Is(err, ErrBadWorkbook))
}

type fakePages struct {
	html []byte
	lang catalog.Lang
}

func (f *fakePages) RenderPrint(_ context.Context, _ catalog.Dataset, _ []wardstat.Record, lang catalog.Lang) ([]byte, error) {
	f.lang = lang
	return f.html, nil
}

func TestServiceExportPDFUsesRenderedPage(t *testing.T) {
	pages := &fakePages{html: []byte("<html><body>report</body></html>")}
	var printed []byte
	svc := NewService(pages, func(_ context.Context, html []byte) ([]byte, error) {
		printed = html
		return []byte("%PDF-1.7"), nil
	})

	result, err := svc.Export(context.Background(), Request{Format: FormatPDF, Dataset: incomeDataset(t), Lang: catalog.LangNepali})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.MimeType)
	assert.Equal(t, "ward-wise-annual-income-sustenance.pdf", result.Filename)
	assert.Equal(t, pages.html, printed)
	assert.Equal(t, catalog.LangNepali, pages.lang)

	_, err = svc.Export(context.Background(), Request{Format: "csv"})
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestServiceExportPDFPropagatesMissingChrome(t *testing.T) {
	svc := NewService(&fakePages{}, func(context.Context, []byte) ([]byte, error) {
		return nil, ErrPDFDependencyMissing
	})
	_, err := svc.Export(context.Background(), Request{Format: FormatPDF, Dataset: incomeDataset(t)})
	assert.True(t, errors.Is(err, ErrPDFDependencyMissing))
}
