// Package report renders the public, server-side HTML pages of every ward
// statistic dataset in English and Nepali, with structured data for search
// engines and an XML sitemap.
package report

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"digiprofile/api/internal/catalog"
	"digiprofile/api/internal/stats"
	"digiprofile/api/internal/wardstat"
)

//go:embed templates/*.html
var templateFS embed.FS

var ErrUnknownDataset = errors.New("unknown dataset")

const (
	stateReady = "ready"
	stateEmpty = "empty"
	stateError = "error"
)

// Source loads the records of a dataset.
type Source interface {
	DatasetRecords(ctx context.Context, slug string) ([]wardstat.Record, error)
}

type Options struct {
	// BaseURL is the absolute origin used for canonical and alternate links.
	BaseURL   string
	PlaceName string
	Logger    *zap.Logger
}

type Renderer struct {
	catalog *catalog.Catalog
	source  Source
	baseURL string
	place   string
	logger  *zap.Logger
	tmpl    *template.Template
}

// Page is a rendered HTML document and the status it is served with.
type Page struct {
	Status int
	HTML   []byte
}

func New(cat *catalog.Catalog, source Source, opts Options) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse report templates: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{
		catalog: cat,
		source:  source,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		place:   opts.PlaceName,
		logger:  logger,
		tmpl:    tmpl,
	}, nil
}

// ReportPath is the site path of a dataset report in lang.
func ReportPath(slug string, lang catalog.Lang) string {
	return IndexPath(lang) + "/" + slug
}

// IndexPath is the site path of the report index in lang.
func IndexPath(lang catalog.Lang) string {
	if lang == catalog.LangNepali {
		return "/ne/reports"
	}
	return "/reports"
}

type alternate struct {
	Lang string
	Href string
}

type badgeView struct {
	Label string
	Value string
}

type bucketView struct {
	Label   string
	Value   string
	Percent string
	Width   string
}

type rowView struct {
	Ward    string
	Label   string
	Value   string
	Percent string
}

type sectionView struct {
	Ward     string
	Rows     []rowView
	Subtotal string
}

type download struct {
	Label string
	Href  string
}

type reportView struct {
	Lang        catalog.Lang
	Title       string
	Description string
	Canonical   string
	IndexURL    string
	Alternates  []alternate
	JSONLD      map[string]any
	Text        map[string]string
	State       string
	Print       bool
	Badges      []badgeView
	Buckets     []bucketView
	Chart       stats.Chart
	Sections    []sectionView
	Downloads   []download
}

// Report renders the page of one dataset. A failing source yields the error
// page with status 500 rather than an error.
func (r *Renderer) Report(ctx context.Context, slug string, lang catalog.Lang) (Page, error) {
	ds, ok := r.catalog.Lookup(slug)
	if !ok {
		return Page{}, fmt.Errorf("%w: %s", ErrUnknownDataset, slug)
	}
	records, err := r.source.DatasetRecords(ctx, slug)
	if err != nil {
		r.logger.Error("load report records", zap.String("dataset", slug), zap.Error(err))
		view := r.baseReportView(ds, lang)
		view.State = stateError
		html, rerr := r.execute("report.html", view)
		return Page{Status: http.StatusInternalServerError, HTML: html}, rerr
	}
	html, err := r.execute("report.html", r.buildReportView(ds, records, lang, false))
	if err != nil {
		return Page{}, err
	}
	return Page{Status: http.StatusOK, HTML: html}, nil
}

// RenderPrint renders the printable variant of a report, without navigation
// or scripts, for PDF export.
func (r *Renderer) RenderPrint(_ context.Context, ds catalog.Dataset, records []wardstat.Record, lang catalog.Lang) ([]byte, error) {
	return r.execute("report.html", r.buildReportView(ds, records, lang, true))
}

func (r *Renderer) execute(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) baseReportView(ds catalog.Dataset, lang catalog.Lang) reportView {
	return reportView{
		Lang:        lang,
		Title:       ds.Title.In(lang),
		Description: ds.Description.In(lang),
		Canonical:   r.baseURL + ReportPath(ds.Slug, lang),
		IndexURL:    IndexPath(lang),
		Alternates: []alternate{
			{Lang: string(catalog.LangEnglish), Href: r.baseURL + ReportPath(ds.Slug, catalog.LangEnglish)},
			{Lang: string(catalog.LangNepali), Href: r.baseURL + ReportPath(ds.Slug, catalog.LangNepali)},
			{Lang: "x-default", Href: r.baseURL + ReportPath(ds.Slug, catalog.LangEnglish)},
		},
		Text: textFor(lang),
	}
}

func (r *Renderer) buildReportView(ds catalog.Dataset, records []wardstat.Record, lang catalog.Lang, printable bool) reportView {
	view := r.baseReportView(ds, lang)
	view.Print = printable
	labelFn := func(code string) string { return ds.Label(code, lang) }

	summary := stats.BuildSummary(records, ds.Codes(), labelFn)
	view.JSONLD = r.datasetJSONLD(ds, lang, summary, lastModified(records))

	table := stats.BuildTable(records, stats.TableOptions{View: stats.ViewList, CategoryOrder: ds.Codes(), Label: labelFn})
	if table.Empty() {
		view.State = stateEmpty
		return view
	}
	view.State = stateReady

	view.Chart = stats.BuildChart(records, stats.ChartOptions{
		Axis:       stats.AxisCategory,
		TopN:       stats.DefaultTopN,
		Label:      labelFn,
		OtherLabel: phrase(lang, "other"),
	})
	badges := summary.Badges
	view.Badges = []badgeView{
		{Label: phrase(lang, "total") + " " + strings.ToLower(phrase(lang, string(ds.Metric))), Value: formatNumber(badges.TotalValue, lang)},
		{Label: phrase(lang, "wards"), Value: formatNumber(int64(badges.WardCount), lang)},
		{Label: phrase(lang, "leading"), Value: badges.LeadingLabel + " (" + formatPercent(badges.LeadingShare, lang) + ")"},
	}
	for _, b := range view.Chart.Buckets {
		view.Buckets = append(view.Buckets, bucketView{
			Label:   b.Label,
			Value:   formatNumber(b.Value, lang),
			Percent: formatPercent(b.Percent, lang),
			Width:   b.Percent.String(),
		})
	}
	for _, s := range table.Sections {
		ward := localizeDigits(strconv.Itoa(s.WardNumber), lang)
		section := sectionView{Ward: ward, Subtotal: formatNumber(s.Subtotal, lang)}
		for _, row := range s.Rows {
			section.Rows = append(section.Rows, rowView{
				Ward:    ward,
				Label:   row.Label,
				Value:   formatNumber(row.Value, lang),
				Percent: formatPercent(row.Percent, lang),
			})
		}
		view.Sections = append(view.Sections, section)
	}
	view.Downloads = []download{
		{Label: "XLSX", Href: exportPath(ds.Slug, "xlsx", lang)},
		{Label: "PDF", Href: exportPath(ds.Slug, "pdf", lang)},
	}
	return view
}

func exportPath(slug, format string, lang catalog.Lang) string {
	return "/api/datasets/" + slug + "/export?format=" + format + "&lang=" + string(lang)
}

// datasetJSONLD describes the dataset as schema.org/Dataset.
func (r *Renderer) datasetJSONLD(ds catalog.Dataset, lang catalog.Lang, summary stats.Summary, modified time.Time) map[string]any {
	measured := make([]map[string]any, 0, len(summary.Categories))
	for _, c := range summary.Categories {
		measured = append(measured, map[string]any{
			"@type":    "PropertyValue",
			"name":     c.Label,
			"value":    c.Total,
			"unitText": string(ds.Metric),
		})
	}
	doc := map[string]any{
		"@context":         "https://schema.org",
		"@type":            "Dataset",
		"name":             ds.Title.In(lang),
		"description":      ds.Description.In(lang),
		"url":              r.baseURL + ReportPath(ds.Slug, lang),
		"inLanguage":       string(lang),
		"keywords":         ds.Keywords,
		"variableMeasured": measured,
		"spatialCoverage": map[string]any{
			"@type": "Place",
			"name":  r.place,
		},
		"distribution": []map[string]any{
			{"@type": "DataDownload", "encodingFormat": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "contentUrl": r.baseURL + exportPath(ds.Slug, "xlsx", lang)},
			{"@type": "DataDownload", "encodingFormat": "application/pdf", "contentUrl": r.baseURL + exportPath(ds.Slug, "pdf", lang)},
		},
	}
	if !modified.IsZero() {
		doc["dateModified"] = modified.UTC().Format("2006-01-02")
	}
	return doc
}

func lastModified(records []wardstat.Record) time.Time {
	var latest time.Time
	for _, rec := range records {
		if rec.UpdatedAt.After(latest) {
			latest = rec.UpdatedAt
		}
	}
	return latest
}

func textFor(lang catalog.Lang) map[string]string {
	out := make(map[string]string, len(phrases[catalog.LangEnglish]))
	for key := range phrases[catalog.LangEnglish] {
		out[key] = phrase(lang, key)
	}
	return out
}
