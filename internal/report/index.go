package report

import (
	"context"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"digiprofile/api/internal/catalog"
	"digiprofile/api/internal/wardstat"
)

var sectionOrder = []catalog.Section{
	catalog.SectionEconomics,
	catalog.SectionHealth,
	catalog.SectionPhysical,
	catalog.SectionAgriculture,
}

type indexEntry struct {
	Title       string
	Description string
	URL         string
	Records     string
	Total       string
	Metric      string
}

type indexSection struct {
	Title   string
	Entries []indexEntry
}

type indexView struct {
	Lang        catalog.Lang
	Title       string
	Description string
	Canonical   string
	Alternates  []alternate
	JSONLD      map[string]any
	Text        map[string]string
	State       string
	Sections    []indexSection
}

// loadAll fetches the records of every dataset concurrently. The result is
// aligned with datasets.
func (r *Renderer) loadAll(ctx context.Context, datasets []catalog.Dataset) ([][]wardstat.Record, error) {
	out := make([][]wardstat.Record, len(datasets))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, ds := range datasets {
		g.Go(func() error {
			records, err := r.source.DatasetRecords(ctx, ds.Slug)
			if err != nil {
				return err
			}
			out[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Index renders the list of every dataset grouped by section.
func (r *Renderer) Index(ctx context.Context, lang catalog.Lang) (Page, error) {
	view := indexView{
		Lang:      lang,
		Title:     phrase(lang, "reports"),
		Canonical: r.baseURL + IndexPath(lang),
		Alternates: []alternate{
			{Lang: string(catalog.LangEnglish), Href: r.baseURL + IndexPath(catalog.LangEnglish)},
			{Lang: string(catalog.LangNepali), Href: r.baseURL + IndexPath(catalog.LangNepali)},
			{Lang: "x-default", Href: r.baseURL + IndexPath(catalog.LangEnglish)},
		},
		Text:  textFor(lang),
		State: stateReady,
	}

	datasets := r.catalog.All()
	loaded, err := r.loadAll(ctx, datasets)
	if err != nil {
		r.logger.Error("load report index", zap.Error(err))
		view.State = stateError
		html, rerr := r.execute("index.html", view)
		return Page{Status: http.StatusInternalServerError, HTML: html}, rerr
	}

	bySection := map[catalog.Section][]indexEntry{}
	for i, ds := range datasets {
		var total int64
		for _, rec := range loaded[i] {
			total += rec.Value
		}
		bySection[ds.Section] = append(bySection[ds.Section], indexEntry{
			Title:       ds.Title.In(lang),
			Description: ds.Description.In(lang),
			URL:         ReportPath(ds.Slug, lang),
			Records:     formatNumber(int64(len(loaded[i])), lang),
			Total:       formatNumber(total, lang),
			Metric:      phrase(lang, string(ds.Metric)),
		})
	}
	for _, section := range sectionOrder {
		if entries := bySection[section]; len(entries) > 0 {
			view.Sections = append(view.Sections, indexSection{Title: phrase(lang, string(section)), Entries: entries})
		}
	}

	html, err := r.execute("index.html", view)
	if err != nil {
		return Page{}, err
	}
	return Page{Status: http.StatusOK, HTML: html}, nil
}
