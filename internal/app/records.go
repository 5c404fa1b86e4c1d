package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"digiprofile/api/internal/cache"
	"digiprofile/api/internal/catalog"
	"digiprofile/api/internal/export"
	"digiprofile/api/internal/stats"
	"digiprofile/api/internal/store"
	"digiprofile/api/internal/util"
	"digiprofile/api/internal/wardstat"
)

// DatasetInfo is a catalogue entry with its current record count.
type DatasetInfo struct {
	catalog.Dataset
	Records int `json:"records"`
}

func (s *Service) Datasets(ctx context.Context) ([]DatasetInfo, error) {
	counts, err := s.store.CountRecords(ctx)
	if err != nil {
		return nil, err
	}
	all := s.catalog.All()
	out := make([]DatasetInfo, len(all))
	for i, ds := range all {
		out[i] = DatasetInfo{Dataset: ds, Records: counts[ds.Slug]}
	}
	return out, nil
}

// DatasetRecords returns every record of a dataset, served from the
// aggregate cache when fresh.
func (s *Service) DatasetRecords(ctx context.Context, slug string) ([]wardstat.Record, error) {
	if _, err := s.dataset(slug); err != nil {
		return nil, err
	}
	return cache.Remember(s.cache, s.cache.Key(slug, "records"), func() ([]wardstat.Record, error) {
		return s.store.ListRecords(ctx, store.RecordFilter{Dataset: slug})
	})
}

// RecordQuery filters a record listing. Zero values mean no filter.
type RecordQuery struct {
	Ward     int
	Category string
}

func (s *Service) checkWardFilter(ward int) error {
	if ward < 0 || ward > s.cfg.MaxWard {
		return domainError(http.StatusBadRequest, "INVALID_QUERY", fmt.Sprintf("ward must be between 1 and %d", s.cfg.MaxWard), nil)
	}
	return nil
}

func (s *Service) ListRecords(ctx context.Context, slug string, q RecordQuery) ([]wardstat.Record, error) {
	if err := s.checkWardFilter(q.Ward); err != nil {
		return nil, err
	}
	records, err := s.DatasetRecords(ctx, slug)
	if err != nil {
		return nil, err
	}
	out := make([]wardstat.Record, 0, len(records))
	for _, r := range records {
		if q.Ward > 0 && r.WardNumber != q.Ward {
			continue
		}
		if q.Category != "" && r.Category != q.Category {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// EditData returns the record behind an edit form. A record of another
// dataset is reported as not found.
func (s *Service) EditData(ctx context.Context, slug, id string) (wardstat.Record, error) {
	if _, err := s.dataset(slug); err != nil {
		return wardstat.Record{}, err
	}
	rec, err := s.store.GetRecord(ctx, slug, id)
	if errors.Is(err, store.ErrNotFound) {
		return wardstat.Record{}, domainError(http.StatusNotFound, "RECORD_NOT_FOUND", "Record not found", nil)
	}
	return rec, err
}

// checkDuplicate is the advisory scan run before a write; the store's unique
// constraint still decides.
func (s *Service) checkDuplicate(ctx context.Context, rec wardstat.Record, editID string) error {
	existing, err := s.store.ListRecords(ctx, store.RecordFilter{Dataset: rec.Dataset, Ward: rec.WardNumber, Category: rec.Category})
	if err != nil {
		return err
	}
	if dup, found := wardstat.FindDuplicate(existing, rec, editID); found {
		return duplicateRecord(rec.Key(), dup.ID)
	}
	return nil
}

func (s *Service) CreateRecord(ctx context.Context, session Session, slug string, in wardstat.RawInput) (wardstat.Record, error) {
	ds, err := s.dataset(slug)
	if err != nil {
		return wardstat.Record{}, err
	}
	rec, fieldErrs := wardstat.Validate(ds, s.cfg.MaxWard, in)
	if fieldErrs != nil {
		return wardstat.Record{}, fieldErrs
	}
	if err := s.checkDuplicate(ctx, rec, ""); err != nil {
		return wardstat.Record{}, err
	}

	rec.ID = util.NewID("rec")
	created, err := s.store.InsertRecord(ctx, rec, session.UserID)
	if errors.Is(err, store.ErrDuplicate) {
		return wardstat.Record{}, duplicateRecord(rec.Key(), "")
	}
	if err != nil {
		return wardstat.Record{}, err
	}
	s.invalidate(ctx, slug)
	return created, nil
}

func (s *Service) UpdateRecord(ctx context.Context, session Session, slug, id string, in wardstat.RawInput) (wardstat.Record, error) {
	ds, err := s.dataset(slug)
	if err != nil {
		return wardstat.Record{}, err
	}
	if _, err := s.EditData(ctx, slug, id); err != nil {
		return wardstat.Record{}, err
	}
	rec, fieldErrs := wardstat.Validate(ds, s.cfg.MaxWard, in)
	if fieldErrs != nil {
		return wardstat.Record{}, fieldErrs
	}
	rec.ID = id
	if err := s.checkDuplicate(ctx, rec, id); err != nil {
		return wardstat.Record{}, err
	}

	updated, err := s.store.UpdateRecord(ctx, rec, session.UserID)
	switch {
	case errors.Is(err, store.ErrDuplicate):
		return wardstat.Record{}, duplicateRecord(rec.Key(), "")
	case errors.Is(err, store.ErrNotFound):
		return wardstat.Record{}, domainError(http.StatusNotFound, "RECORD_NOT_FOUND", "Record not found", nil)
	case err != nil:
		return wardstat.Record{}, err
	}
	s.invalidate(ctx, slug)
	return updated, nil
}

func (s *Service) DeleteRecord(ctx context.Context, slug, id string) error {
	if _, err := s.dataset(slug); err != nil {
		return err
	}
	err := s.store.DeleteRecord(ctx, slug, id)
	if errors.Is(err, store.ErrNotFound) {
		return domainError(http.StatusNotFound, "RECORD_NOT_FOUND", "Record not found", nil)
	}
	if err != nil {
		return err
	}
	s.invalidate(ctx, slug)
	return nil
}

// DeleteRecordByKey removes the record occupying a (ward, category) slot.
func (s *Service) DeleteRecordByKey(ctx context.Context, slug string, key wardstat.Key) error {
	ds, err := s.dataset(slug)
	if err != nil {
		return err
	}
	if key.WardNumber < 1 || key.WardNumber > s.cfg.MaxWard || !ds.HasCategory(key.Category) {
		return domainError(http.StatusBadRequest, "INVALID_QUERY", "ward and a valid category are required", nil)
	}
	err = s.store.DeleteRecordByKey(ctx, slug, key)
	if errors.Is(err, store.ErrNotFound) {
		return domainError(http.StatusNotFound, "RECORD_NOT_FOUND", "Record not found", nil)
	}
	if err != nil {
		return err
	}
	s.invalidate(ctx, slug)
	return nil
}

func labeler(ds catalog.Dataset, lang catalog.Lang) func(string) string {
	return func(code string) string { return ds.Label(code, lang) }
}

func (s *Service) Summary(ctx context.Context, slug string, lang catalog.Lang) (stats.Summary, error) {
	ds, err := s.dataset(slug)
	if err != nil {
		return stats.Summary{}, err
	}
	return cache.Remember(s.cache, s.cache.Key(slug, "summary", lang), func() (stats.Summary, error) {
		records, err := s.DatasetRecords(ctx, slug)
		if err != nil {
			return stats.Summary{}, err
		}
		return stats.BuildSummary(records, ds.Codes(), labeler(ds, lang)), nil
	})
}

type TableQuery struct {
	View     stats.View
	Ward     int
	Category string
	Lang     catalog.Lang
}

func (s *Service) Table(ctx context.Context, slug string, q TableQuery) (stats.Table, error) {
	ds, err := s.dataset(slug)
	if err != nil {
		return stats.Table{}, err
	}
	if err := s.checkWardFilter(q.Ward); err != nil {
		return stats.Table{}, err
	}
	key := s.cache.Key(slug, "table", q.View, q.Ward, q.Category, q.Lang)
	return cache.Remember(s.cache, key, func() (stats.Table, error) {
		records, err := s.DatasetRecords(ctx, slug)
		if err != nil {
			return stats.Table{}, err
		}
		return stats.BuildTable(records, stats.TableOptions{
			View:          q.View,
			Ward:          q.Ward,
			Category:      q.Category,
			CategoryOrder: ds.Codes(),
			Label:         labeler(ds, q.Lang),
		}), nil
	})
}

type ChartQuery struct {
	Axis stats.Axis
	Ward int
	TopN int
	Lang catalog.Lang
}

const maxTopN = 20

func (s *Service) Chart(ctx context.Context, slug string, q ChartQuery) (stats.Chart, error) {
	ds, err := s.dataset(slug)
	if err != nil {
		return stats.Chart{}, err
	}
	if err := s.checkWardFilter(q.Ward); err != nil {
		return stats.Chart{}, err
	}
	if q.TopN == 0 {
		q.TopN = stats.DefaultTopN
	}
	if q.TopN < 1 || q.TopN > maxTopN {
		return stats.Chart{}, domainError(http.StatusBadRequest, "INVALID_QUERY", fmt.Sprintf("top must be between 1 and %d", maxTopN), nil)
	}
	key := s.cache.Key(slug, "chart", q.Axis, q.Ward, q.TopN, q.Lang)
	return cache.Remember(s.cache, key, func() (stats.Chart, error) {
		records, err := s.DatasetRecords(ctx, slug)
		if err != nil {
			return stats.Chart{}, err
		}
		otherLabel := "Other"
		if q.Lang == catalog.LangNepali {
			otherLabel = "अन्य"
		}
		return stats.BuildChart(records, stats.ChartOptions{
			Axis:       q.Axis,
			Ward:       q.Ward,
			TopN:       q.TopN,
			Label:      labeler(ds, q.Lang),
			OtherLabel: otherLabel,
		}), nil
	})
}

func (s *Service) Export(ctx context.Context, slug string, format export.Format, lang catalog.Lang) (*export.Result, error) {
	ds, err := s.dataset(slug)
	if err != nil {
		return nil, err
	}
	records, err := s.DatasetRecords(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.exports.Export(ctx, export.Request{Format: format, Dataset: ds, Records: records, Lang: lang})
}

// Import upserts every row of an xlsx workbook in one transaction. Any
// invalid row rejects the whole file.
func (s *Service) Import(ctx context.Context, session Session, slug string, workbook io.Reader) (store.ImportResult, error) {
	ds, err := s.dataset(slug)
	if err != nil {
		return store.ImportResult{}, err
	}
	records, err := export.ParseWorkbook(workbook, ds, s.cfg.MaxWard)
	if err != nil {
		return store.ImportResult{}, err
	}
	if len(records) == 0 {
		return store.ImportResult{}, domainError(http.StatusBadRequest, "INVALID_WORKBOOK", "The workbook has no data rows", nil)
	}
	for i := range records {
		records[i].ID = util.NewID("rec")
	}
	result, err := s.store.UpsertRecords(ctx, slug, records, session.UserID)
	if err != nil {
		return store.ImportResult{}, err
	}
	s.invalidate(ctx, slug)
	return result, nil
}
