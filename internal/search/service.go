package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"digiprofile/api/internal/store"
	"digiprofile/api/internal/wardstat"
)

// FarmSource is the Postgres side: pattern matching and loading by id.
type FarmSource interface {
	ListFarms(ctx context.Context, filter store.FarmFilter) ([]wardstat.Farm, int, error)
}

// Index is the Meilisearch side.
type Index interface {
	Healthy() bool
	Search(q Query) ([]string, int, error)
	IndexFarms(docs []FarmDocument) error
	DeleteFarm(id string) error
}

// Service tries the index for text queries and falls back to Postgres.
type Service struct {
	index  Index
	farms  FarmSource
	logger *zap.Logger
}

// NewService creates a search service. index may be nil when Meilisearch is
// not configured.
func NewService(index Index, farms FarmSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{index: index, farms: farms, logger: logger}
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Farms returns one page of farms. Queries without text go straight to Postgres.
func (s *Service) Farms(ctx context.Context, q Query) (Page, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	q.Text = strings.TrimSpace(q.Text)

	if q.Text != "" && s.indexReady() {
		page, err := s.fromIndex(ctx, q)
		if err == nil {
			return page, nil
		}
		s.logger.Warn("meilisearch failed, falling back to postgres", zap.Error(err))
	}

	farms, total, err := s.farms.ListFarms(ctx, store.FarmFilter{
		Ward:     q.Ward,
		FarmType: q.FarmType,
		Query:    q.Text,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		return Page{}, fmt.Errorf("list farms: %w", err)
	}
	return Page{Farms: farms, Total: total, Engine: EnginePostgres}, nil
}

func (s *Service) fromIndex(ctx context.Context, q Query) (Page, error) {
	ids, total, err := s.index.Search(q)
	if err != nil {
		return Page{}, err
	}
	if len(ids) == 0 {
		return Page{Farms: []wardstat.Farm{}, Total: total, Engine: EngineMeili}, nil
	}
	farms, _, err := s.farms.ListFarms(ctx, store.FarmFilter{IDs: ids})
	if err != nil {
		return Page{}, fmt.Errorf("load indexed farms: %w", err)
	}
	return Page{Farms: orderByIDs(farms, ids), Total: total, Engine: EngineMeili}, nil
}

// orderByIDs returns farms in the order of ids, dropping ids the store no
// longer knows.
func orderByIDs(farms []wardstat.Farm, ids []string) []wardstat.Farm {
	byID := make(map[string]wardstat.Farm, len(farms))
	for _, f := range farms {
		byID[f.ID] = f
	}
	out := make([]wardstat.Farm, 0, len(ids))
	for _, id := range ids {
		if f, ok := byID[id]; ok {
			out = append(out, f)
		}
	}
	return out
}

// IndexFarm pushes a farm to the index in the background.
func (s *Service) IndexFarm(f wardstat.Farm) {
	if !s.indexReady() {
		return
	}
	doc := DocumentFromFarm(f)
	go func() {
		if err := s.index.IndexFarms([]FarmDocument{doc}); err != nil {
			s.logger.Warn("index farm", zap.String("farm_id", doc.ID), zap.Error(err))
		}
	}()
}

// DeleteFarm removes a farm from the index in the background.
func (s *Service) DeleteFarm(id string) {
	if !s.indexReady() {
		return
	}
	go func() {
		if err := s.index.DeleteFarm(id); err != nil {
			s.logger.Warn("delete farm from index", zap.String("farm_id", id), zap.Error(err))
		}
	}()
}

// Reindex loads every farm from Postgres and pushes them in one batch.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	if !s.indexReady() {
		return 0, nil
	}
	farms, _, err := s.farms.ListFarms(ctx, store.FarmFilter{})
	if err != nil {
		return 0, fmt.Errorf("load farms: %w", err)
	}
	docs := make([]FarmDocument, len(farms))
	for i, f := range farms {
		docs[i] = DocumentFromFarm(f)
	}
	if err := s.index.IndexFarms(docs); err != nil {
		return 0, fmt.Errorf("reindex farms: %w", err)
	}
	return len(docs), nil
}
