package search

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const idxFarms = "profile_farms"

// Meili indexes and queries farms in Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  *zap.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a client, configures the farm index when reachable and
// keeps probing health in the background until Close.
func NewMeili(url, apiKey string, logger *zap.Logger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		logger: logger,
		done:   make(chan struct{}),
	}
	if _, err := m.client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}
	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxFarms, PrimaryKey: "id"}); err != nil {
		m.logger.Debug("create farm index", zap.Error(err))
	}
	index := m.client.Index(idxFarms)
	filterable := []interface{}{"wardNumber", "farmType"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", zap.Error(err))
	}
	searchable := []string{"name", "ownerName", "mainCrops", "livestock", "description"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", zap.Error(err))
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring farm index")
				m.configureIndex()
			}
		}
	}
}

func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search returns the ids of matching farms in rank order and the estimated total.
func (m *Meili) Search(q Query) ([]string, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	req := &meili.SearchRequest{
		IndexUID:             idxFarms,
		Query:                q.Text,
		Limit:                int64(q.Limit),
		Offset:               int64(q.Offset),
		AttributesToRetrieve: []string{"id"},
	}
	if filters := meiliFilters(q); len(filters) > 0 {
		req.Filter = filters
	}
	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: []*meili.SearchRequest{req}})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}
	var ids []string
	total := 0
	for _, result := range resp.Results {
		total += int(result.EstimatedTotalHits)
		for _, hit := range result.Hits {
			if id := hitID(hit); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids, total, nil
}

func meiliFilters(q Query) []string {
	var filters []string
	if q.Ward > 0 {
		filters = append(filters, fmt.Sprintf("wardNumber = %d", q.Ward))
	}
	if q.FarmType != "" {
		filters = append(filters, fmt.Sprintf("farmType = %q", q.FarmType))
	}
	return filters
}

func hitID(hit meili.Hit) string {
	raw, ok := hit["id"]
	if !ok {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return ""
	}
	return id
}

func (m *Meili) IndexFarms(docs []FarmDocument) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := m.client.Index(idxFarms).AddDocuments(docs, nil)
	return err
}

func (m *Meili) DeleteFarm(id string) error {
	_, err := m.client.Index(idxFarms).DeleteDocument(id, nil)
	return err
}
