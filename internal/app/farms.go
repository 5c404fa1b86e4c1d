package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"digiprofile/api/internal/geo"
	"digiprofile/api/internal/media"
	"digiprofile/api/internal/search"
	"digiprofile/api/internal/store"
	"digiprofile/api/internal/util"
	"digiprofile/api/internal/wardstat"
)

const mediaURLTTL = 15 * time.Minute

func farmNotFound() *DomainError {
	return domainError(http.StatusNotFound, "FARM_NOT_FOUND", "Farm not found", nil)
}

func (s *Service) ListFarms(ctx context.Context, q search.Query) (search.Page, error) {
	if err := s.checkWardFilter(q.Ward); err != nil {
		return search.Page{}, err
	}
	q.FarmType = strings.ToUpper(strings.TrimSpace(q.FarmType))
	return s.search.Farms(ctx, q)
}

// GetFarm loads a farm with its media and short-lived download links.
func (s *Service) GetFarm(ctx context.Context, id string) (wardstat.Farm, error) {
	farm, err := s.store.GetFarm(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return wardstat.Farm{}, farmNotFound()
	}
	if err != nil {
		return wardstat.Farm{}, err
	}
	items, err := s.ListMedia(ctx, id)
	if err != nil {
		return wardstat.Farm{}, err
	}
	farm.Media = items
	return farm, nil
}

func (s *Service) CreateFarm(ctx context.Context, session Session, in wardstat.FarmInput) (wardstat.Farm, error) {
	farm, fieldErrs := wardstat.ValidateFarm(in, s.cfg.MaxWard)
	if fieldErrs != nil {
		return wardstat.Farm{}, fieldErrs
	}
	farm.ID = util.NewID("farm")
	created, err := s.store.InsertFarm(ctx, farm, session.UserID)
	if err != nil {
		return wardstat.Farm{}, err
	}
	s.search.IndexFarm(created)
	return created, nil
}

func (s *Service) UpdateFarm(ctx context.Context, id string, in wardstat.FarmInput) (wardstat.Farm, error) {
	farm, fieldErrs := wardstat.ValidateFarm(in, s.cfg.MaxWard)
	if fieldErrs != nil {
		return wardstat.Farm{}, fieldErrs
	}
	farm.ID = id
	updated, err := s.store.UpdateFarm(ctx, farm)
	if errors.Is(err, store.ErrNotFound) {
		return wardstat.Farm{}, farmNotFound()
	}
	if err != nil {
		return wardstat.Farm{}, err
	}
	s.search.IndexFarm(updated)
	return updated, nil
}

// DeleteFarm removes the farm, its stored objects and its index entry. Object
// removal failures are logged; the rows are gone either way.
func (s *Service) DeleteFarm(ctx context.Context, id string) error {
	items, err := s.store.ListFarmMedia(ctx, id)
	if err != nil {
		return err
	}
	err = s.store.DeleteFarm(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return farmNotFound()
	}
	if err != nil {
		return err
	}
	if s.media != nil {
		for _, m := range items {
			if err := s.media.Remove(ctx, m.ObjectKey); err != nil {
				s.logger.Warn("remove farm media object", zap.String("farm_id", id), zap.String("key", m.ObjectKey), zap.Error(err))
			}
		}
	}
	s.search.DeleteFarm(id)
	return nil
}

// FarmMap is the map payload: a base layer plus farms with a geometry.
type FarmMap struct {
	Tiles    geo.Tiles                  `json:"tiles"`
	Features *geojson.FeatureCollection `json:"features"`
}

func (s *Service) FarmMap(ctx context.Context, view string, ward int) (FarmMap, error) {
	if err := s.checkWardFilter(ward); err != nil {
		return FarmMap{}, err
	}
	farms, _, err := s.store.ListFarms(ctx, store.FarmFilter{Ward: ward})
	if err != nil {
		return FarmMap{}, err
	}
	return FarmMap{Tiles: geo.TileSource(view), Features: geo.FeatureCollection(farms)}, nil
}

func (s *Service) requireMedia() error {
	if s.media == nil {
		return domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Media storage not configured", nil)
	}
	return nil
}

// Upload is one media file posted for a farm.
type Upload struct {
	Body      io.Reader
	Size      int64
	Caption   string
	IsPrimary bool
}

// UploadMedia stores the object first and then records it; the object is
// removed again when the row cannot be written.
func (s *Service) UploadMedia(ctx context.Context, farmID string, up Upload) (wardstat.FarmMedia, error) {
	if err := s.requireMedia(); err != nil {
		return wardstat.FarmMedia{}, err
	}
	if up.Size <= 0 {
		return wardstat.FarmMedia{}, domainError(http.StatusBadRequest, "EMPTY_UPLOAD", "The uploaded file is empty", nil)
	}
	if up.Size > media.MaxUploadBytes {
		return wardstat.FarmMedia{}, domainError(http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE",
			fmt.Sprintf("Uploads are limited to %d MB", media.MaxUploadBytes>>20), nil)
	}
	if _, err := s.store.GetFarm(ctx, farmID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return wardstat.FarmMedia{}, farmNotFound()
		}
		return wardstat.FarmMedia{}, err
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(up.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return wardstat.FarmMedia{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	contentType, err := media.DetectContentType(head)
	if err != nil {
		return wardstat.FarmMedia{}, err
	}

	item := wardstat.FarmMedia{
		ID:          util.NewID("med"),
		FarmID:      farmID,
		ContentType: contentType,
		Caption:     strings.TrimSpace(up.Caption),
		IsPrimary:   up.IsPrimary,
		SizeBytes:   up.Size,
	}
	item.ObjectKey = media.ObjectKey(farmID, item.ID, contentType)
	body := io.MultiReader(bytes.NewReader(head), up.Body)
	if err := s.media.Put(ctx, item.ObjectKey, body, up.Size, contentType); err != nil {
		return wardstat.FarmMedia{}, err
	}

	saved, err := s.store.InsertFarmMedia(ctx, item)
	if err != nil {
		if rmErr := s.media.Remove(ctx, item.ObjectKey); rmErr != nil {
			s.logger.Warn("remove orphaned media object", zap.String("key", item.ObjectKey), zap.Error(rmErr))
		}
		return wardstat.FarmMedia{}, err
	}
	return s.withURL(ctx, saved), nil
}

func (s *Service) withURL(ctx context.Context, m wardstat.FarmMedia) wardstat.FarmMedia {
	if s.media == nil {
		return m
	}
	u, err := s.media.URL(ctx, m.ObjectKey, mediaURLTTL)
	if err != nil {
		s.logger.Warn("presign media", zap.String("key", m.ObjectKey), zap.Error(err))
		return m
	}
	m.URL = u
	return m
}

func (s *Service) ListMedia(ctx context.Context, farmID string) ([]wardstat.FarmMedia, error) {
	items, err := s.store.ListFarmMedia(ctx, farmID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i] = s.withURL(ctx, items[i])
	}
	return items, nil
}

func (s *Service) DeleteMedia(ctx context.Context, farmID, mediaID string) error {
	item, err := s.store.GetFarmMedia(ctx, farmID, mediaID)
	if errors.Is(err, store.ErrNotFound) {
		return domainError(http.StatusNotFound, "MEDIA_NOT_FOUND", "Media not found", nil)
	}
	if err != nil {
		return err
	}
	if err := s.store.DeleteFarmMedia(ctx, farmID, mediaID); err != nil {
		return err
	}
	if s.media != nil {
		if err := s.media.Remove(ctx, item.ObjectKey); err != nil {
			s.logger.Warn("remove media object", zap.String("key", item.ObjectKey), zap.Error(err))
		}
	}
	return nil
}
