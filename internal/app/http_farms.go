package app

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"digiprofile/api/internal/media"
	"digiprofile/api/internal/search"
	"digiprofile/api/internal/wardstat"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxPage         = math.MaxInt32 / maxPageSize
)

func (s *HTTPServer) handleListFarms(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pageSize, err := queryInt(r, "pageSize", defaultPageSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ward, err := queryInt(r, "ward", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if page < 1 || page > maxPage {
		s.fail(w, r, invalidQuery(fmt.Sprintf("page must be between 1 and %d", maxPage)))
		return
	}
	if pageSize < 1 || pageSize > maxPageSize {
		s.fail(w, r, invalidQuery("pageSize must be between 1 and 100"))
		return
	}

	q := r.URL.Query()
	result, err := s.service.ListFarms(r.Context(), search.Query{
		Text:     q.Get("q"),
		Ward:     ward,
		FarmType: q.Get("type"),
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":    result.Farms,
		"total":    result.Total,
		"page":     page,
		"pageSize": pageSize,
		"engine":   result.Engine,
	})
}

func (s *HTTPServer) handleGetFarm(w http.ResponseWriter, r *http.Request) {
	farm, err := s.service.GetFarm(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, farm)
}

func decodeFarm(r *http.Request) (wardstat.FarmInput, error) {
	var in wardstat.FarmInput
	if err := decodeBody(r, &in); err != nil {
		return in, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
	}
	return in, nil
}

func (s *HTTPServer) handleCreateFarm(w http.ResponseWriter, r *http.Request, session Session) {
	in, err := decodeFarm(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	farm, err := s.service.CreateFarm(r.Context(), session, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, farm)
}

func (s *HTTPServer) handleUpdateFarm(w http.ResponseWriter, r *http.Request, _ Session) {
	in, err := decodeFarm(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	farm, err := s.service.UpdateFarm(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, farm)
}

func (s *HTTPServer) handleDeleteFarm(w http.ResponseWriter, r *http.Request, _ Session) {
	if !confirmed(w, r) {
		return
	}
	if err := s.service.DeleteFarm(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleFarmMap(w http.ResponseWriter, r *http.Request) {
	ward, err := queryInt(r, "ward", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.service.FarmMap(r.Context(), r.URL.Query().Get("view"), ward)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *HTTPServer) handleListMedia(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListMedia(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleUploadMedia(w http.ResponseWriter, r *http.Request, _ Session) {
	limit := int64(media.MaxUploadBytes + 1<<20)
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", "Uploads are limited to 10 MB", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "expected a multipart form with a file field", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "file is required", nil)
		return
	}
	defer file.Close()

	primary, _ := strconv.ParseBool(r.FormValue("isPrimary"))
	item, err := s.service.UploadMedia(r.Context(), mux.Vars(r)["id"], Upload{
		Body:      file,
		Size:      header.Size,
		Caption:   strings.TrimSpace(r.FormValue("caption")),
		IsPrimary: primary,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *HTTPServer) handleDeleteMedia(w http.ResponseWriter, r *http.Request, _ Session) {
	if !confirmed(w, r) {
		return
	}
	vars := mux.Vars(r)
	if err := s.service.DeleteMedia(r.Context(), vars["id"], vars["mediaId"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
