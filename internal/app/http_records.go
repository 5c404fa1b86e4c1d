package app

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"digiprofile/api/internal/catalog"
	"digiprofile/api/internal/export"
	"digiprofile/api/internal/stats"
	"digiprofile/api/internal/wardstat"
)

const maxImportBytes = 8 << 20

func langOf(r *http.Request) catalog.Lang {
	return catalog.ParseLang(r.URL.Query().Get("lang"))
}

func (s *HTTPServer) handleDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.service.Datasets(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": datasets})
}

func (s *HTTPServer) handleListRecords(w http.ResponseWriter, r *http.Request) {
	ward, err := queryInt(r, "ward", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	records, err := s.service.ListRecords(r.Context(), mux.Vars(r)["slug"], RecordQuery{
		Ward:     ward,
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": records})
}

func (s *HTTPServer) handleEditData(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rec, err := s.service.EditData(r.Context(), vars["slug"], vars["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// recordInput reads a record from a JSON body or a classic form post.
func recordInput(r *http.Request) (wardstat.RawInput, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return nil, domainError(http.StatusBadRequest, "INVALID_BODY", "invalid form body", nil)
		}
		return wardstat.RawFromStrings(r.PostForm.Get("wardNumber"), r.PostForm.Get("category"), r.PostForm.Get("value")), nil
	}
	var in wardstat.RawInput
	if err := decodeBody(r, &in); err != nil {
		return nil, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
	}
	if in == nil {
		in = wardstat.RawInput{}
	}
	return in, nil
}

func (s *HTTPServer) handleCreateRecord(w http.ResponseWriter, r *http.Request, session Session) {
	in, err := recordInput(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rec, err := s.service.CreateRecord(r.Context(), session, mux.Vars(r)["slug"], in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *HTTPServer) handleUpdateRecord(w http.ResponseWriter, r *http.Request, session Session) {
	in, err := recordInput(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	vars := mux.Vars(r)
	rec, err := s.service.UpdateRecord(r.Context(), session, vars["slug"], vars["id"], in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *HTTPServer) handleDeleteRecord(w http.ResponseWriter, r *http.Request, _ Session) {
	if !confirmed(w, r) {
		return
	}
	vars := mux.Vars(r)
	if err := s.service.DeleteRecord(r.Context(), vars["slug"], vars["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleDeleteRecordByKey(w http.ResponseWriter, r *http.Request, _ Session) {
	ward, err := queryInt(r, "ward", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !confirmed(w, r) {
		return
	}
	key := wardstat.Key{WardNumber: ward, Category: strings.TrimSpace(r.URL.Query().Get("category"))}
	if err := s.service.DeleteRecordByKey(r.Context(), mux.Vars(r)["slug"], key); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Summary(r.Context(), mux.Vars(r)["slug"], langOf(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) handleTable(w http.ResponseWriter, r *http.Request) {
	ward, err := queryInt(r, "ward", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	table, err := s.service.Table(r.Context(), mux.Vars(r)["slug"], TableQuery{
		View:     stats.ParseView(q.Get("view")),
		Ward:     ward,
		Category: strings.TrimSpace(q.Get("category")),
		Lang:     langOf(r),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

func (s *HTTPServer) handleChart(w http.ResponseWriter, r *http.Request) {
	ward, err := queryInt(r, "ward", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	top, err := queryInt(r, "top", stats.DefaultTopN)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	chart, err := s.service.Chart(r.Context(), mux.Vars(r)["slug"], ChartQuery{
		Axis: stats.ParseAxis(r.URL.Query().Get("axis")),
		Ward: ward,
		TopN: top,
		Lang: langOf(r),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.service.Export(r.Context(), mux.Vars(r)["slug"], format, langOf(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeFile(w, result.Data, result.Filename, result.MimeType)
}

func (s *HTTPServer) handleImport(w http.ResponseWriter, r *http.Request, session Session) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", "The workbook is too large", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "expected a multipart form with a file field", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "file is required", nil)
		return
	}
	defer file.Close()

	result, err := s.service.Import(r.Context(), session, mux.Vars(r)["slug"], file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
