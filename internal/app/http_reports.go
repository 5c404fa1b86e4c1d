package app

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"digiprofile/api/internal/catalog"
)

// pathLang picks the page language from the /ne prefix.
func pathLang(r *http.Request) catalog.Lang {
	if strings.HasPrefix(r.URL.Path, "/ne/") {
		return catalog.LangNepali
	}
	return catalog.LangEnglish
}

func writeHTML(w http.ResponseWriter, status int, html []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if status == http.StatusOK {
		w.Header().Set("Cache-Control", "public, max-age=300")
	} else {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.WriteHeader(status)
	_, _ = w.Write(html)
}

func (s *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request) {
	page, err := s.service.Reports().Report(r.Context(), mux.Vars(r)["slug"], pathLang(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeHTML(w, page.Status, page.HTML)
}

func (s *HTTPServer) handleReportIndex(w http.ResponseWriter, r *http.Request) {
	page, err := s.service.Reports().Index(r.Context(), pathLang(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeHTML(w, page.Status, page.HTML)
}

func (s *HTTPServer) handleSitemap(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.Reports().Sitemap(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
