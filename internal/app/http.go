package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"digiprofile/api/internal/auth"
	"digiprofile/api/internal/rbac"
)

type HTTPServer struct {
	service     *Service
	logger      *zap.Logger
	corsOrigins []string
}

func NewHTTPServer(service *Service, logger *zap.Logger, corsOrigins []string) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, logger: logger, corsOrigins: corsOrigins}
}

func (s *HTTPServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)

	api.HandleFunc("/auth/signin", s.handleSignIn).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	api.HandleFunc("/auth/password", s.authed(rbac.ActionRead, s.handleChangePassword)).Methods(http.MethodPost)
	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/users", s.authed(rbac.ActionAdmin, s.handleCreateUser)).Methods(http.MethodPost)
	api.HandleFunc("/admin/reindex", s.authed(rbac.ActionAdmin, s.handleReindex)).Methods(http.MethodPost)

	api.HandleFunc("/datasets", s.handleDatasets).Methods(http.MethodGet)
	ds := api.PathPrefix("/datasets/{slug}").Subrouter()
	ds.HandleFunc("/records", s.handleListRecords).Methods(http.MethodGet)
	ds.HandleFunc("/records", s.authed(rbac.ActionWrite, s.handleCreateRecord)).Methods(http.MethodPost)
	ds.HandleFunc("/records", s.authed(rbac.ActionDelete, s.handleDeleteRecordByKey)).Methods(http.MethodDelete)
	ds.HandleFunc("/records/{id}", s.handleEditData).Methods(http.MethodGet)
	ds.HandleFunc("/records/{id}", s.authed(rbac.ActionWrite, s.handleUpdateRecord)).Methods(http.MethodPut)
	ds.HandleFunc("/records/{id}", s.authed(rbac.ActionDelete, s.handleDeleteRecord)).Methods(http.MethodDelete)
	ds.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	ds.HandleFunc("/table", s.handleTable).Methods(http.MethodGet)
	ds.HandleFunc("/chart", s.handleChart).Methods(http.MethodGet)
	ds.HandleFunc("/export", s.handleExport).Methods(http.MethodGet)
	ds.HandleFunc("/import", s.authed(rbac.ActionImport, s.handleImport)).Methods(http.MethodPost)

	api.HandleFunc("/farms", s.handleListFarms).Methods(http.MethodGet)
	api.HandleFunc("/farms", s.authed(rbac.ActionWrite, s.handleCreateFarm)).Methods(http.MethodPost)
	api.HandleFunc("/farms/map", s.handleFarmMap).Methods(http.MethodGet)
	api.HandleFunc("/farms/{id}", s.handleGetFarm).Methods(http.MethodGet)
	api.HandleFunc("/farms/{id}", s.authed(rbac.ActionWrite, s.handleUpdateFarm)).Methods(http.MethodPut)
	api.HandleFunc("/farms/{id}", s.authed(rbac.ActionDelete, s.handleDeleteFarm)).Methods(http.MethodDelete)
	api.HandleFunc("/farms/{id}/media", s.handleListMedia).Methods(http.MethodGet)
	api.HandleFunc("/farms/{id}/media", s.authed(rbac.ActionWrite, s.handleUploadMedia)).Methods(http.MethodPost)
	api.HandleFunc("/farms/{id}/media/{mediaId}", s.authed(rbac.ActionDelete, s.handleDeleteMedia)).Methods(http.MethodDelete)

	router.HandleFunc("/reports", s.handleReportIndex).Methods(http.MethodGet)
	router.HandleFunc("/ne/reports", s.handleReportIndex).Methods(http.MethodGet)
	router.HandleFunc("/reports/{slug}", s.handleReport).Methods(http.MethodGet)
	router.HandleFunc("/ne/reports/{slug}", s.handleReport).Methods(http.MethodGet)
	router.HandleFunc("/sitemap.xml", s.handleSitemap).Methods(http.MethodGet)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:         86400,
	})
	return s.withMiddleware(s.recoverer(corsHandler.Handler(router)))
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, session Session)

// authed requires a live session whose role may perform action.
func (s *HTTPServer) authed(action rbac.Action, next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		if !s.service.Can(session.Role, action) {
			s.forbid(w, r, session, action)
			return
		}
		next(w, r, session)
	}
}

// forbid writes a 403 Forbidden response and logs the denial
func (s *HTTPServer) forbid(w http.ResponseWriter, r *http.Request, session Session, action rbac.Action) {
	s.logger.Info("forbidden",
		zap.String("request_id", RequestID(r.Context())),
		zap.String("user_id", session.UserID),
		zap.String("role", session.Role),
		zap.String("action", string(action)),
		zap.String("path", r.URL.Path),
	)
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		s.fail(w, r, err)
		return Session{}, false
	}
	return session, true
}

// fail writes the error envelope for err and logs server-side failures.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Ready(ctx) {
		if err == nil {
			checks[name] = map[string]any{"status": "ok"}
			continue
		}
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks[name] = map[string]any{"status": "error", "error": err.Error()}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

func (s *HTTPServer) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("panic serving request",
					zap.String("request_id", RequestID(r.Context())),
					zap.String("path", r.URL.Path),
					zap.Any("panic", v),
					zap.Stack("stack"),
				)
				if rec, ok := w.(*statusRecorder); ok && rec.wrote {
					return
				}
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

// RequestID returns the id the middleware attached to ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.wrote = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(p)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// writeFile sends a binary download.
func writeFile(w http.ResponseWriter, data []byte, filename, mimeType string) {
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func invalidQuery(message string) *DomainError {
	return domainError(http.StatusBadRequest, "INVALID_QUERY", message, nil)
}

// queryInt reads an optional integer parameter; absent means fallback.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidQuery(fmt.Sprintf("%s must be an integer", name))
	}
	return n, nil
}

// confirmed guards destructive routes: without confirm=true the request is
// rejected with 412 and nothing changes.
func confirmed(w http.ResponseWriter, r *http.Request) bool {
	if ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); ok {
		return true
	}
	writeError(w, http.StatusPreconditionFailed, "CONFIRMATION_REQUIRED", "Repeat the request with confirm=true to delete", nil)
	return false
}
