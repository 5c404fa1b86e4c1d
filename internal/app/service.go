package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"digiprofile/api/internal/auth"
	"digiprofile/api/internal/authpw"
	"digiprofile/api/internal/cache"
	"digiprofile/api/internal/catalog"
	"digiprofile/api/internal/config"
	"digiprofile/api/internal/export"
	"digiprofile/api/internal/rbac"
	"digiprofile/api/internal/report"
	"digiprofile/api/internal/search"
	"digiprofile/api/internal/store"
	"digiprofile/api/internal/wardstat"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// DataStore is the Postgres side of the service.
type DataStore interface {
	ListRecords(context.Context, store.RecordFilter) ([]wardstat.Record, error)
	GetRecord(context.Context, string, string) (wardstat.Record, error)
	InsertRecord(context.Context, wardstat.Record, string) (wardstat.Record, error)
	UpdateRecord(context.Context, wardstat.Record, string) (wardstat.Record, error)
	DeleteRecord(context.Context, string, string) error
	DeleteRecordByKey(context.Context, string, wardstat.Key) error
	UpsertRecords(context.Context, string, []wardstat.Record, string) (store.ImportResult, error)
	CountRecords(context.Context) (map[string]int, error)

	ListFarms(context.Context, store.FarmFilter) ([]wardstat.Farm, int, error)
	GetFarm(context.Context, string) (wardstat.Farm, error)
	InsertFarm(context.Context, wardstat.Farm, string) (wardstat.Farm, error)
	UpdateFarm(context.Context, wardstat.Farm) (wardstat.Farm, error)
	DeleteFarm(context.Context, string) error
	InsertFarmMedia(context.Context, wardstat.FarmMedia) (wardstat.FarmMedia, error)
	ListFarmMedia(context.Context, string) ([]wardstat.FarmMedia, error)
	GetFarmMedia(context.Context, string, string) (wardstat.FarmMedia, error)
	DeleteFarmMedia(context.Context, string, string) error

	GetUserByID(context.Context, string) (store.User, error)
	Ping(context.Context) error
}

// SessionStore keeps refresh sessions and the access-token deny list. Both
// store.PostgresStore and session.RedisStore satisfy it.
type SessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (string, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

// userSessionRevoker is implemented by session stores that can drop every
// session of a user at once.
type userSessionRevoker interface {
	RevokeUserSessions(context.Context, string) (int, error)
}

type PasswordAuth interface {
	SignIn(ctx context.Context, email, password string) (store.User, error)
	CreateUser(ctx context.Context, req authpw.UserRequest) (store.User, error)
	ChangePassword(ctx context.Context, userID, current, next string) error
}

type FarmSearch interface {
	Farms(context.Context, search.Query) (search.Page, error)
	IndexFarm(wardstat.Farm)
	DeleteFarm(string)
	Reindex(context.Context) (int, error)
}

type MediaStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, key string) error
	URL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type InvalidationBus interface {
	Publish(ctx context.Context, dataset string) error
}

// Deps are the collaborators of a Service. Store, Sessions and Signer are
// required; the rest degrade the matching feature when nil.
type Deps struct {
	Catalog   *catalog.Catalog
	Store     DataStore
	Sessions  SessionStore
	Signer    *auth.Signer
	Passwords PasswordAuth
	Cache     *cache.Aggregates
	Bus       InvalidationBus
	Search    FarmSearch
	Media     MediaStore
	Printer   export.Printer
	// Checks are extra readiness probes keyed by name, e.g. "redis".
	Checks map[string]func(context.Context) error
	Logger *zap.Logger
}

type Service struct {
	cfg       config.Config
	catalog   *catalog.Catalog
	store     DataStore
	sessions  SessionStore
	signer    *auth.Signer
	passwords PasswordAuth
	cache     *cache.Aggregates
	bus       InvalidationBus
	search    FarmSearch
	media     MediaStore
	reports   *report.Renderer
	exports   *export.Service
	checks    map[string]func(context.Context) error
	logger    *zap.Logger
}

func New(cfg config.Config, deps Deps) (*Service, error) {
	if deps.Store == nil || deps.Sessions == nil || deps.Signer == nil {
		return nil, errors.New("app: store, sessions and signer are required")
	}
	if deps.Catalog == nil {
		cat, err := catalog.Load()
		if err != nil {
			return nil, err
		}
		deps.Catalog = cat
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Search == nil {
		deps.Search = search.NewService(nil, deps.Store, deps.Logger)
	}
	if deps.Cache == nil {
		deps.Cache = cache.New(cfg.CacheTTL)
	}
	if cfg.MaxWard < 1 {
		cfg.MaxWard = config.Default().MaxWard
	}

	s := &Service{
		cfg:       cfg,
		catalog:   deps.Catalog,
		store:     deps.Store,
		sessions:  deps.Sessions,
		signer:    deps.Signer,
		passwords: deps.Passwords,
		cache:     deps.Cache,
		bus:       deps.Bus,
		search:    deps.Search,
		media:     deps.Media,
		checks:    deps.Checks,
		logger:    deps.Logger,
	}
	reports, err := report.New(deps.Catalog, s, report.Options{
		BaseURL:   cfg.PublicBaseURL,
		PlaceName: cfg.PlaceName,
		Logger:    deps.Logger,
	})
	if err != nil {
		return nil, err
	}
	s.reports = reports
	s.exports = export.NewService(reports, deps.Printer)
	return s, nil
}

func (s *Service) Reports() *report.Renderer {
	return s.reports
}

// SignIn checks staff credentials and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	if s.passwords == nil {
		return Session{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	user, err := s.passwords.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the old one is revoked and a new pair issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	token, claims, err := s.signer.Issue(user.ID, user.DisplayName, user.Role)
	if err != nil {
		return Session{}, err
	}
	refresh, err := auth.RandomToken(32)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, time.Now().Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}
	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          claims.JTI,
		ExpiresAt:    claims.ExpiresAt(),
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}
	user, err := s.activeUser(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}, nil
}

// activeUser loads a user, treating unknown and deactivated accounts as an
// invalid token.
func (s *Service) activeUser(ctx context.Context, userID string) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, auth.ErrInvalidToken
	}
	if err != nil {
		return store.User{}, err
	}
	if user.DeactivatedAt != nil {
		return store.User{}, auth.ErrInvalidToken
	}
	return user, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			return err
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			return err
		}
	}
	return nil
}

// ChangePassword updates the caller's password and ends their other sessions
// when the session store supports it.
func (s *Service) ChangePassword(ctx context.Context, session Session, current, next string) error {
	if s.passwords == nil {
		return domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	if err := s.passwords.ChangePassword(ctx, session.UserID, current, next); err != nil {
		return err
	}
	if revoker, ok := s.sessions.(userSessionRevoker); ok {
		if _, err := revoker.RevokeUserSessions(ctx, session.UserID); err != nil {
			s.logger.Warn("revoke sessions after password change", zap.String("user_id", session.UserID), zap.Error(err))
		}
	}
	return nil
}

// CreateUser adds a staff account.
func (s *Service) CreateUser(ctx context.Context, req authpw.UserRequest) (store.User, error) {
	if s.passwords == nil {
		return store.User{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	return s.passwords.CreateUser(ctx, req)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// Ready runs the database probe and every extra check. The result maps each
// check name to its error, nil when healthy.
func (s *Service) Ready(ctx context.Context) map[string]error {
	results := map[string]error{"database": s.store.Ping(ctx)}
	for name, check := range s.checks {
		results[name] = check(ctx)
	}
	return results
}

// OnPeerInvalidate drops cached aggregates after another instance changed dataset.
func (s *Service) OnPeerInvalidate(dataset string) {
	n := s.cache.Invalidate(dataset)
	s.logger.Debug("peer invalidation", zap.String("dataset", dataset), zap.Int("dropped", n))
}

// invalidate drops the local aggregates of dataset and tells peer instances.
func (s *Service) invalidate(ctx context.Context, dataset string) {
	s.cache.Invalidate(dataset)
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, dataset); err != nil {
		s.logger.Warn("publish invalidation", zap.String("dataset", dataset), zap.Error(err))
	}
}

func (s *Service) dataset(slug string) (catalog.Dataset, error) {
	ds, ok := s.catalog.Lookup(slug)
	if !ok {
		return catalog.Dataset{}, datasetNotFound(slug)
	}
	return ds, nil
}

func (s *Service) ReindexFarms(ctx context.Context) (int, error) {
	n, err := s.search.Reindex(ctx)
	if err != nil {
		return 0, fmt.Errorf("reindex: %w", err)
	}
	return n, nil
}
