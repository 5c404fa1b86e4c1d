package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"digiprofile/api/internal/auth"
	"digiprofile/api/internal/authpw"
	"digiprofile/api/internal/config"
	"digiprofile/api/internal/store"
	"digiprofile/api/internal/wardstat"
)

const testSecret = "test-secret-0123456789"

// fakeStore keeps everything in memory. The Fn fields override single
// methods to inject failures.
type fakeStore struct {
	mu      sync.Mutex
	records []wardstat.Record
	farms   []wardstat.Farm
	media   []wardstat.FarmMedia
	users   map[string]store.User

	listRecordsCalls int

	listRecordsFn  func(context.Context, store.RecordFilter) ([]wardstat.Record, error)
	insertRecordFn func(context.Context, wardstat.Record, string) (wardstat.Record, error)
	pingFn         func(context.Context) error
}

func newFakeStore(records ...wardstat.Record) *fakeStore {
	return &fakeStore{records: records, users: map[string]store.User{}}
}

func (f *fakeStore) ListRecords(ctx context.Context, filter store.RecordFilter) ([]wardstat.Record, error) {
	f.mu.Lock()
	f.listRecordsCalls++
	f.mu.Unlock()
	if f.listRecordsFn != nil {
		return f.listRecordsFn(ctx, filter)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wardstat.Record, 0)
	for _, r := range f.records {
		if r.Dataset != filter.Dataset {
			continue
		}
		if filter.Ward > 0 && r.WardNumber != filter.Ward {
			continue
		}
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WardNumber != out[j].WardNumber {
			return out[i].WardNumber < out[j].WardNumber
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (f *fakeStore) GetRecord(_ context.Context, dataset, id string) (wardstat.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.Dataset == dataset && r.ID == id {
			return r, nil
		}
	}
	return wardstat.Record{}, store.ErrNotFound
}

func (f *fakeStore) slotTaken(r wardstat.Record) bool {
	for _, existing := range f.records {
		if existing.Dataset == r.Dataset && existing.WardNumber == r.WardNumber && existing.Category == r.Category && existing.ID != r.ID {
			return true
		}
	}
	return false
}

func (f *fakeStore) InsertRecord(ctx context.Context, r wardstat.Record, actorID string) (wardstat.Record, error) {
	if f.insertRecordFn != nil {
		return f.insertRecordFn(ctx, r, actorID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.slotTaken(r) {
		return wardstat.Record{}, store.ErrDuplicate
	}
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	f.records = append(f.records, r)
	return r, nil
}

func (f *fakeStore) UpdateRecord(_ context.Context, r wardstat.Record, _ string) (wardstat.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.slotTaken(r) {
		return wardstat.Record{}, store.ErrDuplicate
	}
	for i, existing := range f.records {
		if existing.Dataset == r.Dataset && existing.ID == r.ID {
			r.CreatedAt = existing.CreatedAt
			r.UpdatedAt = time.Now()
			f.records[i] = r
			return r, nil
		}
	}
	return wardstat.Record{}, store.ErrNotFound
}

func (f *fakeStore) removeRecord(match func(wardstat.Record) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.records {
		if match(r) {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) DeleteRecord(_ context.Context, dataset, id string) error {
	return f.removeRecord(func(r wardstat.Record) bool { return r.Dataset == dataset && r.ID == id })
}

func (f *fakeStore) DeleteRecordByKey(_ context.Context, dataset string, key wardstat.Key) error {
	return f.removeRecord(func(r wardstat.Record) bool {
		return r.Dataset == dataset && r.WardNumber == key.WardNumber && r.Category == key.Category
	})
}

func (f *fakeStore) UpsertRecords(_ context.Context, dataset string, records []wardstat.Record, _ string) (store.ImportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result store.ImportResult
	for _, r := range records {
		r.Dataset = dataset
		updated := false
		for i, existing := range f.records {
			if existing.Dataset == dataset && existing.WardNumber == r.WardNumber && existing.Category == r.Category {
				f.records[i].Value = r.Value
				updated = true
				break
			}
		}
		if updated {
			result.Updated++
			continue
		}
		f.records = append(f.records, r)
		result.Inserted++
	}
	return result, nil
}

func (f *fakeStore) CountRecords(context.Context) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int{}
	for _, r := range f.records {
		out[r.Dataset]++
	}
	return out, nil
}

func (f *fakeStore) ListFarms(_ context.Context, filter store.FarmFilter) ([]wardstat.Farm, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []wardstat.Farm
	for _, farm := range f.farms {
		if filter.Ward > 0 && farm.WardNumber != filter.Ward {
			continue
		}
		if filter.FarmType != "" && farm.FarmType != filter.FarmType {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(farm.Name), strings.ToLower(filter.Query)) {
			continue
		}
		matched = append(matched, farm)
	}
	total := len(matched)
	if filter.Offset > len(matched) {
		matched = nil
	} else {
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return append([]wardstat.Farm{}, matched...), total, nil
}

func (f *fakeStore) GetFarm(_ context.Context, id string) (wardstat.Farm, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, farm := range f.farms {
		if farm.ID == id {
			return farm, nil
		}
	}
	return wardstat.Farm{}, store.ErrNotFound
}

func (f *fakeStore) InsertFarm(_ context.Context, farm wardstat.Farm, _ string) (wardstat.Farm, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.farms = append(f.farms, farm)
	return farm, nil
}

func (f *fakeStore) UpdateFarm(_ context.Context, farm wardstat.Farm) (wardstat.Farm, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.farms {
		if existing.ID == farm.ID {
			f.farms[i] = farm
			return farm, nil
		}
	}
	return wardstat.Farm{}, store.ErrNotFound
}

func (f *fakeStore) DeleteFarm(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, farm := range f.farms {
		if farm.ID == id {
			f.farms = append(f.farms[:i], f.farms[i+1:]...)
			kept := f.media[:0]
			for _, m := range f.media {
				if m.FarmID != id {
					kept = append(kept, m)
				}
			}
			f.media = kept
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) InsertFarmMedia(_ context.Context, m wardstat.FarmMedia) (wardstat.FarmMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media = append(f.media, m)
	return m, nil
}

func (f *fakeStore) ListFarmMedia(_ context.Context, farmID string) ([]wardstat.FarmMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wardstat.FarmMedia, 0)
	for _, m := range f.media {
		if m.FarmID == farmID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) GetFarmMedia(_ context.Context, farmID, mediaID string) (wardstat.FarmMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.media {
		if m.FarmID == farmID && m.ID == mediaID {
			return m, nil
		}
	}
	return wardstat.FarmMedia{}, store.ErrNotFound
}

func (f *fakeStore) DeleteFarmMedia(_ context.Context, farmID, mediaID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.media {
		if m.FarmID == farmID && m.ID == mediaID {
			f.media = append(f.media[:i], f.media[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type memSessions struct {
	mu      sync.Mutex
	refresh map[string]string
	revoked map[string]bool
}

func newMemSessions() *memSessions {
	return &memSessions{refresh: map[string]string{}, revoked: map[string]bool{}}
}

func (m *memSessions) SaveRefreshSession(_ context.Context, hash, userID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[hash] = userID
	return nil
}

func (m *memSessions) LookupRefreshSession(_ context.Context, hash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.refresh[hash]
	if !ok {
		return "", store.ErrNotFound
	}
	return userID, nil
}

func (m *memSessions) RevokeRefreshSession(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, hash)
	return nil
}

func (m *memSessions) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = true
	return nil
}

func (m *memSessions) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[jti], nil
}

type fakePasswords struct {
	signInFn         func(ctx context.Context, email, password string) (store.User, error)
	createUserFn     func(ctx context.Context, req authpw.UserRequest) (store.User, error)
	changePasswordFn func(ctx context.Context, userID, current, next string) error
}

func (f *fakePasswords) SignIn(ctx context.Context, email, password string) (store.User, error) {
	return f.signInFn(ctx, email, password)
}

func (f *fakePasswords) CreateUser(ctx context.Context, req authpw.UserRequest) (store.User, error) {
	return f.createUserFn(ctx, req)
}

func (f *fakePasswords) ChangePassword(ctx context.Context, userID, current, next string) error {
	return f.changePasswordFn(ctx, userID, current, next)
}

type fakeMedia struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{objects: map[string][]byte{}}
}

func (f *fakeMedia) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeMedia) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeMedia) URL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://media.test/" + key, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published []string
}

func (b *fakeBus) Publish(_ context.Context, dataset string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, dataset)
	return nil
}

type testEnv struct {
	store    *fakeStore
	sessions *memSessions
	bus      *fakeBus
	media    *fakeMedia
	service  *Service
	server   *HTTPServer
}

func newTestEnv(t *testing.T, fs *fakeStore, mutate ...func(*Deps)) *testEnv {
	t.Helper()
	signer, err := auth.NewSigner(testSecret, time.Minute)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	env := &testEnv{store: fs, sessions: newMemSessions(), bus: &fakeBus{}, media: newFakeMedia()}
	deps := Deps{
		Store:    fs,
		Sessions: env.sessions,
		Signer:   signer,
		Bus:      env.bus,
		Media:    env.media,
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	cfg := config.Default()
	cfg.PublicBaseURL = "https://profile.test"
	svc, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	env.service = svc
	env.server = NewHTTPServer(svc, nil, []string{"*"})
	return env
}

// tokenFor registers a user with role and returns a bearer token for it.
func (e *testEnv) tokenFor(t *testing.T, role string) string {
	t.Helper()
	id := "usr_" + role
	e.store.mu.Lock()
	e.store.users[id] = store.User{ID: id, Email: role + "@example.test", DisplayName: "Test " + role, Role: role}
	e.store.mu.Unlock()
	token, _, err := e.service.signer.Issue(id, "Test "+role, role)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func sendRequest(t *testing.T, e *testEnv, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

const skillsSlug = "ward-wise-major-skills"

func skillRecords() []wardstat.Record {
	return []wardstat.Record{
		{ID: "rec_1", Dataset: skillsSlug, WardNumber: 1, Category: "TEACHING_RELATED", Value: 30},
		{ID: "rec_2", Dataset: skillsSlug, WardNumber: 1, Category: "PLUMBING", Value: 10},
		{ID: "rec_3", Dataset: skillsSlug, WardNumber: 2, Category: "TEACHING_RELATED", Value: 5},
	}
}
