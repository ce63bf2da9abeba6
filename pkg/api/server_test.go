package api

import (
	"bookshelf/pkg/apperr"
	"bookshelf/pkg/config"
	"bookshelf/pkg/database"
	"bookshelf/pkg/entries"
	"bookshelf/pkg/session"
	"bookshelf/pkg/testutil"
	"bookshelf/pkg/wishlist"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeSessions resolves a fixed set of bearer tokens.
type fakeSessions struct {
	users      map[string]*session.User
	resolveErr error
}

func newFakeSessions(tokens ...string) *fakeSessions {
	f := &fakeSessions{users: make(map[string]*session.User)}
	for _, tok := range tokens {
		f.users[tok] = &session.User{ID: uuid.NewString(), Email: tok + "@example.com"}
	}
	return f
}

func (f *fakeSessions) SignUp(context.Context, session.Credentials) (*session.Session, error) {
	return nil, errors.New("not supported")
}

func (f *fakeSessions) SignIn(context.Context, string, string) (*session.Session, error) {
	return nil, apperr.ErrInvalidCredentials
}

func (f *fakeSessions) SignOut(context.Context, string) error {
	return nil
}

func (f *fakeSessions) Resolve(_ context.Context, token string) (*session.User, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	if u, ok := f.users[token]; ok {
		return u, nil
	}
	return nil, apperr.ErrUnauthorized
}

func newTestServer(t *testing.T, db *gorm.DB, sessions session.Store, tweak ...func(*config.Config)) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	for _, fn := range tweak {
		fn(cfg)
	}
	return NewServer(cfg, Deps{
		Entries:  entries.NewRepository(db),
		Wishlist: wishlist.NewRepository(db),
		Sessions: sessions,
		Health:   func(ctx context.Context) error { return database.Ping(ctx, db) },
	}, log.New(io.Discard))
}

type reqOpt func(*http.Request)

func bearer(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(c *http.Cookie) reqOpt {
	return func(r *http.Request) { r.AddCookie(c) }
}

func acceptLanguage(lang string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Accept-Language", lang) }
}

func do(s *Server, method, path string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestListEntriesUnauthenticated(t *testing.T) {
	s := newTestServer(t, testutil.SetupTestDB(t), newFakeSessions("u1"))

	w := do(s, http.MethodGet, "/api/entries", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, w.Body.String())

	w = do(s, http.MethodGet, "/api/wishlist", nil, bearer("stranger"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestErrorsAreLocalized(t *testing.T) {
	s := newTestServer(t, testutil.SetupTestDB(t), newFakeSessions("u1"))

	w := do(s, http.MethodGet, "/api/entries", nil, acceptLanguage("es-ES,es;q=0.9"))
	assert.JSONEq(t, `{"error":"No autorizado"}`, w.Body.String())

	w = do(s, http.MethodPost, "/api/entries", map[string]string{"author": "X"}, bearer("u1"), acceptLanguage("es"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"El título y el autor son obligatorios"}`, w.Body.String())
}

func TestDuneFlow(t *testing.T) {
	sessions := newFakeSessions("u1")
	s := newTestServer(t, testutil.SetupTestDB(t), sessions)
	u1 := sessions.users["u1"].ID

	w := do(s, http.MethodPost, "/api/entries", map[string]string{"title": "Dune", "author": "Herbert"}, bearer("u1"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[map[string]any](t, w)
	id, _ := created["id"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, u1, created["userId"])
	for _, field := range []string{"recommended", "rating", "formato", "pageNumber", "startDate", "endDate",
		"favCharacter", "hatedCharacter", "ratingDetails", "genre", "favPhrases", "review"} {
		v, present := created[field]
		assert.True(t, present, field)
		assert.Nil(t, v, field)
	}

	w = do(s, http.MethodPost, "/api/entries", map[string]string{"title": "", "author": "X"}, bearer("u1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Title and author are required"}`, w.Body.String())

	w = do(s, http.MethodDelete, "/api/entries", map[string]string{"id": id}, bearer("u1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Entry deleted successfully"}`, w.Body.String())

	w = do(s, http.MethodGet, "/api/entries", nil, bearer("u1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestCreateEntryRejectsBadInput(t *testing.T) {
	s := newTestServer(t, testutil.SetupTestDB(t), newFakeSessions("u1"))

	tests := []struct {
		name string
		body any
		want string
	}{
		{"rating", map[string]any{"title": "A", "author": "B", "rating": 9}, "Invalid value for rating"},
		{"spicy", map[string]any{"title": "A", "author": "B", "ratingDetails": map[string]int{"spicy": 7}}, "Invalid value for ratingDetails.spicy"},
		{"format", map[string]any{"title": "A", "author": "B", "formato": "audio"}, "Invalid value for formato"},
		{"date", map[string]any{"title": "A", "author": "B", "startDate": "12/01/2024"}, "Invalid value for startDate"},
		{"malformed", `{"title": `, "Invalid request body"},
		{"wrong type", `{"title": "A", "author": "B", "rating": "five"}`, "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, http.MethodPost, "/api/entries", tt.body, bearer("u1"))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.want, decode[map[string]string](t, w)["error"])
		})
	}
}

func TestCreateEntryFullRoundTrip(t *testing.T) {
	s := newTestServer(t, testutil.SetupTestDB(t), newFakeSessions("u1"))

	body := `{
		"title": "Piranesi", "author": "Susanna Clarke", "recommended": true, "rating": 5,
		"formato": "physical", "pageNumber": 272, "startDate": "2024-01-02", "endDate": "2024-01-09",
		"favCharacter": "Piranesi", "hatedCharacter": "The Other", "genre": "Fantasy",
		"ratingDetails": {"romance": 0, "sadness": 3, "spicy": 0, "final": 5},
		"favPhrases": ["The Beauty of the House is immeasurable"], "review": "Strange and lovely."
	}`
	w := do(s, http.MethodPost, "/api/entries", body, bearer("u1"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[map[string]any](t, w)["id"].(string)

	w = do(s, http.MethodGet, "/api/entries?id="+id, nil, bearer("u1"))
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]map[string]any](t, w)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, "physical", got["formato"])
	assert.Equal(t, float64(272), got["pageNumber"])
	assert.Equal(t, "2024-01-02", got["startDate"])
	assert.Equal(t, map[string]any{"romance": float64(0), "sadness": float64(3), "spicy": float64(0), "final": float64(5)}, got["ratingDetails"])
	assert.Equal(t, []any{"The Beauty of the House is immeasurable"}, got["favPhrases"])
}

func TestEntriesAreOwnerScoped(t *testing.T) {
	s := newTestServer(t, testutil.SetupTestDB(t), newFakeSessions("u1", "u2"))

	w := do(s, http.MethodPost, "/api/entries", map[string]string{"title": "Dune", "author": "Herbert"}, bearer("u1"))
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[map[string]any](t, w)["id"].(string)

	w = do(s, http.MethodGet, "/api/entries", nil, bearer("u2"))
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(s, http.MethodGet, "/api/entries?id="+id, nil, bearer("u2"))
	assert.JSONEq(t, `[]`, w.Body.String())

	// someone else's id is a silent no-op
	w = do(s, http.MethodDelete, "/api/entries", map[string]string{"id": id}, bearer("u2"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(s, http.MethodGet, "/api/entries", nil, bearer("u1"))
	assert.Len(t, decode[[]map[string]any](t, w), 1)
}

func TestDeleteRequiresID(t *testing.T) {
	s := newTestServer(t, testutil.SetupTestDB(t), newFakeSessions("u1"))

	w := do(s, http.MethodDelete, "/api/entries", map[string]string{}, bearer("u1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Entry ID is required"}`, w.Body.String())

	w = do(s, http.MethodDelete, "/api/wishlist", nil, bearer("u1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Item ID is required"}`, w.Body.String())
}

func TestWishlistFlow(t *testing.T) {
	s := newTestServer(t, testutil.SetupTestDB(t), newFakeSessions("u1"))

	w := do(s, http.MethodPost, "/api/wishlist", map[string]string{"title": "Piranesi", "author": "Clarke", "note": "from Ana"}, bearer("u1"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	item := decode[map[string]any](t, w)
	assert.Equal(t, "from Ana", item["note"])

	w = do(s, http.MethodPost, "/api/wishlist", map[string]string{"title": "Piranesi"}, bearer("u1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(s, http.MethodGet, "/api/wishlist", nil, bearer("u1"))
	assert.Len(t, decode[[]map[string]any](t, w), 1)

	w = do(s, http.MethodDelete, "/api/wishlist", map[string]any{"id": item["id"]}, bearer("u1"))
	assert.JSONEq(t, `{"message":"Item deleted successfully"}`, w.Body.String())

	w = do(s, http.MethodGet, "/api/wishlist", nil, bearer("u1"))
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestStoreFailureIsInternalError(t *testing.T) {
	s := newTestServer(t, testutil.BrokenDB(t), newFakeSessions("u1"))

	w := do(s, http.MethodGet, "/api/entries", nil, bearer("u1"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, decode[map[string]string](t, w)["error"])

	w = do(s, http.MethodPost, "/api/wishlist", map[string]string{"title": "A", "author": "B"}, bearer("u1"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAuthServiceUnavailable(t *testing.T) {
	sessions := newFakeSessions("u1")
	sessions.resolveErr = apperr.ErrUnavailable
	s := newTestServer(t, testutil.SetupTestDB(t), sessions)

	w := do(s, http.MethodGet, "/api/entries", nil, bearer("u1"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"error":"Authentication service unavailable"}`, w.Body.String())
}

func TestListEntriesHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.SetupTestDB(t)
	s := newTestServer(t, db, newFakeSessions())
	owner := uuid.NewString()

	_, err := entries.NewRepository(db).Create(context.Background(), owner, entries.Fields{Title: "Dune", Author: "Herbert"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/entries", nil)
	setUser(c, &session.User{ID: owner})

	s.listEntries(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response []map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, 1, len(response))
	assert.Equal(t, "Dune", response[0]["title"])
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, testutil.SetupTestDB(t), newFakeSessions())
	w := do(s, http.MethodGet, "/manage/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"UP"}`, w.Body.String())

	s = newTestServer(t, testutil.BrokenDB(t), newFakeSessions())
	w = do(s, http.MethodGet, "/manage/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "DOWN", decode[map[string]string](t, w)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testutil.SetupTestDB(t), newFakeSessions())
	do(s, http.MethodGet, "/api/entries", nil)

	w := do(s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `bookshelf_http_requests_total{method="GET",route="/api/entries",status="401"} 1`)
}

func TestServerRunStopsOnCancel(t *testing.T) {
	s := newTestServer(t, testutil.SetupTestDB(t), newFakeSessions(), func(cfg *config.Config) {
		cfg.Server.Addr = "127.0.0.1:0"
		cfg.Server.ShutdownTimeout = config.Duration{Duration: time.Second}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
