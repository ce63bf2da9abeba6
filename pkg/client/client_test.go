package client

import (
	"bookshelf/pkg/api"
	"bookshelf/pkg/config"
	"bookshelf/pkg/database"
	"bookshelf/pkg/entries"
	"bookshelf/pkg/session"
	"bookshelf/pkg/testutil"
	"bookshelf/pkg/wishlist"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	logger := log.New(io.Discard)
	srv := api.NewServer(config.Default(), api.Deps{
		Entries:  entries.NewRepository(db),
		Wishlist: wishlist.NewRepository(db),
		Sessions: session.NewManager(db, "test-secret", time.Hour, logger),
		Health:   func(ctx context.Context) error { return database.Ping(ctx, db) },
	}, logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

type recorder struct {
	mu      sync.Mutex
	changes []Status
}

func (r *recorder) listen(status Status, _ *session.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, status)
}

func TestInitWithoutTokenIsAnonymous(t *testing.T) {
	c := New(newBackend(t).URL)
	assert.Equal(t, StatusUnknown, c.Status())

	_, err := c.RequireAuth()
	assert.ErrorIs(t, err, ErrSessionPending)

	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, StatusAnonymous, c.Status())
	assert.Nil(t, c.CurrentUser())

	_, err = c.RequireAuth()
	assert.ErrorIs(t, err, ErrLoginRequired)
}

func TestInitWithStaleTokenIsAnonymous(t *testing.T) {
	c := New(newBackend(t).URL, WithToken("stale"))

	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, StatusAnonymous, c.Status())
	assert.Empty(t, c.Token())
}

func TestSessionLifecycle(t *testing.T) {
	ts := newBackend(t)
	ctx := context.Background()
	c := New(ts.URL)
	rec := &recorder{}
	unsubscribe := c.OnChange(rec.listen)

	require.NoError(t, c.Init(ctx))

	user, err := c.Signup(ctx, "reader@example.com", "secret123", "Reader")
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, c.Status())
	assert.Equal(t, user, c.CurrentUser())

	got, err := c.RequireAuth()
	require.NoError(t, err)
	assert.Equal(t, "reader@example.com", got.Email)

	// a second client picks the session up from the token
	resumed := New(ts.URL, WithToken(c.Token()))
	require.NoError(t, resumed.Init(ctx))
	assert.Equal(t, StatusAuthenticated, resumed.Status())
	assert.Equal(t, user.ID, resumed.CurrentUser().ID)

	require.NoError(t, c.Logout(ctx))
	assert.Equal(t, StatusAnonymous, c.Status())
	assert.Nil(t, c.CurrentUser())

	unsubscribe()
	_, err = c.Login(ctx, "reader@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, c.Status())

	assert.Equal(t, []Status{StatusAnonymous, StatusAuthenticated, StatusAnonymous}, rec.changes)

	// the revoked token no longer works for the resumed client
	_, err = resumed.ListEntries(ctx, "")
	assert.ErrorIs(t, err, ErrLoginRequired)
	assert.Equal(t, StatusAnonymous, resumed.Status())
}

func TestLoginFailure(t *testing.T) {
	c := New(newBackend(t).URL)
	ctx := context.Background()
	require.NoError(t, c.Init(ctx))

	_, err := c.Login(ctx, "nobody@example.com", "secret123")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid email or password", apiErr.Message)
	assert.Equal(t, StatusAnonymous, c.Status())
}

func TestEntriesAndWishlist(t *testing.T) {
	c := New(newBackend(t).URL, WithLanguage("es"))
	ctx := context.Background()

	_, err := c.ListEntries(ctx, "")
	assert.ErrorIs(t, err, ErrLoginRequired)

	_, err = c.Signup(ctx, "reader@example.com", "secret123", "")
	require.NoError(t, err)

	rating := 4
	entry, err := c.CreateEntry(ctx, entries.Fields{Title: "Dune", Author: "Herbert", Rating: &rating})
	require.NoError(t, err)
	assert.Equal(t, c.CurrentUser().ID, entry.UserID)

	list, err := c.ListEntries(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Rating)
	assert.Equal(t, 4, *list[0].Rating)

	_, err = c.CreateEntry(ctx, entries.Fields{Author: "X"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "El título y el autor son obligatorios", apiErr.Message)

	require.NoError(t, c.DeleteEntry(ctx, entry.ID))
	list, err = c.ListEntries(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)

	item, err := c.CreateWishlistItem(ctx, wishlist.Fields{Title: "Piranesi", Author: "Clarke"})
	require.NoError(t, err)
	items, err := c.ListWishlist(ctx, "")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	require.NoError(t, c.DeleteWishlistItem(ctx, item.ID))
	items, err = c.ListWishlist(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	c := New("http://unused")
	calls := 0
	unsubscribe := c.OnChange(func(Status, *session.User) { calls++ })

	c.transition(StatusAnonymous, nil, "")
	unsubscribe()
	unsubscribe()
	c.transition(StatusAnonymous, nil, "")

	assert.Equal(t, 1, calls)
	assert.Equal(t, "anonymous", c.Status().String())
}
