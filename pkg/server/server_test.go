package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/larder/pkg/fetch"
	"github.com/pario-ai/larder/pkg/janitor"
	"github.com/pario-ai/larder/pkg/models"
	"github.com/pario-ai/larder/pkg/router"
)

type fakeHandler struct {
	last models.Request
}

func (f *fakeHandler) Handle(_ context.Context, req models.Request) *models.Response {
	f.last = req
	switch {
	case req.Kind == models.RequestList:
		return &models.Response{Kind: models.ResponseList, Data: json.RawMessage(`{"recipes":[{"id":1,"name":"Pad Thai"}]}`), Cached: true}
	case req.Kind != models.RequestDetail:
		return nil
	case req.RecipeID == "":
		r := models.ErrorResponse(router.MsgMissingRecipeID)
		return &r
	case req.RecipeID == "404":
		r := models.ErrorResponse(fetch.MsgFetchFailed)
		return &r
	default:
		return &models.Response{Kind: models.ResponseDetail, Data: json.RawMessage(`{"id":` + req.RecipeID + `}`)}
	}
}

type fakeAdmin struct {
	sweepErr error
}

func (a *fakeAdmin) Stats(context.Context) (models.CacheStats, error) {
	return models.CacheStats{StoreStats: models.StoreStats{Entries: 3, Bytes: 512}, Hits: 10, Misses: 2}, nil
}

func (a *fakeAdmin) Sweep(context.Context) (janitor.Result, error) {
	return janitor.Result{Scanned: 3, Evicted: 1}, a.sweepErr
}

func newTestServer(admin *fakeAdmin) (*Server, *fakeHandler) {
	h := &fakeHandler{}
	if admin == nil {
		admin = &fakeAdmin{}
	}
	return New(":0", h, admin, zerolog.Nop()), h
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestMessageEndpoint(t *testing.T) {
	s, _ := newTestServer(nil)

	rec := do(t, s, http.MethodPost, "/v1/messages", `{"id":42,"type":"FETCH_RECIPES_LIST"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":42,"type":"RECIPES_LIST","data":{"recipes":[{"id":1,"name":"Pad Thai"}]}}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestMessageEndpointNoReply(t *testing.T) {
	s, _ := newTestServer(nil)
	rec := do(t, s, http.MethodPost, "/v1/messages", `{"type":"PING"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestMessageEndpointMalformed(t *testing.T) {
	s, _ := newTestServer(nil)
	rec := do(t, s, http.MethodPost, "/v1/messages", `{"type":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Malformed message."}`, rec.Body.String())
}

func TestListEndpoint(t *testing.T) {
	s, _ := newTestServer(nil)
	rec := do(t, s, http.MethodGet, "/v1/recipes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hit", rec.Header().Get(CacheHeader))
	assert.JSONEq(t, `{"recipes":[{"id":1,"name":"Pad Thai"}]}`, rec.Body.String())
}

func TestDetailEndpoint(t *testing.T) {
	s, h := newTestServer(nil)
	rec := do(t, s, http.MethodGet, "/v1/recipes/7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "miss", rec.Header().Get(CacheHeader))
	assert.JSONEq(t, `{"id":7}`, rec.Body.String())
	assert.Equal(t, "7", h.last.RecipeID)
}

func TestDetailEndpointUpstreamFailure(t *testing.T) {
	s, _ := newTestServer(nil)
	rec := do(t, s, http.MethodGet, "/v1/recipes/404", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch data."}`, rec.Body.String())
	assert.Empty(t, rec.Header().Get(CacheHeader))
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(nil)
	rec := do(t, s, http.MethodDelete, "/v1/recipes", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	s, _ := newTestServer(nil)
	rec := do(t, s, http.MethodGet, "/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.CacheStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 3, stats.Entries)
	assert.EqualValues(t, 10, stats.Hits)
}

func TestSweepEndpoint(t *testing.T) {
	s, _ := newTestServer(nil)
	rec := do(t, s, http.MethodPost, "/v1/cache/sweep", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"scanned":3,"evicted":1,"failed":0}`, rec.Body.String())

	s, _ = newTestServer(&fakeAdmin{sweepErr: errors.New("no such table")})
	rec = do(t, s, http.MethodPost, "/v1/cache/sweep", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(nil)
	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListenAndServeShutdown(t *testing.T) {
	s := New("127.0.0.1:0", &fakeHandler{}, &fakeAdmin{}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
