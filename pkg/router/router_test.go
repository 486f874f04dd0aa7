package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pario-ai/larder/pkg/cache/sqlite"
	"github.com/pario-ai/larder/pkg/expiry"
	"github.com/pario-ai/larder/pkg/fetch"
	"github.com/pario-ai/larder/pkg/models"
	"github.com/pario-ai/larder/pkg/upstream"
)

func TestEndpoints(t *testing.T) {
	e := Endpoints{Prefix: "https://dummyjson.com/recipes/"}
	if got := e.ListURL(); got != "https://dummyjson.com/recipes?select=name" {
		t.Errorf("unexpected list URL %q", got)
	}
	if got := e.DetailURL("7"); got != "https://dummyjson.com/recipes/7" {
		t.Errorf("unexpected detail URL %q", got)
	}
	if got := e.DetailURL("a/b"); got != "https://dummyjson.com/recipes/a%2Fb" {
		t.Errorf("detail id not escaped: %q", got)
	}
}

func TestTarget(t *testing.T) {
	r := New(Endpoints{Prefix: "http://api/recipes"}, nil, zerolog.Nop())

	tests := []struct {
		name    string
		req     models.Request
		url     string
		kind    models.ResponseKind
		wantErr error
	}{
		{"list", models.Request{Kind: models.RequestList}, "http://api/recipes?select=name", models.ResponseList, nil},
		{"detail", models.Request{Kind: models.RequestDetail, RecipeID: "12"}, "http://api/recipes/12", models.ResponseDetail, nil},
		{"detail without id", models.Request{Kind: models.RequestDetail}, "", "", ErrMissingRecipeID},
		{"blank id", models.Request{Kind: models.RequestDetail, RecipeID: "  "}, "", "", ErrMissingRecipeID},
		{"unknown", models.Request{Kind: "search"}, "", "", ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, kind, err := r.Target(tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if url != tt.url || kind != tt.kind {
				t.Errorf("got (%q, %q), want (%q, %q)", url, kind, tt.url, tt.kind)
			}
		})
	}
}

type resolverFunc func(ctx context.Context, url string, kind models.ResponseKind) models.Response

func (f resolverFunc) Resolve(ctx context.Context, url string, kind models.ResponseKind) models.Response {
	return f(ctx, url, kind)
}

func TestHandleMissingRecipeID(t *testing.T) {
	called := false
	r := New(Endpoints{Prefix: "http://api/recipes"}, resolverFunc(func(context.Context, string, models.ResponseKind) models.Response {
		called = true
		return models.Response{}
	}), zerolog.Nop())

	resp := r.Handle(context.Background(), models.Request{Kind: models.RequestDetail})
	if resp == nil || resp.Message != MsgMissingRecipeID {
		t.Fatalf("expected missing id error, got %+v", resp)
	}
	if called {
		t.Error("resolver should not be called without a recipe id")
	}
}

func TestHandleUnknownKindHasNoReply(t *testing.T) {
	r := New(Endpoints{Prefix: "http://api/recipes"}, nil, zerolog.Nop())
	if resp := r.Handle(context.Background(), models.Request{Kind: "search"}); resp != nil {
		t.Errorf("expected no reply, got %+v", resp)
	}
}

func TestHandleRecoversPanic(t *testing.T) {
	r := New(Endpoints{Prefix: "http://api/recipes"}, resolverFunc(func(context.Context, string, models.ResponseKind) models.Response {
		panic("nil map write")
	}), zerolog.Nop())

	resp := r.Handle(context.Background(), models.Request{Kind: models.RequestList})
	if resp == nil || !resp.IsError() || resp.Message != fetch.MsgUnavailable {
		t.Fatalf("expected generic error, got %+v", resp)
	}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type scenario struct {
	router    *Router
	store     *sqlite.Store
	clock     *clock
	listCalls atomic.Int64
	listBody  atomic.Value
	endpoints Endpoints
}

func newScenario(t *testing.T) *scenario {
	t.Helper()
	s := &scenario{clock: &clock{now: time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)}}
	s.listBody.Store(`{"recipes":[{"id":1,"name":"Classic Margherita Pizza"}],"total":1,"skip":0,"limit":30}`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/recipes" && r.URL.Query().Get("select") == "name":
			s.listCalls.Add(1)
			_, _ = w.Write([]byte(s.listBody.Load().(string)))
		case strings.HasPrefix(r.URL.Path, "/recipes/"):
			http.Error(w, `{"message":"upstream unavailable"}`, http.StatusServiceUnavailable)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	store, err := sqlite.New(filepath.Join(t.TempDir(), "larder.db"), "recipes-cache")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	s.store = store

	policy := expiry.WithClock(expiry.DefaultTTL, s.clock.Now)
	client := upstream.New(upstream.Options{Timeout: 5 * time.Second, Now: s.clock.Now})
	s.endpoints = Endpoints{Prefix: srv.URL + "/recipes"}
	s.router = New(s.endpoints, fetch.New(store, policy, client), zerolog.Nop())
	return s
}

func (s *scenario) list(t *testing.T) models.Reply {
	t.Helper()
	msg := models.Message{Type: models.TypeFetchRecipesList}
	req, ok := msg.Request()
	if !ok {
		t.Fatal("list message not recognized")
	}
	resp := s.router.Handle(context.Background(), req)
	if resp == nil {
		t.Fatal("expected a reply")
	}
	return models.NewReply(*resp)
}

func TestScenarioColdListFetchesOnce(t *testing.T) {
	s := newScenario(t)

	reply := s.list(t)
	if reply.Type != models.TypeRecipesList || reply.Error != "" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if s.listCalls.Load() != 1 {
		t.Errorf("expected 1 upstream call, got %d", s.listCalls.Load())
	}

	entry, ok, err := s.store.Get(context.Background(), s.endpoints.ListURL())
	if err != nil || !ok {
		t.Fatalf("expected cached list, ok=%v err=%v", ok, err)
	}
	if !entry.StoredAt.Equal(s.clock.Now()) {
		t.Errorf("expected storedAt %v, got %v", s.clock.Now(), entry.StoredAt)
	}
}

func TestScenarioWarmListWithinTTL(t *testing.T) {
	s := newScenario(t)
	first := s.list(t)

	s.listBody.Store(`{"recipes":[{"id":2,"name":"Changed"}]}`)
	s.clock.Advance(time.Hour)
	second := s.list(t)

	if s.listCalls.Load() != 1 {
		t.Errorf("expected no further upstream calls, got %d total", s.listCalls.Load())
	}
	if string(first.Data) != string(second.Data) {
		t.Errorf("expected cached data, got %s", second.Data)
	}
}

func TestScenarioExpiredListRefetches(t *testing.T) {
	s := newScenario(t)
	s.list(t)

	fresh := `{"recipes":[{"id":2,"name":"Pad Thai"}]}`
	s.listBody.Store(fresh)
	s.clock.Advance(25 * time.Hour)
	reply := s.list(t)

	if s.listCalls.Load() != 2 {
		t.Errorf("expected 2 upstream calls, got %d", s.listCalls.Load())
	}
	if string(reply.Data) != fresh {
		t.Errorf("expected refreshed data, got %s", reply.Data)
	}
	entry, ok, err := s.store.Get(context.Background(), s.endpoints.ListURL())
	if err != nil || !ok {
		t.Fatalf("expected repopulated entry, ok=%v err=%v", ok, err)
	}
	if !entry.StoredAt.Equal(s.clock.Now()) {
		t.Errorf("expected new timestamp %v, got %v", s.clock.Now(), entry.StoredAt)
	}
}

func TestScenarioDetailUpstreamError(t *testing.T) {
	s := newScenario(t)

	msg := models.Message{Type: models.TypeFetchRecipeDetails, RecipeID: "7"}
	req, _ := msg.Request()
	resp := s.router.Handle(context.Background(), req)
	if resp == nil {
		t.Fatal("expected a reply")
	}
	reply := models.NewReply(*resp)
	if reply.Error != fetch.MsgFetchFailed || reply.Type != "" {
		t.Fatalf("unexpected reply %+v", reply)
	}

	_, ok, err := s.store.Get(context.Background(), s.endpoints.DetailURL("7"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("failed fetch must not create a cache entry")
	}
}
