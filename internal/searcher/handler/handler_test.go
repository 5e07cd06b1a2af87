package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/deeplink"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/proto"
)

type mapSource map[string]string

func (m mapSource) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

var site = mapSource{
	index.KeyIndex: `{"cat": [[0, 2], [1, 1]], "dog": [[1, 3]]}`,
	index.KeyURLs:  `[["/cats/", "Cats", ["meta", "All about cats."], 3], ["/dogs/", "Dogs", ["meta", "Dogs too."], 4]]`,
}

// fakeLoader publishes the fixture index on Reload and replays deep links
// like the real loader.
type fakeLoader struct {
	store *index.Store

	mu        sync.Mutex
	ready     chan struct{}
	link      func()
	reloadErr error
	forced    bool
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{store: index.NewStore(nil), ready: make(chan struct{})}
}

func (f *fakeLoader) Wait(ctx context.Context) error {
	select {
	case <-f.ready:
		return nil
	case <-ctx.Done():
		return apperrors.ErrNotReady
	}
}

func (f *fakeLoader) DeepLink(fragment string, fn func(string)) bool {
	q, ok := deeplink.Parse(fragment)
	if !ok {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.ready:
		go fn(q)
	default:
		f.link = func() { fn(q) }
	}
	return true
}

func (f *fakeLoader) Status(context.Context) (*proto.StatusResponse, error) {
	st := &proto.StatusResponse{State: "loading", TokenizerVersion: "1"}
	if snap := f.store.Current(); snap != nil {
		st.State, st.Ready, st.Terms, st.Documents = "ready", true, len(snap.Terms), len(snap.URLs)
	}
	return st, nil
}

func (f *fakeLoader) Reload(ctx context.Context, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reloadErr != nil {
		return f.reloadErr
	}
	f.forced = force
	snap, err := index.Unpack(ctx, site)
	if err != nil {
		return err
	}
	f.store.Publish(snap)
	select {
	case <-f.ready:
	default:
		close(f.ready)
		if f.link != nil {
			go f.link()
			f.link = nil
		}
	}
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []proto.SearchEvent
}

func (r *recorder) Track(e proto.SearchEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func newHandler(t *testing.T, ready bool) (*Handler, *fakeLoader, *recorder, *http.ServeMux) {
	t.Helper()
	l := newFakeLoader()
	if ready {
		if err := l.Reload(context.Background(), false); err != nil {
			t.Fatal(err)
		}
	}
	rec := &recorder{}
	h := New(engine.New(l.store, nil), l, rec, config.SearchConfig{
		MaxResults:       100,
		ReadyWaitTimeout: 50 * time.Millisecond,
	})
	mux := http.NewServeMux()
	h.Routes(mux, nil)
	return h, l, rec, mux
}

func get(t *testing.T, mux http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s %s: body %q: %v", method, target, rec.Body.String(), err)
	}
	return rec, body
}

func TestSearch(t *testing.T) {
	_, _, events, mux := newHandler(t, true)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=cats+dog", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d body %s", rec.Code, rec.Body)
	}
	var resp proto.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 || resp.Results[0].URL != "/dogs/" || resp.Results[0].Score != 4 {
		t.Errorf("results = %+v", resp.Results)
	}
	if resp.Results[1].Summary != "All about cats." {
		t.Errorf("summary = %q", resp.Results[1].Summary)
	}
	if len(events.events) != 1 || events.events[0].Source != "http" || events.events[0].Results != 2 {
		t.Errorf("events = %+v", events.events)
	}
}

func TestSearchLimitAndValidation(t *testing.T) {
	_, _, _, mux := newHandler(t, true)
	_, body := get(t, mux, http.MethodGet, "/api/v1/search?q=cat&limit=1")
	if results := body["results"].([]any); len(results) != 1 {
		t.Errorf("limit=1 returned %d results", len(results))
	}

	rec, body := get(t, mux, http.MethodGet, "/api/v1/search?q=cat&limit=-1")
	if rec.Code != http.StatusBadRequest || body["error"] == nil {
		t.Errorf("limit=-1: %d %v", rec.Code, body)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	_, _, _, mux := newHandler(t, false)
	rec, body := get(t, mux, http.MethodGet, "/api/v1/search?q=the")
	if rec.Code != http.StatusOK || body["no_results"] != true {
		t.Errorf("stop-word query: %d %v", rec.Code, body)
	}
}

func TestSearchNotReady(t *testing.T) {
	_, _, _, mux := newHandler(t, false)
	rec, body := get(t, mux, http.MethodGet, "/api/v1/search?q=cat")
	if rec.Code != http.StatusServiceUnavailable || body["error"] != "index loading" {
		t.Errorf("not ready: %d %v", rec.Code, body)
	}

	rec, _ = get(t, mux, http.MethodGet, "/api/v1/search?q=cat&wait=true")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("wait timeout: %d", rec.Code)
	}
}

func TestSearchWaitsForReady(t *testing.T) {
	h, l, _, mux := newHandler(t, false)
	h.readyWait = 5 * time.Second
	go func() {
		time.Sleep(10 * time.Millisecond)
		l.Reload(context.Background(), false)
	}()
	rec, body := get(t, mux, http.MethodGet, "/api/v1/search?q=dog&wait=true")
	if rec.Code != http.StatusOK || len(body["results"].([]any)) != 1 {
		t.Errorf("wait=true: %d %v", rec.Code, body)
	}
}

func TestDeepLink(t *testing.T) {
	h, l, events, mux := newHandler(t, false)
	h.readyWait = 5 * time.Second

	rec, _ := get(t, mux, http.MethodGet, "/api/v1/deeplink?fragment=%23nothing")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad fragment: %d", rec.Code)
	}

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/deeplink?fragment="+
			"%23q%3Drunning%2520dogs", nil))
		done <- rec
	}()
	time.Sleep(10 * time.Millisecond)
	if err := l.Reload(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	rec = <-done
	var resp proto.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || resp.Query != "running dogs" || len(resp.Results) != 1 {
		t.Errorf("deep link: %d %+v", rec.Code, resp)
	}
	if events.events[0].Source != "deeplink" {
		t.Errorf("source = %q", events.events[0].Source)
	}
}

func TestStatusAndReload(t *testing.T) {
	_, l, _, mux := newHandler(t, false)
	_, body := get(t, mux, http.MethodGet, "/api/v1/status")
	if body["ready"] != false {
		t.Errorf("status before load = %v", body)
	}

	rec, body := get(t, mux, http.MethodPost, "/api/v1/reload?force=true")
	if rec.Code != http.StatusOK || body["ready"] != true || !l.forced {
		t.Errorf("reload: %d %v forced=%v", rec.Code, body, l.forced)
	}

	l.reloadErr = errors.Join(apperrors.ErrFetch, errors.New("origin down"))
	rec, _ = get(t, mux, http.MethodPost, "/api/v1/reload")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("failed reload: %d", rec.Code)
	}
}

func TestRPC(t *testing.T) {
	h, _, events, _ := newHandler(t, true)
	srv := grpc.NewServer(apperrors.HTTPStatusCode)
	h.RegisterRPC(srv)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go srv.ServeListener(ln)
	t.Cleanup(srv.Stop)

	c, err := grpc.Dial(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	var resp proto.SearchResponse
	if err := c.Call(ctx, MethodSearch, &proto.SearchRequest{Query: "cat", Limit: 1}, &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].URL != "/cats/" {
		t.Errorf("rpc search = %+v", resp)
	}
	var st proto.StatusResponse
	if err := c.Call(ctx, MethodStatus, &proto.StatusRequest{}, &st); err != nil {
		t.Fatal(err)
	}
	if !st.Ready || st.Terms != 2 {
		t.Errorf("rpc status = %+v", st)
	}
	if events.events[0].Source != "rpc" {
		t.Errorf("source = %q", events.events[0].Source)
	}
}
