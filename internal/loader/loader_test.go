package loader

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/fetch"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/rescache"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/errors"
)

const (
	indexJSON = `{"cat": [[0, 2], [1, 1]], "dog": [[1, 3]]}`
	urlsJSON  = `[["/cats/", "Cats", ["meta", "All about cats."], 3], ["/dogs/", "Dogs", ["meta", "Dogs too."], 4]]`
)

var testResources = []Resource{
	{Key: index.KeyIndex, URL: "https://example.com/index.json"},
	{Key: index.KeyURLs, URL: "https://example.com/index_urls.json"},
}

type site struct {
	mu    sync.Mutex
	files map[string]string
	calls map[string]int
	block chan struct{}
	fail  map[string]error
}

func newSite() *site {
	return &site{
		files: map[string]string{
			"https://example.com/index.json":      indexJSON,
			"https://example.com/index_urls.json": urlsJSON,
		},
		calls: map[string]int{},
		fail:  map[string]error{},
	}
}

func (s *site) Fetch(ctx context.Context, url string) (string, error) {
	s.mu.Lock()
	s.calls[url]++
	body, err, block := s.files[url], s.fail[url], s.block
	s.mu.Unlock()
	if block != nil && strings.HasSuffix(url, "index_urls.json") {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return body, nil
}

func (s *site) count(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

type fixture struct {
	site   *site
	store  *index.Store
	cache  *rescache.Cache
	clock  *testclock.Clock
	loader *Loader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		site:  newSite(),
		store: index.NewStore(nil),
		clock: testclock.NewClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.cache = rescache.New(storage.NewMemory(), f.site, rescache.Options{Clock: f.clock})
	f.loader = New(f.cache, f.store, testResources, nil)
	return f
}

func TestLoadPublishesAndRunsDeferredWorkOnce(t *testing.T) {
	f := newFixture(t)
	var runs atomic.Int32
	f.loader.WhenReady(func() { runs.Add(1) })

	if err := f.loader.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.loader.State() != Ready {
		t.Fatalf("state = %v, want ready", f.loader.State())
	}
	snap := f.store.Current()
	if snap == nil || len(snap.Terms) != 2 || len(snap.URLs) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if err := f.loader.Reload(context.Background(), false); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := runs.Load(); got != 1 {
		t.Errorf("deferred work ran %d times, want 1", got)
	}

	var after atomic.Int32
	f.loader.WhenReady(func() { after.Add(1) })
	if after.Load() != 1 {
		t.Error("WhenReady after ready should run immediately")
	}
}

func TestFreshResourcesAreNotRefetched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.loader.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.loader.Reload(ctx, false); err != nil {
		t.Fatal(err)
	}
	if got := f.site.count(testResources[0].URL); got != 1 {
		t.Errorf("fresh resource fetched %d times, want 1", got)
	}

	f.clock.Advance(rescache.DefaultExpiry + time.Minute)
	if err := f.loader.Reload(ctx, false); err != nil {
		t.Fatal(err)
	}
	if got := f.site.count(testResources[0].URL); got != 2 {
		t.Errorf("stale resource fetched %d times, want 2", got)
	}

	if err := f.loader.Reload(ctx, true); err != nil {
		t.Fatal(err)
	}
	if got := f.site.count(testResources[1].URL); got != 3 {
		t.Errorf("forced reload fetched %d times, want 3", got)
	}
}

func TestBarrierHoldsUntilEveryResourceArrives(t *testing.T) {
	f := newFixture(t)
	f.site.block = make(chan struct{})

	var ran atomic.Bool
	f.loader.WhenReady(func() { ran.Store(true) })

	done := make(chan error, 1)
	go func() { done <- f.loader.Load(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for f.site.count(testResources[0].URL) == 0 || f.loader.State() != Loading {
		if time.Now().After(deadline) {
			t.Fatal("load never started")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if f.loader.State() != Loading || ran.Load() || f.store.Current() != nil {
		t.Fatal("index published before every resource arrived")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := f.loader.Wait(ctx); !errors.Is(err, apperrors.ErrNotReady) {
		t.Errorf("Wait = %v, want ErrNotReady", err)
	}

	close(f.site.block)
	if err := <-done; err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ran.Load() {
		t.Error("deferred work did not run after load")
	}
	if err := f.loader.Wait(context.Background()); err != nil {
		t.Errorf("Wait after ready = %v", err)
	}
}

func TestFetchFailureCancelsSiblingsAndKeepsWorkQueued(t *testing.T) {
	f := newFixture(t)
	f.site.block = make(chan struct{})
	f.site.fail[testResources[0].URL] = apperrors.ErrFetch

	var ran atomic.Bool
	f.loader.WhenReady(func() { ran.Store(true) })

	err := f.loader.Load(context.Background())
	if !errors.Is(err, apperrors.ErrFetch) {
		t.Fatalf("Load = %v, want ErrFetch", err)
	}
	if f.loader.State() != Failed {
		t.Errorf("state = %v, want failed", f.loader.State())
	}
	if ran.Load() || f.store.Current() != nil {
		t.Error("deferred work ran against a partial index")
	}

	f.site.mu.Lock()
	delete(f.site.fail, testResources[0].URL)
	f.site.block = nil
	f.site.mu.Unlock()
	if err := f.loader.Load(context.Background()); err != nil {
		t.Fatalf("retry Load: %v", err)
	}
	if !ran.Load() {
		t.Error("queued work did not run after a successful retry")
	}
	if f.loader.LastError() != nil {
		t.Errorf("LastError = %v after success", f.loader.LastError())
	}
}

func TestParseFailureIsFailed(t *testing.T) {
	f := newFixture(t)
	f.site.files[testResources[1].URL] = "not json"
	err := f.loader.Load(context.Background())
	if !errors.Is(err, apperrors.ErrParse) {
		t.Fatalf("Load = %v, want ErrParse", err)
	}
	if f.loader.State() != Failed {
		t.Errorf("state = %v", f.loader.State())
	}
}

func TestFailedReloadKeepsServingOldIndex(t *testing.T) {
	f := newFixture(t)
	if err := f.loader.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	old := f.store.Current()

	f.site.mu.Lock()
	f.site.fail[testResources[1].URL] = apperrors.ErrFetch
	f.site.mu.Unlock()
	if err := f.loader.Reload(context.Background(), true); err == nil {
		t.Fatal("Reload succeeded with a failing origin")
	}
	if f.store.Current() != old {
		t.Error("failed reload replaced the live snapshot")
	}
	if f.loader.State() != Ready {
		t.Errorf("state = %v, want ready", f.loader.State())
	}
	if f.loader.LastError() == nil {
		t.Error("LastError not recorded")
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestReloadsDuringAForcedCycleNeverMixResources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.loader.Load(ctx); err != nil {
		t.Fatal(err)
	}
	old := f.store.Current()

	const (
		indexV2 = `{"bird": [[2, 1]]}`
		urlsV2  = `[["/cats/", "Cats", ["meta", "c"], 3], ["/dogs/", "Dogs", ["meta", "d"], 4], ["/birds/", "Birds", ["meta", "b"], 5]]`
	)
	f.site.mu.Lock()
	f.site.files[testResources[0].URL] = indexV2
	f.site.files[testResources[1].URL] = urlsV2
	f.site.block = make(chan struct{})
	f.site.mu.Unlock()

	forced := make(chan error, 1)
	go func() { forced <- f.loader.Reload(ctx, true) }()
	eventually(t, func() bool {
		v, ok, _ := f.cache.Get(ctx, index.KeyIndex)
		return ok && v == indexV2
	})

	plain := make(chan error, 1)
	go func() { plain <- f.loader.Reload(ctx, false) }()
	time.Sleep(20 * time.Millisecond)
	if f.store.Current() != old {
		t.Fatal("snapshot published while another cycle was half-way through its refreshes")
	}
	select {
	case err := <-plain:
		t.Fatalf("reload finished while a forced cycle was running: %v", err)
	default:
	}

	close(f.site.block)
	if err := <-forced; err != nil {
		t.Fatalf("forced Reload: %v", err)
	}
	if err := <-plain; err != nil {
		t.Fatalf("Reload: %v", err)
	}
	snap := f.store.Current()
	if len(snap.Postings("bird")) != 1 {
		t.Errorf("postings = %+v", snap.Terms)
	}
	if _, ok := snap.Document("2"); !ok {
		t.Errorf("document 2 missing from url table %+v", snap.URLs)
	}
}

func TestSharedCycleOutlivesTheCallerThatStartedIt(t *testing.T) {
	f := newFixture(t)
	f.site.block = make(chan struct{})

	reqCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := make(chan error, 1)
	go func() { first <- f.loader.Reload(reqCtx, true) }()
	eventually(t, func() bool { return f.site.count(testResources[1].URL) == 1 })

	second := make(chan error, 1)
	go func() { second <- f.loader.Reload(context.Background(), true) }()
	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("first Reload = %v, want context.Canceled", err)
	}

	close(f.site.block)
	if err := <-second; err != nil {
		t.Fatalf("joined Reload: %v", err)
	}
	if f.loader.State() != Ready || f.store.Current() == nil {
		t.Errorf("state = %v after the shared cycle", f.loader.State())
	}
}

func TestCloseCancelsCycle(t *testing.T) {
	f := newFixture(t)
	f.site.block = make(chan struct{})
	defer close(f.site.block)

	done := make(chan error, 1)
	go func() { done <- f.loader.Load(context.Background()) }()
	eventually(t, func() bool { return f.site.count(testResources[1].URL) == 1 })

	f.loader.Close()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Load = %v, want context.Canceled", err)
	}
	if err := f.loader.Load(context.Background()); !errors.Is(err, context.Canceled) {
		t.Errorf("Load after Close = %v, want context.Canceled", err)
	}
	if f.store.Current() != nil {
		t.Error("closed loader published a snapshot")
	}
}

func TestDeepLinkReplaysNewestOnce(t *testing.T) {
	f := newFixture(t)
	var mu sync.Mutex
	var got []string
	record := func(q string) {
		mu.Lock()
		got = append(got, q)
		mu.Unlock()
	}

	if f.loader.DeepLink("#nothing", record) {
		t.Error("DeepLink accepted a fragment without q=")
	}
	f.loader.DeepLink("#q=first", record)
	f.loader.DeepLink("https://example.com/search/#q=running%20cats", record)

	if err := f.loader.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := f.loader.Reload(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	f.loader.DeepLink("#q=dogs", record)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"running cats", "dogs"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("replayed %q, want %q", got, want)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.loader.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != "idle" || st.Ready || len(st.Resources) != 2 || !st.Resources[0].Stale {
		t.Errorf("idle status = %+v", st)
	}

	if err := f.loader.Load(ctx); err != nil {
		t.Fatal(err)
	}
	st, err = f.loader.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Ready || st.Terms != 2 || st.Documents != 2 {
		t.Errorf("ready status = %+v", st)
	}
	for _, r := range st.Resources {
		if r.Stale || r.FetchedAt != f.clock.Now().UnixMilli() {
			t.Errorf("resource %+v", r)
		}
	}
}

func TestResources(t *testing.T) {
	rs, err := Resources(config.ResourcesConfig{
		BaseURL: "https://example.com/docs/",
		Items:   []config.Resource{{Key: "index", Path: "search/index.json"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 1 || rs[0].URL != "https://example.com/docs/search/index.json" {
		t.Errorf("Resources = %+v", rs)
	}
}

func TestPublishedHandler(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.loader.Load(ctx); err != nil {
		t.Fatal(err)
	}
	h := f.loader.PublishedHandler("https://example.com/")

	if err := h(ctx, nil, []byte(`{"base_url":"https://other.example/"}`)); err != nil {
		t.Fatal(err)
	}
	if got := f.site.count(testResources[0].URL); got != 1 {
		t.Errorf("event for another site triggered a fetch (%d)", got)
	}

	if err := h(ctx, nil, []byte(`{"base_url":"https://example.com","version":"v2"}`)); err != nil {
		t.Fatal(err)
	}
	if got := f.site.count(testResources[0].URL); got != 2 {
		t.Errorf("fetches after event = %d, want 2", got)
	}

	if err := h(ctx, nil, []byte(`{broken`)); err != nil {
		t.Errorf("undecodable event returned %v", err)
	}
}

var _ fetch.Fetcher = (*site)(nil)
