package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/metrics"
)

type mapSource map[string]string

func (m mapSource) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func newEngine(t *testing.T, terms, urls string) (*Engine, *metrics.Metrics) {
	t.Helper()
	snap, err := index.Unpack(context.Background(), mapSource{index.KeyIndex: terms, index.KeyURLs: urls})
	if err != nil {
		t.Fatal(err)
	}
	store := index.NewStore(nil)
	store.Publish(snap)
	m := metrics.New(prometheus.NewRegistry())
	return New(store, m), m
}

const fixtureURLs = `{
	"d1": ["https://site/d1", "Cats", ["meta", "All about cats"], 10],
	"d2": ["https://site/d2", "Running", ["text", "Nav\nRunning is a great way to stay fit and it needs very little equipment at all"], 20]
}`

func TestSearchScoresAndOrders(t *testing.T) {
	e, _ := newEngine(t, `{"cat":[["d1",3]],"run":[["d1",2],["d2",5]]}`, fixtureURLs)

	res, err := e.Search(context.Background(), "cats run")
	if err != nil {
		t.Fatal(err)
	}
	if res.NoResults || len(res.Results) != 2 {
		t.Fatalf("res = %+v", res)
	}
	if res.Results[0].URL != "https://site/d1" || res.Results[0].Score != 5 {
		t.Errorf("first = %+v", res.Results[0])
	}
	if res.Results[1].URL != "https://site/d2" || res.Results[1].Score != 5 {
		t.Errorf("second = %+v", res.Results[1])
	}
	if res.Results[0].Summary != "All about cats" {
		t.Errorf("meta summary = %q", res.Results[0].Summary)
	}
	if !strings.HasPrefix(res.Results[1].Summary, " Running is") {
		t.Errorf("body summary = %q", res.Results[1].Summary)
	}
	if got := strings.Join(res.Tokens, ","); got != "cat,run" {
		t.Errorf("tokens = %s", got)
	}
}

func TestEmptyQueryBeforeReady(t *testing.T) {
	e := New(index.NewStore(nil), nil)
	for _, q := range []string{"", "   ", "the and of", "!!"} {
		res, err := e.Search(context.Background(), q)
		if err != nil {
			t.Fatalf("%q: %v", q, err)
		}
		if !res.NoResults || len(res.Results) != 0 {
			t.Errorf("%q: res = %+v", q, res)
		}
	}
}

func TestNotReady(t *testing.T) {
	e := New(index.NewStore(nil), nil)
	_, err := e.Search(context.Background(), "cats")
	if !errors.Is(err, apperrors.ErrNotReady) {
		t.Errorf("err = %v, want ErrNotReady", err)
	}
}

func TestUnknownTermsGiveNoResults(t *testing.T) {
	e, m := newEngine(t, `{"cat":[["d1",3]]}`, fixtureURLs)
	res, err := e.Search(context.Background(), "dog")
	if err != nil {
		t.Fatal(err)
	}
	if !res.NoResults {
		t.Errorf("res = %+v", res)
	}
	if got := testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("zero_result")); got != 1 {
		t.Errorf("zero_result count = %v", got)
	}
}

func TestMissingDocumentIsSkipped(t *testing.T) {
	e, m := newEngine(t, `{"cat":[["d1",1],["ghost",9]]}`, fixtureURLs)
	res, err := e.Search(context.Background(), "cat")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 1 || res.Skipped != 1 || res.Results[0].URL != "https://site/d1" {
		t.Errorf("res = %+v", res)
	}
	if got := testutil.ToFloat64(m.DataIntegrityErrors); got != 1 {
		t.Errorf("integrity errors = %v", got)
	}
}

func TestLimitAndQuery(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`[`)
	for i := 0; i < 5; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `["https://site/%d","T%d",["meta","m"],1]`, i, i)
	}
	sb.WriteString(`]`)
	e, _ := newEngine(t, `{"cat":[[0,1],[1,2],[2,3],[3,4],[4,5]]}`, sb.String())

	res, err := e.SearchLimit(context.Background(), "cat", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 2 || res.Results[0].URL != "https://site/4" {
		t.Errorf("limited = %+v", res.Results)
	}

	all, err := e.Query(context.Background(), "Cats")
	if err != nil || len(all) != 5 {
		t.Fatalf("all = %+v, %v", all, err)
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Score < all[i].Score {
			t.Errorf("results not descending at %d", i)
		}
	}
}

func TestRepeatedSearchIsStable(t *testing.T) {
	e, _ := newEngine(t, `{"cat":[["d2",1],["d1",1]]}`, fixtureURLs)
	first, _ := e.Query(context.Background(), "cat")
	for i := 0; i < 3; i++ {
		again, _ := e.Query(context.Background(), "CAT!")
		if len(again) != len(first) || again[0] != first[0] {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
	if first[0].URL != "https://site/d1" {
		t.Errorf("tie should break on ascending id, got %+v", first)
	}
}

func BenchmarkSearch(b *testing.B) {
	var terms, urls strings.Builder
	terms.WriteString(`{"search":[`)
	urls.WriteString(`[`)
	for i := 0; i < 10000; i++ {
		if i > 0 {
			terms.WriteString(",")
			urls.WriteString(",")
		}
		fmt.Fprintf(&terms, `[%d,%d]`, i, i%9+1)
		fmt.Fprintf(&urls, `["https://site/%d","Doc %d",["meta","d"],100]`, i, i)
	}
	terms.WriteString(`]}`)
	urls.WriteString(`]`)

	snap, err := index.Unpack(context.Background(), mapSource{index.KeyIndex: terms.String(), index.KeyURLs: urls.String()})
	if err != nil {
		b.Fatal(err)
	}
	store := index.NewStore(nil)
	store.Publish(snap)
	e := New(store, nil)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.SearchLimit(context.Background(), "search", 10)
	}
}
