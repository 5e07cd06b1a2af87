package ranker

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/index"
)

func postings(t *testing.T, raw string) []index.Posting {
	t.Helper()
	var ps []index.Posting
	if err := json.Unmarshal([]byte(raw), &ps); err != nil {
		t.Fatal(err)
	}
	return ps
}

func TestRankSumsFrequencies(t *testing.T) {
	cat := postings(t, `[["d1",3]]`)
	run := postings(t, `[["d1",2],["d2",5]]`)

	got := Rank([][]index.Posting{cat, run}, 0)
	want := []ScoredDoc{{"d1", 5}, {"d2", 5}}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rank %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRankRepeatedTokenCountsTwice(t *testing.T) {
	cat := postings(t, `[[0,2],[1,3]]`)
	got := Rank([][]index.Posting{cat, cat}, 0)
	if got[0].DocID != "1" || got[0].Score != 6 || got[1].Score != 4 {
		t.Errorf("got %+v", got)
	}
}

func TestRankNumericTieBreak(t *testing.T) {
	ps := postings(t, `[[10,1],[9,1],[100,1],[2,1]]`)
	got := Rank([][]index.Posting{ps}, 0)
	order := []string{"2", "9", "10", "100"}
	for i, id := range order {
		if got[i].DocID != id {
			t.Errorf("position %d = %s, want %s (got %+v)", i, got[i].DocID, id, got)
		}
	}
}

func TestRankLimit(t *testing.T) {
	ps := postings(t, `[[0,1],[1,2],[2,3]]`)
	if got := Rank([][]index.Posting{ps}, 2); len(got) != 2 || got[0].DocID != "2" {
		t.Errorf("got %+v", got)
	}
	if got := Rank(nil, 5); len(got) != 0 {
		t.Errorf("no postings should rank nothing, got %+v", got)
	}
}

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"2", "10", -1},
		{"10", "2", 1},
		{"7", "7", 0},
		{"007", "7", -1},
		{"d10", "d2", -1},
		{"10", "d1", -1},
		{"", "0", -1},
	}
	for _, tt := range tests {
		if got := CompareIDs(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareIDs(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func BenchmarkRank(b *testing.B) {
	lists := make([][]index.Posting, 3)
	for t := range lists {
		for i := 0; i < 5000; i++ {
			lists[t] = append(lists[t], index.Posting{DocID: fmt.Sprint(i), Frequency: i%7 + 1})
		}
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Rank(lists, 10)
	}
}
