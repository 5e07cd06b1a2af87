package tokenizer

import (
	"encoding/json"
	"os"
	"reflect"
	"strings"
	"testing"
)

type conformanceFile struct {
	Version string `json:"version"`
	Cases   []struct {
		Name  string   `json:"name"`
		Input string   `json:"input"`
		Want  []string `json:"want"`
	} `json:"cases"`
}

func TestConformanceVectors(t *testing.T) {
	data, err := os.ReadFile("testdata/conformance.json")
	if err != nil {
		t.Fatal(err)
	}
	var file conformanceFile
	if err := json.Unmarshal(data, &file); err != nil {
		t.Fatal(err)
	}
	if file.Version != Version {
		t.Fatalf("conformance vectors are for version %q, tokenizer is %q", file.Version, Version)
	}
	for _, tc := range file.Cases {
		t.Run(tc.Name, func(t *testing.T) {
			got := Tokenize(tc.Input)
			if len(got) == 0 && len(tc.Want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.Want) {
				t.Errorf("Tokenize(%q) = %q, want %q", tc.Input, got, tc.Want)
			}
		})
	}
}

func TestTokenizeIsDeterministic(t *testing.T) {
	in := "Running dogs and cats: the 3 cats' toys"
	first := Tokenize(in)
	for i := 0; i < 10; i++ {
		if got := Tokenize(in); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d = %q, want %q", i, got, first)
		}
	}
}

func TestTokensNeverStopWordsBeforeStrip(t *testing.T) {
	for _, tok := range Tokenize("a an and are as at be by for from has he in is it its of on that the to was were will with s t") {
		t.Errorf("stop word leaked: %q", tok)
	}
}

func TestTokensAreLowercase(t *testing.T) {
	for _, tok := range Tokenize("MiXeD CaSe ÀÉÎ Words") {
		if tok != strings.ToLower(tok) {
			t.Errorf("token %q not lowercase", tok)
		}
	}
}

func BenchmarkTokenize(b *testing.B) {
	text := strings.Repeat("search engine with distributed indexing and query processing for static sites. ", 20)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Tokenize(text)
	}
}
