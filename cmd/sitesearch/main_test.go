package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"index.json":      `{"cat": [[0, 2]], "dog": [[1, 1]]}`,
		"index_urls.json": `[["/cats/", "Cats", ["meta", "All about cats."], 1], ["/dogs/", "Dogs", ["meta", "Dogs."], 1]]`,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestRealMainPrintsResults(t *testing.T) {
	dir := writeSite(t)
	var stdout, stderr bytes.Buffer
	code := realMain([]string{"-base", dir, "-store", "memory", "-q", "cats"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"1. Cats (2)", "/cats/", "All about cats.", "Share: #q=cats"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRealMainReplaysDeepLink(t *testing.T) {
	dir := writeSite(t)
	var stdout, stderr bytes.Buffer
	code := realMain([]string{"-base", dir, "-store", "memory", "-link", "https://example.com/search/#q=dog"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "1. Dogs (1)") {
		t.Errorf("output:\n%s", stdout.String())
	}
}

func TestRealMainExitCodes(t *testing.T) {
	dir := writeSite(t)
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"bad flag", []string{"-nope"}, 2},
		{"bad link", []string{"-base", dir, "-store", "memory", "-link", "#nothing"}, 2},
		{"missing index", []string{"-base", t.TempDir(), "-store", "memory", "-q", "cats"}, 1},
		{"unknown store", []string{"-base", dir, "-store", "etcd", "-q", "cats"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if got := realMain(tt.args, &stdout, &stderr); got != tt.want {
				t.Errorf("exit code = %d, want %d; stderr:\n%s", got, tt.want, stderr.String())
			}
		})
	}
}
