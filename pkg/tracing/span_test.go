package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestChildSpansShareTrace(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "search", "")
	if root.TraceID == "" {
		t.Fatal("root span should get a trace id")
	}
	_, child := StartChildSpan(ctx, "tokenize")
	child.SetAttr("tokens", 2)
	child.End()
	root.End()

	if child.TraceID != root.TraceID {
		t.Errorf("child trace %q != root %q", child.TraceID, root.TraceID)
	}
	if len(root.Children) != 1 {
		t.Fatalf("children = %d", len(root.Children))
	}
	if v, ok := child.Attr("tokens"); !ok || v != 2 {
		t.Errorf("attr = %v, %v", v, ok)
	}
}

func TestChildWithoutParentStartsRoot(t *testing.T) {
	_, s := StartChildSpan(context.Background(), "orphan")
	if s.TraceID == "" {
		t.Error("orphan span should get a trace id")
	}
}

func TestLogWritesTree(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, root := StartSpan(context.Background(), "search", "trace-1")
	_, child := StartChildSpan(ctx, "rank")
	child.End()
	root.End()
	root.Log(l)

	out := buf.String()
	if !strings.Contains(out, "span=search") || !strings.Contains(out, "span=rank") || !strings.Contains(out, "depth=1") {
		t.Errorf("log output = %s", out)
	}
}
