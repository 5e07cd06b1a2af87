package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"
)

var errNotReady = errors.New("not ready")

func startServer(t *testing.T) string {
	t.Helper()
	s := NewServer(func(err error) int {
		if errors.Is(err, errNotReady) {
			return 503
		}
		return 500
	})
	s.Register("Echo.Upper", func(_ context.Context, raw json.RawMessage) (any, error) {
		var in struct{ Text string }
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, err
		}
		return map[string]string{"text": in.Text + "!"}, nil
	})
	s.Register("Echo.Fail", func(context.Context, json.RawMessage) (any, error) {
		return nil, errNotReady
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.ServeListener(ln)
	t.Cleanup(s.Stop)
	return ln.Addr().String()
}

func TestCallRoundTrip(t *testing.T) {
	c, err := Dial(startServer(t))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out map[string]string
	if err := c.Call(ctx, "Echo.Upper", map[string]string{"Text": "hi"}, &out); err != nil {
		t.Fatal(err)
	}
	if out["text"] != "hi!" {
		t.Errorf("out = %v", out)
	}

	err = c.Call(ctx, "Echo.Fail", nil, nil)
	var rpcErr *Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != 503 {
		t.Errorf("err = %v, want rpc error with code 503", err)
	}

	err = c.Call(ctx, "Echo.Missing", nil, nil)
	if !errors.As(err, &rpcErr) || rpcErr.Code != 404 {
		t.Errorf("err = %v, want unknown method", err)
	}
}
