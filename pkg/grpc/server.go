// Package grpc provides a lightweight JSON-over-TCP RPC framework for
// internal callers of the search service.
//
// Protocol: newline-delimited JSON over a persistent TCP connection, one
// response per request, in order.
//
// Example server:
//
//	s := grpc.NewServer(apperrors.HTTPStatusCode)
//	s.Register("SearchService.Search", func(ctx context.Context, req json.RawMessage) (any, error) {
//	    var searchReq proto.SearchRequest
//	    json.Unmarshal(req, &searchReq)
//	    return &proto.SearchResponse{...}, nil
//	})
//	s.Serve(":9100")
//
// Example client:
//
//	c, _ := grpc.Dial("localhost:9100")
//	var resp proto.SearchResponse
//	c.Call(ctx, "SearchService.Search", &proto.SearchRequest{Query: "hello"}, &resp)
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// HandlerFunc processes an RPC request and returns a response or error.
type HandlerFunc func(ctx context.Context, req json.RawMessage) (any, error)

// Request is the wire format for an RPC request.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// Response is the wire format for an RPC response. Code carries the HTTP
// status equivalent of Error.
type Response struct {
	ID    string `json:"id"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  int    `json:"code,omitempty"`
}

// Server is a lightweight JSON-over-TCP RPC server.
type Server struct {
	handlers  map[string]HandlerFunc
	errorCode func(error) int
	listener  net.Listener
	logger    *slog.Logger
	mu        sync.RWMutex
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewServer creates a new RPC server. errorCode, if non-nil, maps handler
// errors to a status code placed in the response.
func NewServer(errorCode func(error) int) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handlers:  make(map[string]HandlerFunc),
		errorCode: errorCode,
		logger:    slog.Default().With("component", "rpc-server"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Register adds a handler for the given RPC method name.
// Method names follow the "Service.Method" convention.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
	s.logger.Debug("method registered", "method", method)
}

// Serve listens on addr and blocks until Stop is called.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.ServeListener(ln)
}

// ServeListener accepts connections on ln and blocks until Stop is called.
func (s *Server) ServeListener(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("rpc server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept error", "error", err)
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	go func() {
		<-s.ctx.Done()
		conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)
	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			return
		}

		s.mu.RLock()
		handler, exists := s.handlers[req.Method]
		s.mu.RUnlock()

		resp := Response{ID: req.ID}
		if !exists {
			resp.Error = fmt.Sprintf("unknown method: %s", req.Method)
			resp.Code = 404
		} else if data, err := handler(s.ctx, req.Params); err != nil {
			resp.Error = err.Error()
			if s.errorCode != nil {
				resp.Code = s.errorCode(err)
			}
		} else {
			resp.Data = data
		}

		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("write error", "method", req.Method, "error", err)
			return
		}
	}
}

// MethodCount returns the number of registered methods.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Stop closes the listener and every open connection, then waits for the
// connection goroutines to exit.
func (s *Server) Stop() {
	s.cancel()
	s.mu.RLock()
	ln := s.listener
	s.mu.RUnlock()
	if ln != nil {
		ln.Close()
	}
	s.wg.Wait()
	s.logger.Info("rpc server stopped")
}
