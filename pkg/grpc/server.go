// Package grpc provides a lightweight JSON-over-TCP RPC framework
// for coordinator-to-shard communication.
//
// It provides the core RPC patterns without the full google.golang.org/grpc
// dependency: service registration, method dispatch, request/response
// framing and per-call deadlines.
//
// Protocol: newline-delimited JSON over a persistent TCP connection.
//
// Example server:
//
//	s := grpc.NewServer()
//	s.Register(proto.MethodFacetCount, func(ctx context.Context, req json.RawMessage) (any, error) {
//	    var countReq proto.FacetCountRequest
//	    json.Unmarshal(req, &countReq)
//	    // ... compute the facet ...
//	    return &proto.FacetCountResponse{...}, nil
//	})
//	s.Serve(":9100")
//
// Example client:
//
//	c, _ := grpc.Dial("localhost:9100")
//	var resp proto.FacetCountResponse
//	c.Call(ctx, proto.MethodFacetCount, &proto.FacetCountRequest{Field: "color", Limit: 10}, &resp)
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/logger"
)

// HandlerFunc processes an RPC request and returns a response or error.
type HandlerFunc func(ctx context.Context, req json.RawMessage) (any, error)

// Error codes carried in Response.Code.
const (
	CodeInvalidInput = "invalid_input"
	CodeInterrupted  = "interrupted"
	CodeInternal     = "internal"
	CodeNotFound     = "not_found"
)

// Request is the wire format for an RPC request.
type Request struct {
	Method    string          `json:"method"`
	ID        string          `json:"id"`
	RequestID string          `json:"request_id,omitempty"`
	TimeoutMs int64           `json:"timeout_ms,omitempty"`
	Params    json.RawMessage `json:"params"`
}

// Response is the wire format for an RPC response.
type Response struct {
	ID    string `json:"id"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Server is a lightweight JSON-over-TCP RPC server.
type Server struct {
	handlers map[string]HandlerFunc
	listener net.Listener
	conns    map[net.Conn]struct{}
	logger   *slog.Logger
	mu       sync.RWMutex
	wg       sync.WaitGroup
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewServer creates a new RPC server.
func NewServer() *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handlers: make(map[string]HandlerFunc),
		conns:    make(map[net.Conn]struct{}),
		logger:   slog.Default().With("component", "rpc-server"),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
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

// Serve starts accepting TCP connections on the given address.
// It blocks until Stop is called.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.ServeListener(ln)
}

// ServeListener accepts connections on ln until Stop is called.
func (s *Server) ServeListener(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("rpc server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				s.logger.Error("accept error", "error", err)
				continue
			}
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			return // connection closed or read error
		}

		resp := s.dispatch(req)
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("write error", "method", req.Method, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	s.mu.RLock()
	handler, exists := s.handlers[req.Method]
	s.mu.RUnlock()

	resp := Response{ID: req.ID}
	if !exists {
		resp.Error = fmt.Sprintf("unknown method: %s", req.Method)
		resp.Code = CodeNotFound
		return resp
	}

	ctx := s.ctx
	if req.RequestID != "" {
		ctx = logger.WithRequestID(ctx, req.RequestID)
	}
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	data, err := handler(ctx, req.Params)
	if err != nil {
		resp.Error = err.Error()
		resp.Code = errorCode(err)
		return resp
	}
	resp.Data = data
	return resp
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, apperrors.ErrInterrupted):
		return CodeInterrupted
	case errors.Is(err, apperrors.ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

// MethodCount returns the number of registered methods.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Stop gracefully shuts down the server, cancelling in-flight handlers.
func (s *Server) Stop() {
	close(s.done)
	s.cancel()
	s.mu.RLock()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.RUnlock()
	s.wg.Wait()
	s.logger.Info("rpc server stopped")
}
