// Package ipc implements the IPC Hub (§4.E/§4.K): a Unix-domain socket
// server that tool-server subprocesses use to reach back into the
// orchestrator for session, agent, and messaging operations. Each
// connection is a single JSON request followed by a single JSON
// response, then the connection closes.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request is the single JSON object a client sends.
type Request struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the single JSON object the hub replies with.
type Response struct {
	OK    bool `json:"ok"`
	Data  any  `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Handler serves one request type's payload and returns the data to
// embed in a successful Response, or an error.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetcore_ipc_requests_total",
		Help: "Total IPC hub requests by type and outcome.",
	}, []string{"type", "outcome"})
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleetcore_ipc_request_duration_seconds",
		Help:    "IPC hub request handling latency by type.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
)

// Hub is the Unix-domain socket server. The request-type set is closed:
// unknown types resolve to {ok:false}.
type Hub struct {
	socketPath string
	logger     *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler

	listener net.Listener
	wg       sync.WaitGroup
}

// SocketPath returns the conventional socket path for a running
// orchestrator process: <root>/ipc-<pid>.sock.
func SocketPath(root string, pid int) string {
	return filepath.Join(root, fmt.Sprintf("ipc-%d.sock", pid))
}

// CleanStaleSockets removes every ipc-*.sock file under root except
// keep (the socket this process is about to bind), per §4.E's boot-time
// cleanup of sockets left behind by a prior, now-dead PID.
func CleanStaleSockets(root, keep string) error {
	matches, err := filepath.Glob(filepath.Join(root, "ipc-*.sock"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if m == keep {
			continue
		}
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// New builds a Hub bound to socketPath. Callers must call
// CleanStaleSockets first.
func New(socketPath string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		socketPath: socketPath,
		logger:     logger.With("component", "ipc"),
		handlers:   make(map[string]Handler),
	}
}

// Register binds a handler to a request type. The closed set of types
// used in production is sessions.list/spawn/send/status, agents.list,
// messaging.send/typing/channel_info, and ralph.run.
func (h *Hub) Register(reqType string, fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[reqType] = fn
}

// Start binds the socket and accepts connections in the background
// until ctx is cancelled or Stop is called. The accept loop itself is
// single-threaded; every accepted connection is serviced on its own
// goroutine so one slow client never blocks another.
func (h *Hub) Start(ctx context.Context) error {
	l, err := net.Listen("unix", h.socketPath)
	if err != nil {
		return fmt.Errorf("ipc: listen on %s: %w", h.socketPath, err)
	}
	h.listener = l

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			conn, err := l.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
				h.logger.Error("accept failed", "error", err)
				return
			}
			h.wg.Add(1)
			go func() {
				defer h.wg.Done()
				h.serve(ctx, conn)
			}()
		}
	}()

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	return nil
}

// Stop closes the listener, waits for in-flight connections to finish,
// and removes the socket file.
func (h *Hub) Stop() {
	if h.listener != nil {
		h.listener.Close()
	}
	h.wg.Wait()
	os.Remove(h.socketPath)
}

func (h *Hub) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReaderSize(conn, 64*1024)
	var req Request
	dec := json.NewDecoder(reader)
	if err := dec.Decode(&req); err != nil {
		h.writeResponse(conn, Response{OK: false, Error: "malformed request: " + err.Error()})
		return
	}

	resp := h.dispatch(ctx, req)
	h.writeResponse(conn, resp)
}

func (h *Hub) dispatch(ctx context.Context, req Request) (resp Response) {
	timer := prometheus.NewTimer(requestDuration.WithLabelValues(req.Type))
	defer timer.ObserveDuration()

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("ipc handler panic", "type", req.Type, "recover", r)
			resp = Response{OK: false, Error: fmt.Sprintf("internal error handling %q", req.Type)}
			requestsTotal.WithLabelValues(req.Type, "panic").Inc()
		}
	}()

	h.mu.RLock()
	fn, ok := h.handlers[req.Type]
	h.mu.RUnlock()
	if !ok {
		requestsTotal.WithLabelValues(req.Type, "unknown_type").Inc()
		return Response{OK: false, Error: fmt.Sprintf("Unknown IPC message type: %s", req.Type)}
	}

	data, err := fn(ctx, req.Payload)
	if err != nil {
		requestsTotal.WithLabelValues(req.Type, "error").Inc()
		return Response{OK: false, Error: err.Error()}
	}
	requestsTotal.WithLabelValues(req.Type, "ok").Inc()
	return Response{OK: true, Data: data}
}

func (h *Hub) writeResponse(conn net.Conn, resp Response) {
	enc := json.NewEncoder(conn)
	if err := enc.Encode(resp); err != nil {
		h.logger.Error("write ipc response", "error", err)
	}
}
