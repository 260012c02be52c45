package httpqueue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/coordination"
	"github.com/gear6io/slate/server/coordination/memqueue"
	"github.com/rs/zerolog"
)

// Server is the embedded coordination endpoint: a memqueue per queue name
// exposed over HTTP so remote replication workers can list, probe, and
// remove work nodes. Single-node deployments run it inside the daemon.
type Server struct {
	mu     sync.RWMutex
	queues map[string]*memqueue.Queue
	addr   string
	logger zerolog.Logger
	server *http.Server
	wg     sync.WaitGroup
}

// NewServer creates a coordination server listening on addr once started.
func NewServer(addr string, logger zerolog.Logger) *Server {
	return &Server{
		queues: make(map[string]*memqueue.Queue),
		addr:   addr,
		logger: logger.With().Str("component", "coordination-server").Logger(),
	}
}

// EnsureQueue creates the named queue's root if needed and returns the
// backing queue.
func (s *Server) EnsureQueue(name string) *memqueue.Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue, ok := s.queues[name]
	if !ok {
		queue = memqueue.NewQueue()
		s.queues[name] = queue
	}
	return queue
}

func (s *Server) queue(name string) (*memqueue.Queue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	queue, ok := s.queues[name]
	return queue, ok
}

// Handler returns the route table; tests mount it on httptest servers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/queues/", s.handleQueues)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start starts the HTTP listener.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.addr).Msg("Starting coordination server")

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Coordination server error")
		}
	}()

	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("Stopping coordination server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error during coordination server shutdown")
	}
	s.wg.Wait()
	return nil
}

// handleQueues routes /v1/queues/{queue}/nodes and /v1/queues/{queue}/node
func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/queues/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	queueName, resource := parts[0], parts[1]

	switch resource {
	case "nodes":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleList(w, r, queueName)
	case "node":
		s.handleNode(w, r, queueName)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, queueName string) {
	queue, ok := s.queue(queueName)
	if !ok {
		writeCondition(w, http.StatusNotFound, "root_absent", "queue does not exist")
		return
	}

	keys, err := queue.ListKeys(r.Context())
	if err != nil {
		writeCondition(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queue": queueName,
		"nodes": keys,
	})
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request, queueName string) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeCondition(w, http.StatusBadRequest, "invalid", "missing query parameter 'key'")
		return
	}

	queue, ok := s.queue(queueName)
	if !ok {
		writeCondition(w, http.StatusNotFound, "root_absent", "queue does not exist")
		return
	}

	switch r.Method {
	case http.MethodGet:
		payload, found := queue.Payload(key)
		if !found {
			writeCondition(w, http.StatusNotFound, "node_absent", "work node does not exist")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"key":     key,
			"payload": string(payload),
		})

	case http.MethodPut:
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			writeCondition(w, http.StatusBadRequest, "invalid", "failed to read payload")
			return
		}
		if err := queue.AddWork(r.Context(), key, payload); err != nil {
			writeCondition(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		s.logger.Debug().Str("queue", queueName).Str("key", key).Msg("Work node added")
		writeJSON(w, http.StatusCreated, map[string]interface{}{"key": key})

	case http.MethodDelete:
		if err := queue.RemoveWork(r.Context(), key); err != nil {
			if errors.HasCode(err, coordination.ErrNodeAbsent) {
				writeCondition(w, http.StatusNotFound, "node_absent", "work node does not exist")
				return
			}
			writeCondition(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		s.logger.Debug().Str("queue", queueName).Str("key", key).Msg("Work node removed")
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"server":    "slate-coordination",
	})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	jsonResponse, err := json.Marshal(body)
	if err != nil {
		return
	}
	w.Write(jsonResponse)
}

// writeCondition reports a queue condition the client maps back onto a
// coded error.
func writeCondition(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"code":    code,
		"message": message,
	})
}
