package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sfstory/logging"
	"sfstory/pipeline"
	"sfstory/publisher"
)

// Generator runs one story.
type Generator interface {
	Run(ctx context.Context, topic string) (*pipeline.Result, error)
}

// Status is the lifecycle state of a submitted run.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

type Server struct {
	gen    Generator
	pub    *publisher.Publisher
	store  *runStore
	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.Mutex // guards closed and wg.Add
	closed bool
	wg     sync.WaitGroup
}

type runRecord struct {
	ID         string               `json:"id"`
	Topic      string               `json:"topic"`
	Status     Status               `json:"status"`
	CreatedAt  time.Time            `json:"created_at"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
	Error      string               `json:"error,omitempty"`
	Result     *pipeline.Result     `json:"result,omitempty"`
	Published  *publisher.Published `json:"published,omitempty"`
}

type runStore struct {
	mu   sync.Mutex
	runs map[string]*runRecord
}

func newStore() *runStore {
	return &runStore{runs: make(map[string]*runRecord)}
}

func (s *runStore) set(rec *runRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rec.ID] = rec
}

func (s *runStore) update(id string, fn func(*runRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.runs[id]; ok {
		fn(rec)
	}
}

// get returns a copy so handlers can encode it without holding the lock.
func (s *runStore) get(id string) (runRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[id]
	if !ok {
		return runRecord{}, false
	}
	return *rec, true
}

// New builds a server that runs at most maxConcurrent stories at once.
// pub may be nil; when set, every finished run is also written to disk.
func New(gen Generator, pub *publisher.Publisher, maxConcurrent int) (*Server, error) {
	if gen == nil {
		return nil, errors.New("generator required")
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		gen:    gen,
		pub:    pub,
		store:  newStore(),
		sem:    make(chan struct{}, maxConcurrent),
		ctx:    ctx,
		cancel: cancel,
		logger: logging.New("server"),
	}, nil
}

// Close cancels runs in flight and waits for them to stop.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

// track registers a background run unless the server is closing.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/runs", s.handleRunCreate)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRunGet)
	mux.HandleFunc("GET /api/runs/{id}/outline", s.handleOutline)
	mux.HandleFunc("GET /api/runs/{id}/report.html", s.handleReport)
	return s.logMiddleware(mux)
}

// --- Handlers ---

type runCreateReq struct {
	Topic string `json:"topic"`
}

type runCreateResp struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

func (s *Server) handleRunCreate(w http.ResponseWriter, r *http.Request) {
	var req runCreateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		http.Error(w, pipeline.ErrEmptyTopic.Error(), http.StatusBadRequest)
		return
	}
	if !s.track() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	rec := &runRecord{ID: uuid.NewString(), Topic: topic, Status: StatusQueued, CreatedAt: time.Now().UTC()}
	s.store.set(rec)
	go s.execute(rec.ID, topic)

	w.Header().Set("Location", "/api/runs/"+rec.ID)
	writeJSON(w, http.StatusAccepted, runCreateResp{ID: rec.ID, Status: StatusQueued})
}

func (s *Server) execute(id, topic string) {
	defer s.wg.Done()
	logger := s.logger.With("id", id, "topic", topic)

	select {
	case s.sem <- struct{}{}:
	case <-s.ctx.Done():
		s.finish(id, nil, s.ctx.Err())
		return
	}
	defer func() { <-s.sem }()

	s.store.update(id, func(rec *runRecord) { rec.Status = StatusRunning })
	logger.Info("run started")
	res, err := s.gen.Run(s.ctx, topic)
	if err == nil && s.pub != nil {
		published, perr := s.pub.Publish(res)
		if perr != nil {
			logger.Error("publish failed", "error", perr)
		} else {
			s.store.update(id, func(rec *runRecord) { rec.Published = &published })
		}
	}
	s.finish(id, res, err)
	if err != nil {
		logger.Error("run failed", "error", err)
		return
	}
	logger.Info("run finished", "warnings", len(res.Warnings))
}

func (s *Server) finish(id string, res *pipeline.Result, err error) {
	now := time.Now().UTC()
	s.store.update(id, func(rec *runRecord) {
		rec.FinishedAt = &now
		rec.Result = res
		if err != nil {
			rec.Status = StatusFailed
			rec.Error = err.Error()
			return
		}
		rec.Status = StatusDone
	})
}

func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.store.get(r.PathValue("id"))
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// finished resolves a successful run, writing the error response otherwise.
// A failed run keeps its partial result for GET /api/runs/{id} only.
func (s *Server) finished(w http.ResponseWriter, r *http.Request) (*pipeline.Result, bool) {
	rec, ok := s.store.get(r.PathValue("id"))
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return nil, false
	}
	switch {
	case rec.Status == StatusFailed:
		http.Error(w, rec.Error, http.StatusUnprocessableEntity)
		return nil, false
	case rec.Result == nil:
		http.Error(w, "run not finished", http.StatusConflict)
		return nil, false
	}
	return rec.Result, true
}

func (s *Server) handleOutline(w http.ResponseWriter, r *http.Request) {
	res, ok := s.finished(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(res.Outline))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	res, ok := s.finished(w, r)
	if !ok {
		return
	}
	page, err := publisher.RenderHTML(res)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", sw.status, "elapsed", time.Since(start))
	})
}
