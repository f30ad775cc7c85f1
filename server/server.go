package server

import (
	"bufio"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"proposal_wizard/generator"
	"proposal_wizard/publisher"
	"proposal_wizard/store"
)

//go:embed web
var embeddedStatic embed.FS

const (
	generateTimeout = 3 * time.Minute
	saveTimeout     = 10 * time.Second
)

type Server struct {
	agent     *generator.Agent
	proposals *store.Proposals
	exporter  *publisher.Exporter
	staticFS  http.Handler
	log       *slog.Logger

	proposalMu sync.Map // proposal ID → *sync.Mutex
	newID      func() string
	now        func() time.Time
}

func New(agent *generator.Agent, proposals *store.Proposals, exporter *publisher.Exporter) (*Server, error) {
	if agent == nil {
		return nil, errors.New("generator agent required")
	}
	if proposals == nil {
		return nil, errors.New("proposal store required")
	}
	if exporter == nil {
		return nil, errors.New("exporter required")
	}

	sub, err := fs.Sub(embeddedStatic, "web")
	if err != nil {
		return nil, err
	}

	return &Server{
		agent:     agent,
		proposals: proposals,
		exporter:  exporter,
		staticFS:  http.FileServer(http.FS(sub)),
		log:       slog.Default().With("component", "server"),
		newID:     uuid.NewString,
		now:       time.Now,
	}, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate-proposal", s.handleGenerate)
	mux.HandleFunc("GET /api/sections", s.handleSectionTypes)

	mux.HandleFunc("GET /api/proposals/{id}", s.handleProposalGet)
	mux.HandleFunc("GET /api/proposals/{id}/selected-sections", s.handleSelectedGet)
	mux.HandleFunc("PUT /api/proposals/{id}/selected-sections", s.handleSelectedPut)

	mux.HandleFunc("PUT /api/proposals/{id}/sections/{key}", s.handleSectionEdit)
	mux.HandleFunc("DELETE /api/proposals/{id}/sections/{key}", s.handleSectionDelete)
	mux.HandleFunc("POST /api/proposals/{id}/sections/{key}/approve", s.handleSectionApprove)
	mux.HandleFunc("POST /api/proposals/{id}/sections/{key}/reject", s.handleSectionReject)
	mux.HandleFunc("POST /api/proposals/{id}/sections/{key}/regenerate", s.handleSectionRegenerate)
	mux.HandleFunc("GET /api/proposals/{id}/sections/{key}/preview", s.handleSectionPreview)

	mux.HandleFunc("GET /api/proposals/{id}/images", s.handleImageList)
	mux.HandleFunc("POST /api/proposals/{id}/images", s.handleImageUpload)
	mux.HandleFunc("POST /api/proposals/{id}/images/{imageID}/approve", s.handleImageApprove)
	mux.HandleFunc("POST /api/proposals/{id}/images/{imageID}/reject", s.handleImageReject)
	mux.HandleFunc("DELETE /api/proposals/{id}/images/{imageID}", s.handleImageDelete)
	mux.HandleFunc("GET /api/images/{imageID}", s.handleImageGet)

	mux.HandleFunc("GET /api/proposals/{id}/export", s.handleExport)
	mux.HandleFunc("GET /api/proposals/{id}/events", s.handleEvents)

	mux.Handle("GET /", s.staticFS)
	return s.logMiddleware(mux)
}

// lockProposal returns the locked mutex for a proposal. Callers must Unlock it.
func (s *Server) lockProposal(id string) *sync.Mutex {
	v, _ := s.proposalMu.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu
}

// --- Helpers ---

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Error: msg})
}

// writeFailure maps domain errors onto HTTP status codes.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var genErr *generator.Error
	switch {
	case errors.As(err, &genErr):
		status = genErr.HTTPStatus()
	case errors.Is(err, generator.ErrUnknownSection):
		status = http.StatusBadRequest
	case errors.Is(err, generator.ErrSectionNotFound), errors.Is(err, errProposalNotFound), errors.Is(err, errImageNotFound):
		status = http.StatusNotFound
	case errors.Is(err, generator.ErrInvalidTransition):
		status = http.StatusConflict
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "err", err)
	}
	writeError(w, status, err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start))
	})
}
