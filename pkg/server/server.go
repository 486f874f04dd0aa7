// Package server exposes the request router over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pario-ai/larder/pkg/channel"
	"github.com/pario-ai/larder/pkg/janitor"
	"github.com/pario-ai/larder/pkg/models"
	"github.com/pario-ai/larder/pkg/router"
)

// CacheHeader reports whether a recipe response was served from cache.
const CacheHeader = "X-Larder-Cache"

const maxMessageSize = 64 * 1024

// Admin exposes cache maintenance to the HTTP surface.
type Admin interface {
	Stats(ctx context.Context) (models.CacheStats, error)
	Sweep(ctx context.Context) (janitor.Result, error)
}

// Server is the larder HTTP front end.
type Server struct {
	listen  string
	handler channel.Handler
	admin   Admin
	log     zerolog.Logger
	mux     *http.ServeMux
}

// New creates a Server that answers requests through h.
func New(listen string, h channel.Handler, admin Admin, logger zerolog.Logger) *Server {
	s := &Server{
		listen:  listen,
		handler: h,
		admin:   admin,
		log:     logger.With().Str("component", "server").Logger(),
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /v1/messages", s.handleMessage)
	s.mux.HandleFunc("GET /v1/recipes", s.handleList)
	s.mux.HandleFunc("GET /v1/recipes/{id}", s.handleDetail)
	s.mux.HandleFunc("GET /v1/cache/stats", s.handleStats)
	s.mux.HandleFunc("POST /v1/cache/sweep", s.handleSweep)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.withRequestLog(s.mux).ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.listen).Msg("larder listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var msg models.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		writeJSONError(w, http.StatusBadRequest, channel.MsgMalformed)
		return
	}

	reply := channel.Dispatch(r.Context(), s.handler, msg)
	if reply == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.serveRecipe(w, r, models.Request{Kind: models.RequestList})
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	s.serveRecipe(w, r, models.Request{Kind: models.RequestDetail, RecipeID: r.PathValue("id")})
}

func (s *Server) serveRecipe(w http.ResponseWriter, r *http.Request, req models.Request) {
	resp := s.handler.Handle(r.Context(), req)
	switch {
	case resp == nil:
		writeJSONError(w, http.StatusNotFound, "not found")
	case resp.IsError() && resp.Message == router.MsgMissingRecipeID:
		writeJSONError(w, http.StatusBadRequest, resp.Message)
	case resp.IsError():
		writeJSONError(w, http.StatusBadGateway, resp.Message)
	default:
		if resp.Cached {
			w.Header().Set(CacheHeader, "hit")
		} else {
			w.Header().Set(CacheHeader, "miss")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(resp.Data)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.admin.Stats(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("cache stats")
		writeJSONError(w, http.StatusInternalServerError, "cache stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.admin.Sweep(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("cache sweep")
		writeJSONError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		log := s.log.With().Str("correlation_id", id).Logger()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(log.WithContext(r.Context())))

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, models.Reply{Error: message})
}
