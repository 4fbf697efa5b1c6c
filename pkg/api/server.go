package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/wharf/pkg/events"
	"github.com/cuemby/wharf/pkg/log"
	"github.com/cuemby/wharf/pkg/metrics"
	"github.com/cuemby/wharf/pkg/rollout"
	"github.com/cuemby/wharf/pkg/storage"
	"github.com/cuemby/wharf/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Roller runs a rollout
type Roller interface {
	Rollout(ctx context.Context, releaseID string, onUpdate rollout.ProgressFunc) (*rollout.Result, error)
}

// Store is the storage subset the API reads
type Store interface {
	GetRelease(id string) (*types.Release, error)
	ListReleases() ([]*types.Release, error)
	ListReleasesByAppEnv(appSlug, env string) ([]*types.Release, error)
	ListClusters() ([]*types.Cluster, error)
}

// Server serves the wharf HTTP API
type Server struct {
	store    Store
	roller   Roller
	broker   *events.Broker
	locks    *keyedLock
	router   chi.Router
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	// ctx outlives requests; background rollouts run under it
	ctx    context.Context
	cancel context.CancelFunc
	http   *http.Server
}

// NewServer creates the API server. Browser origins other than localhost
// must be listed in allowedOrigins.
func NewServer(store Store, roller Roller, broker *events.Broker, allowedOrigins []string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:    store,
		roller:   roller,
		broker:   broker,
		locks:    newKeyedLock(),
		logger:   log.WithComponent("api"),
		ctx:      ctx,
		cancel:   cancel,
		upgrader: websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return originAllowed(allowedOrigins, origin)
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", metrics.HealthHandler())
	r.Get("/ready", s.readyHandler)
	r.Get("/live", metrics.LivenessHandler())
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/releases", s.listReleases)
		r.Get("/releases/{id}", s.getRelease)
		r.Post("/releases/{id}/rollout", s.triggerRollout)
		r.Get("/events", s.streamEvents)
	})

	s.router = r
	return s
}

// Handler returns the router for embedding or tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr until Shutdown
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	metrics.RegisterComponent(metrics.ComponentAPI, true, "listening on "+addr)
	s.logger.Info().Str("addr", addr).Msg("API listening")

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and cancels background rollouts
func (s *Server) Shutdown(ctx context.Context) error {
	metrics.UpdateComponent(metrics.ComponentAPI, false, "shutting down")
	s.cancel()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) listReleases(w http.ResponseWriter, r *http.Request) {
	app, env := r.URL.Query().Get("app"), r.URL.Query().Get("env")

	var (
		releases []*types.Release
		err      error
	)
	if app != "" && env != "" {
		releases, err = s.store.ListReleasesByAppEnv(app, env)
	} else {
		releases, err = s.store.ListReleases()
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if releases == nil {
		releases = []*types.Release{}
	}
	writeJSON(w, http.StatusOK, releases)
}

func (s *Server) getRelease(w http.ResponseWriter, r *http.Request) {
	rel, err := s.store.GetRelease(chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "release not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

// triggerRollout starts a rollout. Only one rollout per app environment runs
// at a time; a second request gets 409. With ?wait=true the response is the
// rollout result, otherwise 202 and progress flows over /api/events.
func (s *Server) triggerRollout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rel, err := s.store.GetRelease(id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, rollout.MsgReleaseNotFound)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	key := rel.AppSlug + "/" + rel.Env
	if !s.locks.tryLock(key) {
		writeError(w, http.StatusConflict, "a rollout is already running for "+key)
		return
	}

	logger := s.logger.With().Str("release_id", id).Str("app_env", key).Logger()
	progress := func(msg string) {
		logger.Debug().Msg(msg)
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		go func() {
			defer s.locks.unlock(key)
			if _, err := s.roller.Rollout(s.ctx, id, progress); err != nil {
				logger.Error().Err(err).Msg("Rollout finalize failed")
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"releaseId": id, "status": "accepted"})
		return
	}

	defer s.locks.unlock(key)
	res, err := s.roller.Rollout(r.Context(), id, progress)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if res.Failed() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
	})
}
