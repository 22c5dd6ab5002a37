// Package rest exposes the transition engine over HTTP: entity lookups and transitions for customers and agents,
// and the status webhook that lending partners post to.
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/luno/jettison/errors"
	"github.com/patrickmn/go-cache"

	"github.com/julo/statusflow"
	internal_logger "github.com/julo/statusflow/internal/logger"
)

const (
	defaultDeliveryTTL   = 24 * time.Hour
	defaultShutdownGrace = 5 * time.Second
)

type Server struct {
	http.Server

	engine     *statusflow.Engine
	auth       *Authenticator
	logger     statusflow.Logger
	debugMode  bool
	deliveries *cache.Cache
	ops        http.Handler

	// partners maps a partner name to the workflows its webhook may move.
	partners map[string]map[string]bool
}

type Option func(s *Server)

func WithLogger(l statusflow.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithDebugMode logs every request.
func WithDebugMode() Option {
	return func(s *Server) {
		s.debugMode = true
	}
}

// WithDeliveryTTL sets how long webhook delivery ids are remembered for deduplication.
func WithDeliveryTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.deliveries = cache.New(ttl, ttl/2)
	}
}

// WithOpsHandler mounts h under /ops for agents. It is served behind the same authentication as the API and
// only agents may reach it.
func WithOpsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.ops = h
	}
}

// WithPartnerWorkflows scopes each partner's webhook to the listed workflows. A partner without an entry may not
// move any workflow.
func WithPartnerWorkflows(workflows map[string][]string) Option {
	return func(s *Server) {
		for partner, names := range workflows {
			allowed := make(map[string]bool, len(names))
			for _, w := range names {
				allowed[w] = true
			}
			s.partners[partner] = allowed
		}
	}
}

func NewServer(addr string, e *statusflow.Engine, auth *Authenticator, opts ...Option) *Server {
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			IdleTimeout:       30 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
		},
		engine:     e,
		auth:       auth,
		deliveries: cache.New(defaultDeliveryTTL, defaultDeliveryTTL/2),
		partners:   make(map[string]map[string]bool),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = internal_logger.New(os.Stdout)
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.HandleHealth).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	api.HandleFunc("/workflows/{workflow}/entities", s.HandleCreateEntity).Methods(http.MethodPost)
	api.HandleFunc("/workflows/{workflow}/entities/{id}", s.HandleGetEntity).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{workflow}/entities/{id}/history", s.HandleGetHistory).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{workflow}/entities/{id}/transitions", s.HandleAvailableTransitions).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{workflow}/entities/{id}/transitions", s.HandleApplyTransition).Methods(http.MethodPost)
	api.HandleFunc("/webhooks/{partner}/status", s.HandleWebhook).Methods(http.MethodPost)

	if s.ops != nil {
		api.PathPrefix("/ops/").Handler(requireRole(statusflow.RoleAgent, http.StripPrefix("/ops", s.ops)))
	}

	api.Use(s.auth.Middleware)
	router.Use(s.loggingMiddleware)

	s.Handler = router
	return s
}

func (s *Server) Start() error {
	s.logger.Debug(context.Background(), "starting http server", map[string]string{"addr": s.Addr})

	err := s.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownGrace)
	defer cancel()

	return s.Shutdown(ctx)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.debugMode {
			s.logger.Debug(r.Context(), "http request", map[string]string{
				"method": r.Method,
				"path":   r.URL.Path,
			})
		}

		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
