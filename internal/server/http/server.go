package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dynamisch-arpit/RT-shared-component/internal/audit"
	"github.com/dynamisch-arpit/RT-shared-component/internal/runtime"
	"github.com/dynamisch-arpit/RT-shared-component/internal/tenant"
)

// maxBodyBytes bounds ingest payloads.
const maxBodyBytes = 1 << 20

type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	lis    net.Listener
	logger *zap.Logger
}

func New(rt *runtime.Runtime, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{rt: rt, logger: logger.With(zap.String("component", "http"))}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/v1/healthz", s.handleHealth)
	r.Route("/v1/audit", func(r chi.Router) {
		r.Post("/publish", s.handlePublish)
		r.Post("/process", s.handleProcess)
		r.Post("/consume", s.handleConsume)
		r.Get("/trail", s.handleTrail)
		r.Get("/trail/range", s.handleTrailRange)
		r.Post("/cleanup", s.handleCleanup)
		r.Post("/dlq/drain", s.handleDLQDrain)
		r.Get("/stats", s.handleStats)
	})
	r.Route("/v1/tenants", func(r chi.Router) {
		r.Post("/", s.handleTenantUpsert)
		r.Post("/{clientID}/invalidate", s.handleTenantInvalidate)
		r.Delete("/{clientID}", s.handleTenantDeactivate)
	})

	s.srv = &http.Server{Handler: r}
	return s
}

// ListenAndServe serves until ctx is cancelled, then shuts down with a
// short drain window.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http listening", zap.String("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Client-Id")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// clientID resolves the tenant from the X-Client-Id header or the
// client_id query parameter.
func clientID(r *http.Request) string {
	if cid := r.Header.Get("X-Client-Id"); cid != "" {
		return cid
	}
	return r.URL.Query().Get("client_id")
}

// statusFor maps pipeline errors onto HTTP codes.
func statusFor(err error) int {
	var verr *audit.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, tenant.ErrConfigNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_serving"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	cid := clientID(r)
	if cid == "" {
		writeError(w, http.StatusBadRequest, "client id required")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	res, err := s.rt.Pipeline().Publish(r.Context(), cid, body)
	if err != nil {
		s.logger.Warn("publish rejected", zap.String("client_id", cid), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	cid := clientID(r)
	if cid == "" {
		writeError(w, http.StatusBadRequest, "client id required")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	results, err := s.rt.Pipeline().ProcessDirect(r.Context(), cid, body)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	max := intQuery(r, "max", 10)
	res, err := s.rt.Pipeline().Consume(r.Context(), max, time.Second)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTrail(w http.ResponseWriter, r *http.Request) {
	cid := clientID(r)
	table := r.URL.Query().Get("table")
	key := r.URL.Query().Get("key")
	if cid == "" || table == "" || key == "" {
		writeError(w, http.StatusBadRequest, "client id, table, and key required")
		return
	}
	recs, err := s.rt.Pipeline().Trail(r.Context(), cid, table, key, intQuery(r, "limit", 100))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (s *Server) handleTrailRange(w http.ResponseWriter, r *http.Request) {
	cid := clientID(r)
	if cid == "" {
		writeError(w, http.StatusBadRequest, "client id required")
		return
	}
	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be RFC3339")
		return
	}
	recs, err := s.rt.Pipeline().TrailRange(r.Context(), cid, start, end, r.URL.Query().Get("table"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	cid := clientID(r)
	if cid == "" {
		writeError(w, http.StatusBadRequest, "client id required")
		return
	}
	deleted, err := s.rt.Pipeline().Cleanup(r.Context(), cid, intQuery(r, "days", 0))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *Server) handleDLQDrain(w http.ResponseWriter, r *http.Request) {
	res, err := s.rt.Pipeline().DrainDLQ(r.Context(), intQuery(r, "max", 10))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.rt.Pipeline().Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type tenantUpsertReq struct {
	tenant.DBConfig
	Password string `json:"password"`
	Active   *bool  `json:"active"`
}

func (s *Server) handleTenantUpsert(w http.ResponseWriter, r *http.Request) {
	var req tenantUpsertReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg := req.DBConfig
	cfg.Password = req.Password
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	if err := s.rt.Tenants().Upsert(r.Context(), &cfg, active); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// A replaced config must not be served from cache.
	if err := s.rt.InvalidateTenant(cfg.ClientID); err != nil {
		s.logger.Warn("invalidate after upsert failed", zap.String("client_id", cfg.ClientID), zap.Error(err))
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleTenantInvalidate(w http.ResponseWriter, r *http.Request) {
	cid := chi.URLParam(r, "clientID")
	if err := s.rt.InvalidateTenant(cid); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTenantDeactivate(w http.ResponseWriter, r *http.Request) {
	cid := chi.URLParam(r, "clientID")
	if err := s.rt.Tenants().Deactivate(r.Context(), cid); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.rt.InvalidateTenant(cid); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
