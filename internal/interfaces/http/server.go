package httpinterface

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/chainforge/forged/internal/core/application"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server exposes the node monitoring REST API.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, operatorSvc application.OperatorService) *Server {
	h := &handler{svc: operatorSvc}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/nodes", h.listNodes)
	mux.HandleFunc("POST /api/v1/nodes", h.startNode)
	mux.HandleFunc("GET /api/v1/nodes/{nodeId}", h.getNode)
	mux.HandleFunc("DELETE /api/v1/nodes/{nodeId}", h.stopNode)
	mux.HandleFunc("GET /api/v1/nodes/{nodeId}/accounts", h.listAccounts)
	mux.HandleFunc("POST /api/v1/nodes/{nodeId}/fund", h.fundAccount)
	mux.HandleFunc("GET /api/v1/nodes/{nodeId}/transactions", h.listTransactions)
	mux.HandleFunc("GET /api/v1/nodes/{nodeId}/transactions/{txid}", h.getTransaction)
	mux.HandleFunc("POST /api/v1/health", h.checkHealth)
	mux.HandleFunc("POST /api/v1/registry/cleanup", h.cleanupRegistry)

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      withRequestID(withCORS(mux)),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
	}
}

// Handler returns the routed handler with all middlewares applied.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) ListenAndServe() error {
	log.Infof("monitoring API listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil &&
		!errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// withRequestID tags every request with an ID carried in the response
// headers and the request log line.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", reqID)

		log.WithFields(log.Fields{
			"requestId": reqID,
			"method":    r.Method,
			"path":      r.URL.Path,
		}).Debug("http request")

		next.ServeHTTP(w, r)
	})
}

// withCORS allows browser tooling on any origin to call the API. The
// daemon binds to localhost, so this does not widen exposure.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
