package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"livereload/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Status() types.StatusResponse
	Ready() bool
	RequestReload(ctx context.Context) (types.ReloadResponse, error)
}

// ArtifactLister is optionally implemented by services that know the
// artifact directory.
type ArtifactLister interface {
	Artifacts() ([]types.Artifact, error)
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(corsOptions()))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})

	r.Post("/reload", func(w http.ResponseWriter, r *http.Request) {
		// shutdown cancels the wait as well as the client going away
		joined, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		ctx, cancelT := context.WithTimeout(joined, reloadTimeout)
		defer cancelT()

		start := time.Now()
		resp, err := svc.RequestReload(ctx)
		status, outcome := classify(err)
		observeReload(outcome, time.Since(start))
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			writeJSONError(w, status, err.Error())
			return
		}
		writeJSON(w, resp)
	})

	r.Get("/artifacts", func(w http.ResponseWriter, r *http.Request) {
		al, ok := svc.(ArtifactLister)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "artifact directory not configured")
			return
		}
		list, err := al.Artifacts()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if list == nil {
			list = []types.Artifact{}
		}
		writeJSON(w, types.ArtifactsResponse{Artifacts: list})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unloaded"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

func corsOptions() cors.Options {
	methods := corsAllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	headers := corsAllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Accept", "Content-Type", "X-Log-Level"}
	}
	return cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: methods,
		AllowedHeaders: headers,
		MaxAge:         300,
	}
}
