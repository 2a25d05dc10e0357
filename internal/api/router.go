/**
 * @description
 * HTTP router setup using go-chi/chi.
 */
package api

import (
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	RateLimit      func(http.Handler) http.Handler
	Gatherer       prometheus.Gatherer
	Assets         fs.FS
	// TrustProxyHeaders takes the client address from X-Forwarded-For and friends.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
}

// NewRouter creates a new Chi router and registers the verification routes.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	if opts.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Verification service is healthy"))
	})

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		if opts.RateLimit != nil {
			r.Use(opts.RateLimit)
		}
		r.Post("/verify", h.handleVerify)
	})

	if opts.Assets != nil {
		r.Get("/verify", func(w http.ResponseWriter, req *http.Request) {
			http.ServeFileFS(w, req, opts.Assets, "index.html")
		})
		r.Handle("/*", http.FileServerFS(opts.Assets))
	}

	return r
}
