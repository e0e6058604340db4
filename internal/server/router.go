package server

import (
	"net/http"

	"github.com/watzon/authhook/internal/metrics"
	"github.com/watzon/authhook/internal/server/handlers"
)

// WebhookBasePath is the prefix of every webhook route.
const WebhookBasePath = "/webhooks/firebase"

type Router struct {
	server      *Server
	mux         *http.ServeMux
	middlewares []Middleware
	handler     http.Handler
}

type Middleware func(http.Handler) http.Handler

func NewRouter(srv *Server) *Router {
	r := &Router{
		server: srv,
		mux:    http.NewServeMux(),
	}

	r.setupMiddleware()
	r.setupRoutes()
	r.build()

	return r
}

func (r *Router) setupMiddleware() {
	cfg := r.server.cfg

	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(ClientKeyMiddleware(r.server.clientKeys))
	r.Use(LoggingMiddleware)

	if cfg.Metrics.Enabled {
		r.Use(MetricsMiddleware(cfg.Metrics.Path))
	}

	r.Use(MaxBodySizeMiddleware(cfg.Server.MaxBodySize))
}

func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *Router) setupRoutes() {
	cfg := r.server.cfg

	health := handlers.NewHealthHandlers(r.server.pinger(), r.server.version)
	wh := handlers.NewWebhookHandlers(r.server.receiver, r.server.deliveries)

	// Health must stay reachable without a signature and while the
	// caller is rate limited.
	r.mux.HandleFunc("GET "+WebhookBasePath+"/health", health.Liveness)
	r.mux.HandleFunc("POST "+WebhookBasePath+"/{endpoint}", wh.Receive)
	r.mux.HandleFunc("GET /readyz", health.Readiness)

	if cfg.Admin.Token != "" {
		deliveries := handlers.NewDeliveryHandlers(r.server.deliveries, cfg.Admin.Token)
		r.mux.HandleFunc("GET "+WebhookBasePath+"/deliveries", deliveries.List)
	}

	if cfg.Metrics.Enabled {
		r.mux.Handle("GET "+cfg.Metrics.Path, metrics.Handler())
	}
}

func (r *Router) build() {
	handler := http.Handler(r.mux)
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}
	r.handler = handler
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}
