package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/watzon/authhook/internal/config"
	"github.com/watzon/authhook/internal/deliverylog"
	"github.com/watzon/authhook/internal/server/handlers"
	"github.com/watzon/authhook/internal/webhooks"
)

type Server struct {
	cfg        *config.Config
	users      webhooks.UserService
	db         handlers.Pinger
	version    string
	verifier   *webhooks.Verifier
	limiter    *RateLimiter
	limiterOpt []RateLimiterOption
	receiver   *webhooks.Receiver
	clientKeys *ClientKeyResolver
	deliveries *deliverylog.Store
	httpServer *http.Server
	router     *Router
}

type Option func(*Server)

// WithPinger lets the readiness probe check the downstream store.
func WithPinger(p handlers.Pinger) Option {
	return func(s *Server) {
		s.db = p
	}
}

func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// WithRateLimiterOptions passes options through to the rate limiter.
func WithRateLimiterOptions(opts ...RateLimiterOption) Option {
	return func(s *Server) {
		s.limiterOpt = append(s.limiterOpt, opts...)
	}
}

// New wires the webhook receiver for cfg around users.
func New(cfg *config.Config, users webhooks.UserService, opts ...Option) (*Server, error) {
	srv := &Server{
		cfg:        cfg,
		users:      users,
		version:    "dev",
		deliveries: deliverylog.NewStore(cfg.DeliveryLog.Capacity),
	}

	for _, opt := range opts {
		opt(srv)
	}

	clientKeys, err := NewClientKeyResolver(cfg.RateLimit.KeyHeader, cfg.Server.TrustedProxies)
	if err != nil {
		return nil, err
	}
	srv.clientKeys = clientKeys

	srv.verifier = webhooks.NewVerifier(cfg.Webhook.Secret)

	receiverOpts := []webhooks.ReceiverOption{
		webhooks.WithSignatureHeader(cfg.Webhook.SignatureHeader),
	}
	if cfg.RateLimit.Enabled {
		srv.limiter = NewRateLimiter(cfg.RateLimit.RateLimitRule, srv.limiterOpt...)
		receiverOpts = append(receiverOpts, webhooks.WithLimiter(srv.limiter))
	}

	srv.receiver = webhooks.NewReceiver(
		srv.verifier,
		webhooks.NewRouter(users, cfg.Webhook.DownstreamTimeout),
		receiverOpts...,
	)

	srv.router = NewRouter(srv)
	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return srv, nil
}

// Start serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	log.Info().
		Str("addr", s.cfg.Server.Address()).
		Bool("rate_limit", s.limiter != nil).
		Str("signature_header", s.cfg.Webhook.SignatureHeader).
		Msg("Starting webhook receiver")

	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the rate limiter sweep.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down server")

	err := s.httpServer.Shutdown(ctx)

	if s.limiter != nil {
		s.limiter.Stop()
	}

	return err
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Config() *config.Config {
	return s.cfg
}

// Verifier returns the signature verifier so its secret can be rotated.
func (s *Server) Verifier() *webhooks.Verifier {
	return s.verifier
}

func (s *Server) RateLimiter() *RateLimiter {
	return s.limiter
}

func (s *Server) Deliveries() *deliverylog.Store {
	return s.deliveries
}

func (s *Server) pinger() handlers.Pinger {
	return s.db
}
