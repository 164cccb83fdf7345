package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gatekeeper/internal/audit"
	"github.com/nerrad567/gatekeeper/internal/auth"
	"github.com/nerrad567/gatekeeper/internal/infrastructure/config"
	"github.com/nerrad567/gatekeeper/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// AccountAdmin is the account store as the admin endpoints see it.
type AccountAdmin interface {
	auth.AccountRepository
	auth.RoleResolver
	AssignRole(ctx context.Context, accountID, roleCode string) error
	RevokeRole(ctx context.Context, accountID, roleCode string) error
	UpdateRoles(ctx context.Context, accountID string, assign, revoke []string) error
}

// HealthChecker is any component that can report its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	RateLimit  config.RateLimitConfig
	Logger     *logging.Logger
	Auth       *auth.Service
	Authorizer *auth.Authorizer
	Accounts   AccountAdmin
	Registry   *auth.Registry
	// Manifest is re-applied by POST /api/v1/registry/sync.
	Manifest auth.Manifest
	// QueryTimeout bounds the persistence work of one request. Zero disables it.
	QueryTimeout time.Duration
	AuditRepo    audit.Repository
	Audit        *audit.Recorder
	Health       map[string]HealthChecker
	Version      string
}

// Server is the HTTP front of Gatekeeper.
//
// It binds the endpoint table to chi, runs every protected endpoint through
// the Authorizer, and owns the listener lifecycle. Create with New, start
// with Start, stop with Close.
type Server struct {
	cfg          config.APIConfig
	logger       *logging.Logger
	auth         *auth.Service
	authorizer   *auth.Authorizer
	accounts     AccountAdmin
	registry     *auth.Registry
	manifest     auth.Manifest
	queryTimeout time.Duration
	auditRepo    audit.Repository
	audit        *audit.Recorder
	health       map[string]HealthChecker
	limiter      *clientLimiter
	version      string
	server       *http.Server
	cancel       context.CancelFunc
}

// New creates a server. Nothing listens until Start is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	case deps.Auth == nil:
		return nil, errors.New("auth service is required")
	case deps.Authorizer == nil:
		return nil, errors.New("authorizer is required")
	case deps.Accounts == nil:
		return nil, errors.New("account store is required")
	case deps.Registry == nil:
		return nil, errors.New("route registry is required")
	}

	s := &Server{
		cfg:          deps.Config,
		logger:       deps.Logger.With("component", "api"),
		auth:         deps.Auth,
		authorizer:   deps.Authorizer,
		accounts:     deps.Accounts,
		registry:     deps.Registry,
		manifest:     deps.Manifest,
		queryTimeout: deps.QueryTimeout,
		auditRepo:    deps.AuditRepo,
		audit:        deps.Audit,
		health:       deps.Health,
		version:      deps.Version,
	}
	if deps.RateLimit.Enabled {
		s.limiter = newClientLimiter(deps.RateLimit.RequestsPerMinute, deps.RateLimit.Burst)
	}

	return s, nil
}

// Start builds the router and listens in the background. The returned
// error covers setup only; listener failures are logged.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.limiter != nil {
		go s.limiter.sweepLoop(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close waits up to gracefulShutdownTimeout for in-flight requests, then
// closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
