package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/jellydator/ttlcache/v3"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/vultisig/octra-wallet/config"
	"github.com/vultisig/octra-wallet/dapp"
	"github.com/vultisig/octra-wallet/internal/types"
	"github.com/vultisig/octra-wallet/relay"
	"github.com/vultisig/octra-wallet/rpc"
	"github.com/vultisig/octra-wallet/service"
	"github.com/vultisig/octra-wallet/storage"
)

type Server struct {
	cfg         config.Config
	store       storage.KV
	relay       *relay.Relay
	registry    *rpc.Registry
	node        *service.NodeClient
	wallets     *service.WalletService
	lock        *service.LockService
	accounts    *service.AccountService
	backups     *service.BackupService
	pipeline    *service.Pipeline
	timer       *service.TimerScheduler
	protocol    *dapp.Protocol
	connections *dapp.ConnectionStore
	authService *service.AuthService
	sessions    *ttlcache.Cache[string, *dapp.Session]
	sdClient    statsd.ClientInterface
	logger      *logrus.Logger
}

// NewServer wires the wallet core on top of store. A nil client refreshes accounts in process
// instead of through the task queue; nil blobs disables backups.
func NewServer(cfg config.Config,
	store storage.KV,
	blobs storage.BlobStorage,
	client *asynq.Client,
	sdClient statsd.ClientInterface) (*Server, error) {
	logger := logrus.WithField("service", "api").Logger
	if sdClient == nil {
		sdClient = &statsd.NoOpClient{}
	}

	rl, err := relay.New(relay.Options{
		Prefix:          cfg.Relay.Prefix,
		TargetHeader:    cfg.Relay.TargetHeader,
		DefaultUpstream: cfg.Relay.DefaultUpstream,
		Timeout:         cfg.Relay.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("fail to create relay, err: %w", err)
	}

	gateway := rpc.NewGatewayFromConfig(cfg, store, logger)
	registry := gateway.Registry()
	node := service.NewNodeClient(gateway)

	lock := service.NewLockService(store)
	backups := service.NewBackupService(store, blobs)
	wallets := service.NewWalletService(store, lock, backups)
	accounts := service.NewAccountService(node, store)

	s := &Server{
		cfg:         cfg,
		store:       store,
		relay:       rl,
		registry:    registry,
		node:        node,
		wallets:     wallets,
		lock:        lock,
		accounts:    accounts,
		backups:     backups,
		connections: dapp.NewConnectionStore(store),
		authService: service.NewAuthService(cfg.Server.JWTSecret),
		sdClient:    sdClient,
		logger:      logger,
	}

	var scheduler service.RefreshScheduler
	if client != nil {
		scheduler = service.NewQueueScheduler(client, cfg.Pipeline.RefreshDelay)
	} else {
		s.timer = service.NewTimerScheduler(accounts, cfg.Pipeline.RefreshDelay)
		scheduler = s.timer
	}
	s.pipeline = service.NewPipeline(node, service.NewBuilder(), service.NewNonceManager(), scheduler, sdClient)
	s.protocol = dapp.NewProtocol(s.connections, wallets, s.pipeline)

	ttl := cfg.DApp.SessionTTL
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	s.sessions = ttlcache.New[string, *dapp.Session](
		ttlcache.WithTTL[string, *dapp.Session](ttl),
		ttlcache.WithDisableTouchOnHit[string, *dapp.Session](),
	)
	go s.sessions.Start()
	return s, nil
}

// Handler builds the echo instance with every route mounted.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(echoLogLevel(s.cfg.Server.LogLevel))
	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	bodyLimit := s.cfg.Server.BodyLimit
	if bodyLimit == "" {
		bodyLimit = "2M"
	}
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(s.statsdMiddleware)
	// the relay is open to any origin; management routes only to configured origins
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		Skipper:      func(c echo.Context) bool { return !s.isRelayPath(c) },
		AllowOrigins: []string{"*"},
	}))
	if len(s.cfg.Server.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			Skipper:      s.isRelayPath,
			AllowOrigins: s.cfg.Server.AllowedOrigins,
		}))
	}
	if s.cfg.Server.RateLimit > 0 {
		limiterStore := middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(s.cfg.Server.RateLimit),
				Burst:     s.cfg.Server.RateBurst,
				ExpiresIn: 5 * time.Minute,
			},
		)
		e.Use(middleware.RateLimiter(limiterStore))
	}

	e.GET("/ping", s.Ping)
	s.relay.Register(e)

	auth := []echo.MiddlewareFunc{s.originMiddleware}
	if s.authService.Enabled() {
		auth = append(auth, s.AuthMiddleware)
		e.POST("/auth/refresh", s.RefreshToken, s.originMiddleware)
	}
	unlocked := append(append([]echo.MiddlewareFunc{}, auth...), s.unlockedMiddleware)

	e.GET("/providers", s.ListProviders, auth...)
	e.POST("/providers", s.AddProvider, auth...)
	e.PUT("/providers/:id", s.UpdateProvider, auth...)
	e.PUT("/providers/:id/active", s.SetActiveProvider, auth...)
	e.DELETE("/providers/:id", s.RemoveProvider, auth...)

	e.POST("/password", s.SetPassword, auth...)
	e.POST("/lock", s.Lock, auth...)
	e.POST("/unlock", s.Unlock, auth...)

	e.GET("/wallets", s.ListWallets, unlocked...)
	e.POST("/wallets", s.ImportWallet, unlocked...)
	e.POST("/wallets/generate", s.GenerateWallet, unlocked...)
	e.PUT("/wallets/:address/active", s.SwitchWallet, unlocked...)
	e.DELETE("/wallets/:address", s.RemoveWallet, unlocked...)
	e.POST("/wallets/:address/backup", s.BackupWallet, unlocked...)
	e.POST("/wallets/:address/restore", s.RestoreWallet, unlocked...)

	e.GET("/accounts/:address", s.GetAccount, unlocked...)
	e.POST("/send", s.Send, unlocked...)

	e.GET("/dapp", s.OpenDAppRequest, unlocked...)
	e.POST("/dapp/:session/approve", s.ApproveDAppRequest, unlocked...)
	e.POST("/dapp/:session/reject", s.RejectDAppRequest, unlocked...)
	e.GET("/dapps", s.ListDApps, auth...)
	e.DELETE("/dapps", s.DisconnectDApp, auth...)
	return e
}

func (s *Server) isRelayPath(c echo.Context) bool {
	prefix := s.cfg.Relay.Prefix
	if prefix == "" {
		prefix = "/api"
	}
	return strings.HasPrefix(c.Request().URL.Path, prefix+"/")
}

func (s *Server) StartServer() error {
	e := s.Handler()
	return e.Start(fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port))
}

// Close stops background work owned by the server. The store is the caller's.
func (s *Server) Close() {
	s.sessions.Stop()
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *Server) Ping(c echo.Context) error {
	return c.String(http.StatusOK, "walletd is running")
}

func echoLogLevel(level string) log.Lvl {
	switch level {
	case "debug", "trace":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error", "fatal", "panic":
		return log.ERROR
	default:
		return log.INFO
	}
}

// errorStatus maps the error taxonomy onto HTTP statuses.
func errorStatus(err error) int {
	if service.IsInsufficientBalance(err) {
		return http.StatusUnprocessableEntity
	}
	switch types.KindOf(err) {
	case types.KindValidation:
		switch types.CodeOf(err) {
		case types.ErrWalletNotFound, types.ErrProviderNotFound, types.ErrBackupNotFound:
			return http.StatusNotFound
		case types.ErrWalletLocked:
			return http.StatusLocked
		case types.ErrInvalidPassword:
			return http.StatusUnauthorized
		case types.ErrRequestInFlight, types.ErrLastWallet:
			return http.StatusConflict
		case types.ErrBackupDisabled:
			return http.StatusNotImplemented
		}
		return http.StatusBadRequest
	case types.KindProtocolViolation:
		if types.CodeOf(err) == types.ErrAlreadyResolved {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case types.KindUpstreamRejected:
		return http.StatusBadGateway
	case types.KindConnectivity:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error string          `json:"error"`
	Kind  types.ErrorKind `json:"kind,omitempty"`
	Code  string          `json:"code,omitempty"`
}

func newErrorResponse(err error) errorResponse {
	kind := types.KindOf(err)
	if kind == types.KindUnknown {
		kind = ""
	}
	return errorResponse{Error: err.Error(), Kind: kind, Code: types.CodeOf(err)}
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		c.Echo().DefaultHTTPErrorHandler(he, c)
		return
	}
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	if err := c.JSON(status, newErrorResponse(err)); err != nil {
		s.logger.WithError(err).Error("fail to write error response")
	}
}
