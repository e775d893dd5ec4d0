// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/VA7DBI/authAPI/activity"
	"github.com/VA7DBI/authAPI/auth"
	"github.com/VA7DBI/authAPI/config"
	"github.com/VA7DBI/authAPI/docs"
	"github.com/VA7DBI/authAPI/logging"
	"github.com/VA7DBI/authAPI/middleware"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

var (
	configFile = flag.String("config", "config.yaml", "Path to configuration file")
)

// @title           Auth API Service
// @version         1.0
// @description     Token based user registration and login service.
// @license.name    BSD-3-Clause
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Bearer token issued by /api/login
func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New("authapi", cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger hclog.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	app.startPurger(ctx, cfg.Auth.PurgeInterval, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// application owns everything the server needs and releases it on Close.
type application struct {
	backend  *auth.Backend
	recorder *activity.LogRecorder
	service  *auth.Service
	router   *gin.Engine

	stopPurger func()
	purgerDone chan struct{}
}

func newApplication(ctx context.Context, cfg *config.Config, logger hclog.Logger) (*application, error) {
	backend, err := auth.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	recorder, err := activity.OpenLogRecorder(cfg)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to open activity log: %w", err)
	}

	app := &application{backend: backend, recorder: recorder}

	app.service, err = auth.NewService(backend.Credentials, backend.Tokens,
		auth.WithTokenTTL(cfg.Auth.TokenTTL),
		auth.WithHashCost(cfg.Auth.HashCost),
		auth.WithIssueAttempts(cfg.Auth.IssueAttempts),
		auth.WithHashConcurrency(cfg.Auth.HashConcurrency),
		auth.WithLogger(logger),
		auth.WithRecorder(recorder),
	)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}

	if _, err := auth.BootstrapDefaultUser(ctx, app.service, backend.Credentials, cfg, logger); err != nil {
		app.Close()
		return nil, err
	}

	app.router = setupRouter(cfg, NewAuthAPI(app.service, logger), app.service)
	return app, nil
}

// startPurger runs the expired token purger until ctx ends or Close is
// called.
func (a *application) startPurger(ctx context.Context, interval time.Duration, logger hclog.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	a.stopPurger = cancel
	a.purgerDone = make(chan struct{})
	go func() {
		defer close(a.purgerDone)
		auth.RunPurger(ctx, a.backend.Purger, interval, time.Now, logger)
	}()
}

// Close stops the purger, then releases the activity log and the backend,
// reporting every failure.
func (a *application) Close() error {
	if a.stopPurger != nil {
		a.stopPurger()
		<-a.purgerDone
	}

	var result *multierror.Error
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing activity log: %w", err))
		}
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func setupRouter(cfg *config.Config, api *AuthAPI, verifier middleware.Verifier) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		gin.Logger(),
		gin.Recovery(),
		middleware.SourceAddress(),
		middleware.CORS(cfg.Server.AllowedOrigins),
	)

	docs.SwaggerInfo.BasePath = cfg.API.BasePath
	if cfg.API.SwaggerHost != "" {
		docs.SwaggerInfo.Host = cfg.API.SwaggerHost
	}

	group := r.Group(path.Join(cfg.API.BasePath, "api"))
	group.POST("/register", api.RegisterHandler)
	group.POST("/login", api.LoginHandler)
	group.POST("/logout", api.LogoutHandler)
	group.GET("/me", middleware.BearerAuthMiddleware(verifier), api.MeHandler)

	// These endpoints remain public
	group.GET("/health", healthCheck)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Add Prometheus metrics endpoint if enabled
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	if cfg.Server.StaticDir != "" {
		r.NoRoute(gin.WrapH(http.FileServer(http.Dir(cfg.Server.StaticDir))))
	}

	return r
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status"`
}

// @Summary     Health check endpoint
// @Description Get API health status
// @Tags        health
// @Produce     json
// @Success     200 {object} HealthResponse
// @Router      /api/health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
