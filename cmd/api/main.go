// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/kagpatra/internal/backend"
	"github.com/yourusername/kagpatra/internal/config"
	"github.com/yourusername/kagpatra/internal/jobs"
	"github.com/yourusername/kagpatra/internal/kiosk"
	"github.com/yourusername/kagpatra/internal/logger"
	"github.com/yourusername/kagpatra/internal/metrics"
	"github.com/yourusername/kagpatra/internal/pages"
	"github.com/yourusername/kagpatra/internal/storage"
)

// release モードでは config.Validate が SESSION_SECRET を必須にする
const devSessionSecret = "kagpatra-dev-session-secret"

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	appLogger, err := logger.Init(logger.Options{
		Level:      cfg.LogLevel,
		Pretty:     cfg.LogPretty,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize logger")
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	service, err := newKioskService(cfg, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to initialize kiosk service")
	}

	// 非同期キューは QUEUE_REDIS_URL がある場合のみ有効
	var manager *jobs.Manager
	if cfg.QueueRedisURL != "" {
		manager, err = setupJobs(cfg, service, appLogger)
		if err != nil {
			appLogger.Fatal().Err(err).Msg("failed to initialize job manager")
		}
		manager.StartWorkers()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	// gin.Default() の Logger は zerolog のミドルウェアに置き換える
	router := gin.New()
	router.Use(gin.Recovery(), logger.Middleware(appLogger), metrics.Middleware())

	// セッションストアの設定（最新の判定要求IDのみ保持）
	secret := cfg.SessionSecret
	if secret == "" {
		appLogger.Warn().Msg("SESSION_SECRET is empty, using development key")
		secret = devSessionSecret
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   kiosk.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(kiosk.SessionCookieName, store))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
	}
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	setupRoutes(router, cfg, service, manager, registry)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info().Str("addr", srv.Addr).Str("mode", cfg.GinMode).Msg("starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error().Err(err).Msg("server shutdown failed")
	}
	if manager != nil {
		if err := manager.Shutdown(ctx); err != nil {
			appLogger.Error().Err(err).Msg("job manager shutdown failed")
		}
	}
}

func newKioskService(cfg *config.Config, appLogger zerolog.Logger) (*kiosk.Service, error) {
	// pdfcpu がホームディレクトリに設定ファイルを作らないようにする
	pdfapi.DisableConfigDir()

	workspace, err := storage.NewLocal(cfg.WorkspaceDir)
	if err != nil {
		return nil, err
	}

	counter := pages.NewCounter(
		pages.NewPDFCPUParser(nil),
		pages.WithTimeout(time.Duration(cfg.PageCountTimeoutSeconds)*time.Second),
		pages.WithLogger(appLogger.With().Str("component", "pages").Logger()),
	)

	opts := kiosk.Options{
		Store:   workspace,
		Counter: counter,
		Table:   kiosk.TableFromConfig(cfg),
		Logger:  appLogger.With().Str("component", "kiosk").Logger(),
	}
	if cfg.BackendURL != "" {
		opts.Submitter = backend.NewClient(cfg.BackendURL, time.Duration(cfg.BackendTimeoutSeconds)*time.Second)
	}
	return kiosk.NewService(cfg, opts)
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "kagpatra-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, service *kiosk.Service, manager *jobs.Manager, gatherer prometheus.Gatherer) {
	router.GET("/health", handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))

	handlerOpts := kiosk.HandlerOptions{
		AsyncThresholdBytes: cfg.AsyncThresholdBytes,
	}
	if manager != nil {
		handlerOpts.Scheduler = &countJobScheduler{manager: manager}
	}

	api := router.Group("/api")
	{
		pagesRoutes := api.Group("/pages")
		{
			pagesRoutes.POST("/count", kiosk.CountHandler(service, handlerOpts))
			if manager != nil {
				pagesRoutes.GET("/count/:id", countStatusHandler(manager))
				pagesRoutes.DELETE("/count/:id", countDiscardHandler(manager))
			} else {
				pagesRoutes.DELETE("/count/:id", countDiscardHandler(workspaceDiscarder{service: service}))
			}
		}

		api.POST("/estimate", kiosk.EstimateHandler(service))
		api.POST("/preferences", kiosk.PreferencesHandler(service))
	}
}
