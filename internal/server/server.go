// Package server exposes the reconciliation engine over HTTP: run control,
// published facts, summaries and the data quality findings log.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/storelytics/tally/internal/cohort"
	cohortdomain "github.com/storelytics/tally/internal/cohort/domain"
	"github.com/storelytics/tally/internal/config"
	"github.com/storelytics/tally/internal/observability"
	obsmiddleware "github.com/storelytics/tally/internal/observability/logger"
	obsmetrics "github.com/storelytics/tally/internal/observability/metrics"
	obstracing "github.com/storelytics/tally/internal/observability/tracing"
	"github.com/storelytics/tally/internal/reconcile"
	reconciledomain "github.com/storelytics/tally/internal/reconcile/domain"
	"github.com/storelytics/tally/internal/source"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	source.Module,
	reconcile.Module,
	cohort.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// NewEngine assembles the middleware chain shared by the real server and
// handler tests.
func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	port := strings.TrimSpace(cfg.HTTPPort)
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	reconcileSvc reconciledomain.Service
	cohortSvc    cohortdomain.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	ReconcileSvc reconciledomain.Service
	CohortSvc    cohortdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		reconcileSvc: p.ReconcileSvc,
		cohortSvc:    p.CohortSvc,
	}

	svc.registerRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	runs := v1.Group("/reconciliation/runs")
	{
		runs.POST("", s.CreateRun)
		runs.GET("", s.ListRuns)
		runs.GET("/:id", s.GetRun)
	}

	v1.GET("/orders/:id/facts", s.GetOrderFacts)
	v1.GET("/summaries/monthly", s.ListMonthlySummaries)
	v1.GET("/payments/stats", s.GetPaymentStats)
	v1.GET("/findings", s.ListFindings)
}
