package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/voxbill/voxbill/internal/call"
	calldomain "github.com/voxbill/voxbill/internal/call/domain"
	"github.com/voxbill/voxbill/internal/call/feed"
	"github.com/voxbill/voxbill/internal/config"
	"github.com/voxbill/voxbill/internal/credit"
	creditdomain "github.com/voxbill/voxbill/internal/credit/domain"
	"github.com/voxbill/voxbill/internal/credit/watcher"
	"github.com/voxbill/voxbill/internal/ledger"
	"github.com/voxbill/voxbill/internal/notify"
	"github.com/voxbill/voxbill/internal/observability"
	"github.com/voxbill/voxbill/internal/purchase"
	purchasedomain "github.com/voxbill/voxbill/internal/purchase/domain"
	"github.com/voxbill/voxbill/internal/usage"
	usagedomain "github.com/voxbill/voxbill/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	observability.Module,
	fx.Provide(NewEngine),
	notify.Module,
	ledger.Module,
	call.Module,
	credit.Module,
	purchase.Module,
	usage.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
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
	engine      *gin.Engine
	cfg         config.Config
	usagesvc    usagedomain.Service
	purchasesvc purchasedomain.Service
	processor   creditdomain.Processor
	sweeper     creditdomain.Sweeper
	calls       calldomain.Store
	liveCalls   *feed.Hub
	watchers    *watcher.Supervisor
	log         *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Usagesvc    usagedomain.Service
	Purchasesvc purchasedomain.Service
	Processor   creditdomain.Processor
	Sweeper     creditdomain.Sweeper
	Calls       calldomain.Store
	LiveCalls   *feed.Hub           `optional:"true"`
	Watchers    *watcher.Supervisor `optional:"true"`
	Log         *zap.Logger
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		usagesvc:    p.Usagesvc,
		purchasesvc: p.Purchasesvc,
		processor:   p.Processor,
		sweeper:     p.Sweeper,
		calls:       p.Calls,
		liveCalls:   p.LiveCalls,
		watchers:    p.Watchers,
		log:         p.Log.Named("server"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1", s.TenantRequired())

	v1.GET("/balance", s.GetBalance)
	v1.GET("/usage", s.ListUsage)
	v1.GET("/usage/summary", s.SummarizeUsage)
	v1.GET("/purchases", s.ListPurchases)
	v1.POST("/purchases", s.RecordPurchase)
	v1.POST("/credits/sweep", s.RunSweep)
	v1.POST("/calls/transitions", s.IngestCallTransition)
	v1.POST("/calls/:id/process", s.ProcessCall)
}
