package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auctiondomain "github.com/leadex/leadex/internal/auction/domain"
	batchdomain "github.com/leadex/leadex/internal/batch/domain"
	"github.com/leadex/leadex/internal/clock"
	"github.com/leadex/leadex/internal/config"
	"github.com/leadex/leadex/internal/events"
	ledgerdomain "github.com/leadex/leadex/internal/ledger/domain"
	"github.com/leadex/leadex/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	auctionSvc auctiondomain.Service
	ledgerSvc  ledgerdomain.Service
	batchSvc   batchdomain.Service
	hub        *events.Hub
	bidLimiter *ratelimit.BidLimiter
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	AuctionSvc auctiondomain.Service
	LedgerSvc  ledgerdomain.Service
	BatchSvc   batchdomain.Service
	Hub        *events.Hub           `optional:"true"`
	BidLimiter *ratelimit.BidLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("http.server"),
		genID:      p.GenID,
		clock:      p.Clock,
		auctionSvc: p.AuctionSvc,
		ledgerSvc:  p.LedgerSvc,
		batchSvc:   p.BatchSvc,
		hub:        p.Hub,
		bidLimiter: p.BidLimiter,
	}

	s.registerAPIRoutes()
	s.registerAdminRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	// Webhooks authenticate with the shared secret, not a user token.
	s.engine.POST("/api/payments/webhooks/:provider", s.HandlePaymentWebhook)

	api := s.engine.Group("/api", s.AuthRequired())
	api.GET("/auctions/:id", s.GetAuction)
	api.POST("/auctions/:id/bids", s.PlaceBid)
	api.POST("/auctions/:id/close", s.CloseAuction)
	api.GET("/credits", s.GetCredits)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.AuthRequired(), s.RequireAdmin())
	admin.POST("/leads", s.CreateLead)
	admin.POST("/leads/:id/auction", s.OpenLeadAuction)
	admin.POST("/batches/run", s.RunBatch)
	admin.GET("/batches/settings", s.GetBatchSettings)
	admin.PUT("/batches/settings", s.UpdateBatchSettings)
	admin.GET("/auctions/:id/events", s.StreamAuctionEvents)
}

// RequestLogger emits one structured line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http.access")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
