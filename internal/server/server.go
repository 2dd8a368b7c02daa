package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/revora/revora/internal/catalog"
	catalogdomain "github.com/revora/revora/internal/catalog/domain"
	"github.com/revora/revora/internal/cloudmetrics"
	"github.com/revora/revora/internal/commission"
	commissiondomain "github.com/revora/revora/internal/commission/domain"
	"github.com/revora/revora/internal/config"
	"github.com/revora/revora/internal/directory"
	directorydomain "github.com/revora/revora/internal/directory/domain"
	"github.com/revora/revora/internal/events"
	"github.com/revora/revora/internal/invoice"
	invoicedomain "github.com/revora/revora/internal/invoice/domain"
	"github.com/revora/revora/internal/observability"
	obsmiddleware "github.com/revora/revora/internal/observability/logger"
	obsmetrics "github.com/revora/revora/internal/observability/metrics"
	obstracing "github.com/revora/revora/internal/observability/tracing"
	"github.com/revora/revora/internal/pricing"
	pricingdomain "github.com/revora/revora/internal/pricing/domain"
	"github.com/revora/revora/internal/quota"
	quotadomain "github.com/revora/revora/internal/quota/domain"
	"github.com/revora/revora/internal/ratelimit"
	"github.com/revora/revora/internal/reset"
	"github.com/revora/revora/internal/subscription"
	subscriptiondomain "github.com/revora/revora/internal/subscription/domain"
	"github.com/revora/revora/internal/tax"
	"github.com/revora/revora/internal/usage"
	usagedomain "github.com/revora/revora/internal/usage/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	catalog.Module,
	directory.Module,
	pricing.Module,
	subscription.Module,
	usage.Module,
	reset.Module,
	quota.Module,
	tax.Module,
	invoice.Module,
	commission.Module,
	events.Module,
	ratelimit.Module,
	cloudmetrics.Module,
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

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
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	catalogSvc      catalogdomain.Catalog
	directorySvc    directorydomain.Service
	pricingSvc      pricingdomain.Service
	subscriptionSvc subscriptiondomain.Service
	ledger          usagedomain.Ledger
	enforcer        quotadomain.Enforcer
	invoiceSvc      invoicedomain.Service
	commissionSvc   commissiondomain.Service
	sweeper         *reset.Sweeper
	consumeLimiter  *ratelimit.ConsumeLimiter
	cloudRecorder   *cloudmetrics.Recorder
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	CatalogSvc      catalogdomain.Catalog
	DirectorySvc    directorydomain.Service
	PricingSvc      pricingdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	Ledger          usagedomain.Ledger
	Enforcer        quotadomain.Enforcer
	InvoiceSvc      invoicedomain.Service
	CommissionSvc   commissiondomain.Service
	Sweeper         *reset.Sweeper
	ConsumeLimiter  *ratelimit.ConsumeLimiter `optional:"true"`
	CloudRecorder   *cloudmetrics.Recorder    `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		catalogSvc:      p.CatalogSvc,
		directorySvc:    p.DirectorySvc,
		pricingSvc:      p.PricingSvc,
		subscriptionSvc: p.SubscriptionSvc,
		ledger:          p.Ledger,
		enforcer:        p.Enforcer,
		invoiceSvc:      p.InvoiceSvc,
		commissionSvc:   p.CommissionSvc,
		sweeper:         p.Sweeper,
		consumeLimiter:  p.ConsumeLimiter,
		cloudRecorder:   p.CloudRecorder,
		obsMetrics:      p.ObsMetrics,
	}
}

func registerRoutes(s *Server) {
	s.RegisterAPIRoutes()
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterAPIRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Catalog --------
	v1.POST("/services", s.CreateService)
	v1.GET("/services", s.ListServices)
	v1.GET("/services/:id", s.GetServiceByID)
	v1.POST("/plans", s.CreatePlan)
	v1.GET("/plans/:id", s.GetPlanByID)

	// -------- Directory --------
	v1.POST("/resellers", s.CreateReseller)
	v1.GET("/resellers/:id", s.GetResellerByID)
	v1.PUT("/resellers/:id/commission-rate", s.SetCommissionRate)
	v1.POST("/clients", s.CreateClient)
	v1.GET("/clients/:id", s.GetClientByID)
	v1.POST("/clients/:id/deactivate", s.DeactivateClient)

	// -------- Pricing --------
	v1.PUT("/pricing/rules", s.SetPricingRule)
	v1.DELETE("/pricing/rules", s.ClearPricingRule)
	v1.GET("/pricing/resolve", s.ResolvePrice)

	// -------- Subscriptions --------
	v1.POST("/subscriptions", s.AssignSubscription)
	v1.GET("/subscriptions", s.ListSubscriptions)
	v1.GET("/subscriptions/:id", s.GetSubscriptionByID)
	v1.PATCH("/subscriptions/:id/quota", s.UpdateSubscriptionQuota)
	v1.POST("/subscriptions/:id/deactivate", s.DeactivateSubscription)

	// -------- Usage --------
	v1.POST("/usage/consume", s.ConsumeRateLimit(), s.Consume)
	v1.POST("/usage/ensure-reset", s.EnsureReset)
	v1.GET("/usage/events", s.ListUsageEvents)

	// -------- Invoices --------
	v1.POST("/invoices/generate", s.GenerateInvoice)
	v1.GET("/invoices", s.ListInvoices)
	v1.GET("/invoices/:id", s.GetInvoiceByID)
	v1.GET("/invoices/:id/pdf", s.RenderInvoicePDF)
	v1.POST("/invoices/:id/send", s.SendInvoice)
	v1.POST("/invoices/:id/mark-paid", s.MarkInvoicePaid)
	v1.POST("/invoices/:id/cancel", s.CancelInvoice)

	// -------- Commission --------
	v1.GET("/billing/commission", s.GetCommission)
	v1.GET("/billing/commission/report", s.GetCommissionReport)
}
