package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/revshare/internal/authorization"
	"github.com/smallbiznis/revshare/internal/config"
	"github.com/smallbiznis/revshare/internal/ingestion"
	ingestiondomain "github.com/smallbiznis/revshare/internal/ingestion/domain"
	"github.com/smallbiznis/revshare/internal/invoice"
	"github.com/smallbiznis/revshare/internal/observability"
	obsmiddleware "github.com/smallbiznis/revshare/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/revshare/internal/observability/metrics"
	obstracing "github.com/smallbiznis/revshare/internal/observability/tracing"
	"github.com/smallbiznis/revshare/internal/pricing"
	pricingdomain "github.com/smallbiznis/revshare/internal/pricing/domain"
	"github.com/smallbiznis/revshare/internal/providers"
	"github.com/smallbiznis/revshare/internal/ratelimit"
	"github.com/smallbiznis/revshare/internal/revenue"
	revenuedomain "github.com/smallbiznis/revshare/internal/revenue/domain"
	"github.com/smallbiznis/revshare/internal/royalty"
	royaltydomain "github.com/smallbiznis/revshare/internal/royalty/domain"
	"github.com/smallbiznis/revshare/internal/successfee"
	successfeedomain "github.com/smallbiznis/revshare/internal/successfee/domain"
	"github.com/smallbiznis/revshare/internal/tenant"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// DomainModule wires the revenue pipeline without a transport.
var DomainModule = fx.Options(
	tenant.Module,
	pricing.Module,
	revenue.Module,
	successfee.Module,
	invoice.Module,
	ingestion.Module,
	providers.Module,
	ratelimit.Module,
	royalty.Module,
)

var Module = fx.Module("http.server",
	DomainModule,
	authorization.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
		QuietRoutes:     []string{"/health", "/metrics"},
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	authzSvc      authorization.Service
	ingestionSvc  ingestiondomain.Service
	ledger        revenuedomain.Ledger
	feeSvc        successfeedomain.Service
	pricingSvc    pricingdomain.Service
	royaltySvc    royaltydomain.Service
	intakeLimiter *ratelimit.IntakeLimiter
	obsMetrics    *obsmetrics.Metrics
	now           func() time.Time
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	AuthzSvc      authorization.Service
	IngestionSvc  ingestiondomain.Service
	Ledger        revenuedomain.Ledger
	FeeSvc        successfeedomain.Service
	PricingSvc    pricingdomain.Service
	RoyaltySvc    royaltydomain.Service
	IntakeLimiter *ratelimit.IntakeLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		authzSvc:      p.AuthzSvc,
		ingestionSvc:  p.IngestionSvc,
		ledger:        p.Ledger,
		feeSvc:        p.FeeSvc,
		pricingSvc:    p.PricingSvc,
		royaltySvc:    p.RoyaltySvc,
		intakeLimiter: p.IntakeLimiter,
		obsMetrics:    p.ObsMetrics,
		now:           time.Now,
	}

	svc.registerIntakeRoutes()
	svc.registerTenantRoutes()
	svc.registerInternalRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerIntakeRoutes() {
	v1 := s.engine.Group("/v1")
	v1.POST("/notifications/calls", s.VerifyIntakeSignature(), s.ReceiveCallNotification)
}

func (s *Server) registerTenantRoutes() {
	tenants := s.engine.Group("/v1/tenants/:tenant_id", ActorContext())

	tenants.GET("/revenue-events", s.authorizeTenantAction(authorization.ObjectRevenue, authorization.ActionRevenueView), s.ListRevenueEvents)
	tenants.GET("/revenue", s.authorizeTenantAction(authorization.ObjectRevenue, authorization.ActionRevenueView), s.GetRevenueTotal)
	tenants.POST("/revenue-events/:call_id/reversal", s.authorizeTenantAction(authorization.ObjectRevenue, authorization.ActionRevenueReverse), s.ReverseRevenueEvent)
	tenants.GET("/success-fees", s.authorizeTenantAction(authorization.ObjectSuccessFee, authorization.ActionSuccessFeeView), s.ListSuccessFees)
	tenants.GET("/price", s.authorizeTenantAction(authorization.ObjectPrice, authorization.ActionPriceView), s.GetTenantPrice)
}

func (s *Server) registerInternalRoutes() {
	internal := s.engine.Group("/internal", ActorContext())

	royalties := internal.Group("/royalties")
	royalties.POST("/run", s.RoyaltyTriggerAuth(), s.authorizeNetworkAction(authorization.ObjectRoyalty, authorization.ActionRoyaltyRun), s.RunRoyalties)
	royalties.GET("", s.authorizeNetworkAction(authorization.ObjectRoyalty, authorization.ActionRoyaltyView), s.ListRoyalties)
	royalties.GET("/statement.pdf", s.authorizeNetworkAction(authorization.ObjectRoyalty, authorization.ActionRoyaltyView), s.GetRoyaltyStatement)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
