package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/karteai/billing/docs"
	"github.com/karteai/billing/internal/app/api/handlers"
	mw "github.com/karteai/billing/internal/app/api/middleware"
	"github.com/karteai/billing/internal/app/service/receipt"
	"github.com/karteai/billing/internal/app/service/reconciler"
	"github.com/karteai/billing/internal/app/service/statistics"
	subsvc "github.com/karteai/billing/internal/app/service/subscription"
	"github.com/karteai/billing/internal/app/service/userprofile"
	"github.com/karteai/billing/internal/app/service/webhook"
	"github.com/karteai/billing/pkg/auth"
	cfgpkg "github.com/karteai/billing/pkg/config"
	metrics "github.com/karteai/billing/pkg/metrics"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(
	r *gin.Engine,
	log *zap.SugaredLogger,
	cfg *cfgpkg.Config,
	dispatcher *webhook.Dispatcher,
	sub *subsvc.Service,
	users userprofile.Store,
	flow *userprofile.Cancellation,
	receipts *receipt.Service,
	rec *reconciler.Service,
	stats *statistics.Service,
	maker *auth.Maker,
) {
	// Prometheus metrics
	if cfg != nil && cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}
	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Billing group: the signature-verified webhook plus the access check,
	// which carries its own session-token middleware.
	billing := r.Group("/api/v1/billing")
	billing.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterWebhookRoutes(billing, dispatcher, log)
	handlers.RegisterBillingRoutes(billing, sub, maker, log)

	// User group behind the session token issued at checkout
	user := r.Group("/api/v1/user")
	user.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(), mw.SessionAuthMiddleware(maker))
	handlers.RegisterUserRoutes(user, users, receipts, flow, log)

	// Admin APIs
	admin := r.Group("/api/v1/admin")
	admin.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterAdminRoutes(admin, sub, rec, stats, log)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
