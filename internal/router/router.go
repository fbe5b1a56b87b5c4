package router

import (
	"time"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/config"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/handler"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/middleware"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/model"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/repository"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/service"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services is the wired service layer, shared by the HTTP router, the worker
// pool, the sweep cron and the CLI.
type Services struct {
	Auth     service.AuthService
	Channels service.ChannelService
	Clients  service.ClientService
	Ingest   service.IngestService
	Ledger   service.LedgerService
	Metrics  service.MetricsService
	Reports  service.ReportService
}

// NewServices builds the service graph. rdb may be nil, which disables the metrics cache.
// Dependency graph: Service ← Repository ← DB/Redis
func NewServices(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *Services {
	loc := cfg.Location()
	policy := model.SegmentPolicy{RecencyWindow: cfg.RecencyWindow(), VIPVisits: cfg.VIPVisits}

	// ── Repositories ─────────────────────────────────────────────────────────
	channelRepo := repository.NewChannelRepository(db)
	leadRepo := repository.NewLeadRepository(db)
	clientRepo := repository.NewClientRepository(db)
	visitRepo := repository.NewVisitRepository(db)
	reserveRepo := repository.NewReserveRepository(db)
	metricRepo := repository.NewMetricRepository(db)

	// ── Services ─────────────────────────────────────────────────────────────
	resolver := service.NewIdentityResolver(clientRepo, leadRepo)
	ledger := service.NewLedgerService(clientRepo, visitRepo, policy)

	return &Services{
		Auth:     service.NewAuthService(cfg),
		Channels: service.NewChannelService(channelRepo),
		Clients:  service.NewClientService(clientRepo, leadRepo, visitRepo, channelRepo, resolver, ledger, loc),
		Ingest:   service.NewIngestService(channelRepo, leadRepo, clientRepo, visitRepo, reserveRepo, resolver, ledger, loc),
		Ledger:   ledger,
		Metrics: service.NewMetricsService(channelRepo, leadRepo, clientRepo, visitRepo, metricRepo, rdb, service.MetricsOptions{
			Location:    loc,
			Concurrency: cfg.AggregationConcurrency,
			CacheTTL:    cfg.MetricsCacheTTL(),
		}),
		Reports: service.NewReportService(channelRepo, leadRepo, clientRepo, visitRepo, metricRepo, loc),
	}
}

// New wires handlers and returns a configured Gin engine. Batch ingestion and
// range recompute are queued through Redis; with rdb == nil batch ingestion
// answers 503 and range recompute runs inline.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, svcs *Services) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(cfg.RateLimitPerMinute, time.Minute))

	// A nil *Dispatcher stored in the interface would not compare equal to nil.
	var queue handler.JobQueue
	if rdb != nil {
		queue = worker.NewDispatcher(rdb)
	}

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(svcs.Auth)
	eventsH := handler.NewEventsHandler(svcs.Ingest, queue)
	metricsH := handler.NewMetricsHandler(svcs.Metrics, queue)
	clientsH := handler.NewClientsHandler(svcs.Clients)
	channelsH := handler.NewChannelsHandler(svcs.Channels, svcs.Reports, svcs.Metrics)
	reportsH := handler.NewReportsHandler(svcs.Reports, cfg.Location())

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected routes; admin passes every RequireRole check
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	v1 := r.Group("/v1", jwtMW)
	{
		v1.POST("/auth/tokens", middleware.RequireRole(service.RoleAdmin), authH.MintToken)

		// Ingestion adapters
		v1.POST("/events", middleware.RequireRole(service.RoleIngestor), eventsH.Ingest)
		v1.POST("/events/batch", middleware.RequireRole(service.RoleIngestor), eventsH.IngestBatch)

		// Scheduler
		v1.POST("/metrics/recompute", middleware.RequireRole(service.RoleScheduler), metricsH.Recompute)

		// Ledger
		v1.GET("/clients", middleware.RequireRole(service.RoleReporter, service.RoleIngestor), clientsH.Lookup)
		v1.GET("/clients/:id", middleware.RequireRole(service.RoleReporter, service.RoleIngestor), clientsH.Get)
		v1.POST("/clients", middleware.RequireRole(service.RoleIngestor), clientsH.Register)
		v1.POST("/visits/:id/corrections", middleware.RequireRole(service.RoleIngestor), clientsH.CorrectVisit)
		v1.PATCH("/leads/:id/status", middleware.RequireRole(service.RoleIngestor), clientsH.UpdateLeadStatus)

		// Channels: reporters read, admin writes
		v1.GET("/channels", middleware.RequireRole(service.RoleReporter, service.RoleIngestor), channelsH.List)
		v1.GET("/channels/:id", middleware.RequireRole(service.RoleReporter, service.RoleIngestor), channelsH.Get)
		v1.GET("/channels/:id/metrics", middleware.RequireRole(service.RoleReporter), metricsH.ChannelMetrics)
		v1.GET("/channels/:id/summary", middleware.RequireRole(service.RoleReporter), channelsH.Summary)
		channels := v1.Group("/channels", middleware.RequireRole(service.RoleAdmin))
		{
			channels.POST("", channelsH.Create)
			channels.PATCH("/:id", channelsH.Update)
		}

		// Reporting
		v1.GET("/stats/counts", middleware.RequireRole(service.RoleReporter), reportsH.Counts)
		v1.GET("/segments", middleware.RequireRole(service.RoleReporter), reportsH.Segments)
	}

	return r
}
