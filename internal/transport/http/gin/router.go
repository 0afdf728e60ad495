package httpgin

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kirinyoku/calendar-engine/internal/observability"
	redisrepo "github.com/kirinyoku/calendar-engine/internal/repository/redis"
	"github.com/kirinyoku/calendar-engine/internal/service"
)

// Deps are the optional collaborators of the router. Nil Redis-backed
// dependencies switch their feature off.
type Deps struct {
	Idempotency *redisrepo.IdempotencyStore
	Limiter     *redisrepo.SlidingWindowLimiter
	Registry    *prometheus.Registry
	CORSOrigins []string
}

func NewRouter(
	svcs *service.Services,
	deps Deps,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(logger), CORS(deps.CORSOrigins))
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if deps.Registry != nil {
		r.GET("/metrics", gin.WrapH(observability.MetricsHandler(deps.Registry)))
	}

	h := &handlers{svcs: svcs, idem: deps.Idempotency, log: logger}

	api := r.Group("/", OrganizationMiddleware())
	{
		api.POST("/properties/:id/commands", RateLimitMiddleware(deps.Limiter, logger), h.executeCommand)
		api.GET("/properties/:id/calendar", h.getCalendar)
		api.GET("/properties/:id/price", h.getPrice)
		api.GET("/properties/:id/quote", h.getQuote)
		api.GET("/properties/:id/commands", h.listCommands)
	}

	// TODO: admin routes need an operator credential check once the auth service exposes one.
	adm := r.Group("/admin", OrganizationMiddleware())
	{
		adm.POST("/properties", h.createProperty)
		adm.POST("/properties/:id/rate-plans", h.createRatePlan)
		adm.PUT("/properties/:id/overrides/:date", h.setRateOverride)
		adm.POST("/properties/:id/restrictions", h.createRestriction)
		adm.POST("/properties/:id/channels", h.connectChannel)
		adm.POST("/channel-modifiers", h.createChannelModifier)
		adm.POST("/length-of-stay-discounts", h.createLengthOfStayDiscount)
		adm.POST("/occupancy-pricing", h.createOccupancyPricing)
		adm.POST("/yield-rules", h.createYieldRule)
		adm.POST("/channels/:id/reconcile", h.reconcile)
	}

	return r
}

type handlers struct {
	svcs *service.Services
	idem *redisrepo.IdempotencyStore
	log  *slog.Logger
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
