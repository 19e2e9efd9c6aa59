package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nurpe/agro-contracts/internal/http/middleware"
)

type RouterDeps struct {
	Handler        *Handler
	Auth           gin.HandlerFunc
	WebSocket      gin.HandlerFunc
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Environment    string
	Log            zerolog.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(deps.AllowedOrigins))
	router.Use(middleware.RequestLogger(deps.Log))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	deps.Handler.Register(router, deps.Auth, deps.WebSocket)
	return router
}
