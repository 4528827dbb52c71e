// Package httpapi serves the read-only city API over gin.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"PollutionSync/internal/logging"
	"PollutionSync/internal/ports"
)

// Deps wires the router.
type Deps struct {
	Repository     ports.CityRepository
	Logger         *slog.Logger
	AllowedOrigins []string
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewRouter builds the gin engine with every route and middleware registered.
func NewRouter(deps Deps) *gin.Engine {
	log := logging.OrDiscard(deps.Logger)
	h := &handler{repository: deps.Repository, logger: log}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	if len(deps.AllowedOrigins) > 0 {
		log.Info("cors enabled", "origins", deps.AllowedOrigins)
		r.Use(cors.New(cors.Config{
			AllowOrigins: deps.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodOptions},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
			MaxAge:       12 * time.Hour,
		}))
	}

	r.GET("/health", h.health)
	r.GET("/cities/:countryCode", h.listCities)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	return r
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if status >= http.StatusInternalServerError {
			log.Error("http request", attrs...)
			return
		}
		log.Info("http request", attrs...)
	}
}
