package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/socialkit/crosspost/internal/config"
	"github.com/socialkit/crosspost/internal/http/handler"
	httpmiddleware "github.com/socialkit/crosspost/internal/http/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, socialHandler *handler.SocialHandler, rateLimiter *httpmiddleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	network := r.Group("/:network")
	{
		network.GET("/oauth/login", socialHandler.Login)
		network.GET("/oauth/callback", socialHandler.Callback)
		network.GET("/oauth/tokens", socialHandler.Tokens)
		network.GET("/posts", socialHandler.ListShares)
		network.POST("/", socialHandler.Publish)
	}

	return r
}
