package router

import (
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"github.com/konsulin-care/focus/internal/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

// Options carries what the routes are served from.
type Options struct {
	CPT    *handlers.CPTHandler
	Stream *handlers.StreamHub
	// Session starts allowed per client per minute; zero disables the limit.
	StartRateLimit uint
	// Development relaxes the security headers for local use.
	Development bool
}

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error": "Too many requests. Try again in " + time.Until(info.ResetTime).Round(time.Second).String(),
	})
}

func Setup(log *zap.Logger, opts Options) *gin.Engine {
	// Set up a new Gin router, add recovery middleware and request logging.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
		IsDevelopment:         opts.Development,
	})
	router.Use(func(c *gin.Context) {
		err := secureMiddleware.Process(c.Writer, c.Request)
		if err != nil {
			c.Abort()
			return
		}
	})

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	startLimit := []gin.HandlerFunc{}
	if opts.StartRateLimit > 0 {
		rateLimitStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
			Rate:  time.Minute,
			Limit: opts.StartRateLimit,
		})
		startLimit = append(startLimit, ratelimit.RateLimiter(rateLimitStore, &ratelimit.Options{
			ErrorHandler: errorHandler,
			KeyFunc:      keyFunc,
		}))
	}

	cpt := router.Group("/api/cpt")
	{
		cpt.POST("/sessions", append(startLimit, opts.CPT.StartSession)...)
		cpt.GET("/sessions/:id", opts.CPT.GetSession)
		cpt.POST("/responses", opts.CPT.RecordResponse)
		cpt.POST("/stop", opts.CPT.Stop)
		cpt.GET("/status", opts.CPT.Status)
		cpt.GET("/results/last", opts.CPT.LastResult)
		cpt.POST("/score", opts.CPT.Score)
		if opts.Stream != nil {
			cpt.GET("/stream", opts.Stream.Serve)
		}
	}

	return router
}
