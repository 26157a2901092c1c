package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"spmagent/internal/handler"
)

// ReadyCheck is one dependency probed by /readyz.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Deps struct {
	Auth          *handler.AuthHandler
	Projects      *handler.ProjectHandler
	Authenticator Authenticator
	CreateLimiter *OwnerLimiter
	ReadyChecks   []ReadyCheck
	CORSOrigin    string
	Logger        *zap.Logger
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(d Deps) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), RequestLogger(d.Logger), CORS(d.CORSOrigin))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for _, rc := range d.ReadyChecks {
			if err := rc.Check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": rc.Name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	pub := r.Group("/api/auth")
	{
		pub.POST("/signup", d.Auth.Signup)
		pub.POST("/login", d.Auth.Login)
		pub.POST("/refresh", d.Auth.Refresh)
	}

	// Protected
	api := r.Group("/api")
	api.Use(AuthMiddleware(d.Authenticator, d.Logger))
	{
		api.POST("/auth/logout", d.Auth.Logout)
		api.GET("/auth/me", d.Auth.Me)
		api.PUT("/auth/me", d.Auth.UpdateMe)

		limited := RateLimit(d.CreateLimiter)
		api.POST("/projects", limited, d.Projects.Create)
		api.POST("/projects/stream", limited, d.Projects.CreateStream)
		api.GET("/projects", d.Projects.List)
		api.GET("/projects/deadlines", d.Projects.Deadlines)
		api.GET("/projects/:id", d.Projects.Get)
		api.PATCH("/projects/:id/tasks/:taskId", d.Projects.UpdateTaskStatus)
		api.POST("/projects/:id/archive", d.Projects.Archive)
		api.DELETE("/projects/:id", d.Projects.Delete)
	}

	return &Router{Engine: r}
}

// Server wraps the engine in an http.Server so callers can shut it down gracefully.
// WriteTimeout is left unset: streaming creation holds the response open while generating.
func (r *Router) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
