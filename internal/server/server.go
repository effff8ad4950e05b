// Package server exposes the prediction, profit and advisory endpoints over
// HTTP.
package server

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mkulima/internal/cache"
	"mkulima/internal/domain"
	"mkulima/internal/envdata"
	"mkulima/internal/integrations/llm"
	"mkulima/internal/metrics"
	"mkulima/internal/profit"
	"mkulima/internal/storage/influx"
	"mkulima/internal/yield"
)

// InsightSharer publishes a generated insight outside the app.
type InsightSharer interface {
	ShareInsight(ctx context.Context, snap domain.Snapshot, insight string) (string, error)
}

// Deps are the collaborators behind the routes. DB, Influx, Sharer and
// Metrics are optional.
type Deps struct {
	Fetcher    envdata.Fetcher
	Predictor  *yield.Predictor
	Calculator *profit.Calculator
	Cache      cache.Store
	Generator  *llm.Generator

	DB      *sql.DB
	Influx  *influx.Recorder
	Sharer  InsightSharer
	Metrics *metrics.Metrics

	Now func() time.Time
}

type Server struct {
	deps   Deps
	engine *gin.Engine
}

func New(deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Generator == nil {
		deps.Generator = llm.NewGenerator(nil, 0, 0)
	}
	s := &Server{deps: deps}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger(), cors())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	api := router.Group("/api")
	api.Use(sessionSlot())
	{
		crop := api.Group("/crop")
		crop.POST("/predict-yield", s.predictYield)
		crop.POST("/calculate-own-profit", s.calculateOwnProfit)
		crop.POST("/calculate-profit", s.calculateOwnProfit)
		crop.POST("/calculate-default-profit", s.calculateDefaultProfit)
		crop.GET("/list", s.listCrops)
		crop.GET("/insight", s.insight)
		crop.POST("/insight/share", s.shareInsight)
		crop.POST("/ai-chat", s.chat)
		crop.GET("/reports", s.reports)
	}
	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		status := c.Writer.Status()
		log.Printf("http method=%s path=%s status=%d duration=%s session=%s", c.Request.Method, c.Request.URL.Path, status, elapsed.Round(time.Millisecond), c.GetString(sessionContextKey))
		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveRequest(c.FullPath(), c.Request.Method, status, elapsed)
		}
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+SessionHeader)
		h.Set("Access-Control-Expose-Headers", SessionHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
