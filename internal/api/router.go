// Package api serves the read-only HTTP query surface of the executor.
package api

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"flashloan-executor/internal/action"
	"flashloan-executor/internal/analysis"
	"flashloan-executor/internal/chain"
	"flashloan-executor/internal/loan"
	"flashloan-executor/internal/metrics"
	"flashloan-executor/internal/registry"
	"flashloan-executor/internal/state"
	"flashloan-executor/internal/storage"
)

// Options wires the components the handlers read from.
type Options struct {
	System   *state.System
	Registry *registry.Registry
	Pool     *loan.Pool
	Quoter   analysis.Quoter
	Gas      *chain.GasTracker
	Stats    *metrics.Aggregator
	// GasModel estimates strategy gas; DefaultGasModel when nil.
	GasModel action.GasModel
	// Analytics is optional; when set, strategy stats include the
	// analytics store aggregate.
	Analytics storage.StrategyStatsStore

	Version string
	Now     func() time.Time
	Logger  *zap.Logger
}

// Server holds the handlers.
type Server struct {
	opts Options
}

// NewRouter builds a gin engine with every route registered.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.System == nil || opts.Registry == nil || opts.Pool == nil || opts.Gas == nil {
		return nil, errors.New("api: system, registry, pool and gas tracker are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.GasModel == nil {
		opts.GasModel = action.DefaultGasModel()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(opts.Logger))

	s := &Server{opts: opts}
	s.Register(engine)
	return engine, nil
}

// Register mounts every route on r.
func (s *Server) Register(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/metrics", s.metrics)

	v1 := r.Group("/api/v1")
	v1.GET("/info", s.info)
	v1.GET("/gas", s.gas)
	v1.GET("/authorization/:address", s.authorization)
	v1.GET("/loan/availability", s.loanAvailability)
	v1.GET("/quote", s.quote)
	v1.GET("/profitability", s.profitability)

	strategies := v1.Group("/strategies")
	strategies.GET("", s.listStrategies)
	strategies.GET("/:id", s.getStrategy)
	strategies.GET("/:id/actions", s.strategyActions)
	strategies.GET("/:id/executions", s.strategyExecutions)
	strategies.GET("/:id/stats", s.strategyStats)

	users := v1.Group("/users/:address")
	users.GET("/strategies", s.userStrategies)
	users.GET("/profit/:asset", s.userProfit)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
