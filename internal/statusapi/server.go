// Package statusapi 只读的运行状态接口
package statusapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/internal/aggregator"
	"github.com/betbot/copybot/internal/copystrategy"
	"github.com/betbot/copybot/internal/executor"
	"github.com/betbot/copybot/internal/health"
)

// Source 状态来源，*executor.Executor 满足
type Source interface {
	Stats() executor.Stats
	Buffer() *aggregator.Buffer
	Strategy() *copystrategy.Config
}

// HealthChecker 健康检查
type HealthChecker interface {
	Run(ctx context.Context) health.Result
}

// Server 状态接口
type Server struct {
	source Source
	health HealthChecker
}

// New 创建状态接口；checker 可为 nil
func New(source Source, checker HealthChecker) *Server {
	return &Server{source: source, health: checker}
}

// Router gin 路由
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/stats", s.handleStats)
	api.GET("/aggregations", s.handleAggregations)
	api.GET("/strategy", s.handleStrategy)
	api.GET("/health", s.handleHealth)
	return r
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.source.Stats())
}

type aggregationView struct {
	Key          string          `json:"key"`
	Trader       string          `json:"trader"`
	ConditionID  string          `json:"conditionId"`
	Asset        string          `json:"asset"`
	Trades       int             `json:"trades"`
	TradeIDs     []string        `json:"tradeIds"`
	TotalUSDC    decimal.Decimal `json:"totalUsdcSize"`
	AveragePrice decimal.Decimal `json:"averagePrice"`
	FirstTradeAt time.Time       `json:"firstTradeTime"`
	LastTradeAt  time.Time       `json:"lastTradeTime"`
}

func (s *Server) handleAggregations(c *gin.Context) {
	buf := s.source.Buffer()
	out := []aggregationView{}
	if buf == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false, "aggregations": out})
		return
	}
	for _, e := range buf.Snapshot() {
		out = append(out, aggregationView{
			Key:          e.Key.String(),
			Trader:       e.Key.Trader,
			ConditionID:  e.Key.ConditionID,
			Asset:        e.Key.Asset,
			Trades:       len(e.Trades),
			TradeIDs:     e.TradeIDs(),
			TotalUSDC:    e.TotalUSDC,
			AveragePrice: e.AveragePrice,
			FirstTradeAt: e.FirstTradeAt,
			LastTradeAt:  e.LastTradeAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true, "aggregations": out})
}

type strategyView struct {
	Strategy           copystrategy.Strategy `json:"strategy"`
	Description        string                `json:"description"`
	Tiers              string                `json:"tiers,omitempty"`
	TradeMultiplier    *decimal.Decimal      `json:"tradeMultiplier,omitempty"`
	MaxOrderSizeUSD    decimal.Decimal       `json:"maxOrderSizeUSD"`
	MinOrderSizeUSD    decimal.Decimal       `json:"minOrderSizeUSD"`
	MaxPositionSizeUSD *decimal.Decimal      `json:"maxPositionSizeUSD,omitempty"`
	MaxDailyVolumeUSD  *decimal.Decimal      `json:"maxDailyVolumeUSD,omitempty"`
}

func (s *Server) handleStrategy(c *gin.Context) {
	cfg := s.source.Strategy()
	if cfg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "strategy not configured"})
		return
	}
	c.JSON(http.StatusOK, strategyView{
		Strategy:           cfg.Strategy(),
		Description:        copystrategy.Describe(cfg),
		Tiers:              copystrategy.FormatTiers(cfg.Tiers),
		TradeMultiplier:    cfg.TradeMultiplier,
		MaxOrderSizeUSD:    cfg.MaxOrderSizeUSD,
		MinOrderSizeUSD:    cfg.MinOrderSizeUSD,
		MaxPositionSizeUSD: cfg.MaxPositionSizeUSD,
		MaxDailyVolumeUSD:  cfg.MaxDailyVolumeUSD,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "health check not configured"})
		return
	}
	r := s.health.Run(c.Request.Context())
	status := http.StatusOK
	if !r.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, r)
}

// Serve 监听 addr，ctx 结束时关闭
func (s *Server) Serve(ctx context.Context, addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 5 * time.Second}
	log := logrus.WithField("component", "statusapi")

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("状态接口退出: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Infof("状态接口监听 %s", ln.Addr())
	return srv, nil
}
