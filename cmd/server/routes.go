package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nshruti113/ddos-detector/internal/detection"
	"github.com/nshruti113/ddos-detector/internal/logging"
	"github.com/nshruti113/ddos-detector/internal/models"
)

const maxIngestBody = 4 << 20

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Enable CORS
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.POST("/traffic/ingest", s.ingestTraffic)

		api.GET("/stats/summary", s.getSummaryStats)
		api.GET("/sources/top", s.getTopSources)

		api.GET("/alerts/recent", s.getRecentAlerts)
		api.GET("/alerts/history", s.getAlertHistory)

		api.GET("/blocked", s.getBlocked)
		api.DELETE("/blocked/:source", s.unblockSource)
	}

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", func(c *gin.Context) {
		s.hub.ServeWS(c.Writer, c.Request)
	})

	return router
}

// decodeEvents accepts either one event object or an array of them
func decodeEvents(body []byte) ([]models.PacketEvent, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}

	if body[0] == '[' {
		var evs []models.PacketEvent
		if err := json.Unmarshal(body, &evs); err != nil {
			return nil, err
		}
		return evs, nil
	}

	var ev models.PacketEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, err
	}
	return []models.PacketEvent{ev}, nil
}

// ingestTraffic hands posted events to the engine. Dropped events are
// counted, not rejected, so a flood never turns into client errors.
func (s *Server) ingestTraffic(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIngestBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	evs, err := decodeEvents(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accepted := 0
	dropped := make(map[string]int)
	for _, ev := range evs {
		if err := s.engine.Ingest(ev); err != nil {
			dropped[err.Error()]++
			continue
		}
		accepted++
	}

	c.JSON(http.StatusAccepted, gin.H{
		"accepted": accepted,
		"dropped":  len(evs) - accepted,
		"reasons":  dropped,
	})
}

// getSummaryStats returns dashboard summary statistics
func (s *Server) getSummaryStats(c *gin.Context) {
	stats := s.engine.Statistics()
	window := s.engine.Config().Window * time.Duration(s.engine.Config().DedupMultiplier)

	active := 0
	for _, a := range stats.RecentAlerts {
		if stats.GeneratedAt.Sub(a.Time) < window {
			active++
		}
	}

	status := "NORMAL"
	if active > 0 || len(stats.BlockedSources) > 0 {
		status = "UNDER_ATTACK"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          status,
		"active_alerts":   active,
		"tracked_sources": stats.TrackedSources,
		"blocked_sources": len(stats.BlockedSources),
		"queue_depth":     stats.QueueDepth,
		"ws_clients":      s.hub.Len(),
		"generated_at":    stats.GeneratedAt,
	})
}

func (s *Server) getTopSources(c *gin.Context) {
	stats := s.engine.Statistics()
	top := stats.TopSources
	if n, ok := intQuery(c, "n"); ok && n < len(top) {
		top = top[:n]
	}
	c.JSON(http.StatusOK, gin.H{"sources": top})
}

func (s *Server) getRecentAlerts(c *gin.Context) {
	limit, _ := intQuery(c, "limit")
	c.JSON(http.StatusOK, gin.H{"alerts": s.engine.Alerts().Recent(limit)})
}

// getAlertHistory reads persisted alerts, which outlive the in-memory
// dedup history.
func (s *Server) getAlertHistory(c *gin.Context) {
	if s.redis == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "redis is disabled"})
		return
	}

	limit, ok := intQuery(c, "limit")
	if !ok {
		limit = 100
	}
	alerts, err := s.redis.RecentAlerts(c.Request.Context(), limit)
	if err != nil {
		logging.Error().Err(err).Msg("reading alert history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read alert history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (s *Server) getBlocked(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"blocked": s.engine.Alerts().Blocked()})
}

func (s *Server) unblockSource(c *gin.Context) {
	source := c.Param("source")
	am := s.engine.Alerts()
	if !am.IsBlocked(source) {
		c.JSON(http.StatusNotFound, gin.H{"error": "source is not blocked"})
		return
	}

	if err := am.Unblock(context.WithoutCancel(c.Request.Context()), source); err != nil {
		var eerr *detection.EnforcementError
		if errors.As(err, &eerr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": eerr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unblocked", "source": source})
}

func (s *Server) health(c *gin.Context) {
	if s.redis != nil {
		if err := s.redis.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// intQuery parses a positive integer query parameter
func intQuery(c *gin.Context, key string) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// corsMiddleware handles CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
