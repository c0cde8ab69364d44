package handlers

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/talentflow/ats-backend/shared"
)

// MetricsSource is any component that tracks ServiceMetrics
type MetricsSource interface {
	GetServiceMetrics() *shared.ServiceMetrics
}

// CacheStatsSource reports cache occupancy
type CacheStatsSource interface {
	GetCacheStats() map[string]interface{}
	ClearCache() int
}

type PerformanceHandler struct {
	DB      *sql.DB
	Sources []MetricsSource
	Cache   CacheStatsSource
	// Ping defaults to DB.PingContext
	Ping func(ctx context.Context) error
}

func NewPerformanceHandler(db *sql.DB, sources ...MetricsSource) *PerformanceHandler {
	h := &PerformanceHandler{
		DB:      db,
		Sources: sources,
	}
	if db != nil {
		h.Ping = db.PingContext
	}
	return h
}

// Health handles GET /health
func (h *PerformanceHandler) Health(c *fiber.Ctx) error {
	status := "ok"
	code := fiber.StatusOK
	database := "ok"

	if h.Ping == nil {
		database = "unavailable"
	} else {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			database = "unavailable"
		}
	}
	if database != "ok" {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"database":  database,
		"timestamp": time.Now().Unix(),
	})
}

// GetPerformanceMetrics returns service counters and connection pool stats
func (h *PerformanceHandler) GetPerformanceMetrics(c *fiber.Ctx) error {
	metrics := make(map[string]interface{})

	services := make([]shared.MetricsSnapshot, 0, len(h.Sources))
	for _, source := range h.Sources {
		if m := source.GetServiceMetrics(); m != nil {
			services = append(services, m.GetSnapshot())
		}
	}
	metrics["services"] = services

	if h.Cache != nil {
		metrics["cache_stats"] = h.Cache.GetCacheStats()
	}

	if h.DB != nil {
		dbStats := h.DB.Stats()
		metrics["database_stats"] = map[string]interface{}{
			"open_connections":     dbStats.OpenConnections,
			"in_use":               dbStats.InUse,
			"idle":                 dbStats.Idle,
			"wait_count":           dbStats.WaitCount,
			"wait_duration_ms":     dbStats.WaitDuration.Milliseconds(),
			"max_idle_closed":      dbStats.MaxIdleClosed,
			"max_idle_time_closed": dbStats.MaxIdleTimeClosed,
			"max_lifetime_closed":  dbStats.MaxLifetimeClosed,
		}

		indexStats, err := h.getIndexUsageStats(c.UserContext())
		if err != nil {
			metrics["index_stats_error"] = err.Error()
		} else {
			metrics["index_stats"] = indexStats
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    metrics,
	})
}

// ClearCache handles DELETE /api/performance/cache
func (h *PerformanceHandler) ClearCache(c *fiber.Ctx) error {
	if h.Cache == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "No cache configured",
			"code":    "NOT_FOUND",
		})
	}

	removed := h.Cache.ClearCache()
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Cache cleared successfully",
		"removed": removed,
	})
}

// getIndexUsageStats reads index usage for the ledger and attempt log tables
func (h *PerformanceHandler) getIndexUsageStats(ctx context.Context) ([]map[string]interface{}, error) {
	query := `
		SELECT
			schemaname,
			relname as table_name,
			indexrelname as index_name,
			idx_scan as scans,
			idx_tup_read as tuples_read,
			idx_tup_fetch as tuples_fetched
		FROM pg_stat_user_indexes
		WHERE relname IN ('applications', 'application_stage_history', 'public_applications_log', 'candidatos')
		ORDER BY relname, idx_scan DESC
	`

	rows, err := h.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []map[string]interface{}

	for rows.Next() {
		var schema, table, index string
		var scans, tuplesRead, tuplesFetched int64

		if err := rows.Scan(&schema, &table, &index, &scans, &tuplesRead, &tuplesFetched); err != nil {
			return nil, err
		}

		stats = append(stats, map[string]interface{}{
			"schema":         schema,
			"table":          table,
			"index":          index,
			"scans":          scans,
			"tuples_read":    tuplesRead,
			"tuples_fetched": tuplesFetched,
		})
	}

	return stats, rows.Err()
}
