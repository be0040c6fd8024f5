package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"thumbnailer/internal/httpkit"
)

const checkTimeout = 5 * time.Second

// Health reports liveness. With ?deep=true it also checks the tool binary,
// the storage registry and, in async mode, postgres, redis and the queue
// depth.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	health := map[string]any{
		"status":  "ok",
		"service": h.service,
		"async":   h.AsyncEnabled(),
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, check := range checks {
			if check["status"] == "error" {
				health["status"] = "degraded"
				log.Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	checks := map[string]map[string]any{
		"tool":    h.checkTool(),
		"storage": h.checkStorage(),
	}
	if h.pool != nil {
		checks["postgres"] = h.checkPostgres(ctx)
	}
	if h.rdb != nil {
		checks["redis"] = h.checkRedis(ctx)
	}
	if q, ok := h.queue.(queueDepth); ok {
		checks["queue"] = checkQueue(ctx, q)
	}
	return checks
}

type queueDepth interface {
	Len(ctx context.Context) (int64, error)
}

func checkQueue(ctx context.Context, q queueDepth) map[string]any {
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	n, err := q.Len(checkCtx)
	if err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
		return result
	}
	result["pending"] = n
	return result
}

func (h *Handler) checkTool() map[string]any {
	result := map[string]any{
		"status": "ok",
		"path":   h.toolPath,
	}

	info, err := os.Stat(h.toolPath)
	switch {
	case err != nil:
		result["status"] = "error"
		result["error"] = err.Error()
	case info.IsDir() || info.Mode()&0o111 == 0:
		result["status"] = "error"
		result["error"] = "not an executable file"
	}
	return result
}

func (h *Handler) checkStorage() map[string]any {
	result := map[string]any{"status": "ok"}
	if h.registry == nil {
		result["status"] = "error"
		result["error"] = "no storage registry"
		return result
	}
	result["schemes"] = h.registry.Schemes()
	return result
}

func (h *Handler) checkPostgres(ctx context.Context) map[string]any {
	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := h.pool.Ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	} else {
		stats := h.pool.Stat()
		result["total_conns"] = stats.TotalConns()
		result["idle_conns"] = stats.IdleConns()
		result["acquired_conns"] = stats.AcquiredConns()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

func (h *Handler) checkRedis(ctx context.Context) map[string]any {
	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := h.rdb.Ping(checkCtx).Err(); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}
