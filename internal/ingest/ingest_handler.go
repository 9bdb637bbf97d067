package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go-attendsync/internal/reconcile"
	"go-attendsync/internal/shared/apperror"
	"go-attendsync/internal/shared/response"
	"go-attendsync/internal/syncer"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Syncer is the slice of the orchestrator the HTTP layer needs.
type Syncer interface {
	RunOnce(ctx context.Context, branchID string) (syncer.SyncResult, error)
	IngestPushed(ctx context.Context, branchID string, events []reconcile.RawPunchEvent) (syncer.SyncResult, error)
	Status(ctx context.Context, branchID string) (syncer.Status, error)
}

type Handler struct {
	service Syncer
	rdb     *redis.Client
}

func NewHandler(service Syncer, rdb *redis.Client) *Handler {
	return &Handler{service: service, rdb: rdb}
}

func writeServiceError(c *gin.Context, err error) {
	httpErr := apperror.ToHTTP(err)
	response.Error(c, httpErr.Status, httpErr.Code, httpErr.Message, httpErr.Details)
}

// PushLogs receives a batch of raw punches from a branch agent and runs it
// through the full reconciliation pipeline.
func (h *Handler) PushLogs(c *gin.Context) {
	branchID := c.Param("branchID")

	var req PushLogsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeServiceError(c, apperror.MapValidationError(err))
		return
	}

	events := make([]reconcile.RawPunchEvent, 0, len(req.Logs))
	for _, l := range req.Logs {
		events = append(events, l.toEvent(branchID))
	}

	res, err := h.service.IngestPushed(c.Request.Context(), branchID, events)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	resp := PushLogsResponse{
		ProcessedCount: res.Committed,
		ErrorCount:     res.Failed + res.Unresolved,
		BatchID:        res.BatchID,
	}
	h.finishIdempotent(c, resp)
	response.Success(c, http.StatusOK, resp, nil)
}

// TriggerSync starts one pull cycle for the branch and waits for it.
func (h *Handler) TriggerSync(c *gin.Context) {
	branchID := c.Param("branchID")

	res, err := h.service.RunOnce(c.Request.Context(), branchID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res, nil)
}

func (h *Handler) GetStatus(c *gin.Context) {
	branchID := c.Param("branchID")

	st, err := h.service.Status(c.Request.Context(), branchID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, st, nil)
}

// finishIdempotent caches the response under the Idempotency-Key and releases
// the in-flight lock the middleware took.
func (h *Handler) finishIdempotent(c *gin.Context, resp any) {
	if h.rdb == nil {
		return
	}
	cacheKey := c.GetString("idempotency_cache_key")
	lockKey := c.GetString("idempotency_lock_key")
	if cacheKey == "" {
		return
	}
	if raw, err := json.Marshal(resp); err == nil {
		h.rdb.Set(c.Request.Context(), cacheKey, raw, 24*time.Hour)
	}
	if lockKey != "" {
		h.rdb.Del(c.Request.Context(), lockKey)
	}
}
