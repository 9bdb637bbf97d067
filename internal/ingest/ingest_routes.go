package ingest

import (
	"go-attendsync/internal/authz"
	"go-attendsync/internal/branch"
	"go-attendsync/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func RegisterRoutes(r *gin.RouterGroup, h *Handler, branches branch.Repository, authzService authz.Service, rdb *redis.Client) {
	sync := r.Group("/sync/branches/:branchID")

	// Agent push: authenticated by the branch's own sync token, never a JWT.
	sync.POST("/logs",
		middleware.RateLimitByBranch(rate.Limit(5), 10),
		middleware.SyncTokenAuth(branches),
		middleware.Idempotency(rdb),
		h.PushLogs,
	)

	// Operator endpoints.
	operator := sync.Group("")
	operator.Use(middleware.AuthMiddleware())
	{
		operator.POST("/run", middleware.RBACAuthorize(authzService, "sync", "trigger"), h.TriggerSync)
		operator.GET("/status", middleware.RBACAuthorize(authzService, "sync", "read"), h.GetStatus)
	}
}
