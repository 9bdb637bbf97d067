package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go-attendsync/internal/shared/contextutil"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Idempotency dedupes POST requests carrying an Idempotency-Key header. A
// completed response is replayed from cache; a key whose first request is
// still running answers 409 instead of starting a second cycle.
func Idempotency(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		idempKey := c.GetHeader("Idempotency-Key")
		if idempKey == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		// The token-validated branch id is preferred over the raw route param
		// so cache entries key on the identity that actually authenticated.
		branchID := contextutil.GetBranchID(c.Request.Context())
		if branchID == "" {
			branchID = c.Param("branchID")
		}
		cacheKey := fmt.Sprintf("idemp:%s:%s:%s", c.FullPath(), branchID, idempKey)
		lockKey := cacheKey + ":lock"

		val, err := rdb.Get(c.Request.Context(), cacheKey).Result()
		if err == nil {
			var cachedRes any
			json.Unmarshal([]byte(val), &cachedRes)
			c.AbortWithStatusJSON(http.StatusOK, gin.H{"status": "success", "data": cachedRes})
			return
		}

		// The lock expires on its own, so a crashed handler cannot wedge the
		// key forever.
		isNew, _ := rdb.SetNX(c.Request.Context(), lockKey, "locked", 30*time.Second).Result()
		if !isNew {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"code":    "PROCESSING",
				"message": "This request is already being processed",
			})
			return
		}

		c.Set("idempotency_cache_key", cacheKey)
		c.Set("idempotency_lock_key", lockKey)

		c.Next()
	}
}
