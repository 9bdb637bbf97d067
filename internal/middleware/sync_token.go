package middleware

import (
	"net/http"
	"strings"

	"go-attendsync/internal/branch"
	"go-attendsync/internal/shared/contextutil"
	"go-attendsync/internal/shared/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// SyncTokenAuth authenticates a branch agent pushing logs. The agent sends
// its long-lived token in X-Sync-Token (or as a bearer token); it is checked
// against the bcrypt hash stored on the branch named in the path.
func SyncTokenAuth(branches branch.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-Sync-Token")
		if token == "" {
			if bearer, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); found {
				token = bearer
			}
		}
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Sync token not found", nil)
			c.Abort()
			return
		}

		branchID := c.Param("branchID")
		b, err := branches.FindByID(c.Request.Context(), branchID)
		if err != nil {
			// An unknown branch gets the same answer as a bad token so the
			// endpoint does not leak which branch ids exist.
			response.Error(c, http.StatusUnauthorized, "INVALID_SYNC_TOKEN", "Sync token is invalid", nil)
			c.Abort()
			return
		}

		if b.SyncTokenHash == "" ||
			bcrypt.CompareHashAndPassword([]byte(b.SyncTokenHash), []byte(token)) != nil {
			response.Error(c, http.StatusUnauthorized, "INVALID_SYNC_TOKEN", "Sync token is invalid", nil)
			c.Abort()
			return
		}

		c.Set("branch_id_validated", branchID)
		ctx := contextutil.WithBranchID(c.Request.Context(), branchID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
