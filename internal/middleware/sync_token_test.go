package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go-attendsync/internal/branch"
	branchMock "go-attendsync/internal/branch/mock"
	"go-attendsync/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
)

func setupSyncTokenRouter(t *testing.T) (*gin.Engine, *branchMock.MockRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctrl := gomock.NewController(t)
	repo := branchMock.NewMockRepository(ctrl)

	router := gin.New()
	router.POST("/sync/branches/:branchID/logs",
		middleware.SyncTokenAuth(repo),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"branch_id": c.GetString("branch_id_validated")})
		},
	)
	return router, repo
}

func hashedBranch(t *testing.T, token string) *branch.Branch {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	assert.NoError(t, err)
	return &branch.Branch{ID: uuid.New(), SyncTokenHash: string(hash)}
}

func TestSyncTokenAuth_ValidToken(t *testing.T) {
	router, repo := setupSyncTokenRouter(t)
	b := hashedBranch(t, "push-token-1")

	repo.EXPECT().
		FindByID(gomock.Any(), b.ID.String()).
		Return(b, nil)

	req, _ := http.NewRequest(http.MethodPost, "/sync/branches/"+b.ID.String()+"/logs", nil)
	req.Header.Set("X-Sync-Token", "push-token-1")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), b.ID.String())
}

func TestSyncTokenAuth_WrongToken(t *testing.T) {
	router, repo := setupSyncTokenRouter(t)
	b := hashedBranch(t, "push-token-1")

	repo.EXPECT().
		FindByID(gomock.Any(), b.ID.String()).
		Return(b, nil)

	req, _ := http.NewRequest(http.MethodPost, "/sync/branches/"+b.ID.String()+"/logs", nil)
	req.Header.Set("X-Sync-Token", "push-token-2")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSyncTokenAuth_MissingToken(t *testing.T) {
	router, _ := setupSyncTokenRouter(t)

	req, _ := http.NewRequest(http.MethodPost, "/sync/branches/"+uuid.NewString()+"/logs", nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSyncTokenAuth_UnknownBranchSameAnswerAsBadToken(t *testing.T) {
	router, repo := setupSyncTokenRouter(t)
	unknown := uuid.NewString()

	repo.EXPECT().
		FindByID(gomock.Any(), unknown).
		Return(nil, assert.AnError)

	req, _ := http.NewRequest(http.MethodPost, "/sync/branches/"+unknown+"/logs", nil)
	req.Header.Set("X-Sync-Token", "whatever")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_SYNC_TOKEN")
}
