package app

import (
	"database/sql"
	"net"
	"sync"
	"time"

	"go-attendsync/internal/authz"
	"go-attendsync/internal/branch"
	"go-attendsync/internal/cursor"
	"go-attendsync/internal/directory"
	"go-attendsync/internal/extractor"
	"go-attendsync/internal/ingest"
	"go-attendsync/internal/ledger"
	"go-attendsync/internal/messaging/kafka"
	"go-attendsync/internal/reconcile"
	"go-attendsync/internal/shared/connection"
	"go-attendsync/internal/shared/retry"
	"go-attendsync/internal/syncer"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// vendorPool caches one gorm handle per distinct vendor DSN, so branches
// sharing a vendor database share a connection pool.
type vendorPool struct {
	mu    sync.Mutex
	repos map[string]extractor.VendorLogRepository
}

func newVendorPool() *vendorPool {
	return &vendorPool{repos: make(map[string]extractor.VendorLogRepository)}
}

func (p *vendorPool) repoFor(b branch.Branch) (extractor.VendorLogRepository, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if repo, ok := p.repos[b.VendorDSN]; ok {
		return repo, nil
	}
	db, err := connection.ConnectVendorDB(b.VendorDSN, 3)
	if err != nil {
		return nil, err
	}
	repo := extractor.NewVendorLogRepository(db)
	p.repos[b.VendorDSN] = repo
	return repo, nil
}

func buildOrchestrator(
	db *sql.DB,
	gormDB *gorm.DB,
	rdb *redis.Client,
	logger *zap.Logger,
) (*syncer.Orchestrator, branch.Repository) {
	branchRepo := branch.NewRepository(gormDB)
	cursorStore := cursor.NewStore(gormDB)
	directoryRepo := directory.NewRepository(gormDB)
	ledgerRepo := ledger.NewRepository(gormDB)
	outboxRepo := kafka.NewOutboxRepository(db)

	directoryService := directory.NewService(directoryRepo, rdb, logger)
	sink := ledger.NewSink(db, ledgerRepo, outboxRepo, logger)

	pool := newVendorPool()
	ex := extractor.NewRouter(
		extractor.NewSQLExtractor(pool.repoFor, logger),
		extractor.NewDeviceExtractor(&net.Dialer{}, 10*time.Second, logger),
	)

	orch := syncer.NewOrchestrator(
		branchRepo,
		cursorStore,
		ex,
		directoryService,
		reconcile.NewEngine(logger),
		sink,
		retry.Default(),
		logger,
	)
	return orch, branchRepo
}

func registerModules(
	router *gin.Engine,
	db *sql.DB,
	gormDB *gorm.DB,
	rdb *redis.Client,
) error {
	enforcer, err := authz.NewEnforcer()
	if err != nil {
		return err
	}
	authzService, err := authz.NewService(enforcer)
	if err != nil {
		return err
	}

	orch, branchRepo := buildOrchestrator(db, gormDB, rdb, zap.L())
	ingestHandler := ingest.NewHandler(orch, rdb)

	api := router.Group("/api/v1")
	{
		ingest.RegisterRoutes(api, ingestHandler, branchRepo, authzService, rdb)
	}

	return nil
}
