package cursor

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

//go:generate mockgen -source=cursor_repo.go -destination=mock/cursor_repo_mock.go -package=mock
type Store interface {
	// Get returns the branch cursor, or nil when the branch has never synced.
	Get(ctx context.Context, branchID string) (*SyncCursor, error)

	// Advance moves the watermark to t. The guard is monotonic: a value at
	// or before the stored watermark leaves the row untouched, so a stale or
	// replayed cycle can never rewind another cycle's progress.
	Advance(ctx context.Context, branchID string, t time.Time, batchID string) error

	// NextBatchSeq atomically allocates the branch's next sync run number,
	// creating the cursor row on first use.
	NextBatchSeq(ctx context.Context, branchID string) (int64, error)
}

type store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &store{db: db}
}

func (s *store) Get(ctx context.Context, branchID string) (*SyncCursor, error) {
	var c SyncCursor
	err := s.db.WithContext(ctx).
		Where("branch_id = ?", branchID).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *store) Advance(ctx context.Context, branchID string, t time.Time, batchID string) error {
	// Atomic upsert with the monotonic guard in the conflict predicate.
	return s.db.WithContext(ctx).Exec(`
		INSERT INTO sync_cursors (branch_id, last_sync_time, last_sync_batch_id, updated_at)
		VALUES (?, ?, ?, now())
		ON CONFLICT (branch_id) DO UPDATE
		SET last_sync_time = EXCLUDED.last_sync_time,
		    last_sync_batch_id = EXCLUDED.last_sync_batch_id,
		    updated_at = now()
		WHERE sync_cursors.last_sync_time IS NULL
		   OR sync_cursors.last_sync_time < EXCLUDED.last_sync_time
	`, branchID, t, batchID).Error
}

func (s *store) NextBatchSeq(ctx context.Context, branchID string) (int64, error) {
	var next int64
	err := s.db.WithContext(ctx).Raw(`
		INSERT INTO sync_cursors (branch_id, batch_seq, updated_at)
		VALUES (?, 1, now())
		ON CONFLICT (branch_id) DO UPDATE
		SET batch_seq = sync_cursors.batch_seq + 1, updated_at = now()
		RETURNING batch_seq
	`, branchID).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}
