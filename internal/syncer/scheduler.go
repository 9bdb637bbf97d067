package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go-attendsync/internal/branch"
	"go-attendsync/internal/shared/apperror"

	"go.uber.org/zap"
)

const rescanInterval = 5 * time.Minute

// Scheduler runs one worker goroutine per enabled branch, each ticking at the
// branch's own configured interval. The branch list is rescanned periodically
// so newly enabled branches pick up without a restart.
type Scheduler struct {
	orch     *Orchestrator
	branches branch.Repository
	logger   *zap.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewScheduler(orch *Orchestrator, branches branch.Repository, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.L()
	}
	return &Scheduler{
		orch:     orch,
		branches: branches,
		logger:   logger.Named("syncer.scheduler"),
		running:  make(map[string]context.CancelFunc),
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight cycles to
// finish so no branch is left with a half-observed batch.
func (s *Scheduler) Run(ctx context.Context) error {
	s.rescan(ctx)

	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.rescan(ctx)
		}
	}
}

func (s *Scheduler) rescan(ctx context.Context) {
	enabled, err := s.branches.FindEnabled(ctx)
	if err != nil {
		s.logger.Error("branch rescan failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	alive := make(map[string]struct{}, len(enabled))
	for _, b := range enabled {
		id := b.ID.String()
		alive[id] = struct{}{}
		if _, ok := s.running[id]; ok {
			continue
		}
		workerCtx, cancel := context.WithCancel(ctx)
		s.running[id] = cancel
		s.wg.Add(1)
		go s.worker(workerCtx, b)
	}

	// Branches disabled since the last scan get their workers stopped.
	for id, cancel := range s.running {
		if _, ok := alive[id]; !ok {
			cancel()
			delete(s.running, id)
		}
	}
}

func (s *Scheduler) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.running {
		cancel()
		delete(s.running, id)
	}
}

func (s *Scheduler) worker(ctx context.Context, b branch.Branch) {
	defer s.wg.Done()

	branchID := b.ID.String()
	log := s.logger.With(zap.String("branch_id", branchID), zap.String("branch", b.Name))
	log.Info("branch worker started", zap.Duration("interval", b.SyncInterval()))

	ticker := time.NewTicker(b.SyncInterval())
	defer ticker.Stop()

	lastClosedDay := time.Time{}

	for {
		select {
		case <-ctx.Done():
			log.Info("branch worker stopped")
			return
		case <-ticker.C:
			s.tick(ctx, branchID, log)
			lastClosedDay = s.maybeSynthesizeAbsences(ctx, b, lastClosedDay, log)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, branchID string, log *zap.Logger) {
	res, err := s.orch.RunOnce(ctx, branchID)
	switch {
	case errors.Is(err, apperror.ErrSyncInFlight):
		// A manual trigger or push is mid-cycle; this tick just yields.
		log.Debug("cycle already in flight, skipping tick")
	case err != nil:
		log.Error("sync cycle failed", zap.Error(err))
	default:
		log.Debug("sync cycle finished",
			zap.String("batch_id", res.BatchID),
			zap.Int("committed", res.Committed),
		)
	}
}

// maybeSynthesizeAbsences backfills absent records for the most recently
// closed branch-local day, once per day per branch.
func (s *Scheduler) maybeSynthesizeAbsences(ctx context.Context, b branch.Branch, last time.Time, log *zap.Logger) time.Time {
	loc, err := b.Location()
	if err != nil {
		return last
	}
	now := time.Now().In(loc)
	yesterday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -1)
	if !yesterday.After(last) {
		return last
	}

	if _, err := s.orch.SynthesizeAbsences(ctx, b.ID.String(), yesterday); err != nil {
		if !errors.Is(err, apperror.ErrSyncInFlight) {
			log.Warn("absence synthesis failed",
				zap.String("date", yesterday.Format("2006-01-02")), zap.Error(err))
		}
		return last
	}
	return yesterday
}
