package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go-attendsync/internal/branch"
	"go-attendsync/internal/cursor"
	"go-attendsync/internal/directory"
	"go-attendsync/internal/extractor"
	"go-attendsync/internal/ledger"
	"go-attendsync/internal/reconcile"
	"go-attendsync/internal/shared/apperror"
	"go-attendsync/internal/shared/retry"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SyncResult is the outcome of one cycle for one branch.
type SyncResult struct {
	BranchID     string    `json:"branch_id"`
	BatchID      string    `json:"batch_id"`
	Extracted    int       `json:"extracted"`
	Attempted    int       `json:"attempted"`
	Committed    int       `json:"committed"`
	Failed       int       `json:"failed"`
	Unresolved   int       `json:"unresolved"`
	Absent       int       `json:"absent"`
	NewWatermark time.Time `json:"new_watermark"`
}

// Status is the operator-visible last-sync state of a branch, reflecting
// only durably committed progress.
type Status struct {
	BranchID     string     `json:"branch_id"`
	LastSyncTime *time.Time `json:"last_sync_time"`
	LastBatchID  string     `json:"last_batch_id,omitempty"`
}

// Orchestrator drives the extract -> resolve -> reconcile -> commit ->
// advance cycle. Cycles for one branch are strictly sequential (per-branch
// lock); branches never block each other.
type Orchestrator struct {
	branches  branch.Repository
	cursors   cursor.Store
	extract   extractor.Extractor
	directory directory.Service
	engine    *reconcile.Engine
	sink      ledger.Sink
	policy    retry.Policy
	logger    *zap.Logger

	// now pins the asOf passed to the engine; injectable for tests.
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewOrchestrator(
	branches branch.Repository,
	cursors cursor.Store,
	extract extractor.Extractor,
	dir directory.Service,
	engine *reconcile.Engine,
	sink ledger.Sink,
	policy retry.Policy,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.L()
	}
	return &Orchestrator{
		branches:  branches,
		cursors:   cursors,
		extract:   extract,
		directory: dir,
		engine:    engine,
		sink:      sink,
		policy:    policy,
		logger:    logger.Named("syncer"),
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// WithNow overrides the time source. Test hook.
func (o *Orchestrator) WithNow(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// loadBranch maps an unknown id onto the shared not-found error so HTTP
// callers get a 404 instead of a generic failure.
func (o *Orchestrator) loadBranch(ctx context.Context, branchID string) (*branch.Branch, error) {
	b, err := o.branches.FindByID(ctx, branchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, fmt.Errorf("syncer: load branch %s: %w", branchID, err)
	}
	return b, nil
}

func (o *Orchestrator) branchLock(branchID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[branchID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[branchID] = l
	}
	return l
}

// RunOnce executes one full cycle for one branch: read the watermark,
// extract strictly newer events, resolve identities, reconcile, commit, and
// advance the watermark only past events that were durably committed.
//
// If another cycle for the same branch is in flight the call fails fast with
// ErrSyncInFlight rather than queueing behind it; schedulers simply try
// again on the next tick.
func (o *Orchestrator) RunOnce(ctx context.Context, branchID string) (SyncResult, error) {
	lock := o.branchLock(branchID)
	if !lock.TryLock() {
		return SyncResult{}, apperror.ErrSyncInFlight
	}
	defer lock.Unlock()

	b, err := o.loadBranch(ctx, branchID)
	if err != nil {
		return SyncResult{}, err
	}
	if !b.Enabled {
		return SyncResult{}, apperror.Wrap(
			fmt.Errorf("syncer: branch %s is disabled", branchID),
			apperror.CodeInvalidState, "Branch is disabled for sync", http.StatusConflict,
		)
	}

	cur, err := o.cursors.Get(ctx, branchID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("syncer: read cursor %s: %w", branchID, err)
	}
	since := cur.Watermark()

	var events []reconcile.RawPunchEvent
	err = retry.Do(ctx, o.policy, func(ctx context.Context) error {
		var exErr error
		events, exErr = o.extract.ExtractSince(ctx, *b, since, b.BatchSize)
		if exErr != nil && !extractor.IsExtractionError(exErr) {
			return retry.Stop(exErr)
		}
		return exErr
	})
	if err != nil {
		// Extraction never happened cleanly; the cycle is a no-op and the
		// watermark is untouched, so the next tick retries the same window.
		return SyncResult{}, err
	}

	return o.process(ctx, b, since, events)
}

// IngestPushed runs the identical pipeline for events pushed by a branch
// agent over HTTP, skipping only the extraction step.
func (o *Orchestrator) IngestPushed(ctx context.Context, branchID string, events []reconcile.RawPunchEvent) (SyncResult, error) {
	lock := o.branchLock(branchID)
	if !lock.TryLock() {
		return SyncResult{}, apperror.ErrSyncInFlight
	}
	defer lock.Unlock()

	b, err := o.loadBranch(ctx, branchID)
	if err != nil {
		return SyncResult{}, err
	}

	cur, err := o.cursors.Get(ctx, branchID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("syncer: read cursor %s: %w", branchID, err)
	}
	since := cur.Watermark()

	// Pushed batches can replay history; the watermark cut keeps the
	// pipeline idempotent either way, this just avoids rework.
	fresh := events[:0:0]
	for _, e := range events {
		if e.Timestamp.After(since) {
			fresh = append(fresh, e)
		}
	}

	return o.process(ctx, b, since, fresh)
}

func (o *Orchestrator) process(ctx context.Context, b *branch.Branch, since time.Time, events []reconcile.RawPunchEvent) (SyncResult, error) {
	branchID := b.ID.String()
	result := SyncResult{BranchID: branchID, Extracted: len(events)}

	seq, err := o.cursors.NextBatchSeq(ctx, branchID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("syncer: allocate batch seq: %w", err)
	}
	result.BatchID = fmt.Sprintf("sync-%d-%s", seq, uuid.New().String()[:8])

	log := o.logger.With(
		zap.String("branch_id", branchID),
		zap.String("batch_id", result.BatchID),
	)

	if len(events) == 0 {
		log.Debug("no new events", zap.Time("since", since))
		result.NewWatermark = since
		return result, nil
	}

	loc, err := b.Location()
	if err != nil {
		return SyncResult{}, fmt.Errorf("syncer: branch %s timezone: %w", branchID, err)
	}
	rawPolicies, err := o.branches.FindPolicies(ctx, branchID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("syncer: load policies: %w", err)
	}
	policies, err := branch.PolicyMap(rawPolicies)
	if err != nil {
		return SyncResult{}, err
	}

	resolved, err := o.resolveIdentities(ctx, branchID, events)
	if err != nil {
		return SyncResult{}, err
	}

	out, err := o.engine.Reconcile(reconcile.Input{
		BranchID: branchID,
		Events:   resolved,
		Policies: policies,
		Location: loc,
		AsOf:     o.now(),
	})
	if err != nil {
		// Reconciliation failures are logic or configuration bugs. The
		// cycle halts with diagnostics instead of retrying in a loop.
		log.Error("reconciliation failed", zap.Error(err))
		return SyncResult{}, err
	}
	result.Unresolved = len(out.Unresolved)
	result.Attempted = len(out.Records)

	var ingest ledger.IngestResult
	err = retry.Do(ctx, o.policy, func(ctx context.Context) error {
		var inErr error
		ingest, inErr = o.sink.Ingest(ctx, branchID, result.BatchID, out.Records)
		return inErr
	})
	if err != nil {
		// Cancelled or persistently failing commit: whatever the sink
		// reported committed stays committed, but the watermark is not
		// advanced, so the next cycle re-extracts and re-reconciles. The
		// ledger upsert keeps that replay idempotent.
		return SyncResult{}, err
	}
	result.Committed = ingest.Committed
	result.Failed = ingest.Failed

	watermark, ok := commitWatermark(out, ingest)
	if ok && watermark.After(since) {
		if err := o.cursors.Advance(ctx, branchID, watermark, result.BatchID); err != nil {
			return SyncResult{}, fmt.Errorf("syncer: advance cursor: %w", err)
		}
		result.NewWatermark = watermark
	} else {
		result.NewWatermark = since
	}

	for _, u := range out.Unresolved {
		log.Warn("unresolved identity",
			zap.String("enroll_number", u.EnrollNumber),
			zap.Time("timestamp", u.Timestamp),
			zap.String("device_id", u.SourceDeviceID),
		)
	}
	log.Info("sync cycle complete",
		zap.Int("extracted", result.Extracted),
		zap.Int("committed", result.Committed),
		zap.Int("failed", result.Failed),
		zap.Int("unresolved", result.Unresolved),
		zap.Time("new_watermark", result.NewWatermark),
	)
	return result, nil
}

// Status reports the durably committed sync position for one branch.
func (o *Orchestrator) Status(ctx context.Context, branchID string) (Status, error) {
	if _, err := o.loadBranch(ctx, branchID); err != nil {
		return Status{}, err
	}
	cur, err := o.cursors.Get(ctx, branchID)
	if err != nil {
		return Status{}, fmt.Errorf("syncer: read cursor %s: %w", branchID, err)
	}
	st := Status{BranchID: branchID}
	if cur != nil {
		st.LastSyncTime = cur.LastSyncTime
		st.LastBatchID = cur.LastSyncBatchID
	}
	return st, nil
}

// SynthesizeAbsences writes absent records for every active roster member
// with no attendance row on the given branch-local day. Only closed days are
// eligible: marking someone absent while they can still punch in would be a
// lie the next sync cycle could not take back.
func (o *Orchestrator) SynthesizeAbsences(ctx context.Context, branchID string, date time.Time) (int, error) {
	lock := o.branchLock(branchID)
	if !lock.TryLock() {
		return 0, apperror.ErrSyncInFlight
	}
	defer lock.Unlock()

	b, err := o.loadBranch(ctx, branchID)
	if err != nil {
		return 0, err
	}
	loc, err := b.Location()
	if err != nil {
		return 0, fmt.Errorf("syncer: branch %s timezone: %w", branchID, err)
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	now := o.now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if !day.Before(today) {
		return 0, fmt.Errorf("syncer: day %s is not closed yet", day.Format("2006-01-02"))
	}

	members, err := o.directory.ActiveMembers(ctx, branchID)
	if err != nil {
		return 0, err
	}

	seq, err := o.cursors.NextBatchSeq(ctx, branchID)
	if err != nil {
		return 0, fmt.Errorf("syncer: allocate batch seq: %w", err)
	}
	batchID := fmt.Sprintf("absent-%d-%s", seq, uuid.New().String()[:8])

	records := make([]reconcile.Record, 0, len(members))
	for _, m := range members {
		classID := ""
		if m.ClassID != nil {
			classID = *m.ClassID
		}
		records = append(records, reconcile.AbsentRecord(
			m.UserID.String(), reconcile.UserType(m.UserType), branchID, classID, day,
		))
	}

	created, err := o.sink.MarkAbsentees(ctx, branchID, batchID, day, records)
	if err != nil {
		return created, err
	}
	o.logger.Info("absent records synthesized",
		zap.String("branch_id", branchID),
		zap.String("batch_id", batchID),
		zap.String("date", day.Format("2006-01-02")),
		zap.Int("roster", len(members)),
		zap.Int("created", created),
	)
	return created, nil
}

func (o *Orchestrator) resolveIdentities(ctx context.Context, branchID string, events []reconcile.RawPunchEvent) ([]reconcile.ResolvedPunch, error) {
	distinct := make([]string, 0, len(events))
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if _, ok := seen[e.EnrollNumber]; !ok {
			seen[e.EnrollNumber] = struct{}{}
			distinct = append(distinct, e.EnrollNumber)
		}
	}

	identities, err := o.directory.ResolveAll(ctx, branchID, distinct)
	if err != nil {
		return nil, fmt.Errorf("syncer: resolve identities: %w", err)
	}

	resolved := make([]reconcile.ResolvedPunch, 0, len(events))
	for _, e := range events {
		p := reconcile.ResolvedPunch{Event: e}
		if id, ok := identities[e.EnrollNumber]; ok {
			p.UserID = id.UserID
			p.UserType = id.UserType
			p.ClassID = id.ClassID
		}
		resolved = append(resolved, p)
	}
	return resolved, nil
}

// commitWatermark computes the highest timestamp the cursor may advance to:
// the newest event such that every event at or below it belongs to a
// committed record. Events of failed records and unresolved-identity events
// block advancement past themselves so the next cycle re-extracts them.
func commitWatermark(out reconcile.Output, ingest ledger.IngestResult) (time.Time, bool) {
	blocker := time.Time{}
	haveBlocker := false
	note := func(t time.Time) {
		if !haveBlocker || t.Before(blocker) {
			blocker = t
			haveBlocker = true
		}
	}

	for _, u := range out.Unresolved {
		note(u.Timestamp)
	}

	var committed []time.Time
	for i, rec := range out.Records {
		res := ingest.Results[i]
		if res.Committed {
			committed = append(committed, rec.PunchTimes...)
			continue
		}
		for _, t := range rec.PunchTimes {
			note(t)
		}
	}

	sort.Slice(committed, func(i, j int) bool { return committed[i].Before(committed[j]) })

	var watermark time.Time
	found := false
	for _, t := range committed {
		if haveBlocker && !t.Before(blocker) {
			break
		}
		watermark = t
		found = true
	}
	return watermark, found
}
