package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go-attendsync/internal/events"
	"go-attendsync/internal/messaging/kafka"
	"go-attendsync/internal/reconcile"
	"go-attendsync/internal/shared/contextutil"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// CommitError is the failure of one record's transaction within a batch. The
// batch itself keeps going; the orchestrator holds the watermark behind the
// failed record's punches.
type CommitError struct {
	UserID string
	Date   time.Time
	Err    error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("ledger: commit %s on %s: %v", e.UserID, e.Date.Format("2006-01-02"), e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// RecordResult is the per-record outcome of one ingest batch.
type RecordResult struct {
	Index     int
	RecordID  string
	Committed bool
	// Skipped marks a record left untouched because a manual or API entry
	// already owns the (user, date) slot. Counted as committed for watermark
	// purposes: re-syncing the same punches will never change the outcome.
	Skipped bool
	Err     string
}

// IngestResult reports a batch with partial-failure semantics: some records
// may commit while others fail, and the caller advances the watermark only
// past the committed ones.
type IngestResult struct {
	Attempted int
	Committed int
	Failed    int
	Results   []RecordResult
}

//go:generate mockgen -source=ledger_service.go -destination=mock/ledger_service_mock.go -package=mock
type Sink interface {
	Ingest(ctx context.Context, branchID, batchID string, records []reconcile.Record) (IngestResult, error)
	MarkAbsentees(ctx context.Context, branchID, batchID string, date time.Time, records []reconcile.Record) (int, error)
}

type sink struct {
	db     *sql.DB
	repo   Repository
	outbox kafka.OutboxRepository
	logger *zap.Logger
}

func NewSink(db *sql.DB, repo Repository, outbox kafka.OutboxRepository, logger ...*zap.Logger) Sink {
	l := zap.L().Named("ledger.sink")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("ledger.sink")
	}
	return &sink{db: db, repo: repo, outbox: outbox, logger: l}
}

// Ingest commits reconciled records one transaction per record, so a single
// bad row cannot poison the batch. Within each transaction the ledger row and
// its outbox event commit or roll back together.
func (s *sink) Ingest(ctx context.Context, branchID, batchID string, records []reconcile.Record) (IngestResult, error) {
	result := IngestResult{Attempted: len(records)}

	for i, rec := range records {
		rr := RecordResult{Index: i}
		if err := s.ingestOne(ctx, branchID, batchID, rec, &rr); err != nil {
			cerr := &CommitError{UserID: rec.UserID, Date: rec.Date, Err: err}
			rr.Err = cerr.Error()
			result.Failed++
			s.logger.Warn("record commit failed",
				zap.String("branch_id", branchID),
				zap.String("batch_id", batchID),
				zap.String("user_id", rec.UserID),
				zap.String("date", rec.Date.Format("2006-01-02")),
				zap.Error(err),
			)
		} else {
			result.Committed++
		}
		result.Results = append(result.Results, rr)

		if err := ctx.Err(); err != nil {
			// Remaining records stay unattempted; the caller must not
			// advance the watermark past them.
			for j := i + 1; j < len(records); j++ {
				result.Failed++
				result.Results = append(result.Results, RecordResult{Index: j, Err: err.Error()})
			}
			return result, err
		}
	}
	return result, nil
}

func (s *sink) ingestOne(ctx context.Context, branchID, batchID string, rec reconcile.Record, rr *RecordResult) error {
	userID, err := uuid.Parse(rec.UserID)
	if err != nil {
		return fmt.Errorf("ledger: bad user id %q: %w", rec.UserID, err)
	}
	branchUUID, err := uuid.Parse(branchID)
	if err != nil {
		return fmt.Errorf("ledger: bad branch id %q: %w", branchID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)
	obx := s.outbox.WithTx(tx)

	existing, err := qtx.FindByUserAndDate(ctx, branchID, rec.UserID, rec.Date)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	var row *AttendanceRecord
	switch {
	case existing != nil && existing.AttendanceType != string(reconcile.AttendanceBiometric):
		// A manual or API entry owns this slot; biometric re-sync never
		// overwrites operator intent.
		rr.RecordID = existing.ID.String()
		rr.Committed = true
		rr.Skipped = true
		return tx.Commit()

	case existing != nil:
		row = existing
		applyRecord(row, rec, batchID)
		if err := qtx.Update(ctx, row); err != nil {
			return err
		}

	default:
		row = &AttendanceRecord{
			ID:       uuid.New(),
			UserID:   userID,
			BranchID: branchUUID,
		}
		applyRecord(row, rec, batchID)
		if err := qtx.Create(ctx, row); err != nil {
			if isUniqueViolation(err) {
				// A concurrent push created the row between the read and
				// the insert. The punches are the same; treat as committed.
				rr.Committed = true
				rr.Skipped = true
				return tx.Commit()
			}
			return err
		}
	}

	if err := s.appendEvent(ctx, obx, row, batchID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	rr.RecordID = row.ID.String()
	rr.Committed = true
	return nil
}

// MarkAbsentees writes synthesized absent records for a closed day. Anyone
// with any existing row for the date is excluded first, so an absent row can
// never replace a real punch, a manual entry, or an earlier absence. Returns
// how many absent rows were created.
func (s *sink) MarkAbsentees(ctx context.Context, branchID, batchID string, date time.Time, records []reconcile.Record) (int, error) {
	existing, err := s.repo.FindAllByBranchAndDate(ctx, branchID, date)
	if err != nil {
		return 0, fmt.Errorf("ledger: list records for %s: %w", date.Format("2006-01-02"), err)
	}
	present := make(map[string]struct{}, len(existing))
	for _, row := range existing {
		present[row.UserID.String()] = struct{}{}
	}

	created := 0
	for _, rec := range records {
		if _, ok := present[rec.UserID]; ok {
			continue
		}
		rr := RecordResult{}
		if err := s.ingestOne(ctx, branchID, batchID, rec, &rr); err != nil {
			s.logger.Warn("absent record commit failed",
				zap.String("branch_id", branchID),
				zap.String("user_id", rec.UserID),
				zap.String("date", date.Format("2006-01-02")),
				zap.Error(err),
			)
			continue
		}
		if rr.Committed && !rr.Skipped {
			created++
		}
		if err := ctx.Err(); err != nil {
			return created, err
		}
	}
	return created, nil
}

func applyRecord(row *AttendanceRecord, rec reconcile.Record, batchID string) {
	row.UserType = string(rec.UserType)
	if rec.ClassID != "" {
		classID := rec.ClassID
		row.ClassID = &classID
	}
	row.Date = rec.Date
	row.ClockInTime = rec.ClockIn
	row.ClockOutTime = rec.ClockOut
	row.Status = string(rec.Status)
	row.IsLate = rec.IsLate
	row.LateMinutes = rec.LateMinutes
	row.IsEarlyDeparture = rec.IsEarlyDeparture
	row.EarlyDepartureMinutes = rec.EarlyDepartureMinutes
	row.TotalHours = rec.TotalHours
	row.AttendanceType = string(rec.AttendanceType)
	row.DeviceID = rec.SourceDeviceID
	row.SyncBatchID = batchID
}

func (s *sink) appendEvent(ctx context.Context, obx kafka.OutboxRepository, row *AttendanceRecord, batchID string) error {
	payload, err := json.Marshal(events.AttendanceRecordedEvent{
		RecordID:       row.ID.String(),
		UserID:         row.UserID.String(),
		UserType:       row.UserType,
		BranchID:       row.BranchID.String(),
		Date:           row.Date.Format("2006-01-02"),
		ClockInTime:    row.ClockInTime,
		ClockOutTime:   row.ClockOutTime,
		Status:         row.Status,
		AttendanceType: row.AttendanceType,
		DeviceID:       row.DeviceID,
		SyncBatchID:    batchID,
		RecordedAt:     time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	event := kafka.OutboxEvent{
		ID:            uuid.New().String(),
		RequestID:     contextutil.GetRequestID(ctx),
		AggregateType: "attendance_record",
		AggregateID:   row.ID.String(),
		EventType:     events.AttendanceRecordedType,
		Topic:         events.AttendanceRecordedTopic,
		Payload:       payload,
		Status:        kafka.OutboxStatusPending,
	}
	if err := kafka.ValidateOutboxEvent(event); err != nil {
		return err
	}
	return obx.Create(ctx, event)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
