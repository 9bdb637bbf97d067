package extractor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go-attendsync/internal/branch"
	"go-attendsync/internal/device"
	"go-attendsync/internal/protocol"
	"go-attendsync/internal/reconcile"

	"go.uber.org/zap"
)

// ExtractionError marks a retryable upstream failure (vendor DB unreachable,
// terminal offline). The orchestrator retries the cycle and leaves the
// watermark untouched.
type ExtractionError struct {
	BranchID string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract branch %s: %v", e.BranchID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func IsExtractionError(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}

//go:generate mockgen -source=extractor.go -destination=mock/extractor_mock.go -package=mock
type Extractor interface {
	// ExtractSince returns events strictly newer than since for one branch,
	// ascending by timestamp. A zero-row result is success, not an error.
	// It does not paginate; limit caps the window and backpressure belongs
	// to the orchestrator.
	ExtractSince(ctx context.Context, b branch.Branch, since time.Time, limit int) ([]reconcile.RawPunchEvent, error)
}

// SQLExtractor tails the vendor database the terminal vendor's software
// populates. One vendor repository per branch, provided by the wiring layer
// so connections can be pooled per DSN.
type SQLExtractor struct {
	repoFor func(b branch.Branch) (VendorLogRepository, error)
	logger  *zap.Logger
}

func NewSQLExtractor(repoFor func(b branch.Branch) (VendorLogRepository, error), logger *zap.Logger) *SQLExtractor {
	if logger == nil {
		logger = zap.L()
	}
	return &SQLExtractor{repoFor: repoFor, logger: logger.Named("extractor.sql")}
}

func (e *SQLExtractor) ExtractSince(ctx context.Context, b branch.Branch, since time.Time, limit int) ([]reconcile.RawPunchEvent, error) {
	loc, err := b.Location()
	if err != nil {
		return nil, fmt.Errorf("extractor: branch %s timezone: %w", b.ID, err)
	}

	repo, err := e.repoFor(b)
	if err != nil {
		return nil, &ExtractionError{BranchID: b.ID.String(), Err: err}
	}

	rows, err := repo.FindSince(ctx, since, limit)
	if err != nil {
		return nil, &ExtractionError{BranchID: b.ID.String(), Err: err}
	}

	events := make([]reconcile.RawPunchEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, normalizeRow(b, row, loc))
	}
	sortAscending(events)

	e.logger.Debug("vendor rows extracted",
		zap.String("branch_id", b.ID.String()),
		zap.Time("since", since),
		zap.Int("rows", len(events)),
	)
	return events, nil
}

// normalizeRow maps a vendor row to the canonical event shape. Vendor
// DATETIME columns carry naive wall-clock values; the scan's zone is
// discarded and the components are rebuilt in the branch timezone.
func normalizeRow(b branch.Branch, row VendorRow, loc *time.Location) reconcile.RawPunchEvent {
	t := row.CheckTime
	ts := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)

	enroll := row.EnrollNumber
	if enroll == "" {
		// User row missing from the vendor side: keep the punch, keyed by
		// the vendor's internal id, and let identity resolution flag it.
		enroll = strconv.Itoa(row.UserID)
	}

	return reconcile.RawPunchEvent{
		EnrollNumber:   enroll,
		BranchID:       b.ID.String(),
		Timestamp:      ts,
		Direction:      mapCheckType(row.CheckType),
		VerifyMode:     mapVerifyCode(row.VerifyCode),
		SourceDeviceID: row.SensorID,
	}
}

func mapCheckType(s string) reconcile.Direction {
	switch s {
	case "I", "i", "0":
		return reconcile.DirectionIn
	case "O", "o", "1":
		return reconcile.DirectionOut
	default:
		return reconcile.DirectionUnknown
	}
}

func mapVerifyCode(code int) string {
	switch code {
	case 0:
		return protocol.VerifyPassword.String()
	case 1:
		return protocol.VerifyFingerprint.String()
	case 2:
		return protocol.VerifyCard.String()
	default:
		return "OTHER"
	}
}

// DeviceExtractor pulls the attendance log straight off the terminal over
// the binary protocol when a branch has no vendor database.
type DeviceExtractor struct {
	dialer  device.Dialer
	timeout time.Duration
	logger  *zap.Logger
}

func NewDeviceExtractor(dialer device.Dialer, timeout time.Duration, logger *zap.Logger) *DeviceExtractor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.L()
	}
	return &DeviceExtractor{dialer: dialer, timeout: timeout, logger: logger.Named("extractor.device")}
}

func (e *DeviceExtractor) ExtractSince(ctx context.Context, b branch.Branch, since time.Time, limit int) ([]reconcile.RawPunchEvent, error) {
	loc, err := b.Location()
	if err != nil {
		return nil, fmt.Errorf("extractor: branch %s timezone: %w", b.ID, err)
	}
	addr := b.DeviceAddr()
	if addr == "" {
		return nil, fmt.Errorf("extractor: branch %s has no device endpoint", b.ID)
	}

	session := device.NewSession(e.dialer, e.logger)
	if err := session.Connect(ctx, addr, e.timeout); err != nil {
		return nil, wrapDeviceErr(b.ID.String(), err)
	}
	defer session.Disconnect()

	// Punch capture is paused while the log is read so the dump is stable;
	// re-enable is best-effort, the terminal also re-enables on EXIT.
	if _, err := session.SendCommand(ctx, protocol.CmdDisableDevice, nil, e.timeout); err != nil {
		return nil, wrapDeviceErr(b.ID.String(), err)
	}
	records, err := session.ReadAttendanceLogs(ctx, e.timeout)
	if err != nil {
		return nil, wrapDeviceErr(b.ID.String(), err)
	}
	_, _ = session.SendCommand(ctx, protocol.CmdEnableDevice, nil, e.timeout)

	events := make([]reconcile.RawPunchEvent, 0, len(records))
	for _, rec := range records {
		ts := rec.Time(loc)
		// The terminal dumps its whole log; the watermark cut is applied
		// here with the same strict > the SQL path uses.
		if !ts.After(since) {
			continue
		}
		events = append(events, reconcile.RawPunchEvent{
			EnrollNumber:   strconv.Itoa(int(rec.EnrollNumber)),
			BranchID:       b.ID.String(),
			Timestamp:      ts,
			Direction:      mapInOutMode(rec.InOutMode),
			VerifyMode:     rec.VerifyMode.String(),
			SourceDeviceID: addr,
			RawPayload:     rec.Raw,
		})
	}
	// The terminal's buffer order is not chronological after a clock set-back
	// or a log wrap. Sort before applying limit so a capped window keeps the
	// oldest unseen punches; truncating in buffer order could drop an old
	// punch while committing a newer one, and the advanced watermark would
	// then hide the dropped punch forever.
	sortAscending(events)
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	e.logger.Debug("device log extracted",
		zap.String("branch_id", b.ID.String()),
		zap.String("addr", addr),
		zap.Int("total_records", len(records)),
		zap.Int("new_events", len(events)),
	)
	return events, nil
}

// wrapDeviceErr marks transport failures retryable. Protocol violations pass
// through unwrapped; retrying a terminal that rejects the handshake or sends
// malformed frames just repeats the same exchange.
func wrapDeviceErr(branchID string, err error) error {
	if device.IsConnectionError(err) {
		return &ExtractionError{BranchID: branchID, Err: err}
	}
	return err
}

func mapInOutMode(m protocol.InOutMode) reconcile.Direction {
	switch m {
	case protocol.InOutCheckIn:
		return reconcile.DirectionIn
	case protocol.InOutCheckOut:
		return reconcile.DirectionOut
	default:
		return reconcile.DirectionUnknown
	}
}

func sortAscending(events []reconcile.RawPunchEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}
