package extractor

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"go-attendsync/internal/branch"
	"go-attendsync/internal/protocol"
	"go-attendsync/internal/reconcile"
)

type fakeVendorRepo struct {
	rows []VendorRow
	err  error

	gotSince time.Time
	gotLimit int
}

func (f *fakeVendorRepo) FindSince(ctx context.Context, since time.Time, limit int) ([]VendorRow, error) {
	f.gotSince = since
	f.gotLimit = limit
	return f.rows, f.err
}

func testBranch() branch.Branch {
	return branch.Branch{
		ID:         uuid.New(),
		Name:       "North Campus",
		Timezone:   "Asia/Jakarta",
		DeviceHost: "10.0.0.9",
		DevicePort: 4370,
	}
}

func TestSQLExtractorNormalizesRows(t *testing.T) {
	ssn := "ADM-2041"
	repo := &fakeVendorRepo{rows: []VendorRow{
		{UserID: 3, EnrollNumber: "101", AdmissionNumber: &ssn,
			CheckTime:  time.Date(2026, 8, 28, 8, 2, 11, 0, time.UTC),
			CheckType:  "I",
			VerifyCode: 1,
			SensorID:   "1"},
		{UserID: 4, EnrollNumber: "",
			CheckTime:  time.Date(2026, 8, 28, 9, 15, 0, 0, time.UTC),
			CheckType:  "x",
			VerifyCode: 9,
			SensorID:   "1"},
	}}

	e := NewSQLExtractor(func(b branch.Branch) (VendorLogRepository, error) { return repo, nil }, zap.NewNop())
	b := testBranch()
	since := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)

	events, err := e.ExtractSince(context.Background(), b, since, 500)
	assert.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, since, repo.gotSince)
	assert.Equal(t, 500, repo.gotLimit)

	first := events[0]
	assert.Equal(t, "101", first.EnrollNumber)
	assert.Equal(t, reconcile.DirectionIn, first.Direction)
	assert.Equal(t, "FINGERPRINT", first.VerifyMode)
	// Vendor wall-clock is reinterpreted in the branch timezone.
	assert.Equal(t, "2026-08-28T08:02:11+07:00", first.Timestamp.Format(time.RFC3339))

	second := events[1]
	// Missing user row still flows, keyed by the vendor's internal id.
	assert.Equal(t, "4", second.EnrollNumber)
	assert.Equal(t, reconcile.DirectionUnknown, second.Direction)
	assert.Equal(t, "OTHER", second.VerifyMode)
}

func TestSQLExtractorZeroRowsIsSuccess(t *testing.T) {
	e := NewSQLExtractor(func(b branch.Branch) (VendorLogRepository, error) {
		return &fakeVendorRepo{}, nil
	}, zap.NewNop())

	events, err := e.ExtractSince(context.Background(), testBranch(), time.Now(), 100)
	assert.NoError(t, err)
	assert.Empty(t, events)
}

func TestSQLExtractorWrapsQueryFailure(t *testing.T) {
	e := NewSQLExtractor(func(b branch.Branch) (VendorLogRepository, error) {
		return &fakeVendorRepo{err: errors.New("connection refused")}, nil
	}, zap.NewNop())

	_, err := e.ExtractSince(context.Background(), testBranch(), time.Now(), 100)
	assert.True(t, IsExtractionError(err))
}

func TestSQLExtractorRejectsBadTimezone(t *testing.T) {
	e := NewSQLExtractor(func(b branch.Branch) (VendorLogRepository, error) {
		return &fakeVendorRepo{}, nil
	}, zap.NewNop())

	b := testBranch()
	b.Timezone = "Mars/Olympus"
	_, err := e.ExtractSince(context.Background(), b, time.Now(), 100)
	assert.Error(t, err)
	assert.False(t, IsExtractionError(err), "config bugs are not retryable extraction failures")
}

// pipeDialer hands out a pre-wired client conn for the device path.
type pipeDialer struct {
	conn net.Conn
}

func (d *pipeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.conn, nil
}

func runFakeTerminal(conn net.Conn, logPayload []byte) {
	go func() {
		buf := make([]byte, 64*1024)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			frame, err := protocol.DecodeResponse(buf[:n])
			if err != nil {
				return
			}
			var reply []byte
			switch frame.Command {
			case protocol.CmdAttLogRead:
				reply = protocol.EncodeCommand(protocol.AckData, 1, frame.ReplyID, logPayload)
			default:
				reply = protocol.EncodeCommand(protocol.AckOK, 1, frame.ReplyID, nil)
			}
			if _, err := conn.Write(reply); err != nil {
				return
			}
			if frame.Command == protocol.CmdExit {
				_ = conn.Close()
				return
			}
		}
	}()
}

func TestDeviceExtractorAppliesWatermarkCut(t *testing.T) {
	payload := protocol.EncodeAttendanceLog([]protocol.PunchRecord{
		{EnrollNumber: 7, Year: 2026, Month: 8, Day: 27, Hour: 9, Minute: 0},
		{EnrollNumber: 7, Year: 2026, Month: 8, Day: 28, Hour: 8, Minute: 30},
		{EnrollNumber: 9, Year: 2026, Month: 8, Day: 28, Hour: 8, Minute: 45, InOutMode: protocol.InOutCheckOut},
	})

	client, server := net.Pipe()
	runFakeTerminal(server, payload)

	e := NewDeviceExtractor(&pipeDialer{conn: client}, time.Second, zap.NewNop())
	b := testBranch()

	loc, _ := time.LoadLocation("Asia/Jakarta")
	since := time.Date(2026, 8, 27, 23, 59, 59, 0, loc)

	events, err := e.ExtractSince(context.Background(), b, since, 0)
	assert.NoError(t, err)
	assert.Len(t, events, 2, "the day-27 record sits at or below the watermark")
	assert.Equal(t, "7", events[0].EnrollNumber)
	assert.Equal(t, "9", events[1].EnrollNumber)
	assert.Equal(t, reconcile.DirectionOut, events[1].Direction)
	assert.True(t, events[0].Timestamp.Before(events[1].Timestamp))
}

type failingDialer struct {
	err error
}

func (d *failingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return nil, d.err
}

func TestDeviceExtractorClassifiesRetryability(t *testing.T) {
	// An unreachable terminal is a transient transport condition.
	e := NewDeviceExtractor(&failingDialer{err: syscall.ECONNREFUSED}, time.Second, zap.NewNop())
	_, err := e.ExtractSince(context.Background(), testBranch(), time.Time{}, 0)
	assert.True(t, IsExtractionError(err), "transport failures must be retryable")

	// A terminal that rejects the handshake keeps rejecting it; retrying
	// repeats the same exchange.
	client, server := net.Pipe()
	go func() {
		buf := make([]byte, 1024)
		n, _ := server.Read(buf)
		frame, _ := protocol.DecodeResponse(buf[:n])
		_, _ = server.Write(protocol.EncodeCommand(protocol.AckError, 0, frame.ReplyID, nil))
	}()

	e = NewDeviceExtractor(&pipeDialer{conn: client}, time.Second, zap.NewNop())
	_, err = e.ExtractSince(context.Background(), testBranch(), time.Time{}, 0)
	assert.Error(t, err)
	assert.False(t, IsExtractionError(err), "protocol rejections must not be retried")
}

func TestDeviceExtractorLimitKeepsOldestWhenLogOutOfOrder(t *testing.T) {
	// A clock set-back or log wrap can leave the terminal's buffer out of
	// chronological order. With limit=1 the extractor must surface the 09:00
	// punch even though 17:00 comes first in the dump; keeping the newer one
	// would advance the watermark past the older one and lose it for good.
	payload := protocol.EncodeAttendanceLog([]protocol.PunchRecord{
		{EnrollNumber: 7, Year: 2026, Month: 8, Day: 28, Hour: 17, Minute: 0, InOutMode: protocol.InOutCheckOut},
		{EnrollNumber: 7, Year: 2026, Month: 8, Day: 28, Hour: 9, Minute: 0},
	})

	client, server := net.Pipe()
	runFakeTerminal(server, payload)

	e := NewDeviceExtractor(&pipeDialer{conn: client}, time.Second, zap.NewNop())
	b := testBranch()

	loc, _ := time.LoadLocation("Asia/Jakarta")
	since := time.Date(2026, 8, 27, 0, 0, 0, 0, loc)

	events, err := e.ExtractSince(context.Background(), b, since, 1)
	assert.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, 9, events[0].Timestamp.Hour())
	assert.Equal(t, reconcile.DirectionIn, events[0].Direction)
}
