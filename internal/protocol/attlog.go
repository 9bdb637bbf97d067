package protocol

import (
	"encoding/binary"
	"time"
)

// attLogRecordSize is the fixed stride of one attendance log record in an
// ATTLOG_RRQ payload.
const attLogRecordSize = 40

// PunchRecord is one attendance log entry as stored on the terminal. The
// timestamp fields are device-local wall clock components; the owning branch's
// timezone is applied downstream.
type PunchRecord struct {
	EnrollNumber uint16
	VerifyMode   VerifyMode
	InOutMode    InOutMode
	Year         uint16
	Month        uint8
	Day          uint8
	Hour         uint8
	Minute       uint8
	Second       uint8
	WorkCode     uint8
	Raw          []byte
}

// Time assembles the record's clock components in the given location.
func (r PunchRecord) Time(loc *time.Location) time.Time {
	return time.Date(int(r.Year), time.Month(r.Month), int(r.Day),
		int(r.Hour), int(r.Minute), int(r.Second), 0, loc)
}

// DecodeAttendanceLog decodes an ATTLOG_RRQ payload as a flat sequence of
// fixed 40-byte records. A trailing partial record is silently dropped:
// terminals are known to truncate the last record of a buffer, and a short
// tail carries no recoverable data.
func DecodeAttendanceLog(data []byte) []PunchRecord {
	n := len(data) / attLogRecordSize
	records := make([]PunchRecord, 0, n)
	for i := 0; i < n; i++ {
		chunk := data[i*attLogRecordSize : (i+1)*attLogRecordSize]
		raw := make([]byte, attLogRecordSize)
		copy(raw, chunk)
		records = append(records, PunchRecord{
			EnrollNumber: binary.LittleEndian.Uint16(chunk[0:2]),
			VerifyMode:   VerifyMode(chunk[2]),
			InOutMode:    InOutMode(chunk[3]),
			Year:         binary.LittleEndian.Uint16(chunk[4:6]),
			Month:        chunk[6],
			Day:          chunk[7],
			Hour:         chunk[8],
			Minute:       chunk[9],
			Second:       chunk[10],
			WorkCode:     chunk[11],
			Raw:          raw,
		})
	}
	return records
}

// EncodeAttendanceLog builds an ATTLOG_RRQ payload from records. Only used by
// tests and the fake terminal, never by the production path, but it lives here
// so the layout has exactly one owner.
func EncodeAttendanceLog(records []PunchRecord) []byte {
	buf := make([]byte, len(records)*attLogRecordSize)
	for i, r := range records {
		chunk := buf[i*attLogRecordSize : (i+1)*attLogRecordSize]
		binary.LittleEndian.PutUint16(chunk[0:2], r.EnrollNumber)
		chunk[2] = byte(r.VerifyMode)
		chunk[3] = byte(r.InOutMode)
		binary.LittleEndian.PutUint16(chunk[4:6], r.Year)
		chunk[6] = r.Month
		chunk[7] = r.Day
		chunk[8] = r.Hour
		chunk[9] = r.Minute
		chunk[10] = r.Second
		chunk[11] = r.WorkCode
	}
	return buf
}
