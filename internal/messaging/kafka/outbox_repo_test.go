package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestOutboxCreateJoinsCallerTransaction(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("evt-1", "req-1", "attendance_record", "agg-1",
			"attendance.recorded.v1", "attendance.recorded", []byte(`{}`), OutboxStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	assert.NoError(t, err)

	repo := NewOutboxRepository(db).WithTx(tx)
	err = repo.Create(context.Background(), OutboxEvent{
		ID:            "evt-1",
		RequestID:     "req-1",
		AggregateType: "attendance_record",
		AggregateID:   "agg-1",
		EventType:     "attendance.recorded.v1",
		Topic:         "attendance.recorded",
		Payload:       []byte(`{}`),
		Status:        OutboxStatusPending,
	})
	assert.NoError(t, err)
	assert.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxListPendingSkipsExhaustedRows(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "request_id", "aggregate_type", "aggregate_id",
		"event_type", "topic", "payload", "status", "retry_count", "coalesce",
	}).AddRow("evt-1", "", "attendance_record", "agg-1",
		"attendance.recorded.v1", "attendance.recorded", []byte(`{}`), OutboxStatusFailed, 3, now)

	mock.ExpectQuery("SELECT id::text").
		WithArgs(OutboxStatusPending, OutboxStatusFailed, maxPublishAttempts, 10).
		WillReturnRows(rows)

	events, err := NewOutboxRepository(db).ListPending(context.Background(), 10)
	assert.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, 3, events[0].RetryCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateOutboxEvent(t *testing.T) {
	valid := OutboxEvent{ID: "evt-1", Topic: "attendance.recorded", Payload: []byte(`{}`), Status: OutboxStatusPending}
	assert.NoError(t, ValidateOutboxEvent(valid))

	missingTopic := valid
	missingTopic.Topic = ""
	assert.Error(t, ValidateOutboxEvent(missingTopic))

	badStatus := valid
	badStatus.Status = "queued"
	assert.Error(t, ValidateOutboxEvent(badStatus))
}
