package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"callpanel/internal/lease"
	"callpanel/internal/store"
	"callpanel/internal/testsupport"
	"callpanel/internal/workflow"
)

const stamp = "2026-03-02T09:00:00.000000000Z"

func newMockEngine(t *testing.T) (*workflow.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	st, err := store.New(db, "sqlite")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	engine, err := workflow.NewEngine(st, lease.NewManager(lease.DefaultTTL, lease.WithClock(testsupport.NewClock().Now)))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine, mock
}

func expectSweep(mock sqlmock.Sqlmock) {
	mock.ExpectExec("UPDATE filters SET status").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE records SET status").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM leases WHERE expires_at").WillReturnResult(sqlmock.NewResult(0, 0))
}

func draftRecordRows() *sqlmock.Rows {
	return sqlmock.NewRows(strings.Split("id, agent, agent_group, visibility, status, current_filter, next_due_at, cancel_reason, cancelled_by, cancelled_at, finalized_at, created_at, updated_at", ", ")).
		AddRow(int64(7), "ana", "north", "group", "draft", 1, nil, nil, nil, nil, nil, stamp, stamp)
}

func freshFilterRows() *sqlmock.Rows {
	rows := sqlmock.NewRows(strings.Split("record_id, filter_n, status, performed_by_id, performed_by_name, started_at, finished_at, next_due_at, cancel_reason", ", "))
	for n := 1; n <= 3; n++ {
		rows.AddRow(int64(7), n, "not_started", nil, nil, nil, nil, nil, nil)
	}
	return rows
}

func TestStartRollsBackWhenFilterUpdateFails(t *testing.T) {
	engine, mock := newMockEngine(t)

	mock.ExpectBegin()
	expectSweep(mock)
	mock.ExpectQuery("SELECT id, agent").WillReturnRows(draftRecordRows())
	mock.ExpectQuery("SELECT record_id, filter_n").WillReturnRows(freshFilterRows())
	mock.ExpectExec("INSERT INTO leases").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE records SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE filters SET status").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err := engine.Start(context.Background(), 7, 1, alice)
	wfErr := expectError(t, err, workflow.KindInternal, workflow.CodeInternal)
	if strings.Contains(wfErr.Message, "disk") {
		t.Fatalf("internal message must not carry storage text: %q", wfErr.Message)
	}
	if !strings.Contains(wfErr.Error(), "disk I/O error") {
		t.Fatalf("underlying error should be kept for logging: %v", wfErr)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStartRollsBackWhenLeaseIsTaken(t *testing.T) {
	engine, mock := newMockEngine(t)

	mock.ExpectBegin()
	expectSweep(mock)
	mock.ExpectQuery("SELECT id, agent").WillReturnRows(draftRecordRows())
	mock.ExpectQuery("SELECT record_id, filter_n").WillReturnRows(freshFilterRows())
	mock.ExpectExec("INSERT INTO leases").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT record_id, kind").WillReturnRows(
		sqlmock.NewRows([]string{"record_id", "kind", "filter_n", "owner_id", "owner_name", "acquired_at", "expires_at"}).
			AddRow(int64(7), "filter", 1, "agent-b", "Bob", stamp, "2026-03-02T09:01:00.000000000Z"))
	mock.ExpectRollback()

	_, err := engine.Start(context.Background(), 7, 1, alice)
	wfErr := expectError(t, err, workflow.KindConflict, workflow.CodeLocked)
	if wfErr.Holder == nil || wfErr.Holder.Owner.ID != "agent-b" {
		t.Fatalf("holder = %#v", wfErr.Holder)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCancelRollsBackWhenLeaseReleaseFails(t *testing.T) {
	engine, mock := newMockEngine(t)

	mock.ExpectBegin()
	expectSweep(mock)
	mock.ExpectQuery("SELECT id, agent").WillReturnRows(draftRecordRows())
	mock.ExpectQuery("SELECT record_id, filter_n").WillReturnRows(freshFilterRows())
	mock.ExpectExec("UPDATE records SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM leases WHERE record_id").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := engine.Cancel(context.Background(), 7, alice, "client unreachable")
	expectError(t, err, workflow.KindInternal, workflow.CodeInternal)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
