package repository_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"spectroctl"
	"spectroctl/internal/repository"
)

// sqlmockArgumentFunc adapts a predicate into a sqlmock.Argument matcher.
type sqlmockArgumentFunc func(driver.Value) bool

func (f sqlmockArgumentFunc) Match(v driver.Value) bool { return f(v) }

// isRecentUTC matches a time.Time in UTC within a few seconds of now.
var isRecentUTC = sqlmockArgumentFunc(func(v driver.Value) bool {
	tm, ok := v.(time.Time)
	if !ok {
		return false
	}
	if tm.Location() != time.UTC {
		return false
	}
	now := time.Now().UTC()
	return !tm.Before(now.Add(-5*time.Second)) && !tm.After(now.Add(5*time.Second))
})

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestStateSQLite_Save_DefaultsZeroTimeToUTCNow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewStateSQLite(db)

	state := spectroctl.PCState{
		Device:       "RPPEF.BB4.RBIH.412435",
		PC:           spectroctl.StateArmed,
		MeasuredA:    0.02,
		RefFinalA:    340,
		RefDurationS: 15,
		FuncType:     spectroctl.FuncCTRIM,
		// UpdatedAt left zero
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pc_state")).
		WithArgs(
			state.Device,
			state.PC,
			state.MeasuredA,
			state.RefFinalA,
			state.RefDurationS,
			state.FuncType,
			isRecentUTC,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Save(context.Background(), state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStateSQLite_Load_UnknownDeviceYieldsZeroState(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewStateSQLite(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM pc_state WHERE device=?")).
		WithArgs("RPADA.BB4.RQNI.412432").
		WillReturnError(sql.ErrNoRows)

	got, err := repo.Load(context.Background(), "RPADA.BB4.RQNI.412432")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Device != "" {
		t.Fatalf("expected zero state for unknown device, got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStateSQLite_Load_NormalizesToUTC(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewStateSQLite(db)

	loc := time.FixedZone("CET", 3600)
	updated := time.Date(2026, 8, 29, 10, 30, 0, 0, loc)

	rows := sqlmock.NewRows([]string{
		"device", "pc", "meas_a", "ref_final_a", "ref_duration_s", "func_type", "updated_at",
	}).AddRow("RPPEF.BB4.RBIH.412435", spectroctl.StateRunning, 339.7, 340.0, 15.0, spectroctl.FuncCTRIM, updated)

	mock.ExpectQuery(regexp.QuoteMeta("FROM pc_state WHERE device=?")).
		WithArgs("RPPEF.BB4.RBIH.412435").
		WillReturnRows(rows)

	got, err := repo.Load(context.Background(), "RPPEF.BB4.RBIH.412435")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.UpdatedAt.Location() != time.UTC {
		t.Fatalf("UpdatedAt location = %v, want UTC", got.UpdatedAt.Location())
	}
	if got.PC != spectroctl.StateRunning || got.MeasuredA != 339.7 {
		t.Fatalf("unexpected state: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStateSQLite_List_ReturnsEveryDevice(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewStateSQLite(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"device", "pc", "meas_a", "ref_final_a", "ref_duration_s", "func_type", "updated_at",
	}).
		AddRow("RPADA.BB4.RQNI.412432", spectroctl.StateIdle, 0.0, 0.0, 0.0, "", now).
		AddRow("RPPEF.BB4.RBIH.412435", spectroctl.StateOff, 0.0, 0.0, 0.0, "", now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM pc_state ORDER BY device ASC")).
		WillReturnRows(rows)

	got, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List() returned %d rows, want 2", len(got))
	}
	if got[0].Device != "RPADA.BB4.RQNI.412432" || got[1].Device != "RPPEF.BB4.RBIH.412435" {
		t.Fatalf("unexpected devices: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
