package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"spectroctl"
)

type StateSQLite struct {
	db *sql.DB
}

func NewStateSQLite(db *sql.DB) *StateSQLite {
	return &StateSQLite{db: db}
}

var _ StateRepo = (*StateSQLite)(nil)

const (
	upsertStateSQL = `
		INSERT INTO pc_state (device, pc, meas_a, ref_final_a, ref_duration_s, func_type, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device) DO UPDATE SET
			pc=excluded.pc,
			meas_a=excluded.meas_a,
			ref_final_a=excluded.ref_final_a,
			ref_duration_s=excluded.ref_duration_s,
			func_type=excluded.func_type,
			updated_at=excluded.updated_at
	`

	selectStateSQL = `
		SELECT device, pc, meas_a, ref_final_a, ref_duration_s, func_type, updated_at
		FROM pc_state WHERE device=?
	`

	selectAllStatesSQL = `
		SELECT device, pc, meas_a, ref_final_a, ref_duration_s, func_type, updated_at
		FROM pc_state ORDER BY device ASC
	`
)

// Save upserts the converter row. UpdatedAt is persisted as UTC, defaulting
// to now when zero.
func (r *StateSQLite) Save(ctx context.Context, s spectroctl.PCState) error {
	ts := s.UpdatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	} else {
		ts = ts.UTC()
	}

	_, err := r.db.ExecContext(ctx, upsertStateSQL,
		s.Device,
		s.PC,
		s.MeasuredA,
		s.RefFinalA,
		s.RefDurationS,
		s.FuncType,
		ts,
	)
	return err
}

// Load fetches one converter row. An unknown device returns a zero state
// with no error; callers treat an empty Device field as "no state yet".
func (r *StateSQLite) Load(ctx context.Context, device string) (spectroctl.PCState, error) {
	row := r.db.QueryRowContext(ctx, selectStateSQL, device)
	s, err := scanState(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return spectroctl.PCState{}, nil
		}
		return spectroctl.PCState{}, err
	}
	return s, nil
}

// List returns every known converter row.
func (r *StateSQLite) List(ctx context.Context) ([]spectroctl.PCState, error) {
	rows, err := r.db.QueryContext(ctx, selectAllStatesSQL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]spectroctl.PCState, 0, 4)
	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (spectroctl.PCState, error) {
	var s spectroctl.PCState
	if err := row.Scan(
		&s.Device,
		&s.PC,
		&s.MeasuredA,
		&s.RefFinalA,
		&s.RefDurationS,
		&s.FuncType,
		&s.UpdatedAt,
	); err != nil {
		return spectroctl.PCState{}, err
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}
