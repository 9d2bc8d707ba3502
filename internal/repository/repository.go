package repository

import (
	"context"
	"database/sql"
	"time"

	"spectroctl"
	"spectroctl/internal/repository/db"
)

// InitDB opens the backing SQLite file and bootstraps the schema.
func InitDB(path string) (*sql.DB, error) {
	return db.InitDB(path)
}

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*spectroctl.Operator, error)
}

// StateRepo persists one row per power converter, keyed by device name.
type StateRepo interface {
	Save(ctx context.Context, s spectroctl.PCState) error
	Load(ctx context.Context, device string) (spectroctl.PCState, error)
	List(ctx context.Context) ([]spectroctl.PCState, error)
}

// EventRepo is the append-only logbook.
type EventRepo interface {
	Append(ctx context.Context, e spectroctl.LogbookEvent) error
	List(ctx context.Context, from, to time.Time) ([]spectroctl.LogbookEvent, error)
}

type Repository struct {
	StateRepo StateRepo
	EventRepo EventRepo
	Auth      Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		StateRepo: NewStateSQLite(db),
		EventRepo: NewEventSQLite(db),
		Auth:      NewOperatorRepository(db),
	}
}
