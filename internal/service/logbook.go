package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"spectroctl"
	"spectroctl/internal/repository"
)

type LogbookService struct {
	eventRepo repository.EventRepo
}

func NewLogbookService(eventRepo repository.EventRepo) *LogbookService {
	return &LogbookService{eventRepo: eventRepo}
}

var (
	errEmptyEntry       = errors.New("logbook entry text is empty")
	errInvalidTimeRange = errors.New("invalid time range: From must be <= To")
)

// Append stores one timestamped free-text entry.
func (s *LogbookService) Append(ctx context.Context, author, text string, meta any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errEmptyEntry
	}
	return s.eventRepo.Append(ctx, spectroctl.LogbookEvent{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Author:     strings.TrimSpace(author),
		Text:       text,
		Metadata:   meta,
	})
}

// List returns entries in the filter window, oldest first.
func (s *LogbookService) List(ctx context.Context, f LogFilter) ([]spectroctl.LogbookEvent, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, errInvalidTimeRange
	}
	return s.eventRepo.List(ctx, from, to)
}

func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
