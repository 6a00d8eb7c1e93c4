package usecase

import (
	"context"
	"time"

	"veritag/internal/domain"
)

type TagRepository interface {
	FindByIdentifier(ctx context.Context, identifier string) (*domain.Tag, error)
	Create(ctx context.Context, tag domain.Tag) error
	// Upsert creates or refreshes a record from the bulk feed. Scan counter,
	// history and active flag are preserved on update.
	Upsert(ctx context.Context, tag domain.Tag) error
	SetActive(ctx context.Context, identifier string, active bool) error
	// CompareAndUpdate bumps the counter and appends the event in one atomic
	// step, conditioned on the counter still holding expectedCounter. Returns
	// domain.ErrConflict when another writer got there first.
	CompareAndUpdate(ctx context.Context, identifier string, expectedCounter, newCounter int64, event domain.ScanEvent) error
}

type AuditEventRepository interface {
	Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error)
	ListByTarget(ctx context.Context, targetID string) ([]domain.AuditEvent, error)
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
