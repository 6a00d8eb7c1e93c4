package usecase

import (
	"context"
	"sync"
	"time"

	"veritag/internal/domain"
)

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

type fakeTagRepo struct {
	mu   sync.Mutex
	tags map[string]*domain.Tag

	conflictsLeft int
	findErr       error
	updateErr     error
}

func newFakeTagRepo(tags ...domain.Tag) *fakeTagRepo {
	repo := &fakeTagRepo{tags: make(map[string]*domain.Tag)}
	for i := range tags {
		tag := tags[i]
		repo.tags[tag.Identifier] = &tag
	}
	return repo
}

func (r *fakeTagRepo) FindByIdentifier(_ context.Context, identifier string) (*domain.Tag, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tag, ok := r.tags[identifier]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *tag
	copied.History = append([]domain.ScanEvent(nil), tag.History...)
	return &copied, nil
}

func (r *fakeTagRepo) Create(_ context.Context, tag domain.Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tags[tag.Identifier]; ok {
		return domain.ErrAlreadyExists
	}
	r.tags[tag.Identifier] = &tag
	return nil
}

func (r *fakeTagRepo) Upsert(_ context.Context, tag domain.Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tags[tag.Identifier]; ok {
		tag.ScanCounter = existing.ScanCounter
		tag.History = existing.History
		tag.Active = existing.Active
	}
	r.tags[tag.Identifier] = &tag
	return nil
}

func (r *fakeTagRepo) SetActive(_ context.Context, identifier string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tag, ok := r.tags[identifier]
	if !ok {
		return domain.ErrNotFound
	}
	tag.Active = active
	return nil
}

func (r *fakeTagRepo) CompareAndUpdate(_ context.Context, identifier string, expected, next int64, event domain.ScanEvent) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		return domain.ErrConflict
	}
	tag, ok := r.tags[identifier]
	if !ok {
		return domain.ErrNotFound
	}
	if tag.ScanCounter != expected {
		return domain.ErrConflict
	}
	tag.ScanCounter = next
	tag.History = append(tag.History, event)
	return nil
}

type fakeAuditRepo struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *fakeAuditRepo) Append(_ context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return event, nil
}

func (r *fakeAuditRepo) ListByTarget(_ context.Context, targetID string) ([]domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditEvent
	for _, ev := range r.events {
		if ev.TargetID == targetID {
			out = append(out, ev)
		}
	}
	return out, nil
}

type staticWaiver struct {
	demo map[string]bool
}

func (w staticWaiver) Evaluate(_ context.Context, input domain.WaiverInput) (domain.WaiverDecision, error) {
	if input.TrustedSource || w.demo[input.Identifier] {
		return domain.WaiverDecision{Waived: true}, nil
	}
	return domain.WaiverDecision{}, nil
}
