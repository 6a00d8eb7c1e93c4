package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"veritag/internal/domain"
)

// AuditEmitter appends audit events for every verification outcome and every
// administrative action. Emission is best effort: a failed append is logged
// and never fails the request that produced it.
type AuditEmitter struct {
	Repo  AuditEventRepository
	Clock Clock
}

func NewAuditEmitter(repo AuditEventRepository, clock Clock) *AuditEmitter {
	return &AuditEmitter{Repo: repo, Clock: clock}
}

func (e *AuditEmitter) Emit(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if e == nil || e.Repo == nil {
		return domain.AuditEvent{}, errors.New("audit repository required")
	}
	if event.EventType == "" || event.Result == "" {
		return domain.AuditEvent{}, errors.New("audit event missing required fields")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = e.now().UTC()
	} else {
		event.CreatedAt = event.CreatedAt.UTC()
	}
	return e.Repo.Append(ctx, event)
}

func (e *AuditEmitter) EmitScanAccepted(ctx context.Context, event domain.ScanEvent, verdict CloneVerdict) {
	if e == nil {
		return
	}
	payload := map[string]any{
		"counter":   event.Counter,
		"location":  event.Location,
		"source_ip": event.SourceIP,
	}
	if verdict.Suspicious {
		payload["warning"] = verdict.Reason
	}
	e.emitBestEffort(ctx, domain.AuditEvent{
		EventType: domain.AuditEventScanAccepted,
		TargetID:  event.Identifier,
		Result:    domain.AuditResultSuccess,
		Payload:   payload,
	})
}

func (e *AuditEmitter) EmitScanRejected(ctx context.Context, identifier, reason, code string) {
	if e == nil {
		return
	}
	e.emitBestEffort(ctx, domain.AuditEvent{
		EventType: domain.AuditEventScanRejected,
		TargetID:  identifier,
		Result:    domain.AuditResultFailure,
		ErrorCode: code,
		Payload:   map[string]any{"reason": reason},
	})
}

func (e *AuditEmitter) EmitTagEvent(ctx context.Context, eventType domain.AuditEventType, identifier string, payload map[string]any) {
	if e == nil {
		return
	}
	e.emitBestEffort(ctx, domain.AuditEvent{
		EventType: eventType,
		TargetID:  identifier,
		Result:    domain.AuditResultSuccess,
		Payload:   payload,
	})
}

func (e *AuditEmitter) emitBestEffort(ctx context.Context, event domain.AuditEvent) {
	if _, err := e.Emit(ctx, event); err != nil {
		slog.WarnContext(ctx, "audit append failed",
			"event_type", string(event.EventType), "target", event.TargetID, "error", err)
	}
}

func (e *AuditEmitter) now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock.Now()
}
