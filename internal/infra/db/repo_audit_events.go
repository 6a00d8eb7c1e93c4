package db

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	"veritag/internal/domain"
)

type AuditEventRepository struct {
	db *gorm.DB
}

func NewAuditEventRepository(db *gorm.DB) *AuditEventRepository {
	return &AuditEventRepository{db: db}
}

func (r *AuditEventRepository) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if r.db == nil {
		return domain.AuditEvent{}, errDBUnavailable
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	model := AuditEventModel{
		ID:          event.ID,
		EventType:   string(event.EventType),
		TargetID:    event.TargetID,
		Result:      string(event.Result),
		ErrorCode:   event.ErrorCode,
		PayloadJSON: payload,
		CreatedAt:   event.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.AuditEvent{}, err
	}
	return event, nil
}

func (r *AuditEventRepository) ListByTarget(ctx context.Context, targetID string) ([]domain.AuditEvent, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []AuditEventModel
	err := r.db.WithContext(ctx).
		Where("target_id = ?", targetID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	events := make([]domain.AuditEvent, 0, len(models))
	for _, model := range models {
		var payload map[string]any
		if len(model.PayloadJSON) > 0 {
			if err := json.Unmarshal(model.PayloadJSON, &payload); err != nil {
				return nil, err
			}
		}
		events = append(events, domain.AuditEvent{
			ID:        model.ID,
			EventType: domain.AuditEventType(model.EventType),
			TargetID:  model.TargetID,
			Result:    domain.AuditResult(model.Result),
			ErrorCode: model.ErrorCode,
			Payload:   payload,
			CreatedAt: model.CreatedAt,
		})
	}
	return events, nil
}
