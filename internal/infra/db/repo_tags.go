package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"veritag/internal/domain"
)

var errDBUnavailable = errors.New("database not configured")

type TagRepository struct {
	db *gorm.DB
}

func NewTagRepository(db *gorm.DB) *TagRepository {
	return &TagRepository{db: db}
}

func (r *TagRepository) FindByIdentifier(ctx context.Context, identifier string) (*domain.Tag, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model TagModel
	err := r.db.WithContext(ctx).Where("identifier = ?", identifier).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	var events []ScanEventModel
	err = r.db.WithContext(ctx).
		Where("tag_identifier = ?", identifier).
		Order("scanned_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}

	tag := toDomainTag(model)
	tag.History = make([]domain.ScanEvent, 0, len(events))
	for _, ev := range events {
		tag.History = append(tag.History, toDomainEvent(ev))
	}
	return &tag, nil
}

func (r *TagRepository) Create(ctx context.Context, tag domain.Tag) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := toTagModel(tag)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Upsert refreshes feed-sourced metadata. Counter, history and the active
// flag are owned by the verification path and left untouched on update.
func (r *TagRepository) Upsert(ctx context.Context, tag domain.Tag) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := toTagModel(tag)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "identifier"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "batch", "location", "trusted_source", "manufactured_at", "expires_at",
		}),
	}).Create(&model).Error
}

func (r *TagRepository) SetActive(ctx context.Context, identifier string, active bool) error {
	if r.db == nil {
		return errDBUnavailable
	}
	result := r.db.WithContext(ctx).
		Model(&TagModel{}).
		Where("identifier = ?", identifier).
		Update("active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CompareAndUpdate is the per-identifier atomicity point: the counter bump is
// conditioned on the previously read value and the scan event rides in the
// same transaction. A concurrent writer shows up as zero affected rows.
func (r *TagRepository) CompareAndUpdate(ctx context.Context, identifier string, expectedCounter, newCounter int64, event domain.ScanEvent) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&TagModel{}).
			Where("identifier = ? AND scan_counter = ?", identifier, expectedCounter).
			Update("scan_counter", newCounter)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrConflict
		}
		model := ScanEventModel{
			ID:            event.ID,
			TagIdentifier: identifier,
			Counter:       event.Counter,
			ScannedAt:     event.ScannedAt,
			Location:      event.Location,
			SourceIP:      event.SourceIP,
			Client:        event.Client,
		}
		return tx.Create(&model).Error
	})
}

func toTagModel(tag domain.Tag) TagModel {
	createdAt := tag.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return TagModel{
		Identifier:     tag.Identifier,
		Name:           tag.Name,
		Batch:          tag.Batch,
		Location:       tag.Location,
		SecretDigest:   tag.SecretDigest,
		ScanCounter:    tag.ScanCounter,
		Active:         tag.Active,
		TrustedSource:  tag.TrustedSource,
		ManufacturedAt: tag.ManufacturedAt,
		ExpiresAt:      tag.ExpiresAt,
		CreatedAt:      createdAt,
	}
}

func toDomainTag(model TagModel) domain.Tag {
	return domain.Tag{
		Identifier:     model.Identifier,
		Name:           model.Name,
		Batch:          model.Batch,
		Location:       model.Location,
		SecretDigest:   model.SecretDigest,
		ScanCounter:    model.ScanCounter,
		Active:         model.Active,
		TrustedSource:  model.TrustedSource,
		ManufacturedAt: model.ManufacturedAt,
		ExpiresAt:      model.ExpiresAt,
		CreatedAt:      model.CreatedAt,
	}
}

func toDomainEvent(model ScanEventModel) domain.ScanEvent {
	return domain.ScanEvent{
		ID:         model.ID,
		Identifier: model.TagIdentifier,
		Counter:    model.Counter,
		ScannedAt:  model.ScannedAt,
		Location:   model.Location,
		SourceIP:   model.SourceIP,
		Client:     model.Client,
	}
}
