package usecase

import (
	"context"
	"log/slog"
	"time"

	"veritag/internal/domain"
)

type FeedRow struct {
	Identifier     string
	Name           string
	Batch          string
	Location       string
	ManufacturedAt *time.Time
	ExpiresAt      *time.Time
}

type FeedSource interface {
	Rows(ctx context.Context) ([]FeedRow, error)
}

type ImportSummary struct {
	Imported int
	Skipped  int
}

// ImportFeed upserts registry records from the bulk feed. Imported records
// are marked trusted, which waives their signature and counter checks; the
// importer never touches the verification path.
type ImportFeed struct {
	Tags   TagRepository
	Source FeedSource
	Audit  *AuditEmitter
	Clock  Clock
}

func (uc *ImportFeed) Execute(ctx context.Context) (ImportSummary, error) {
	rows, err := uc.Source.Rows(ctx)
	if err != nil {
		return ImportSummary{}, err
	}

	now := time.Now()
	if uc.Clock != nil {
		now = uc.Clock.Now()
	}

	var summary ImportSummary
	for _, row := range rows {
		id, err := NormalizeIdentifier(row.Identifier)
		if err != nil {
			slog.WarnContext(ctx, "feed row skipped", "identifier", row.Identifier, "error", err)
			summary.Skipped++
			continue
		}
		tag := domain.Tag{
			Identifier:     id,
			Name:           row.Name,
			Batch:          row.Batch,
			Location:       row.Location,
			Active:         true,
			TrustedSource:  true,
			ManufacturedAt: row.ManufacturedAt,
			ExpiresAt:      row.ExpiresAt,
			CreatedAt:      now.UTC(),
		}
		if err := uc.Tags.Upsert(ctx, tag); err != nil {
			slog.WarnContext(ctx, "feed row upsert failed", "identifier", id, "error", err)
			summary.Skipped++
			continue
		}
		uc.Audit.EmitTagEvent(ctx, domain.AuditEventTagImported, id, map[string]any{
			"name":  row.Name,
			"batch": row.Batch,
		})
		summary.Imported++
	}
	return summary, nil
}
