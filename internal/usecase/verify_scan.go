package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"veritag/internal/domain"
)

type VerifyScanRequest struct {
	Identifier string
	Signature  string
	Counter    *int64
	Location   string
	SourceIP   string
	Client     string
}

type ProductSummary struct {
	Identifier     string
	Name           string
	Batch          string
	Location       string
	ManufacturedAt *time.Time
	ExpiresAt      *time.Time
	AgeInDays      *int64
	ScanCount      int64
	FirstScan      bool
	Expired        bool
	Status         string
}

type VerifyScanResult struct {
	Authentic      bool
	Product        ProductSummary
	VerifiedAt     time.Time
	ProcessingTime time.Duration
	Suspicious     bool
	Warning        string
}

// VerifyScan is the per-scan decision engine: normalize, look up, check the
// waiver, signature and counter, then append the scan event and bump the
// counter in one atomic step. Rejections never mutate the record.
type VerifyScan struct {
	Tags           TagRepository
	Waiver         domain.WaiverPolicy
	Audit          *AuditEmitter
	Clock          Clock
	StorageTimeout time.Duration
	RetryAttempts  int
}

func (uc *VerifyScan) Execute(ctx context.Context, req VerifyScanRequest) (*VerifyScanResult, error) {
	started := uc.now()

	id, err := NormalizeIdentifier(req.Identifier)
	if err != nil {
		uc.rejected(ctx, req.Identifier, "invalid identifier format", "INVALID_IDENTIFIER")
		return nil, err
	}

	attempts := uc.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}

	var (
		tag        *domain.Tag
		event      domain.ScanEvent
		newCounter int64
	)
	// The read-check-update sequence is optimistic. A concurrent scan of the
	// same tag surfaces as domain.ErrConflict from CompareAndUpdate and the
	// whole sequence restarts with a fresh read, so two scans can never both
	// claim the same counter value.
	for attempt := 0; ; attempt++ {
		tag, err = uc.findTag(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				uc.rejected(ctx, id, "unknown identifier", "TAG_NOT_FOUND")
			} else {
				uc.unavailable(ctx, id, "storage lookup failed", err)
			}
			return nil, err
		}

		if !tag.Active {
			uc.rejected(ctx, id, "blocked or recalled", "TAG_INACTIVE")
			return nil, domain.ErrTagInactive
		}

		waived := uc.waived(ctx, *tag)

		if !waived {
			if req.Signature != "" && tag.SecretDigest != "" {
				counterStr := ""
				if req.Counter != nil {
					counterStr = strconv.FormatInt(*req.Counter, 10)
				}
				ok, verr := VerifyScanSignature(tag.SecretDigest, req.Identifier, counterStr, req.Signature)
				if verr != nil || !ok {
					uc.rejected(ctx, id, "invalid signature", "SIGNATURE_INVALID")
					return nil, domain.ErrSignatureInvalid
				}
			}
			if req.Counter != nil && *req.Counter <= tag.ScanCounter {
				uc.rejected(ctx, id, "counter invalid, possible clone", "COUNTER_REPLAY")
				return nil, domain.ErrCounterReplay
			}
		}

		// Waived tags always advance by one regardless of any supplied
		// counter; non-waived tags take the supplied counter once accepted.
		newCounter = tag.ScanCounter + 1
		if !waived && req.Counter != nil {
			newCounter = *req.Counter
		}

		location := req.Location
		if location == "" {
			location = domain.DefaultScanLocation
		}
		event = domain.ScanEvent{
			ID:         uuid.NewString(),
			Identifier: id,
			Counter:    newCounter,
			ScannedAt:  uc.now().UTC(),
			Location:   location,
			SourceIP:   req.SourceIP,
			Client:     req.Client,
		}

		err = uc.update(ctx, id, tag.ScanCounter, newCounter, event)
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrConflict) && attempt+1 < attempts {
			continue
		}
		uc.unavailable(ctx, id, "storage update failed", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}

	history := make([]domain.ScanEvent, 0, len(tag.History)+1)
	history = append(history, tag.History...)
	history = append(history, event)

	now := uc.now()
	verdict := DetectClonePattern(history, now)

	result := &VerifyScanResult{
		Authentic: true,
		Product: ProductSummary{
			Identifier:     tag.Identifier,
			Name:           tag.Name,
			Batch:          tag.Batch,
			Location:       tag.Location,
			ManufacturedAt: tag.ManufacturedAt,
			ExpiresAt:      tag.ExpiresAt,
			AgeInDays:      tag.AgeInDays(now),
			ScanCount:      newCounter,
			FirstScan:      newCounter == 1,
			Expired:        tag.IsExpired(now),
			Status:         tag.StatusText(now),
		},
		VerifiedAt:     now,
		ProcessingTime: now.Sub(started),
		Suspicious:     verdict.Suspicious,
		Warning:        verdict.Reason,
	}
	uc.accepted(ctx, event, verdict)
	return result, nil
}

func (uc *VerifyScan) waived(ctx context.Context, tag domain.Tag) bool {
	if uc.Waiver == nil {
		return tag.TrustedSource
	}
	decision, err := uc.Waiver.Evaluate(ctx, domain.WaiverInput{
		Identifier:    tag.Identifier,
		TrustedSource: tag.TrustedSource,
	})
	if err != nil {
		// Policy engine failure falls back to the record's own flag.
		slog.WarnContext(ctx, "waiver policy failed", "identifier", tag.Identifier, "error", err)
		return tag.TrustedSource
	}
	return decision.Waived
}

func (uc *VerifyScan) findTag(ctx context.Context, id string) (*domain.Tag, error) {
	ctx, cancel := uc.withTimeout(ctx)
	defer cancel()
	tag, err := uc.Tags.FindByIdentifier(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return tag, nil
}

func (uc *VerifyScan) update(ctx context.Context, id string, expected, next int64, event domain.ScanEvent) error {
	ctx, cancel := uc.withTimeout(ctx)
	defer cancel()
	return uc.Tags.CompareAndUpdate(ctx, id, expected, next, event)
}

func (uc *VerifyScan) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := uc.StorageTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (uc *VerifyScan) now() time.Time {
	if uc.Clock == nil {
		return time.Now()
	}
	return uc.Clock.Now()
}

func (uc *VerifyScan) accepted(ctx context.Context, event domain.ScanEvent, verdict CloneVerdict) {
	if verdict.Suspicious {
		slog.WarnContext(ctx, "scan accepted with clone warning",
			"identifier", event.Identifier, "counter", event.Counter, "warning", verdict.Reason)
	}
	uc.Audit.EmitScanAccepted(ctx, event, verdict)
}

func (uc *VerifyScan) rejected(ctx context.Context, identifier, reason, code string) {
	slog.InfoContext(ctx, "scan rejected", "identifier", identifier, "reason", reason)
	uc.Audit.EmitScanRejected(ctx, identifier, reason, code)
}

// Storage outages are operational noise, not verification outcomes; they are
// logged but kept out of the scan audit trail.
func (uc *VerifyScan) unavailable(ctx context.Context, identifier, reason string, err error) {
	slog.ErrorContext(ctx, "scan unavailable", "identifier", identifier, "reason", reason, "error", err)
}
