package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"veritag/internal/domain"
)

type RegisterTagRequest struct {
	Identifier     string
	Name           string
	Batch          string
	Location       string
	ManufacturedAt *time.Time
	ExpiresAt      *time.Time
	TrustedSource  bool
}

// RegisterTagResult carries the raw secret for the registrant. It is
// disclosed here exactly once; only its digest is stored.
type RegisterTagResult struct {
	Tag    domain.Tag
	Secret string
}

type RegisterTag struct {
	Tags  TagRepository
	Audit *AuditEmitter
	Clock Clock
}

func (uc *RegisterTag) Execute(ctx context.Context, req RegisterTagRequest) (*RegisterTagResult, error) {
	id, err := NormalizeIdentifier(req.Identifier)
	if err != nil {
		return nil, err
	}

	secret, digest, err := newTagSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if uc.Clock != nil {
		now = uc.Clock.Now()
	}
	tag := domain.Tag{
		Identifier:     id,
		Name:           req.Name,
		Batch:          req.Batch,
		Location:       req.Location,
		SecretDigest:   digest,
		ScanCounter:    0,
		Active:         true,
		TrustedSource:  req.TrustedSource,
		ManufacturedAt: req.ManufacturedAt,
		ExpiresAt:      req.ExpiresAt,
		CreatedAt:      now.UTC(),
	}
	if err := uc.Tags.Create(ctx, tag); err != nil {
		return nil, err
	}
	uc.Audit.EmitTagEvent(ctx, domain.AuditEventTagRegistered, id, map[string]any{
		"name":  req.Name,
		"batch": req.Batch,
	})
	return &RegisterTagResult{Tag: tag, Secret: secret}, nil
}

// newTagSecret generates the key embedded in the physical tag and the digest
// the registry keeps. The tag signs with the digest of its embedded key, so
// the registry never needs the raw value again.
func newTagSecret() (secret, digest string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate secret: %w", err)
	}
	secret = hex.EncodeToString(buf)
	sum := sha256.Sum256([]byte(secret))
	return secret, hex.EncodeToString(sum[:]), nil
}
