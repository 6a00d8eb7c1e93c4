package policyopa

import (
	"context"
	"log/slog"

	"veritag/internal/domain"
	"veritag/internal/usecase"
)

// Static is the default waiver policy: trusted-source records and a fixed set
// of demonstration identifiers are exempt from signature and counter checks.
type Static struct {
	demo map[string]struct{}
}

// NewStatic canonicalizes the configured identifiers so operators can list
// them in any separator/case form; the policy is matched against the
// canonical form. Entries that do not normalize are skipped.
func NewStatic(demoIdentifiers []string) *Static {
	demo := make(map[string]struct{}, len(demoIdentifiers))
	for _, raw := range demoIdentifiers {
		id, err := usecase.NormalizeIdentifier(raw)
		if err != nil {
			slog.Warn("skipping invalid demo identifier", "value", raw, "error", err)
			continue
		}
		demo[id] = struct{}{}
	}
	return &Static{demo: demo}
}

func (s *Static) Evaluate(_ context.Context, input domain.WaiverInput) (domain.WaiverDecision, error) {
	if input.TrustedSource {
		return domain.WaiverDecision{Waived: true, Reason: "trusted_source"}, nil
	}
	if _, ok := s.demo[input.Identifier]; ok {
		return domain.WaiverDecision{Waived: true, Reason: "demo_identifier"}, nil
	}
	return domain.WaiverDecision{}, nil
}
