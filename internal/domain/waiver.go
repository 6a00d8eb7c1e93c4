package domain

import "context"

// WaiverInput describes a tag to the waiver policy. The identifier is in
// canonical form.
type WaiverInput struct {
	Identifier    string `json:"identifier"`
	TrustedSource bool   `json:"trusted_source"`
}

// WaiverDecision marks a tag as exempt from signature and counter checks.
// Waived tags are accepted without cryptographic proof; this is a deliberate
// trust boundary for bulk-imported and demonstration records, not a bypass
// to be closed.
type WaiverDecision struct {
	Waived bool   `json:"waived"`
	Reason string `json:"reason,omitempty"`
}

type WaiverPolicy interface {
	Evaluate(ctx context.Context, input WaiverInput) (WaiverDecision, error)
}
