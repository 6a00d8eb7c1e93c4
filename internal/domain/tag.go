package domain

import "time"

// Tag is the registry record for one physical product tag. Identifier is the
// canonical uppercase hex form and never changes once the record exists.
type Tag struct {
	Identifier     string
	Name           string
	Batch          string
	Location       string
	SecretDigest   string
	ScanCounter    int64
	Active         bool
	TrustedSource  bool
	ManufacturedAt *time.Time
	ExpiresAt      *time.Time
	CreatedAt      time.Time
	History        []ScanEvent
}

// ScanEvent is one entry of a tag's append-only scan history.
type ScanEvent struct {
	ID         string
	Identifier string
	Counter    int64
	ScannedAt  time.Time
	Location   string
	SourceIP   string
	Client     string
}

const DefaultScanLocation = "unknown"

// StatusText returns the validity label shown to the scanning user.
func (t Tag) StatusText(now time.Time) string {
	if t.ExpiresAt != nil && t.ExpiresAt.Before(now) {
		return "Vencido"
	}
	return "Valido"
}

// IsExpired reports whether the tag's expiry timestamp has passed. Absent
// expiry means never expired.
func (t Tag) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

// AgeInDays returns the floor of whole days elapsed since manufacturing, or
// nil when the manufacturing timestamp is absent.
func (t Tag) AgeInDays(now time.Time) *int64 {
	if t.ManufacturedAt == nil {
		return nil
	}
	days := int64(now.Sub(*t.ManufacturedAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return &days
}
