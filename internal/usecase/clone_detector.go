package usecase

import (
	"time"

	"veritag/internal/domain"
)

const (
	burstWindow    = time.Minute
	burstThreshold = 5
	ipWindow       = 24 * time.Hour
	ipThreshold    = 10
	minHistory     = 2
)

type CloneVerdict struct {
	Suspicious bool
	Reason     string
}

// DetectClonePattern inspects a tag's scan history, including the event just
// appended, for signals that the same identifier exists on more than one
// physical tag. It only ever annotates the response; a suspicious verdict
// never fails the scan.
func DetectClonePattern(history []domain.ScanEvent, now time.Time) CloneVerdict {
	if len(history) < minHistory {
		return CloneVerdict{}
	}
	recent := 0
	ips := make(map[string]struct{})
	for _, ev := range history {
		age := now.Sub(ev.ScannedAt)
		// Future-dated events (clock skew, corrupted rows) count toward
		// neither window.
		if age < 0 {
			continue
		}
		if age <= burstWindow {
			recent++
		}
		if age <= ipWindow && ev.SourceIP != "" {
			ips[ev.SourceIP] = struct{}{}
		}
	}
	if recent > burstThreshold {
		return CloneVerdict{Suspicious: true, Reason: "too many scans in under one minute"}
	}
	if len(ips) > ipThreshold {
		return CloneVerdict{Suspicious: true, Reason: "too many distinct source IPs in 24 hours"}
	}
	return CloneVerdict{}
}
