package usecase

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"veritag/internal/domain"
)

// ComputeScanSignature returns the hex HMAC-SHA256 over
// "<identifier>:<counter>" keyed with the tag secret. The identifier is used
// exactly as the caller supplied it, not the canonical form, because the tag
// hardware signs the identifier it carries.
func ComputeScanSignature(secret, identifier, counter string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(identifier + ":" + counter))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyScanSignature checks a caller-supplied signature against the expected
// value. The comparison is constant time. A wrong signature is a normal
// (false, nil) outcome; only missing inputs are errors.
func VerifyScanSignature(secret, identifier, counter, signature string) (bool, error) {
	if secret == "" {
		return false, domain.ErrMissingSecret
	}
	if signature == "" {
		return false, domain.ErrMissingSignature
	}
	expected := ComputeScanSignature(secret, identifier, counter)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))), nil
}
