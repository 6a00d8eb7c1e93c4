package usecase

import (
	"strings"
	"unicode"

	"veritag/internal/domain"
)

const (
	identifierMinLen = 14
	identifierMaxLen = 20
)

// NormalizeIdentifier canonicalizes a raw tag identifier: separator
// characters (colons, hyphens, whitespace) are stripped and the remainder is
// upper-cased. Two raw inputs with the same canonical form are the same tag.
// Returns domain.ErrInvalidIdentifier unless the result is 14 to 20
// hexadecimal characters.
func NormalizeIdentifier(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r == ':' || r == '-' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	id := b.String()
	if len(id) < identifierMinLen || len(id) > identifierMaxLen {
		return "", domain.ErrInvalidIdentifier
	}
	for _, r := range id {
		if !isHexUpper(r) {
			return "", domain.ErrInvalidIdentifier
		}
	}
	return id, nil
}

func isHexUpper(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F')
}
