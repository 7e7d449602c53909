package storage

import (
	"errors"
	"strings"
	"unicode"
)

// ErrInvalidKey is returned for names that cannot address a file in the
// flat storage root.
var ErrInvalidKey = errors.New("invalid storage key")

// Sanitize maps a client-supplied filename to its storage key. Every rune
// other than a letter, number, '_' or '.' is replaced with a single '_', so
// names differing only in disallowed runes at the same positions share a key.
// Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case unicode.IsLetter(r), unicode.IsNumber(r), r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ValidateKey rejects sanitized keys that would resolve outside a single
// file in the storage root.
func ValidateKey(key string) error {
	switch key {
	case "", ".", "..":
		return ErrInvalidKey
	}
	return nil
}

// Stem strips the final extension from a key: "My_Clip.mp4" -> "My_Clip".
// A leading dot is not treated as an extension separator.
func Stem(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}
