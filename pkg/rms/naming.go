package rms

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"
)

// storeExt is the extension of every store file.
const storeExt = ".rms"

// newIdentity validates an owner and store name.
func newIdentity(owner AppID, name string) (Identity, error) {
	if owner.Vendor == "" || owner.Suite == "" {
		return Identity{}, fmt.Errorf("application %q: vendor and suite must be non-empty: %w", owner, ErrInvalidInput)
	}

	if !utf8.ValidString(name) {
		return Identity{}, fmt.Errorf("store name %q is not valid UTF-8: %w", name, ErrInvalidInput)
	}

	n := utf8.RuneCountInString(name)
	if n < 1 || n > maxNameRunes {
		return Identity{}, fmt.Errorf("store name %q has %d characters, want 1..%d: %w", name, n, maxNameRunes, ErrInvalidInput)
	}

	return Identity{Owner: owner, Name: name}, nil
}

// appDir returns the directory holding owner's stores.
func appDir(root string, owner AppID) string {
	return filepath.Join(root, escapeName(owner.Vendor), escapeName(owner.Suite))
}

// storePath returns the canonical file path of a store. Distinct
// identities always map to distinct paths.
func storePath(root string, id Identity) string {
	return filepath.Join(appDir(root, id.Owner), escapeName(id.Name)+storeExt)
}

// escapeName maps s to a single path element. ASCII letters, digits, '-'
// and '_' are kept. Other ASCII bytes and bytes of invalid UTF-8 become
// %XX; every other rune becomes ~XXXXXX, its code point in six hex
// digits. The mapping is injective and never yields "." or "..".
//
// A store name of maxNameRunes runes escapes to at most 7*maxNameRunes
// bytes, which keeps store file names under the common 255-byte limit.
func escapeName(s string) string {
	var sb strings.Builder

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])

		switch {
		case r < utf8.RuneSelf && isPlainByte(byte(r)):
			sb.WriteByte(byte(r))
		case r == utf8.RuneError && size == 1, r < utf8.RuneSelf:
			_, _ = fmt.Fprintf(&sb, "%%%02X", s[i])
		default:
			_, _ = fmt.Fprintf(&sb, "~%06X", r)
		}

		i += size
	}

	return sb.String()
}

// unescapeName inverts escapeName. It reports false for anything
// escapeName could not have produced.
func unescapeName(s string) (string, bool) {
	var sb strings.Builder

	for i := 0; i < len(s); {
		c := s[i]

		switch c {
		case '%':
			if i+3 > len(s) {
				return "", false
			}

			v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return "", false
			}

			sb.WriteByte(byte(v))
			i += 3
		case '~':
			if i+7 > len(s) {
				return "", false
			}

			v, err := strconv.ParseUint(s[i+1:i+7], 16, 32)
			if err != nil || !utf8.ValidRune(rune(v)) {
				return "", false
			}

			sb.WriteRune(rune(v))
			i += 7
		default:
			if !isPlainByte(c) {
				return "", false
			}

			sb.WriteByte(c)
			i++
		}
	}

	// Rejects lowercase hex, escaped plain bytes and escaped UTF-8 byte
	// sequences that escapeName writes as runes.
	name := sb.String()
	if escapeName(name) != s {
		return "", false
	}

	return name, true
}

func isPlainByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_'
}
