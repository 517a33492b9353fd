// Package encoding holds the low-level MIME encoders used by the composer:
// boundary generation, line wrapping, base64 chunking, MIME type inference and
// RFC 2047 subject encoding.
package encoding

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// boundaryEntropy is the number of random bytes hex-encoded into a boundary.
const boundaryEntropy = 28

// Boundary prefixes used for the two multipart levels of a composed message.
const (
	MixedPrefix       = "mixed_"
	AlternativePrefix = "alternative_"
)

// boundaryUnsafe replaces characters that must not appear unquoted in a
// boundary parameter.
var boundaryUnsafe = strings.NewReplacer(
	"<", "_", ">", "_", "@", "_", ",", "_", ";", "_", ":", "_",
	`\`, "_", "/", "_", "[", "_", "]", "_", "?", "_", "=", "_",
	`"`, "_", " ", "_",
)

// Boundary returns prefix followed by 56 hex characters drawn from a
// cryptographically secure source, with unsafe characters replaced by '_'.
func Boundary(prefix string) string {
	buf := make([]byte, boundaryEntropy)
	if _, err := rand.Read(buf); err != nil {
		panic("encoding: crypto/rand unavailable: " + err.Error())
	}

	return SanitizeBoundary(prefix + hex.EncodeToString(buf))
}

// SanitizeBoundary replaces every character of <>@,;:\/[]?=" and space with '_'.
func SanitizeBoundary(s string) string {
	return boundaryUnsafe.Replace(s)
}
