package encoding

import (
	"encoding/base64"
	"strings"
)

const (
	encodedWordPrefix = "=?utf-8?b?"
	encodedWordSuffix = "?="

	// maxEncodedWordBytes keeps every encoded-word within 75 characters:
	// 12 characters of framing plus at most 60 characters of base64.
	maxEncodedWordBytes = 45
)

// EncodeSubject always encodes the subject as one or more RFC 2047 B
// encoded-words in UTF-8. Long subjects are split on rune boundaries and the
// words are folded onto continuation lines.
func EncodeSubject(subject string) string {
	words := make([]string, 0, 1)
	for _, chunk := range SplitRunes(subject, maxEncodedWordBytes) {
		words = append(words, encodedWordPrefix+base64.StdEncoding.EncodeToString([]byte(chunk))+encodedWordSuffix)
	}

	return strings.Join(words, CRLF+" ")
}
