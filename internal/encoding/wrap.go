package encoding

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"
)

// Line limits used by the composer.
const (
	// MaxLineLength is the RFC 5322 limit on a line, excluding CRLF.
	MaxLineLength = 998
	// Base64LineLength is the line width for base64 encoded text bodies.
	Base64LineLength = 76
	// AttachmentLineLength is the line width for attachment content.
	AttachmentLineLength = 72
)

// CRLF is the line separator of every composed payload.
const CRLF = "\r\n"

// WrapText greedily wraps text so that no line exceeds limit bytes. Existing
// line breaks are kept and each input line is wrapped on its own. Words are
// separated by single spaces; a word longer than limit is split into
// consecutive chunks without cutting a UTF-8 sequence.
func WrapText(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxLineLength
	}

	var out []string
	for _, line := range splitLines(text) {
		out = append(out, wrapLine(line, limit)...)
	}

	return out
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	return strings.Split(text, "\n")
}

func wrapLine(line string, limit int) []string {
	if len(line) <= limit {
		return []string{line}
	}

	var (
		lines   []string
		current strings.Builder
		started bool
	)

	flush := func() {
		lines = append(lines, current.String())
		current.Reset()
		started = false
	}

	for _, word := range strings.Split(line, " ") {
		if len(word) > limit {
			if started {
				flush()
			}
			lines = append(lines, SplitRunes(word, limit)...)
			continue
		}

		if !started {
			current.WriteString(word)
			started = true
			continue
		}

		if current.Len()+1+len(word) > limit {
			flush()
			current.WriteString(word)
			started = true
			continue
		}

		current.WriteByte(' ')
		current.WriteString(word)
	}

	if started {
		flush()
	}

	return lines
}

// SplitRunes splits s into chunks of at most size bytes, never cutting a
// UTF-8 sequence. A single rune wider than size forms its own chunk.
func SplitRunes(s string, size int) []string {
	if size <= 0 || len(s) <= size {
		return []string{s}
	}

	var chunks []string
	for len(s) > 0 {
		n := size
		if n >= len(s) {
			chunks = append(chunks, s)
			break
		}
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		if n == 0 {
			_, n = utf8.DecodeRuneInString(s)
		}
		chunks = append(chunks, s[:n])
		s = s[n:]
	}

	return chunks
}

// ChunkString splits s into consecutive pieces of at most width bytes.
// An empty string yields a single empty chunk.
func ChunkString(s string, width int) []string {
	if width <= 0 || len(s) <= width {
		return []string{s}
	}

	chunks := make([]string, 0, len(s)/width+1)
	for len(s) > width {
		chunks = append(chunks, s[:width])
		s = s[width:]
	}

	return append(chunks, s)
}

// EncodeBase64Lines base64 encodes data and breaks the result into lines of
// width characters joined with CRLF.
func EncodeBase64Lines(data []byte, width int) string {
	return strings.Join(ChunkString(base64.StdEncoding.EncodeToString(data), width), CRLF)
}
