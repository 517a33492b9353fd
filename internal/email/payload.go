package email

import (
	"bytes"
	"strings"
	"time"

	"github.com/wujiyu305/worker-mailer/internal/encoding"
)

// Payload composes the complete message: header block, blank line and
// multipart body, ending with the SMTP data terminator line. Each call draws
// fresh boundaries and a fresh Date; everything else is stable.
func (m *Message) Payload() []byte {
	return m.render(time.Now(), encoding.Boundary(encoding.MixedPrefix), encoding.Boundary(encoding.AlternativePrefix))
}

func (m *Message) render(now time.Time, mixedBoundary, altBoundary string) []byte {
	fields := m.headersAt(now, mixedBoundary)
	lines := make([]string, len(fields))
	for i, f := range fields {
		lines[i] = f.String()
	}

	var b strings.Builder
	b.WriteString(strings.Join(lines, crlf))
	b.WriteString(crlf + crlf)
	b.WriteString(m.body(now, mixedBoundary, altBoundary))

	return []byte(b.String())
}

// StripTerminator removes the trailing data terminator line for transports
// that frame the message themselves.
func StripTerminator(payload []byte) []byte {
	if bytes.HasSuffix(payload, []byte(crlf+DataTerminator)) {
		return payload[:len(payload)-len(DataTerminator)]
	}

	if bytes.HasSuffix(payload, []byte(crlf+".")) {
		return payload[:len(payload)-1]
	}

	return payload
}
