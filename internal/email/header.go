package email

import (
	"sort"
	"strings"
	"time"

	"github.com/wujiyu305/worker-mailer/internal/encoding"
)

// Header names written by the composer.
const (
	HeaderFrom        = "From"
	HeaderTo          = "To"
	HeaderReplyTo     = "Reply-To"
	HeaderCC          = "CC"
	HeaderBCC         = "BCC"
	HeaderSubject     = "Subject"
	HeaderDate        = "Date"
	HeaderMessageID   = "Message-ID"
	HeaderMIMEVersion = "MIME-Version"
	HeaderContentType = "Content-Type"
)

// DateLayout renders dates as "Tue, 01 Jan 2030 00:00:00 GMT".
const DateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// reserved headers are always computed; caller values with the same name
// (case-insensitive) are dropped.
var reserved = []string{
	HeaderFrom, HeaderTo, HeaderReplyTo, HeaderCC, HeaderBCC, HeaderSubject,
	HeaderDate, HeaderMessageID, HeaderMIMEVersion, HeaderContentType,
}

func isReserved(name string) bool {
	for _, r := range reserved {
		if strings.EqualFold(name, r) {
			return true
		}
	}

	return false
}

// HeaderField is one header line.
type HeaderField struct {
	Name  string
	Value string
}

func (f HeaderField) String() string { return f.Name + ": " + f.Value }

// Headers computes the top-level header block for a payload whose outer
// multipart/mixed part uses mixedBoundary. The order is From, To, Reply-To,
// CC, Subject, Date, Message-ID, the remaining custom headers sorted by name,
// MIME-Version and Content-Type. BCC is never included.
func (m *Message) Headers(mixedBoundary string) []HeaderField {
	return m.headersAt(time.Now(), mixedBoundary)
}

func (m *Message) headersAt(now time.Time, mixedBoundary string) []HeaderField {
	fields := make([]HeaderField, 0, 9+len(m.headers))

	fields = append(fields,
		HeaderField{HeaderFrom, m.from.String()},
		HeaderField{HeaderTo, m.to.Join()},
	)
	if m.reply != nil {
		fields = append(fields, HeaderField{HeaderReplyTo, m.reply.String()})
	}
	if len(m.cc) > 0 {
		fields = append(fields, HeaderField{HeaderCC, m.cc.Join()})
	}
	fields = append(fields,
		HeaderField{HeaderSubject, encoding.EncodeSubject(m.subject)},
		HeaderField{HeaderDate, now.UTC().Format(DateLayout)},
		HeaderField{HeaderMessageID, m.messageID},
	)

	names := make([]string, 0, len(m.headers))
	for name := range m.headers {
		if !isReserved(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		fields = append(fields, HeaderField{name, m.headers[name]})
	}

	return append(fields,
		HeaderField{HeaderMIMEVersion, "1.0"},
		HeaderField{HeaderContentType, `multipart/mixed; boundary="` + mixedBoundary + `"`},
	)
}
