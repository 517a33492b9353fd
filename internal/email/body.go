package email

import (
	"strings"
	"time"

	"github.com/wujiyu305/worker-mailer/internal/encoding"
)

const crlf = encoding.CRLF

// DataTerminator closes every payload so it can be streamed straight into an
// SMTP DATA command.
const DataTerminator = "." + crlf

// body renders the multipart/mixed body: one multipart/alternative part with
// the text and html alternatives, then one part per attachment.
func (m *Message) body(now time.Time, mixedBoundary, altBoundary string) string {
	var b strings.Builder

	b.WriteString("--" + mixedBoundary + crlf)
	b.WriteString(`Content-Type: multipart/alternative; boundary="` + altBoundary + `"` + crlf + crlf)

	if m.text != "" {
		b.WriteString("--" + altBoundary + crlf)
		b.WriteString(`Content-Type: text/plain; charset="utf-8"` + crlf + crlf)
		b.WriteString(strings.Join(encoding.WrapText(m.text, encoding.MaxLineLength), crlf))
		b.WriteString(crlf + crlf)
	}

	if m.html != "" {
		b.WriteString("--" + altBoundary + crlf)
		b.WriteString(`Content-Type: text/html; charset="utf-8"` + crlf)
		b.WriteString("Content-Transfer-Encoding: base64" + crlf + crlf)
		b.WriteString(encoding.EncodeBase64Lines([]byte(m.html), encoding.Base64LineLength))
		b.WriteString(crlf + crlf)
	}

	b.WriteString("--" + altBoundary + "--" + crlf)

	created := now.UTC().Format(DateLayout)
	for _, a := range m.attachments {
		mimeType := a.MIMEType
		if mimeType == "" {
			mimeType = encoding.MIMEType(a.Filename)
		}

		b.WriteString("--" + mixedBoundary + crlf)
		b.WriteString("Content-Type: " + mimeType + `; name="` + a.Filename + `"` + crlf)
		b.WriteString("Content-Description: " + a.Filename + crlf)
		b.WriteString(`Content-Disposition: attachment; filename="` + a.Filename + `";` + crlf)
		b.WriteString(`    creation-date="` + created + `"` + crlf)
		b.WriteString("Content-Transfer-Encoding: base64" + crlf + crlf)
		b.WriteString(strings.Join(encoding.ChunkString(a.Content, encoding.AttachmentLineLength), crlf))
		b.WriteString(crlf + crlf)
	}

	b.WriteString("--" + mixedBoundary + "--" + crlf)
	b.WriteString(DataTerminator)

	return b.String()
}
