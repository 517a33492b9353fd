package encoding

import (
	"path/filepath"
	"strings"
)

// DefaultMIMEType is used for attachments whose extension is not known.
const DefaultMIMEType = "application/octet-stream"

var mimeTypes = map[string]string{
	"txt":  "text/plain",
	"html": "text/html",
	"csv":  "text/csv",
	"pdf":  "application/pdf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"zip":  "application/zip",
}

// MIMEType infers a content type from the filename extension using a fixed
// table. Matching is case-insensitive.
func MIMEType(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if mt, ok := mimeTypes[ext]; ok {
		return mt
	}

	return DefaultMIMEType
}
