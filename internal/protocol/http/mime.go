package http

import (
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultContentType is sent when neither the extension table nor sniffing
// recognizes the resource.
const DefaultContentType = "application/octet-stream"

var mimeTypes = map[string]string{
	".txt":  "text/plain",
	".html": "text/html",
	".htm":  "text/html",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".pdf":  "application/pdf",
	".css":  "text/css",
	".js":   "text/javascript",
	".json": "application/json",
}

// LookupMIME returns the content type registered for the extension of
// resource. Extensions are matched case-insensitively.
func LookupMIME(resource string) (string, bool) {
	ext := strings.ToLower(path.Ext(resource))
	if ext == "" {
		return "", false
	}
	t, ok := mimeTypes[ext]
	return t, ok
}

// SniffMIME detects the content type from the leading bytes of a file.
func SniffMIME(head []byte) string {
	return mimetype.Detect(head).String()
}
