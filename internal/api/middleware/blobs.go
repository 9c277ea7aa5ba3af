package middleware

import (
	"mime"
	"net/http"
	"path"
	"strings"
)

// BlobHeaders hardens responses for uploaded blobs. Every response gets
// nosniff. Keys outside the inline prefixes are sent as downloads, and
// markup types among them are served as application/octet-stream. Expects
// the request path to be the blob key (mount behind http.StripPrefix).
func BlobHeaders(inlinePrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")

			key := strings.TrimPrefix(r.URL.Path, "/")
			if !hasAnyPrefix(key, inlinePrefixes) {
				w.Header().Set("Content-Disposition",
					mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)}))
				if activeType(mime.TypeByExtension(path.Ext(key))) {
					w.Header().Set("Content-Type", "application/octet-stream")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// activeType reports media types a browser renders as a scriptable document.
func activeType(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(strings.ToLower(mediaType)) {
	case "text/html", "text/xml", "application/xml", "application/xhtml+xml", "image/svg+xml":
		return true
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
