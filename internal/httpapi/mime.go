package httpapi

import (
	"path"
	"strings"
)

// ContentType maps an artifact path onto the MIME type the Request
// Bridge emits on a cache hit or a successful race, by last path-segment
// extension only — no content sniffing.
func ContentType(artifactPath string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(artifactPath), "."))
	switch ext {
	case "":
		return "application/octet-stream"
	case "html":
		return "text/html; charset=utf-8"
	case "jar":
		return "application/java-archive"
	case "xml", "pom":
		return "application/xml; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}
