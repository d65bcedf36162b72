package httpmetrics

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const paramPlaceholder = "{param}"

// NormalizePath collapses id-like segments of a raw path. It is the fallback
// label for requests that did not match a chi route pattern.
func NormalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}

	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if isIdentifier(seg) {
			segments[i] = paramPlaceholder
		}
	}
	return strings.Join(segments, "/")
}

func isIdentifier(seg string) bool {
	if seg == "" {
		return false
	}
	if _, err := strconv.ParseUint(seg, 10, 64); err == nil {
		return true
	}
	return len(seg) == 36 && uuid.Validate(seg) == nil
}
