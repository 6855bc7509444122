package authz

import (
	"strconv"
	"strings"
)

// EntityRef identifies the concrete entity a request path targets, e.g.
// /api/v1/submissions/42 refers to submission 42.
type EntityRef struct {
	Collection string
	ID         int64
}

// ParseEntityRef extracts the trailing entity reference from a request
// path. It scans segments from the end for the last integer and takes the
// segment before it as the collection, so nested paths like
// /forms/7/submissions/42 resolve to {submissions 42}. Returns false when
// the path carries no integer segment or the integer has no preceding
// collection segment.
func ParseEntityRef(path string) (EntityRef, bool) {
	segments := strings.Split(strings.Trim(path, "/"), "/")

	for i := len(segments) - 1; i > 0; i-- {
		id, err := strconv.ParseInt(segments[i], 10, 64)
		if err != nil {
			continue
		}
		if segments[i-1] == "" {
			return EntityRef{}, false
		}
		return EntityRef{Collection: segments[i-1], ID: id}, true
	}
	return EntityRef{}, false
}
