package rq

import (
	"fmt"
	"strings"
	"time"
)

// timeLayouts are the timestamp encodings RQ has used across releases:
// "%Y-%m-%dT%H:%M:%S.%fZ", the seconds-only variant, and the zone-less form.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
}

// ParseTime parses an RQ timestamp as UTC. An empty value yields (nil, nil).
func ParseTime(value string) (*time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized timestamp %q", value)
}

// FormatTime renders t the way RQ writes timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}
