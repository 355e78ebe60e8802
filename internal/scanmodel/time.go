package scanmodel

import (
	"fmt"
	"time"
)

// ParseJiraTime parses the timestamp shapes actually observed from Jira
// Data Center's REST API: RFC3339 with a "Z" suffix, and RFC3339 with a
// four-digit offset lacking a colon (e.g. "2024-01-02T15:04:05.000+0300").
// time.Parse(time.RFC3339, ...) rejects the second shape outright, so the
// offset is normalized to "+03:00" form before parsing.
func ParseJiraTime(s string) (time.Time, error) {
	normalized := normalizeOffset(s)
	t, err := time.Parse(time.RFC3339, normalized)
	if err != nil {
		// Second attempt with the same layout written out; time.RFC3339
		// already accepts timestamps with or without sub-second digits,
		// so this does not admit any further shape.
		t, err = time.Parse("2006-01-02T15:04:05Z07:00", normalized)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("parse jira timestamp %q: %w", s, err)
	}
	return t, nil
}

// normalizeOffset converts a trailing "+0300"/"-0300" style offset (no
// colon) into "+03:00"/"-03:00". Strings already ending in "Z" or a
// colon-separated offset pass through unchanged.
func normalizeOffset(s string) string {
	if len(s) < 5 {
		return s
	}
	tail := s[len(s)-5:]
	sign := tail[0]
	if sign != '+' && sign != '-' {
		return s
	}
	for _, c := range tail[1:] {
		if c < '0' || c > '9' {
			return s
		}
	}
	return s[:len(s)-5] + tail[:3] + ":" + tail[3:]
}
