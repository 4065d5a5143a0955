package utils

import "time"

// FormatTimestamp renders t as a UTC RFC3339 string, the wire format of updatedAt
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// FormatTimestampPtr is FormatTimestamp for optional values
func FormatTimestampPtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := FormatTimestamp(*t)
	return &s
}

// ParseTimestamp parses a time string in RFC3339 format
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
