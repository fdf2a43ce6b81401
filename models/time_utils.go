package models

import (
	"fmt"
	"strings"
	"time"
)

// timestamp layouts accepted on ingestion, most specific first
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts ISO-8601 with or without a zone. Zoneless values are read as local time.
func ParseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, v)
}

// HalfHourSteps returns the minute offsets used by a forecast of the given length
func HalfHourSteps(hoursAhead int) []int {
	if hoursAhead < 1 {
		return nil
	}

	steps := make([]int, 0, hoursAhead*2)
	for m := 0; m < hoursAhead*60; m += 30 {
		steps = append(steps, m)
	}
	return steps
}
