package models

import (
	"fmt"
	"strings"
	"time"

	errs "zsxqsync/pkg/errors"
)

// Layouts accepted for API and configuration timestamps, most specific first.
// The API itself emits "2006-01-02T15:04:05.000-0700".
var timestampLayouts = []struct {
	layout string
	zoned  bool
}{
	{"2006-01-02T15:04:05.999999999-0700", true},
	{"2006-01-02T15:04:05.999999999Z07:00", true},
	{"2006-01-02T15:04:05-0700", true},
	{"2006-01-02T15:04:05Z07:00", true},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05.999999999", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02", false},
}

// ParseTimestamp parses s with or without a fractional second or zone and
// normalizes it to a zone-less instant: zoned values are converted into loc
// first, then every value keeps only its wall clock (reported as UTC).
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	value := strings.TrimSpace(s)
	if value == "" {
		return time.Time{}, &errs.ParseError{Field: "timestamp", Cause: fmt.Errorf("empty value")}
	}
	if loc == nil {
		loc = time.UTC
	}

	for _, l := range timestampLayouts {
		t, err := time.Parse(l.layout, value)
		if err != nil {
			continue
		}
		if l.zoned {
			t = t.In(loc)
		}
		return Naive(t), nil
	}

	return time.Time{}, &errs.ParseError{Field: "timestamp", Value: s, Cause: fmt.Errorf("unrecognized layout")}
}

// Naive drops the zone of t and keeps its wall clock.
func Naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// NowIn returns the current wall clock in loc as a zone-less instant.
func NowIn(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Naive(time.Now().In(loc))
}

// ParseWatermark reads a configured or stored watermark value. The
// WatermarkBeginning sentinel selects a full-history backfill; an empty value
// is rejected.
func ParseWatermark(s string, loc *time.Location) (Watermark, error) {
	value := strings.TrimSpace(s)
	if strings.EqualFold(value, WatermarkBeginning) {
		return Beginning(), nil
	}
	if value == "" {
		return Watermark{}, &errs.ParseError{
			Field: "last_download_time",
			Cause: fmt.Errorf("missing watermark, use a timestamp or %q", WatermarkBeginning),
		}
	}
	t, err := ParseTimestamp(value, loc)
	if err != nil {
		return Watermark{}, err
	}
	return At(t), nil
}
