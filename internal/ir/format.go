package ir

import (
	"fmt"
	"time"
)

// TimestampLayout is the wire format used by the ingest boundary and
// CSV punch files: "YYYY-MM-DD HH:MM:SS" UTC.
const TimestampLayout = "2006-01-02 15:04:05"

// ParseTimestamp parses the ingest-boundary timestamp format as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// FormatTimestamp renders t in the ingest-boundary timestamp format, UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// FormatElapsed renders an elapsed-seconds value at the event's
// configured precision, e.g. "1:05" (seconds), "1:05.3" (tenths),
// "1:05.34" (hundredths).
func FormatElapsed(seconds float64, precision TimePrecision) string {
	if seconds < 0 {
		seconds = 0
	}
	whole := int64(seconds)
	minutes := whole / 60
	secs := whole % 60

	switch precision {
	case PrecisionTenths:
		frac := int64((seconds-float64(whole))*10 + 0.5)
		if frac >= 10 {
			frac = 0
			secs++
			if secs >= 60 {
				secs = 0
				minutes++
			}
		}
		return fmt.Sprintf("%d:%02d.%d", minutes, secs, frac)
	case PrecisionHundredths:
		frac := int64((seconds-float64(whole))*100 + 0.5)
		if frac >= 100 {
			frac = 0
			secs++
			if secs >= 60 {
				secs = 0
				minutes++
			}
		}
		return fmt.Sprintf("%d:%02d.%02d", minutes, secs, frac)
	default: // PrecisionSeconds
		return fmt.Sprintf("%d:%02d", minutes, secs)
	}
}

// FormatTimeBehind renders a time-behind-leader value with a leading
// "+", or "" when seconds is nil (a row with no ranking).
func FormatTimeBehind(seconds *float64, precision TimePrecision) string {
	if seconds == nil {
		return ""
	}
	return "+" + FormatElapsed(*seconds, precision)
}
