package utils

import (
	"fmt"
	"time"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/logger"
)

// LoadLocation loads a timezone location from an IANA timezone name.
// If the timezone is "Local" or empty, it returns the system's local timezone.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" || timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(timezone)
}

// ResolveLocation is LoadLocation with a UTC fallback for unknown zones.
func ResolveLocation(timezone string) *time.Location {
	loc, err := LoadLocation(timezone)
	if err != nil {
		logger.Warn("Unknown timezone, falling back to UTC", "timezone", timezone, "error", err)
		return time.UTC
	}
	return loc
}

// NowInTimezone returns the current time in the specified timezone.
func NowInTimezone(timezone string) (time.Time, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return time.Now().In(loc), nil
}

// ToStorageInstant reads the wall-clock fields of local as a time in zone
// and returns the matching UTC instant. The location carried by local is ignored.
func ToStorageInstant(local time.Time, zone string) time.Time {
	loc := ResolveLocation(zone)
	return time.Date(
		local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), local.Second(), local.Nanosecond(),
		loc,
	).UTC()
}

// ToDisplayTime returns the wall-clock time of an instant in zone.
func ToDisplayTime(instant time.Time, zone string) time.Time {
	return instant.In(ResolveLocation(zone))
}

// ParseInstant parses an RFC 3339 timestamp. Unparseable input yields now()
// so display flows never fail on a bad stored value.
func ParseInstant(s string, now func() time.Time) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		logger.Warn("Unparseable instant, using current time", "value", s, "error", err)
		if now == nil {
			now = time.Now
		}
		return now().UTC()
	}
	return t.UTC()
}

// FormatDisplay renders an instant in zone as DD-MM-YYYY HH:mm.
func FormatDisplay(instant time.Time, zone string) string {
	return ToDisplayTime(instant, zone).Format(constants.DisplayFormat)
}

// ParseTime parses a time string in the standard format (HH:MM).
func ParseTime(timeStr string) (time.Time, error) {
	return time.Parse(constants.TimeFormat, timeStr)
}

// ValidateTimeFormat checks if the string matches the standard time format.
func ValidateTimeFormat(timeStr string) bool {
	_, err := ParseTime(timeStr)
	return err == nil
}

// ClockFromTimeOfDay places an HH:MM time of day on reference's calendar date in zone.
func ClockFromTimeOfDay(timeStr string, reference time.Time, zone string) (time.Time, error) {
	tod, err := ParseTime(timeStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time format (expected HH:MM): %w", err)
	}
	loc := ResolveLocation(zone)
	ref := reference.In(loc)
	return time.Date(ref.Year(), ref.Month(), ref.Day(), tod.Hour(), tod.Minute(), 0, 0, loc), nil
}

// NextOccurrence returns the first instant strictly after now whose wall
// clock in loc reads hour:minute.
func NextOccurrence(hour, minute int, now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(now) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// ValidateTimezone checks if the timezone name is valid.
func ValidateTimezone(timezone string) bool {
	if timezone == "" || timezone == "Local" {
		return true
	}
	_, err := time.LoadLocation(timezone)
	return err == nil
}
