// Package dateserial converts between time.Time and spreadsheet-style date
// serials: fractional days since 1899-12-30, the fraction being the time of day.
package dateserial

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

const secondsPerDay = 86400

// Epoch is serial 0.
var Epoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// FromTime returns the serial for t, truncated to whole seconds.
// The wall clock of t is used as-is; the location is ignored.
func FromTime(t time.Time) float64 {
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	secs := int64(wall.Sub(Epoch) / time.Second)
	days := math.Floor(float64(secs) / secondsPerDay)
	rem := secs - int64(days)*secondsPerDay
	return days + float64(rem)/secondsPerDay
}

// ToTime converts a serial back to a UTC time, rounded to the nearest second.
func ToTime(serial float64) time.Time {
	secs := math.Round(serial * secondsPerDay)
	return Epoch.Add(time.Duration(secs) * time.Second)
}

// Format renders serial with a Go time layout.
func Format(serial float64, layout string) string {
	return ToTime(serial).Format(layout)
}

// ParseDate parses an eight digit YYYYMMDD string.
func ParseDate(s string) (float64, error) {
	if len(s) != 8 || !isDigits(s) {
		return 0, fmt.Errorf("date %q: want YYYYMMDD", s)
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return 0, fmt.Errorf("date %q: %w", s, err)
	}
	return FromTime(t), nil
}

// ParseDateTime parses a twelve digit YYYYMMDDHHMM string.
func ParseDateTime(s string) (float64, error) {
	if len(s) != 12 || !isDigits(s) {
		return 0, fmt.Errorf("datetime %q: want YYYYMMDDHHMM", s)
	}
	t, err := time.Parse("200601021504", s)
	if err != nil {
		return 0, fmt.Errorf("datetime %q: %w", s, err)
	}
	return FromTime(t), nil
}

func isDigits(s string) bool {
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}
