// Package clock produces the single timestamp format used throughout
// crdtsync so every replica's strings sort lexicographically in the same
// order as wall-clock time.
package clock

import "time"

// isoLayout is UTC, millisecond precision, Z suffix — chosen so that
// lexicographic string comparison equals temporal comparison.
const isoLayout = "2006-01-02T15:04:05.000Z"

// Now returns the current UTC time as a fixed-width ISO-8601 string.
func Now() string {
	return time.Now().UTC().Format(isoLayout)
}

// Format renders an arbitrary time.Time in the same layout, normalising to UTC.
func Format(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// Parse is the inverse of Now/Format.
func Parse(s string) (time.Time, error) {
	return time.Parse(isoLayout, s)
}

// Less reports whether a sorts before b under the lexicographic order that
// ISO-8601 UTC strings of this layout share with temporal order.
func Less(a, b string) bool {
	return a < b
}
