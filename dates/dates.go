// Package dates handles the calendar-date arithmetic of the price archives.
//
// The upstream publishes one archive per calendar day in Croatian local time.
// All dates are ISO "YYYY-MM-DD" strings and compare lexically.
package dates

import (
	"regexp"
	"sort"
	"time"
)

// ISO is the wire format for archive dates.
const ISO = "2006-01-02"

var isoRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// zagreb resolves Europe/Zagreb from the host tzdata. When the zone database
// is unavailable (scratch containers), a fixed UTC+1 offset stands in: at a
// DST boundary the computed date differs from wall clock by at most one day,
// and the upstream keys archives by calendar date anyway.
var zagreb = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Zagreb")
	if err != nil {
		return time.FixedZone("CET", 3600)
	}
	return loc
}()

// Today returns the current date in the upstream's locale.
func Today() string {
	return time.Now().In(zagreb).Format(ISO)
}

// Valid reports whether s is a well-formed ISO date.
func Valid(s string) bool {
	if !isoRe.MatchString(s) {
		return false
	}
	_, err := time.Parse(ISO, s)
	return err == nil
}

// Before reports whether a sorts strictly before b. ISO dates order lexically.
func Before(a, b string) bool { return a < b }

// SortAsc sorts ISO dates in place, oldest first.
func SortAsc(ds []string) {
	sort.Strings(ds)
}

// SortDesc sorts ISO dates in place, newest first.
func SortDesc(ds []string) {
	sort.Sort(sort.Reverse(sort.StringSlice(ds)))
}

// Recent returns the newest n dates from ds, newest first. The input is not
// modified. n <= 0 returns nil.
func Recent(ds []string, n int) []string {
	if n <= 0 || len(ds) == 0 {
		return nil
	}
	out := make([]string, len(ds))
	copy(out, ds)
	SortDesc(out)
	if len(out) > n {
		out = out[:n]
	}
	return out
}
