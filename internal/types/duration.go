package types

import (
	"strconv"
	"strings"
	"time"
)

// ParseBillingDuration parses a duration in the billing API's wire format:
//
//	[DD] [HH:[MM:]]ss[.uuuuuu]
//
// i.e. an optional day count, then one to three colon-separated time parts,
// then an optional fractional-second suffix of up to six digits (microsecond
// resolution; extra digits are truncated). Examples:
//
//	"30"              -> 30s
//	"10:20"           -> 10m20s
//	"1:10:20"         -> 1h10m20s
//	"30 00:00:00"     -> 720h (30 days)
//	"1 10:20:30.5"    -> 34h20m30.5s
//
// Negative durations are not part of the wire format and cannot be expressed.
func ParseBillingDuration(s string) (time.Duration, error) {
	fail := func() (time.Duration, error) {
		return 0, NewAppErrorWithDetails(
			ErrCodeValidationInvalidDuration,
			"duration must match [DD] [HH:[MM:]]ss[.uuuuuu]",
			nil,
			map[string]any{"duration": s},
		)
	}

	rest := s
	days := 0

	// Optional day prefix, separated by a single space.
	if before, after, found := strings.Cut(rest, " "); found {
		n, err := parseDigits(before)
		if err != nil {
			return fail()
		}
		days = n
		rest = after
	}

	// Optional fractional seconds. A comma separator is accepted alongside
	// the dot, matching the external billing system's formatter.
	micros := 0
	if i := strings.IndexAny(rest, ".,"); i >= 0 {
		frac := rest[i+1:]
		rest = rest[:i]
		if frac == "" {
			return fail()
		}
		if len(frac) > 6 {
			frac = frac[:6]
		}
		n, err := parseDigits(frac)
		if err != nil {
			return fail()
		}
		// Right-pad to microsecond resolution.
		for j := len(frac); j < 6; j++ {
			n *= 10
		}
		micros = n
	}

	// One to three colon-separated parts: ss, MM:ss, or HH:MM:ss.
	parts := strings.Split(rest, ":")
	if len(parts) > 3 {
		return fail()
	}
	var hours, minutes, seconds int
	for i, raw := range parts {
		n, err := parseDigits(raw)
		if err != nil {
			return fail()
		}
		switch len(parts) - i {
		case 3:
			hours = n
		case 2:
			minutes = n
		case 1:
			seconds = n
		}
	}

	d := time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(micros)*time.Microsecond
	return d, nil
}

// parseDigits parses a non-empty, digits-only string.
func parseDigits(s string) (int, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.Atoi(s)
}
