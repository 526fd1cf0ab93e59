package timesheet

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// DURATION TEXT - HH:MM elapsed time, never a clock time
// =============================================================================

const (
	maxHours   = 23
	maxMinutes = 59
)

// NormalizeDuration coerces free text into "HH:MM" (or "" when no digits
// remain). Input is never rejected:
//
//	"5"     -> "05:00"    one or two digits are hours
//	"130"   -> "01:30"    three digits are H:MM
//	"0830"  -> "08:30"    four digits are HH:MM, extra digits are ignored
//	"8:5"   -> "08:05"
//	"1:2:3" -> "01:23"    only the first colon counts
//	"25:99" -> "23:59"    hours above 23 clamp to 23:59
//	"9:75"  -> "09:59"    minutes above 59 clamp to 59
func NormalizeDuration(raw string) string {
	var b strings.Builder
	colon := false
	digits := 0
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == ':' && !colon:
			b.WriteRune(r)
			colon = true
		}
	}
	if digits == 0 {
		return ""
	}

	s := b.String()
	var hourText, minuteText string
	if i := strings.IndexByte(s, ':'); i >= 0 {
		hourText, minuteText = firstN(s[:i], 2), firstN(s[i+1:], 2)
	} else {
		s = firstN(s, 4)
		switch len(s) {
		case 1, 2:
			hourText = s
		case 3:
			hourText, minuteText = s[:1], s[1:]
		default:
			hourText, minuteText = s[:2], s[2:]
		}
	}

	h, m := atoi(hourText), atoi(minuteText)
	if h > maxHours {
		h, m = maxHours, maxMinutes
	}
	if m > maxMinutes {
		m = maxMinutes
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

// ParseMinutes converts duration text to minutes. Text is normalised first,
// so "" and unparseable input count as zero.
func ParseMinutes(text string) int {
	n := NormalizeDuration(text)
	if n == "" {
		return 0
	}
	return atoi(n[:2])*60 + atoi(n[3:])
}

// FormatMinutes renders minutes as "HH:MM", "" for zero. Values beyond
// 23:59 clamp the same way typed input does.
func FormatMinutes(minutes int) string {
	if minutes <= 0 {
		return ""
	}
	h, m := minutes/60, minutes%60
	if h > maxHours {
		h, m = maxHours, maxMinutes
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

func firstN(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
