// Package effdate resolves relative effective-date tokens and converts
// record-format dates read from input files.
package effdate

import (
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
)

// ISOFormat is the CCYY-MM-DD format used for every date sent to TBA.
const ISOFormat = "CCYY-MM-DD"

// isoLayout is ISOFormat as a Go layout.
const isoLayout = "2006-01-02"

// Relative date tokens understood by Resolve.
const (
	CurrentDate         = "Current Date"
	LastDayOfMonth      = "Last day of the Month"
	FirstDayOfMonth     = "First day of the Month"
	FirstDayOfNextMonth = "First day of Next Month"
	StartOfCurrentYear  = "Start of current Year"
	EndOfCurrentYear    = "End of current Year"
	StartOfNextYear     = "Start of next Year"
	EndOfNextYear       = "End of next Year"
	NextDay             = "Next Day"
)

// Resolve returns the date named by token relative to now, formatted with
// format (a CCYY/YY/MM/DD pattern). Values that are not a known token are
// returned unchanged.
func Resolve(now time.Time, token, format string) string {
	d, ok := resolve(now, token)
	if !ok {
		return token
	}
	return d.Format(Layout(format))
}

// Known reports whether token is a relative date token.
func Known(token string) bool {
	_, ok := resolve(time.Now(), token)
	return ok
}

func resolve(now time.Time, token string) (time.Time, bool) {
	y, m, d := now.Date()
	loc := now.Location()
	switch token {
	case CurrentDate:
		return time.Date(y, m, d, 0, 0, 0, 0, loc), true
	case LastDayOfMonth:
		return time.Date(y, m+1, 0, 0, 0, 0, 0, loc), true
	case FirstDayOfMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc), true
	case FirstDayOfNextMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc).AddDate(0, 1, 0), true
	case StartOfCurrentYear:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc), true
	case EndOfCurrentYear:
		return time.Date(y, time.December, 31, 0, 0, 0, 0, loc), true
	case StartOfNextYear:
		return time.Date(y+1, time.January, 1, 0, 0, 0, 0, loc), true
	case EndOfNextYear:
		return time.Date(y+1, time.December, 31, 0, 0, 0, 0, loc), true
	case NextDay:
		return time.Date(y, m, d+1, 0, 0, 0, 0, loc), true
	default:
		return time.Time{}, false
	}
}

// Layout converts a date pattern such as "CCYY-MM-DD" or "MM/DD/YY" to a Go
// time layout. A year of four letters, or any year preceded by a "C" century
// marker, is a four-digit year. Other letters and punctuation are kept.
func Layout(format string) string {
	upper := strings.ToUpper(format)
	century := strings.Contains(upper, "C")
	var b strings.Builder
	runes := []rune(upper)
	for i := 0; i < len(runes); {
		r := runes[i]
		n := run(runes, i)
		switch {
		case r == 'C':
			i += n
			continue
		case r == 'Y':
			if century || n >= 4 {
				b.WriteString("2006")
			} else {
				b.WriteString("06")
			}
		case r == 'M':
			b.WriteString("01")
		case r == 'D':
			b.WriteString("02")
		case unicode.IsLetter(r):
			b.WriteString(string(runes[i : i+n]))
		default:
			b.WriteRune(r)
			n = 1
		}
		i += n
	}
	return b.String()
}

func run(runes []rune, i int) int {
	n := 1
	for i+n < len(runes) && runes[i+n] == runes[i] {
		n++
	}
	return n
}

// RecordLayout converts a layout recordFormat to a Go time layout. X(8) is
// a packed yyyymmdd value and X(10) an ISO date; other formats are date
// patterns where "cc" stands for a two-digit century.
func RecordLayout(recordFormat string) string {
	f := strings.ToLower(recordFormat)
	switch {
	case strings.Contains(f, "x(8)"):
		return "20060102"
	case strings.Contains(f, "x(10)"):
		return isoLayout
	}
	f = strings.ReplaceAll(f, "cc", "yy")
	f = strings.ReplaceAll(f, "yyyy", "2006")
	f = strings.ReplaceAll(f, "yy", "06")
	f = strings.ReplaceAll(f, "mm", "01")
	f = strings.ReplaceAll(f, "dd", "02")
	return f
}

// Convert parses value using the record format and returns it as an ISO
// date. A blank value resolves to today.
func Convert(now time.Time, value, recordFormat string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return now.Format(isoLayout), nil
	}
	t, err := time.Parse(RecordLayout(recordFormat), strings.TrimSpace(value))
	if err != nil {
		return "", eris.Wrapf(err, "effdate: parse %q as %q", value, recordFormat)
	}
	return t.Format(isoLayout), nil
}
