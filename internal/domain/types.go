// Package domain defines the value types shared across the sync engine:
// securities, daily bars, and the date ranges the reconciliation pass works
// in. All dates are normalized to midnight UTC; a "date" here never carries a
// time-of-day component.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical on-disk and on-wire date format.
const DateLayout = "2006-01-02"

// Stock identifies one listed A-share security.
type Stock struct {
	Code       string // 6-digit exchange code, e.g. "000001"
	TSCode     string // provider code with exchange suffix, e.g. "000001.SZ"
	Name       string
	Area       string
	Industry   string
	Market     string // board: 主板 / 创业板 / 科创板 / 北交所
	Exchange   string // "SH", "SZ", or "BJ"
	ListStatus string // "L" listed, "D" delisted, "P" suspended
	ListDate   time.Time
	// LastUpdate is the latest date known fully persisted for this code.
	// Zero means the code has never been synced.
	LastUpdate time.Time
}

// Bar is one daily OHLCV record for a security. Immutable once correct;
// re-fetching the same (Code, Date) overwrites in place.
type Bar struct {
	Code     string
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	PreClose float64
	Change   float64
	Volume   int64
	Amount   float64
}

// DateRange is an inclusive [Start, End] interval of dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// MissingRange is a maximal contiguous run of missing trading dates for one
// security. Derived on each reconciliation pass, never persisted.
type MissingRange = DateRange

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.Start.Format(DateLayout), r.End.Format(DateLayout))
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date string into a midnight-UTC time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

// ToTSCode maps a 6-digit code to the provider's suffixed form. Codes
// starting with 60/68/9 trade on Shanghai, 4/8 on Beijing, the rest on
// Shenzhen. Codes that already carry a suffix are returned unchanged.
func ToTSCode(code string) string {
	if strings.HasSuffix(code, ".SH") || strings.HasSuffix(code, ".SZ") || strings.HasSuffix(code, ".BJ") {
		return code
	}
	for len(code) < 6 {
		code = "0" + code
	}
	switch {
	case strings.HasPrefix(code, "60"), strings.HasPrefix(code, "68"), strings.HasPrefix(code, "9"):
		return code + ".SH"
	case strings.HasPrefix(code, "4"), strings.HasPrefix(code, "8"):
		return code + ".BJ"
	default:
		return code + ".SZ"
	}
}

// FromTSCode strips the exchange suffix, returning the bare code and the
// exchange ("SH"/"SZ"/"BJ", empty if no suffix was present).
func FromTSCode(tsCode string) (code, exchange string) {
	if i := strings.IndexByte(tsCode, '.'); i >= 0 {
		return tsCode[:i], tsCode[i+1:]
	}
	return tsCode, ""
}
