package domain

import (
	"testing"
	"time"
)

func TestToTSCode(t *testing.T) {
	cases := map[string]string{
		"600000":    "600000.SH",
		"688981":    "688981.SH",
		"900901":    "900901.SH",
		"000001":    "000001.SZ",
		"300750":    "300750.SZ",
		"430047":    "430047.BJ",
		"830799":    "830799.BJ",
		"1":         "000001.SZ", // short codes are zero-padded
		"000001.SZ": "000001.SZ", // already suffixed passes through
	}
	for in, want := range cases {
		if got := ToTSCode(in); got != want {
			t.Errorf("ToTSCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFromTSCode(t *testing.T) {
	code, exch := FromTSCode("600000.SH")
	if code != "600000" || exch != "SH" {
		t.Errorf("FromTSCode(600000.SH) = %q, %q", code, exch)
	}
	code, exch = FromTSCode("000001")
	if code != "000001" || exch != "" {
		t.Errorf("FromTSCode(000001) = %q, %q", code, exch)
	}
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	in := time.Date(2024, 6, 15, 14, 30, 5, 0, loc)
	got := Day(in)
	want := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Day(%v) = %v, want %v", in, got, want)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-02")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.Year() != 2024 || d.Month() != time.January || d.Day() != 2 {
		t.Errorf("ParseDate returned %v", d)
	}
	if _, err := ParseDate("20240102"); err == nil {
		t.Error("ParseDate should reject compact dates")
	}
}

func TestDateRangeString(t *testing.T) {
	r := DateRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
	}
	if got := r.String(); got != "2024-01-01..2024-01-05" {
		t.Errorf("String() = %q", got)
	}
}
