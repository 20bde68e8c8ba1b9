package provider

import "strings"

// BanDetector classifies an error as "provider is blocking us" versus an
// ordinary transient failure. The provider gives no structured signal, so
// classification works on the error text; the pattern set is injectable so
// it can be tuned without touching callers.
type BanDetector interface {
	IsBan(err error) bool
}

// defaultBanPatterns are the phrases the provider is known to emit when
// throttling or blocking a caller, including the Chinese wording of the
// tushare quota messages. Matched case-insensitively as substrings.
var defaultBanPatterns = []string{
	"访问频繁",
	"请稍后",
	"超过频率",
	"频繁访问",
	"too many requests",
	"429",
	"forbidden",
	"403",
	"max retries exceeded",
}

// PatternBanDetector matches error text against a fixed phrase list.
// Stateless and safe for concurrent use.
type PatternBanDetector struct {
	patterns []string
}

// NewPatternBanDetector creates a detector for the given phrases, or the
// default tushare set when none are supplied.
func NewPatternBanDetector(patterns ...string) *PatternBanDetector {
	if len(patterns) == 0 {
		patterns = defaultBanPatterns
	}
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return &PatternBanDetector{patterns: lowered}
}

// IsBan reports whether the error text contains any ban-indicative phrase.
func (d *PatternBanDetector) IsBan(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range d.patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
