package report

import (
	"strconv"
	"strings"

	"digiprofile/api/internal/catalog"
	"digiprofile/api/internal/stats"
)

// devanagariDigits maps ASCII digits to their Devanagari forms.
var devanagariDigits = strings.NewReplacer(
	"0", "०", "1", "१", "2", "२", "3", "३", "4", "४",
	"5", "५", "6", "६", "7", "७", "8", "८", "9", "९",
)

// localizeDigits rewrites ASCII digits for lang.
func localizeDigits(s string, lang catalog.Lang) string {
	if lang == catalog.LangNepali {
		return devanagariDigits.Replace(s)
	}
	return s
}

// groupThousands inserts commas every three digits: 1234567 -> 1,234,567.
func groupThousands(n int64) string {
	digits := strconv.FormatInt(n, 10)
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	if len(digits) <= 3 {
		return sign + digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return sign + b.String()
}

func formatNumber(n int64, lang catalog.Lang) string {
	return localizeDigits(groupThousands(n), lang)
}

func formatPercent(p stats.Percent, lang catalog.Lang) string {
	return localizeDigits(p.String(), lang) + "%"
}
