package mapping

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	reDate       = regexp.MustCompile(`\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}`)
	reIdentifier = regexp.MustCompile(`^[\d.,\-\s]+$`)
	reNumber     = regexp.MustCompile(`\d[\d.,]*\d|\d`)
	reSpacedKilo = regexp.MustCompile(`(\d)\s+(\d{3})\b`)
	reDecimal    = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// Four-digit years are tried before two-digit ones.
var dateLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/06",
	"2-1-06",
	"2.1.06",
}

// ParseDate finds the first day-month-year run in s and returns it with the
// layout that matched.
func ParseDate(s string) (time.Time, string, bool) {
	m := reDate.FindString(s)
	if m == "" {
		return time.Time{}, "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, m); err == nil {
			return t, layout, true
		}
	}
	return time.Time{}, "", false
}

// ParseIdentifier returns the digits of s after a leading label, with
// whitespace, dots, commas and hyphens removed. Any other character after the
// first digit makes the value invalid.
func ParseIdentifier(s string) (string, bool) {
	i := strings.IndexFunc(s, isDigit)
	if i < 0 {
		return "", false
	}
	rest := strings.TrimSpace(s[i:])
	if !reIdentifier.MatchString(rest) {
		return "", false
	}
	digits := strings.Map(func(r rune) rune {
		if isDigit(r) {
			return r
		}
		return -1
	}, rest)
	return digits, digits != ""
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// joinSpacedThousands turns "1 234 567,00" into "1234567,00".
func joinSpacedThousands(s string) string {
	for {
		next := reSpacedKilo.ReplaceAllString(s, "$1$2")
		if next == s {
			return s
		}
		s = next
	}
}

const (
	CurrencyARS = "ARS"
	CurrencyUSD = "USD"
)

// DetectCurrency looks for a currency code or symbol. Dollar-prefixed USD
// markers are checked before the bare peso sign.
func DetectCurrency(s string) (code string, at int) {
	up := strings.ToUpper(s)
	for _, m := range []string{"US$", "U$S", "USD"} {
		if i := strings.Index(up, m); i >= 0 {
			return CurrencyUSD, i + len(m)
		}
	}
	for _, m := range []string{"ARS", "$"} {
		if i := strings.Index(up, m); i >= 0 {
			return CurrencyARS, i + len(m)
		}
	}
	return "", -1
}

// ParseAmount reads a monetary value. The number right after a currency
// marker is preferred, otherwise the last number in s.
func ParseAmount(s string) (decimal.Decimal, string, bool) {
	currency, at := DetectCurrency(s)

	// Whitespace after the marker is OCR noise between digit groups.
	var src, token string
	if at >= 0 {
		src = stripSpace(s[at:])
		token = reNumber.FindString(src)
	}
	if token == "" {
		src = joinSpacedThousands(s)
		all := reNumber.FindAllString(src, -1)
		if len(all) == 0 {
			return decimal.Decimal{}, currency, false
		}
		token = all[len(all)-1]
	}

	norm, ok := normalizeNumber(token)
	if !ok {
		return decimal.Decimal{}, currency, false
	}
	d, err := decimal.NewFromString(norm)
	if err != nil {
		return decimal.Decimal{}, currency, false
	}
	if neg := strings.Contains(src, "-"+token); neg {
		d = d.Neg()
	}
	return d, currency, true
}

// normalizeNumber rewrites regional separators into a plain decimal string.
// With both separators present the later one is decimal. A lone separator is
// a thousands mark when repeated or followed by exactly three digits.
func normalizeNumber(tok string) (string, bool) {
	lastDot := strings.LastIndex(tok, ".")
	lastComma := strings.LastIndex(tok, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		dec, thou := ".", ","
		if lastComma > lastDot {
			dec, thou = ",", "."
		}
		tok = strings.ReplaceAll(tok, thou, "")
		if strings.Count(tok, dec) != 1 {
			return "", false
		}
		tok = strings.Replace(tok, dec, ".", 1)
	case lastDot >= 0 || lastComma >= 0:
		sep, idx := ".", lastDot
		if lastComma >= 0 {
			sep, idx = ",", lastComma
		}
		if strings.Count(tok, sep) > 1 || len(tok)-idx-1 == 3 {
			tok = strings.ReplaceAll(tok, sep, "")
		} else {
			tok = strings.Replace(tok, sep, ".", 1)
		}
	}
	if !reDecimal.MatchString(tok) {
		return "", false
	}
	return tok, true
}
