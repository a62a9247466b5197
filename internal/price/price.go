// Package price normalizes locale-ambiguous price strings.
package price

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	currencyPrefixes = []struct {
		re     *regexp.Regexp
		symbol string
	}{
		{regexp.MustCompile(`(?i)^EUR\s*`), "€"},
		{regexp.MustCompile(`(?i)^USD\s*`), "$"},
		{regexp.MustCompile(`(?i)^GBP\s*`), "£"},
	}
	whitespace   = regexp.MustCompile(`\s+`)
	numericRun   = regexp.MustCompile(`\d[\d.,]*`)
	pricePattern = regexp.MustCompile(`(?:€|EUR|\$|£|USD|GBP)\s?\d[\d.,]*|\d[\d.,]*\s?(?:€|EUR|\$|£)|\d+[.,]\d{2}\b`)
)

// Normalize maps a leading ISO currency code to its symbol and collapses
// whitespace. Empty input yields "".
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, p := range currencyPrefixes {
		if p.re.MatchString(s) {
			s = p.re.ReplaceAllString(s, p.symbol)
			break
		}
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Parse reads the first number in s. When both '.' and ',' occur, the later
// one is the decimal separator. When only one kind occurs it is a decimal
// separator only if exactly two digits follow its last occurrence.
func Parse(s string) (float64, bool) {
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' || r == '\u202f' || r == '\t' {
			return -1
		}
		return r
	}, s)
	run := strings.TrimRight(numericRun.FindString(s), ".,")
	if run == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(run, ".")
	lastComma := strings.LastIndex(run, ",")

	var normalized string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		dec, thou := ".", ","
		if lastComma > lastDot {
			dec, thou = ",", "."
		}
		normalized = strings.ReplaceAll(run, thou, "")
		normalized = strings.Replace(normalized, dec, ".", 1)
	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		idx := lastDot
		if lastComma >= 0 {
			sep, idx = ",", lastComma
		}
		if len(run)-idx-1 == 2 && strings.Count(run, sep) == 1 {
			normalized = strings.Replace(run, sep, ".", 1)
		} else {
			normalized = strings.ReplaceAll(run, sep, "")
		}
	default:
		normalized = run
	}

	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// GuardOldPrice returns old only when both values parse and old is strictly
// greater than current; anything else is treated as a mis-extraction.
func GuardOldPrice(current, old string) string {
	p, ok := Parse(current)
	if !ok {
		return ""
	}
	o, ok := Parse(old)
	if !ok || o <= p {
		return ""
	}
	return old
}

// LooksLike reports whether text contains something shaped like a price.
func LooksLike(text string) bool {
	return pricePattern.MatchString(text)
}

// Find returns the first price-shaped substring of text, normalized.
func Find(text string) string {
	text = strings.ReplaceAll(text, "\u00a0", " ")
	return Normalize(pricePattern.FindString(text))
}
