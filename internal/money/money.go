// Package money implements the fixed-point representation used for every
// price and position value in the engine, together with the decimal-string
// parsers that sit at the edge of the system (broker RPC responses, scraped
// metric files).
package money

import (
	"strconv"
	"strings"
)

// Fixed is a fixed-point monetary value: units plus nano (one billionth of a
// unit). When units is negative, nano carries the same sign and is treated
// as an additional fractional offset in the same direction.
type Fixed struct {
	Units int64
	Nano  int64
}

// New builds a Fixed from units and nano, matching the broker RPC convention
// where nano may be present without units (units defaults to zero).
func New(units, nano int64) Fixed {
	return Fixed{Units: units, Nano: nano}
}

// ToNumber converts a Fixed to its IEEE-754 double value. This is the only
// place units/nano are combined into an approximate value; the engine
// performs no further fixed-point arithmetic.
func (f Fixed) ToNumber() float64 {
	return float64(f.Units) + float64(f.Nano)/1e9
}

// FromNumber constructs the Fixed representation that is exact for a value
// given to nanosecond-equivalent (1e-9) granularity.
func FromNumber(v float64) Fixed {
	units := int64(v)
	frac := v - float64(units)
	nano := int64(frac*1e9 + sign(frac)*0.5)
	return Fixed{Units: units, Nano: nano}
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// Currency is the detected currency of a parsed money string.
type Currency string

const (
	RUB Currency = "RUB"
	USD Currency = "USD"
	EUR Currency = "EUR"
)

// ParseResult is the outcome of parsing a decimal money string. Present is
// false when the input was non-positive or unparseable — callers must treat
// that as "absent", not zero.
type ParseResult struct {
	Value    float64
	Currency Currency
	Present  bool
}

// Parse interprets strings such as "1 234 567,89 руб", "$1,234.56" or
// "€999" into a positive decimal value and a detected currency. Currency is
// inferred from the leading/trailing symbol; absence of a recognized symbol
// defaults to RUB, matching the broker's native currency.
//
// Returns Present=false for non-positive or unparseable inputs — the caller
// must not substitute zero for "could not parse".
func Parse(s string) ParseResult {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ParseResult{}
	}

	currency := RUB
	switch {
	case strings.ContainsRune(trimmed, '$'):
		currency = USD
	case strings.ContainsRune(trimmed, '€'):
		currency = EUR
	}

	var b strings.Builder
	for _, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ',' || r == '.':
			b.WriteByte('.')
		case r == '-':
			b.WriteRune(r)
		default:
			// thousands separators (space, NBSP), currency symbols and
			// trailing currency names are all dropped silently.
		}
	}

	cleaned := normalizeDecimalSeparators(b.String())
	if cleaned == "" {
		return ParseResult{}
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v <= 0 {
		return ParseResult{}
	}

	return ParseResult{Value: v, Currency: currency, Present: true}
}

// normalizeDecimalSeparators keeps only the last '.' as the decimal point
// and removes the rest, so "1.234.567.89" (thousands '.' plus decimal ',')
// collapses to "1234567.89".
func normalizeDecimalSeparators(s string) string {
	last := strings.LastIndexByte(s, '.')
	if last == -1 {
		return s
	}
	var b strings.Builder
	for i, r := range s {
		if r == '.' && i != last {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
