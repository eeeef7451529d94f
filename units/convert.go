package units

import (
	"math"
	"strings"

	"github.com/kaleidoswap/desktop-app-sub002/payerr"
	"github.com/shopspring/decimal"
)

// MaxPrecision is the largest number of fractional digits an asset may
// declare.
const MaxPrecision = 18

// maxBaseUnits is the largest amount representable in base units.
var maxBaseUnits = decimal.NewFromInt(math.MaxInt64)

// ToDisplay formats an amount given in base units as a decimal string with
// exactly precision fractional digits and a comma grouped integer part.
func ToDisplay(base int64, precision uint8) string {
	return groupThousands(ToPlain(base, precision))
}

// ToPlain is ToDisplay without thousands separators.
func ToPlain(base int64, precision uint8) string {
	p := int32(precision)
	return decimal.New(base, -p).StringFixed(p)
}

// FromDisplay parses a display string into base units of an asset with the
// given precision.
//
// Everything but digits, the decimal point and a leading minus is stripped
// first, so grouping separators and unit suffixes are ignored. The value is
// rounded half away from zero to the nearest base unit. An empty string is
// zero; a lone decimal point or minus sign yields an error matching
// payerr.ErrStillTyping.
func FromDisplay(text string, precision uint8) (int64, error) {
	if text == "" {
		return 0, nil
	}

	clean := cleanNumeric(text)
	if strings.Count(clean, ".") > 1 {
		return 0, payerr.New(
			payerr.ParseFailure, "%q has more than one decimal "+
				"point", text,
		)
	}

	switch clean {
	case "":
		return 0, payerr.New(
			payerr.ParseFailure, "%q is not a number", text,
		)

	case ".", "-", "-.":
		return 0, payerr.NewStillTyping(text)
	}

	d, err := decimal.NewFromString(normalizeDecimal(clean))
	if err != nil {
		return 0, payerr.New(
			payerr.ParseFailure, "%q is not a number", text,
		)
	}

	d = d.Shift(int32(precision)).Round(0)
	if d.Abs().GreaterThan(maxBaseUnits) {
		return 0, payerr.New(
			payerr.ParseFailure, "%q exceeds the maximum "+
				"representable amount", text,
		)
	}

	return d.IntPart(), nil
}

// FromDisplayMax parses like FromDisplay and additionally rejects values above
// max, the largest amount the rail can represent. Values are never
// truncated to fit.
func FromDisplayMax(text string, precision uint8, max int64) (int64, error) {
	v, err := FromDisplay(text, precision)
	if err != nil {
		return 0, err
	}

	if v > max {
		return 0, payerr.New(
			payerr.OutOfRange, "%v exceeds the maximum "+
				"representable amount %v",
			ToDisplay(v, precision), ToDisplay(max, precision),
		)
	}

	return v, nil
}

// FormatInput normalises text while the user is still typing it. Digits and
// the first decimal point are kept, a trailing decimal point is preserved and
// the value is only regrouped once its fraction is longer than precision, at
// which point it is rounded to precision.
func FormatInput(text string, precision uint8) string {
	var b strings.Builder
	seenDot := false
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)

		case r == '.' && !seenDot:
			seenDot = true
			b.WriteRune(r)
		}
	}
	clean := b.String()

	if clean == "" || clean == "." {
		return clean
	}

	if strings.HasSuffix(text, ".") {
		return clean
	}

	if idx := strings.IndexByte(clean, '.'); idx >= 0 &&
		len(clean)-idx-1 <= int(precision) {

		return clean
	}

	d, err := decimal.NewFromString(normalizeDecimal(clean))
	if err != nil {
		return clean
	}

	rounded := d.Round(int32(precision)).String()
	return groupThousands(rounded)
}

// cleanNumeric keeps digits, decimal points and a leading minus sign.
func cleanNumeric(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)

		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		}
	}

	return b.String()
}

// normalizeDecimal turns "12." into "12" and ".5" into "0.5" so the decimal
// parser accepts partially typed input.
func normalizeDecimal(s string) string {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimSuffix(s, ".")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	if neg {
		return "-" + s
	}

	return s
}

// groupThousands inserts a comma between every group of three digits of the
// integer part of a plain decimal string.
func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}

	intPart, frac := s, ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart, frac = s[:idx], s[idx:]
	}

	if len(intPart) <= 3 {
		return sign + intPart + frac
	}

	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}

	return sign + b.String() + frac
}
