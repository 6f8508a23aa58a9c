package analyzer

import (
	"math"
	"strconv"
)

// roundSignificant rounds x to the given number of significant digits.
// Non-finite values pass through unchanged.
func roundSignificant(x float64, digits int) float64 {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return x
	}
	v, err := strconv.ParseFloat(strconv.FormatFloat(x, 'g', digits, 64), 64)
	if err != nil {
		return x
	}
	return v
}

// effectivenessDigits is 2 for ratios below 1 and 3 otherwise.
func effectivenessDigits(x float64) int {
	if x < 1 {
		return 2
	}
	return 3
}

// FormatEffectiveness renders a maintenance effectiveness value with the
// same precision rule MaintenanceEffectiveness rounds with.
func FormatEffectiveness(x float64) string {
	return FormatSignificant(x, effectivenessDigits(x))
}

// FormatSignificant renders x with the given number of significant digits,
// using "+Inf", "-Inf" and "NaN" for non-finite values.
func FormatSignificant(x float64, digits int) string {
	return strconv.FormatFloat(x, 'g', digits, 64)
}

// effectiveness is the weighted closed/opened ratio. With nothing opened it
// degrades to closed+1, which is not a ratio.
func effectiveness(closed, opened int) float64 {
	if opened > 0 {
		ratio := float64(closed) / float64(opened)
		return roundSignificant(ratio, effectivenessDigits(ratio))
	}
	return float64(closed + 1)
}

// burnDown projects the years needed to clear the open backlog. Division
// follows IEEE semantics and may yield negative, infinite or NaN values.
func burnDown(open, closed, opened int, eff float64, w Window) float64 {
	if eff > 1 {
		return math.Inf(1)
	}
	years := float64(open) / float64(closed-opened) * (float64(w) / 52)
	return roundSignificant(years, 3)
}
