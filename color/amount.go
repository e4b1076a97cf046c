package color

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxDivisibility is the largest supported number of decimal places.
const MaxDivisibility = 18

// Divisibility returns the number of decimal places user facing amounts of
// this color are expressed in. Definitions without the metadata entry are
// not divisible.
func (d *Definition) Divisibility() (uint8, error) {
	raw, ok := d.metadata[MetadataDivisibility]
	if !ok || raw == "" {
		return 0, nil
	}

	div, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid divisibility %q: %w", raw, err)
	}
	if div > MaxDivisibility {
		return 0, fmt.Errorf("divisibility %d exceeds max of %d", div,
			MaxDivisibility)
	}

	return uint8(div), nil
}

// ParseAmount converts a user facing decimal amount like "1.25" into a
// quantity of base units.
func (d *Definition) ParseAmount(amount string) (uint64, error) {
	div, err := d.Divisibility()
	if err != nil {
		return 0, err
	}

	whole, frac, hasFrac := strings.Cut(strings.TrimSpace(amount), ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if hasFrac && len(frac) > int(div) {
		return 0, fmt.Errorf("amount %q has more than %d decimal places",
			amount, div)
	}
	frac += strings.Repeat("0", int(div)-len(frac))

	digits := whole + frac
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid amount %q", amount)
		}
	}

	qty, err := strconv.ParseUint(digits, 10, 64)
	if err != nil || qty > math.MaxInt64 {
		return 0, fmt.Errorf("amount %q out of range", amount)
	}

	return qty, nil
}

// FormatAmount renders a quantity of base units as a user facing decimal
// amount.
func (d *Definition) FormatAmount(qty uint64) string {
	div, err := d.Divisibility()
	if err != nil || div == 0 {
		return strconv.FormatUint(qty, 10)
	}

	digits := strconv.FormatUint(qty, 10)
	if len(digits) <= int(div) {
		digits = strings.Repeat("0", int(div)-len(digits)+1) + digits
	}

	split := len(digits) - int(div)
	whole, frac := digits[:split], strings.TrimRight(digits[split:], "0")
	if frac == "" {
		return whole
	}

	return whole + "." + frac
}
