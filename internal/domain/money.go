package domain

import (
	"fmt"
	"strings"
)

// Money is a fixed-point currency amount in micro-units.
// 1 unit = 1,000,000 micros, so 0.01 units = 10,000.
type Money int64

// MicrosPerUnit is the fixed-point scale for Money.
const MicrosPerUnit = 1_000_000

// String renders the amount in whole units with trailing zeros trimmed,
// e.g. Money(10000) → "0.01".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / MicrosPerUnit
	frac := v % MicrosPerUnit
	if frac == 0 {
		return fmt.Sprintf("%s%d", sign, whole)
	}
	s := strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
	return fmt.Sprintf("%s%d.%s", sign, whole, s)
}
