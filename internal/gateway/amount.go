package gateway

import "github.com/shopspring/decimal"

// ToMinorUnits converts a major-unit amount (rupees) into minor units
// (paise), rounding to the nearest paisa. Decimal arithmetic avoids the
// float drift of amount*100 on values like 19.999.
func ToMinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
}

// ToMajorUnits converts minor units back to a major-unit amount for
// gateways whose wire format carries rupees (Cashfree v3).
func ToMajorUnits(minor int64) float64 {
	f, _ := decimal.New(minor, -2).Float64()
	return f
}
