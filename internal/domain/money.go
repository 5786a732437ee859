package domain

import "math"

const DefaultCurrency = "GHS"

// ToMinorUnits converts a major-unit amount (cedis) to the gateway's minor unit (pesewas).
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func FromMinorUnits(minor int64) float64 {
	return float64(minor) / 100
}
