package domain

import "math"

// Buffer is the tolerance band in °C around the safe bounds that yields
// StatusAtRisk instead of StatusUnsafe.
const Buffer = 2.0

// Classify maps a temperature to a safety status against [min, max].
// Bounds are not validated here; callers reject min > max upstream.
func Classify(temperature, min, max float64) Status {
	switch {
	case temperature >= min && temperature <= max:
		return StatusSafe
	case temperature > max && temperature <= max+Buffer:
		return StatusAtRisk
	case temperature < min && temperature >= min-Buffer:
		return StatusAtRisk
	default:
		return StatusUnsafe
	}
}

// ClassifyWithin is Classify against a TempLimits value.
func ClassifyWithin(temperature float64, limits TempLimits) Status {
	return Classify(temperature, limits.Min, limits.Max)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidateTemperature rejects NaN and infinite readings.
func ValidateTemperature(t float64) error {
	if !finite(t) {
		return InvalidArgumentf("temperature must be a finite number")
	}
	return nil
}
