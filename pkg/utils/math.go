package utils

import "math"

// Sigmoid maps z to (0, 1). Large |z| saturates instead of overflowing.
func Sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
