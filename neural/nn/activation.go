package nn

import "math"

const geluCoeff = 0.044715

// GELU applies the tanh approximation of the Gaussian error linear unit.
func GELU(x float64) float64 {
	return 0.5 * x * (1 + math.Tanh(math.Sqrt(2/math.Pi)*(x+geluCoeff*x*x*x)))
}

// GELUDerivative is the derivative of the tanh-approximated GELU.
func GELUDerivative(x float64) float64 {
	k := math.Sqrt(2 / math.Pi)
	inner := k * (x + geluCoeff*x*x*x)
	tanhInner := math.Tanh(inner)
	sech2 := 1 - tanhInner*tanhInner
	return 0.5*(1+tanhInner) + 0.5*x*sech2*k*(1+3*geluCoeff*x*x)
}

// TanhDerivative returns the derivative of tanh given its output value.
func TanhDerivative(tanhOut float64) float64 {
	return 1 - tanhOut*tanhOut
}
