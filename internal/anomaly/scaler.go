package anomaly

import "math"

// StandardScaler rescales values to zero mean and unit variance using the
// population standard deviation of the fitted sample.
type StandardScaler struct {
	Mean  float64
	Scale float64
}

// FitScaler computes the mean and scale of values. A constant sample gets a
// scale of 1 so Transform stays finite.
func FitScaler(values []float64) (StandardScaler, error) {
	if len(values) == 0 {
		return StandardScaler{}, ErrInsufficientData
	}

	var sum float64
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return StandardScaler{}, ErrNonFinite
		}
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	scale := math.Sqrt(variance / float64(len(values)))
	if scale < 10*epsilon {
		scale = 1
	}

	return StandardScaler{Mean: mean, Scale: scale}, nil
}

// Transform maps v into the fitted scale.
func (s StandardScaler) Transform(v float64) float64 {
	return (v - s.Mean) / s.Scale
}

const epsilon = 2.220446049250313e-16
