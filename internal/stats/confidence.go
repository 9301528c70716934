package stats

import "math"

// MeanSummary carries what the mean-difference test needs from one group:
// sample size, sample mean, and sample variance.
type MeanSummary struct {
	Size     int
	Mean     float64
	Variance float64
}

// ConfidenceProportions runs a two-proportion z-test on conversion counts
// and returns the two-sided confidence, as a percentage, that the test
// group's rate differs from control (z of about 1.96 maps to 95). Returns
// nil when either group is empty or the pooled standard error degenerates:
// pooled rates of 0 or 1, or rates above 1 (repeat conversions can push a
// count past the group size, and the test is meaningless there).
func ConfidenceProportions(controlConv, controlSize, testConv, testSize int) *float64 {
	if controlSize == 0 || testSize == 0 {
		return nil
	}

	pControl := float64(controlConv) / float64(controlSize)
	pTest := float64(testConv) / float64(testSize)

	// Pooled proportion under the null hypothesis (pControl = pTest)
	pooled := float64(controlConv+testConv) / float64(controlSize+testSize)
	if pooled <= 0 || pooled >= 1 {
		return nil
	}
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(controlSize) + 1/float64(testSize)))

	z := (pTest - pControl) / se
	return confidencePct(z)
}

// ConfidenceMeans runs a Welch z-test on the difference of group means.
// Returns nil when either group is empty, or when both variances and the
// difference are zero (confidence is undefined there, not 100). A zero
// standard error with a nonzero difference saturates at 100.
func ConfidenceMeans(control, test MeanSummary) *float64 {
	if control.Size == 0 || test.Size == 0 {
		return nil
	}

	diff := test.Mean - control.Mean
	se := math.Sqrt(control.Variance/float64(control.Size) + test.Variance/float64(test.Size))
	if se == 0 {
		if diff == 0 {
			return nil
		}
		full := 100.0
		return &full
	}

	return confidencePct(diff / se)
}

// Improvement is the relative change of test over control, as a
// percentage. Undefined (nil) unless the control value is positive; it is
// never reported as infinite.
func Improvement(control, test float64) *float64 {
	if control <= 0 {
		return nil
	}
	v := (test - control) / control * 100
	return &v
}

func confidencePct(z float64) *float64 {
	// Two-sided: probability mass of |Z| < |z|.
	pct := (2*normalCDF(math.Abs(z)) - 1) * 100
	if pct < 0 {
		pct = 0
	}
	return &pct
}

// normalCDF approximates the cumulative distribution function
// of the standard normal distribution
func normalCDF(x float64) float64 {
	// Use the approximation from Abramowitz and Stegun
	// Handbook of Mathematical Functions, formula 7.1.26
	a1 := 0.254829592
	a2 := -0.284496736
	a3 := 1.421413741
	a4 := -1.453152027
	a5 := 1.061405429
	p := 0.3275911

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt(2)

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}
