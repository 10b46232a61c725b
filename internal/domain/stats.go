package domain

import "math"

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Variance returns the population variance of values, or 0 when fewer than
// two values are given.
func Variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation of values.
func StdDev(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

// PearsonCorrelation returns the Pearson correlation coefficient between xs
// and ys. It returns 0 when the slices differ in length, carry fewer than
// two points, or either side has zero variance.
func PearsonCorrelation(xs, ys []float64) float64 {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0
	}

	meanX, meanY := Mean(xs), Mean(ys)
	var cov, varX, varY float64
	for i := range xs {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

// FleissKappa computes Fleiss' kappa for binary votes. votes[i] holds the
// per-rater verdicts for subject i; every subject must have the same rater
// count n >= 2. It returns the chance-corrected agreement, with the
// degenerate expected-agreement-1 case mapped to 1 on perfect observed
// agreement and 0 otherwise.
func FleissKappa(votes [][]bool) float64 {
	if len(votes) == 0 {
		return 0
	}
	n := len(votes[0])
	if n < 2 {
		return 0
	}

	var sumPi float64
	var totalPass, totalVotes float64
	for _, subject := range votes {
		if len(subject) != n {
			return 0
		}
		pass := 0
		for _, v := range subject {
			if v {
				pass++
			}
		}
		fail := n - pass
		pi := float64(pass*(pass-1)+fail*(fail-1)) / float64(n*(n-1))
		sumPi += pi
		totalPass += float64(pass)
		totalVotes += float64(n)
	}

	pBar := sumPi / float64(len(votes))
	pPass := totalPass / totalVotes
	pFail := 1 - pPass
	pExpected := pPass*pPass + pFail*pFail

	if 1-pExpected == 0 {
		// All votes landed in one category. Perfect observed agreement
		// maps to 1, anything less to 0.
		if pBar == 1 {
			return 1
		}
		return 0
	}
	return (pBar - pExpected) / (1 - pExpected)
}

// Clamp01 restricts v to the closed unit interval.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// NormalQuantile returns the inverse standard normal CDF at p, using the
// Acklam rational approximation (relative error below 1.15e-9 across the
// open unit interval). p outside (0, 1) yields ±Inf.
func NormalQuantile(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}

	a := [6]float64{
		-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00,
	}
	b := [5]float64{
		-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01,
	}
	c := [6]float64{
		-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00,
	}
	d := [4]float64{
		7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00,
		3.754408661907416e+00,
	}

	const pLow = 0.02425
	const pHigh = 1 - pLow

	switch {
	case p < pLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p > pHigh:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	default:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	}
}
