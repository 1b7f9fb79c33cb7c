package signal

import (
	"math"

	"pairwatch/internal/model"
)

// minADFObservations is the smallest spread series the test will run on.
const minADFObservations = 20

// ReasonInsufficientData tags a stationarity result that could not be
// computed because the spread series is too short.
const ReasonInsufficientData = "insufficient data"

// StationarityResult is the outcome of the ADF test on the spread series.
// It is always a value, never a propagated error: callers display the reason
// instead of crashing.
type StationarityResult struct {
	TestStatistic  model.NullFloat    `json:"test_statistic"`
	PValue         model.NullFloat    `json:"p_value"`
	IsStationary   bool               `json:"is_stationary"` // p < 0.05
	CriticalValues map[string]float64 `json:"critical_values,omitempty"`
	Reason         string             `json:"reason,omitempty"` // set when the test did not run
}

func insufficientData() StationarityResult {
	return StationarityResult{Reason: ReasonInsufficientData}
}

// ADFTest runs an Augmented Dickey-Fuller test (constant, no trend) on the
// series. Fewer than 20 observations yields the explicit insufficient-data
// result; an internally singular regression yields an error-tagged result.
//
// The difference regression is
//
//	dy_t = alpha + gamma*y_{t-1} + b_1*dy_{t-1} + ... + b_p*dy_{t-p} + e_t
//
// with the lag order p from the Schwert rule, capped so the regression keeps
// enough degrees of freedom. The test statistic is the t-ratio of gamma.
func ADFTest(series []float64) StationarityResult {
	y := dropNonFinite(series)
	n := len(y)
	if n < minADFObservations {
		return insufficientData()
	}

	// First differences.
	dy := make([]float64, n-1)
	for i := 1; i < n; i++ {
		dy[i-1] = y[i] - y[i-1]
	}

	p := lagOrder(n)

	// Observations usable after lagging: dy[p:] regressed on a constant,
	// y lagged one period, and p lagged differences.
	nObs := len(dy) - p
	k := p + 2 // constant + level term + p difference lags
	if nObs <= k {
		return insufficientData()
	}

	X := make([][]float64, nObs)
	target := make([]float64, nObs)
	for t := 0; t < nObs; t++ {
		row := make([]float64, k)
		row[0] = 1.0
		row[1] = y[p+t] // level lag: y_{t-1} for dy at index p+t
		for j := 1; j <= p; j++ {
			row[1+j] = dy[p+t-j]
		}
		X[t] = row
		target[t] = dy[p+t]
	}

	beta, se, ok := olsWithStdErr(X, target)
	if !ok {
		return StationarityResult{Reason: "singular regression"}
	}

	gamma := beta[1]
	seGamma := se[1]
	if seGamma == 0 || math.IsNaN(seGamma) || math.IsInf(seGamma, 0) {
		return StationarityResult{Reason: "degenerate regression variance"}
	}

	tStat := gamma / seGamma
	effN := float64(nObs)
	crit := map[string]float64{
		"1%":  macKinnonCritical(effN, 0),
		"5%":  macKinnonCritical(effN, 1),
		"10%": macKinnonCritical(effN, 2),
	}
	pValue := approxPValue(tStat, crit)

	return StationarityResult{
		TestStatistic:  model.Float(tStat),
		PValue:         model.Float(pValue),
		IsStationary:   pValue < 0.05,
		CriticalValues: crit,
	}
}

// lagOrder applies the Schwert rule 12*(n/100)^(1/4), capped so at least
// ~3 observations remain per regressor.
func lagOrder(n int) int {
	p := int(12.0 * math.Pow(float64(n)/100.0, 0.25))
	if limit := (n-1)/3 - 2; p > limit {
		p = limit
	}
	if p < 0 {
		p = 0
	}
	return p
}

func dropNonFinite(series []float64) []float64 {
	out := make([]float64, 0, len(series))
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// olsWithStdErr solves the least-squares problem via the normal equations and
// returns the coefficients together with their standard errors. ok is false
// when X'X is singular.
func olsWithStdErr(X [][]float64, y []float64) (beta, se []float64, ok bool) {
	n := len(X)
	k := len(X[0])

	// Build X'X and X'y.
	xtx := make([][]float64, k)
	xty := make([]float64, k)
	for i := 0; i < k; i++ {
		xtx[i] = make([]float64, k)
	}
	for t := 0; t < n; t++ {
		for i := 0; i < k; i++ {
			xty[i] += X[t][i] * y[t]
			for j := i; j < k; j++ {
				xtx[i][j] += X[t][i] * X[t][j]
			}
		}
	}
	for i := 1; i < k; i++ {
		for j := 0; j < i; j++ {
			xtx[i][j] = xtx[j][i]
		}
	}

	inv, ok := invert(xtx)
	if !ok {
		return nil, nil, false
	}

	beta = make([]float64, k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			beta[i] += inv[i][j] * xty[j]
		}
	}

	// Residual variance s^2 = RSS / (n - k).
	var rss float64
	for t := 0; t < n; t++ {
		fitted := 0.0
		for i := 0; i < k; i++ {
			fitted += X[t][i] * beta[i]
		}
		r := y[t] - fitted
		rss += r * r
	}
	if n <= k {
		return nil, nil, false
	}
	s2 := rss / float64(n-k)

	se = make([]float64, k)
	for i := 0; i < k; i++ {
		v := s2 * inv[i][i]
		if v < 0 {
			v = 0
		}
		se[i] = math.Sqrt(v)
	}
	return beta, se, true
}

// invert computes the inverse of a small symmetric matrix by Gauss-Jordan
// elimination with partial pivoting. ok is false for singular input.
func invert(m [][]float64) ([][]float64, bool) {
	k := len(m)
	a := make([][]float64, k)
	inv := make([][]float64, k)
	for i := 0; i < k; i++ {
		a[i] = make([]float64, k)
		copy(a[i], m[i])
		inv[i] = make([]float64, k)
		inv[i][i] = 1
	}

	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		inv[col], inv[pivot] = inv[pivot], inv[col]

		pv := a[col][col]
		for j := 0; j < k; j++ {
			a[col][j] /= pv
			inv[col][j] /= pv
		}
		for r := 0; r < k; r++ {
			if r == col {
				continue
			}
			f := a[r][col]
			if f == 0 {
				continue
			}
			for j := 0; j < k; j++ {
				a[r][j] -= f * a[col][j]
				inv[r][j] -= f * inv[col][j]
			}
		}
	}
	return inv, true
}

// macKinnonCritical returns the finite-sample critical value for the
// constant-only Dickey-Fuller distribution (MacKinnon 2010 response surface).
// level: 0 = 1%, 1 = 5%, 2 = 10%.
func macKinnonCritical(n float64, level int) float64 {
	// Coefficients for tau_c: b0 + b1/T + b2/T^2 + b3/T^3.
	coeffs := [3][4]float64{
		{-3.43035, -6.5393, -16.786, -79.433}, // 1%
		{-2.86154, -2.8903, -4.234, -40.040},  // 5%
		{-2.56677, -1.5384, -2.809, 0},        // 10%
	}
	c := coeffs[level]
	return c[0] + c[1]/n + c[2]/(n*n) + c[3]/(n*n*n)
}

// approxPValue maps the test statistic onto an approximate p-value by
// interpolating across the 1/5/10% critical values. Coarser than the full
// MacKinnon surface but monotone and adequate for the 0.05 decision cut.
func approxPValue(tStat float64, crit map[string]float64) float64 {
	cv1, cv5, cv10 := crit["1%"], crit["5%"], crit["10%"]

	switch {
	case tStat <= cv1:
		// Deep in the rejection region.
		return 0.001
	case tStat <= cv5:
		return interpolate(tStat, cv1, 0.01, cv5, 0.05)
	case tStat <= cv10:
		return interpolate(tStat, cv5, 0.05, cv10, 0.10)
	case tStat >= 0:
		return 0.99
	default:
		// Between the 10% critical value and zero: stretch toward 0.99.
		return interpolate(tStat, cv10, 0.10, 0, 0.99)
	}
}

func interpolate(x, x0, y0, x1, y1 float64) float64 {
	if x1 == x0 {
		return y0
	}
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}
