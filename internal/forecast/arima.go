package forecast

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Order is the ARIMA order triple: autoregressive lag count, differencing
// degree, moving-average lag count.
type Order struct {
	P int `json:"p"`
	D int `json:"d"`
	Q int `json:"q"`
}

// DefaultOrder is the order used when the caller does not override it.
var DefaultOrder = Order{P: 2, D: 1, Q: 2}

func (o Order) String() string { return fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Q) }

// MinObservations returns the minimum series length the fitting procedure
// needs for this order: enough differenced points to overdetermine both least
// squares stages.
func (o Order) MinObservations() int {
	m := o.P + o.Q
	if m < 1 {
		m = 1
	}
	return o.D + 2*m + 2
}

const (
	refineBudget  = 25
	refineTol     = 1e-8
	divergenceTol = 1.0

	// maClampSum bounds the absolute sum of the MA estimates. A sum below one
	// keeps every root of the MA polynomial outside the unit circle, so the
	// residual recursion stays stable; collinear designs can otherwise send
	// the raw estimates orders of magnitude past it.
	maClampSum = 0.95

	// degenerateRatio flags a series the long autoregression reproduces to
	// rounding error (pure trend, sinusoid). The innovation proxies are then
	// numerically zero and the MA terms unidentifiable.
	degenerateRatio = 1e-7

	residualBlowup = 1e6
)

// Model holds fitted ARIMA coefficients and the state needed to extend the
// series forward.
type Model struct {
	Order     Order
	Phi       []float64 // AR coefficients, lag 1..P
	Theta     []float64 // MA coefficients, lag 1..Q
	Intercept float64

	wTail      []float64 // trailing values of the differenced series
	eTail      []float64 // trailing residuals
	lastLevels []float64 // last value at each differencing level 0..D-1
}

// Fit estimates an ARIMA model on a univariate series using two-stage least
// squares (a long autoregression to proxy the innovations, then a regression
// on lagged values and lagged residuals), refined by re-estimating residuals
// until the coefficients settle or the iteration budget runs out. MA
// estimates are held inside the invertible region and refinement updates are
// damped; a series the long autoregression fits exactly falls back to a pure
// AR estimate, since its MA terms are unidentifiable.
//
// The procedure is deterministic: the same series and order always produce
// the same model.
func Fit(series []float64, order Order) (*Model, error) {
	if order.P < 0 || order.D < 0 || order.Q < 0 || order.P+order.Q == 0 {
		return nil, fmt.Errorf("invalid order %s", order)
	}
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("series contains non-finite values")
		}
	}
	if need := order.MinObservations(); len(series) < need {
		return nil, &InsufficientDataError{Need: need, Have: len(series)}
	}

	w, lastLevels := difference(series, order.D)

	// Stage 1: long AR to estimate innovations.
	m := order.P + order.Q
	resid, err := longARResiduals(w, m)
	if err != nil {
		return nil, err
	}

	// Stage 2: regress w[t] on its P lags and Q lagged residuals, then refine
	// the residual estimates with the fitted model and repeat. MA estimates
	// are rescaled into the invertible region and updates damped, so the
	// residual recursion cannot run away between iterations.
	var beta []float64
	if rms(resid[m:]) <= degenerateRatio*(1+rms(w)) {
		// The long autoregression reproduces the series to rounding error,
		// leaving no innovation signal for the MA columns. Fit the AR part
		// alone and leave the MA terms at zero.
		beta, err = armaRegression(w, resid, order.P, 0, m)
		if err != nil {
			return nil, err
		}
		beta = append(beta, make([]float64, order.Q)...)
	} else {
		for iter := 0; ; iter++ {
			next, err := armaRegression(w, resid, order.P, order.Q, m)
			if err != nil {
				return nil, err
			}
			clampMA(next[1+order.P:])
			if beta != nil {
				for i := range next {
					next[i] = (beta[i] + next[i]) / 2
				}
			}
			delta := coefDelta(beta, next)
			beta = next

			if delta < refineTol {
				break
			}
			if iter >= refineBudget {
				if delta > divergenceTol {
					return nil, &NonConvergenceError{
						Reason: fmt.Sprintf("coefficients still moving by %.3g after %d iterations", delta, refineBudget),
					}
				}
				break
			}
			refined, ok := armaResiduals(w, beta, order.P, order.Q)
			if !ok {
				break // keep the last stable estimates
			}
			resid = refined
		}
	}

	model := &Model{
		Order:      order,
		Intercept:  beta[0],
		Phi:        beta[1 : 1+order.P],
		Theta:      beta[1+order.P:],
		lastLevels: lastLevels,
	}
	if finalResid, ok := armaResiduals(w, beta, order.P, order.Q); ok {
		resid = finalResid
	}
	model.wTail = tail(w, order.P)
	model.eTail = tail(resid, order.Q)
	return model, nil
}

// Forecast extends the series h steps past the last observation and returns
// the point forecasts on the original (undifferenced) scale.
func (m *Model) Forecast(h int) []float64 {
	if h <= 0 {
		return nil
	}

	wBuf := append([]float64(nil), m.wTail...)
	eBuf := append([]float64(nil), m.eTail...)

	preds := make([]float64, h)
	for i := 0; i < h; i++ {
		v := m.Intercept
		for j, phi := range m.Phi {
			if k := len(wBuf) - 1 - j; k >= 0 {
				v += phi * wBuf[k]
			}
		}
		for j, theta := range m.Theta {
			if k := len(eBuf) - 1 - j; k >= 0 {
				v += theta * eBuf[k]
			}
		}
		preds[i] = v
		wBuf = append(wBuf, v)
		eBuf = append(eBuf, 0) // future innovations are zero in expectation
	}

	// Undo differencing, innermost level first.
	for level := m.Order.D - 1; level >= 0; level-- {
		prev := m.lastLevels[level]
		for i := range preds {
			preds[i] += prev
			prev = preds[i]
		}
	}
	return preds
}

// difference applies d rounds of first differencing and records the last
// value at each level so the transform can be inverted when forecasting.
func difference(series []float64, d int) ([]float64, []float64) {
	w := append([]float64(nil), series...)
	lastLevels := make([]float64, d)
	for level := 0; level < d; level++ {
		lastLevels[level] = w[len(w)-1]
		next := make([]float64, len(w)-1)
		for i := range next {
			next[i] = w[i+1] - w[i]
		}
		w = next
	}
	return w, lastLevels
}

// longARResiduals fits an AR(m) by least squares and returns the residual
// series aligned with w (zeros before the first fitted point).
func longARResiduals(w []float64, m int) ([]float64, error) {
	rows := len(w) - m
	cols := m + 1
	X := mat.NewDense(rows, cols, nil)
	y := mat.NewVecDense(rows, nil)
	for t := m; t < len(w); t++ {
		r := t - m
		X.Set(r, 0, 1)
		for j := 1; j <= m; j++ {
			X.Set(r, j, w[t-j])
		}
		y.SetVec(r, w[t])
	}

	beta, err := solveLS(X, y)
	if err != nil {
		return nil, err
	}

	resid := make([]float64, len(w))
	for t := m; t < len(w); t++ {
		fitted := beta[0]
		for j := 1; j <= m; j++ {
			fitted += beta[j] * w[t-j]
		}
		resid[t] = w[t] - fitted
	}
	return resid, nil
}

// armaRegression regresses w[t] on [1, w[t-1..t-p], e[t-1..t-q]] for
// t >= start and returns the coefficient vector [c, phi..., theta...].
func armaRegression(w, resid []float64, p, q, start int) ([]float64, error) {
	rows := len(w) - start
	cols := 1 + p + q
	X := mat.NewDense(rows, cols, nil)
	y := mat.NewVecDense(rows, nil)
	for t := start; t < len(w); t++ {
		r := t - start
		X.Set(r, 0, 1)
		for j := 1; j <= p; j++ {
			X.Set(r, j, w[t-j])
		}
		for j := 1; j <= q; j++ {
			X.Set(r, p+j, resid[t-j])
		}
		y.SetVec(r, w[t])
	}
	return solveLS(X, y)
}

// armaResiduals runs the fitted ARMA recursion over w to re-estimate the
// innovation series. Early values without full lag history use zeros. Reports
// false when the recursion produces non-finite or runaway values, so callers
// keep their previous estimates instead.
func armaResiduals(w []float64, beta []float64, p, q int) ([]float64, bool) {
	limit := residualBlowup * (1 + maxAbs(w))
	resid := make([]float64, len(w))
	for t := range w {
		fitted := beta[0]
		for j := 1; j <= p; j++ {
			if t-j >= 0 {
				fitted += beta[j] * w[t-j]
			}
		}
		for j := 1; j <= q; j++ {
			if t-j >= 0 {
				fitted += beta[p+j] * resid[t-j]
			}
		}
		resid[t] = w[t] - fitted
		if math.IsNaN(resid[t]) || math.Abs(resid[t]) > limit {
			return nil, false
		}
	}
	return resid, true
}

// clampMA rescales MA estimates whose absolute sum exceeds the invertibility
// bound. The two-stage estimator can land far outside it when the stage-one
// residual columns are nearly collinear with the lag columns.
func clampMA(theta []float64) {
	sum := 0.0
	for _, v := range theta {
		sum += math.Abs(v)
	}
	if sum > maClampSum {
		scale := maClampSum / sum
		for i := range theta {
			theta[i] *= scale
		}
	}
}

func rms(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(s)))
}

func maxAbs(s []float64) float64 {
	max := 0.0
	for _, v := range s {
		if a := math.Abs(v); a > max {
			max = a
		}
	}
	return max
}

// solveLS solves the least squares problem X beta = y by QR factorization.
// A degenerate system (rank deficient or wildly ill-conditioned design, as a
// constant series produces) fails with NonConvergenceError.
func solveLS(X *mat.Dense, y *mat.VecDense) ([]float64, error) {
	var qr mat.QR
	qr.Factorize(X)

	_, cols := X.Dims()
	var sol mat.VecDense
	if err := qr.SolveVecTo(&sol, false, y); err != nil {
		return nil, &NonConvergenceError{Reason: fmt.Sprintf("least squares solve failed: %v", err)}
	}

	beta := make([]float64, cols)
	for i := range beta {
		beta[i] = sol.AtVec(i)
		if math.IsNaN(beta[i]) || math.IsInf(beta[i], 0) {
			return nil, &NonConvergenceError{Reason: "non-finite coefficient estimate"}
		}
	}
	return beta, nil
}

func coefDelta(prev, next []float64) float64 {
	if prev == nil {
		return math.Inf(1)
	}
	max := 0.0
	for i := range next {
		if d := math.Abs(next[i] - prev[i]); d > max {
			max = d
		}
	}
	return max
}

func tail(s []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if len(s) < n {
		n = len(s)
	}
	return append([]float64(nil), s[len(s)-n:]...)
}
