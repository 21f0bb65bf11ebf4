package features

import (
	"math"

	"github.com/quantfold/nextday/internal/contracts"
)

// rsiEpsilon keeps the RS denominator non-zero on all-up streaks.
const rsiEpsilon = 1e-9

// Engine converts a bar series into dated feature vectors with a forward
// label. Every feature is causal: computed only from bars at or before the
// row's own date. The label alone reads the next bar's close, and rows
// without a next bar are dropped.
type Engine struct{}

// NewEngine creates a feature engine.
func NewEngine() *Engine { return &Engine{} }

// Featurize computes the feature set over an ascending bar series. Rows
// lacking the full lookback (20 bars of history plus the return chain) are
// dropped, as is the final row, whose label is undefined.
func (e *Engine) Featurize(bars []contracts.Bar) []contracts.FeatureVector {
	// vol20 needs 20 one-day returns, which needs 21 closes.
	const minLookback = 20
	if len(bars) < minLookback+2 {
		return nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	ret1 := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		ret1[i] = closes[i]/closes[i-1] - 1
	}

	// Last row has no next close to label against.
	out := make([]contracts.FeatureVector, 0, len(bars)-minLookback-1)
	for t := minLookback; t < len(bars)-1; t++ {
		fv := contracts.FeatureVector{
			Instrument: bars[t].Instrument,
			Date:       bars[t].Date,
			Close:      closes[t],
			Ret1:       ret1[t],
			Ret5:       closes[t]/closes[t-5] - 1,
			MA5:        mean(closes[t-4 : t+1]),
			MA10:       mean(closes[t-9 : t+1]),
			MA20:       mean(closes[t-19 : t+1]),
			Std20:      stddev(closes[t-19 : t+1]),
			Vol20:      stddev(ret1[t-19 : t+1]),
			RSI14:      rsi14(closes, t),
		}
		if closes[t+1] > closes[t] {
			fv.Label = 1
		}
		out = append(out, fv)
	}
	return out
}

// rsi14 computes the 14-period relative strength index at index t.
func rsi14(closes []float64, t int) float64 {
	var up, down float64
	for i := t - 13; i <= t; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			up += delta
		} else {
			down -= delta
		}
	}
	rs := (up / 14) / (down/14 + rsiEpsilon)
	return 100 - 100/(1+rs)
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(vals []float64) float64 {
	m := mean(vals)
	var ss float64
	for _, v := range vals {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}
