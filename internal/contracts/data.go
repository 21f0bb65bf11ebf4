package contracts

import (
	"math"
	"time"
)

// DateFormat is the canonical date representation used across all CSV files
// and cache keys.
const DateFormat = "2006-01-02"

// Bar is one OHLCV record for an instrument on a given trading date.
type Bar struct {
	Instrument string    `json:"instrument"`
	Date       time.Time `json:"date"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
}

// FeatureNames lists the model inputs in the fixed order expected by the
// trainer: raw close plus the nine engineered features.
var FeatureNames = []string{
	"close", "ret1", "ret5", "ma5", "ma10", "ma20", "std20", "vol20", "rsi14",
}

// FeatureVector holds the engineered features for one instrument on one
// date. All features are computed from bars at or before Date; Label alone
// looks at the next bar's close.
type FeatureVector struct {
	Instrument string    `json:"instrument"`
	Date       time.Time `json:"date"`
	Close      float64   `json:"close"`
	Ret1       float64   `json:"ret1"`
	Ret5       float64   `json:"ret5"`
	MA5        float64   `json:"ma5"`
	MA10       float64   `json:"ma10"`
	MA20       float64   `json:"ma20"`
	Std20      float64   `json:"std20"`
	Vol20      float64   `json:"vol20"`
	RSI14      float64   `json:"rsi14"`
	Label      int       `json:"label"` // 1 if next close is higher, else 0
}

// Features returns the model input row in FeatureNames order.
func (f *FeatureVector) Features() []float64 {
	return []float64{
		f.Close, f.Ret1, f.Ret5, f.MA5, f.MA10, f.MA20, f.Std20, f.Vol20, f.RSI14,
	}
}

// Candidate is a scored instrument for one evaluation date. Ephemeral: it
// lives only between scoring and plan/audit persistence.
type Candidate struct {
	Instrument string    `json:"instrument"`
	Date       time.Time `json:"date"`
	Prob       float64   `json:"model_probability"`
	Sentiment  float64   `json:"external_sentiment"`
	Score      float64   `json:"blended_score"`
	Rank       int       `json:"rank"`
}

// SameDay reports whether two timestamps fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	return a.Format(DateFormat) == b.Format(DateFormat)
}

// Undefined marks a value that could not be resolved, e.g. a realized
// return whose exit close is missing. It is NaN, never zero.
func Undefined() float64 { return math.NaN() }

// IsUndefined reports whether v carries the undefined marker.
func IsUndefined(v float64) bool { return math.IsNaN(v) }
