package model

import (
	"fmt"
	"sort"

	"github.com/quantfold/nextday/internal/contracts"
	"github.com/quantfold/nextday/pkg/logger"
)

// Trainer fits and scores the probabilistic direction classifier over
// feature vectors. One Trainer is reused across walk-forward steps; every
// Fit produces a fresh model with no state carried over.
type Trainer struct {
	hp     Hyperparameters
	logger *logger.Logger
}

// NewTrainer creates a trainer with the fixed production hyperparameters.
func NewTrainer(log *logger.Logger) *Trainer {
	return &Trainer{
		hp:     DefaultHyperparameters(),
		logger: log.WithField("component", "model.trainer"),
	}
}

// NewTrainerWithParams creates a trainer with explicit hyperparameters.
// Tests use smaller ensembles.
func NewTrainerWithParams(hp Hyperparameters, log *logger.Logger) *Trainer {
	return &Trainer{hp: hp, logger: log.WithField("component", "model.trainer")}
}

// Fit trains a model on the given vectors. An empty training partition is
// fatal: no model can be produced.
func (t *Trainer) Fit(train []contracts.FeatureVector) (*Model, error) {
	if len(train) == 0 {
		return nil, fmt.Errorf("fit: %w", contracts.ErrEmptyTrainingSet)
	}

	X := make([][]float64, len(train))
	y := make([]int, len(train))
	for i := range train {
		X[i] = train[i].Features()
		y[i] = train[i].Label
	}

	m := fitGBM(X, y, t.hp)

	t.logger.WithFields(map[string]interface{}{
		"rows":  len(train),
		"trees": t.hp.Trees,
		"depth": t.hp.MaxDepth,
	}).Debug("model fitted")
	return m, nil
}

// Score returns the positive-class probability per vector, in input order.
func (t *Trainer) Score(m *Model, vectors []contracts.FeatureVector) []float64 {
	probs := make([]float64, len(vectors))
	for i := range vectors {
		probs[i] = m.PredictProba(vectors[i].Features())
	}
	return probs
}

// Metrics summarizes held-out performance. Reported, never enforced.
type Metrics struct {
	AUC       float64
	Accuracy  float64 // thresholded at 0.5
	Precision float64 // among rows scoring at or above Threshold
	Coverage  float64 // fraction of rows at or above Threshold
	Threshold float64
	Rows      int
}

// Evaluate scores a held-out partition and computes discrimination and
// threshold metrics. Returns nil when the partition is empty.
func (t *Trainer) Evaluate(m *Model, holdout []contracts.FeatureVector, threshold float64) *Metrics {
	if len(holdout) == 0 {
		return nil
	}

	probs := t.Score(m, holdout)

	met := &Metrics{Threshold: threshold, Rows: len(holdout)}

	correct, above, aboveHits := 0, 0, 0
	for i, fv := range holdout {
		pred := 0
		if probs[i] >= 0.5 {
			pred = 1
		}
		if pred == fv.Label {
			correct++
		}
		if probs[i] >= threshold {
			above++
			if fv.Label == 1 {
				aboveHits++
			}
		}
	}

	met.AUC = rocAUC(probs, holdout)
	met.Accuracy = float64(correct) / float64(len(holdout))
	met.Coverage = float64(above) / float64(len(holdout))
	if above > 0 {
		met.Precision = float64(aboveHits) / float64(above)
	}

	return met
}

// rocAUC computes the area under the ROC curve by the rank statistic,
// with average ranks over tied scores.
func rocAUC(probs []float64, rows []contracts.FeatureVector) float64 {
	n := len(probs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return probs[idx[a]] < probs[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && probs[idx[j]] == probs[idx[i]] {
			j++
		}
		// rank positions i+1 .. j averaged across the tie group
		avg := float64(i+1+j) / 2
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}

	var posRankSum float64
	pos := 0
	for i, fv := range rows {
		if fv.Label == 1 {
			posRankSum += ranks[i]
			pos++
		}
	}
	neg := n - pos
	if pos == 0 || neg == 0 {
		return 0.5
	}

	return (posRankSum - float64(pos)*float64(pos+1)/2) / (float64(pos) * float64(neg))
}
