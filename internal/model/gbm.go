package model

import (
	"math"
	"math/rand"
	"sort"
)

// Hyperparameters for the boosted ensemble. These are configuration, not
// learned: the values are fixed for every fit.
type Hyperparameters struct {
	Trees        int
	MaxDepth     int
	LearningRate float64
	Subsample    float64 // row sampling ratio per tree
	ColSample    float64 // feature sampling ratio per tree
	Lambda       float64 // L2 regularization on leaf weights
	Seed         int64
}

// DefaultHyperparameters returns the fixed production configuration.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		Trees:        400,
		MaxDepth:     5,
		LearningRate: 0.05,
		Subsample:    0.8,
		ColSample:    0.8,
		Lambda:       1.0,
		Seed:         42,
	}
}

// Model is a fitted gradient-boosted tree ensemble for binary
// classification under logistic loss.
type Model struct {
	trees    []*treeNode
	eta      float64
	baseline float64 // log-odds of the training base rate
}

// treeNode is one node of a regression tree over the gradient statistics.
type treeNode struct {
	feature int
	split   float64
	left    *treeNode
	right   *treeNode
	leaf    bool
	weight  float64
}

// PredictProba returns the probability of the positive class for one
// feature row.
func (m *Model) PredictProba(row []float64) float64 {
	score := m.baseline
	for _, t := range m.trees {
		score += m.eta * t.predict(row)
	}
	return sigmoid(score)
}

func (t *treeNode) predict(row []float64) float64 {
	node := t
	for !node.leaf {
		if row[node.feature] < node.split {
			node = node.left
		} else {
			node = node.right
		}
	}
	return node.weight
}

// fitGBM trains the ensemble on rows X with binary labels y.
func fitGBM(X [][]float64, y []int, hp Hyperparameters) *Model {
	n := len(X)
	nFeatures := len(X[0])
	rng := rand.New(rand.NewSource(hp.Seed))

	base := baseRate(y)
	m := &Model{
		trees:    make([]*treeNode, 0, hp.Trees),
		eta:      hp.LearningRate,
		baseline: math.Log(base / (1 - base)),
	}

	// Raw scores, updated after every round.
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = m.baseline
	}

	grad := make([]float64, n)
	hess := make([]float64, n)

	for round := 0; round < hp.Trees; round++ {
		for i := 0; i < n; i++ {
			p := sigmoid(scores[i])
			grad[i] = p - float64(y[i])
			hess[i] = p * (1 - p)
		}

		rows := sampleIndices(rng, n, hp.Subsample)
		cols := sampleIndices(rng, nFeatures, hp.ColSample)

		tree := buildTree(X, grad, hess, rows, cols, hp, 0)
		m.trees = append(m.trees, tree)

		for i := 0; i < n; i++ {
			scores[i] += hp.LearningRate * tree.predict(X[i])
		}
	}

	return m
}

// buildTree grows one regression tree greedily to the depth limit.
func buildTree(X [][]float64, grad, hess []float64, rows, cols []int, hp Hyperparameters, depth int) *treeNode {
	var sumG, sumH float64
	for _, i := range rows {
		sumG += grad[i]
		sumH += hess[i]
	}

	leaf := &treeNode{leaf: true, weight: -sumG / (sumH + hp.Lambda)}
	if depth >= hp.MaxDepth || len(rows) < 2 {
		return leaf
	}

	feature, split, gain := bestSplit(X, grad, hess, rows, cols, sumG, sumH, hp.Lambda)
	if gain <= 0 {
		return leaf
	}

	var left, right []int
	for _, i := range rows {
		if X[i][feature] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return leaf
	}

	return &treeNode{
		feature: feature,
		split:   split,
		left:    buildTree(X, grad, hess, left, cols, hp, depth+1),
		right:   buildTree(X, grad, hess, right, cols, hp, depth+1),
	}
}

// bestSplit scans the sampled features for the split with the highest
// structure gain.
func bestSplit(X [][]float64, grad, hess []float64, rows, cols []int, sumG, sumH, lambda float64) (feature int, split, gain float64) {
	parent := sumG * sumG / (sumH + lambda)
	feature = -1

	order := make([]int, len(rows))
	for _, f := range cols {
		copy(order, rows)
		sort.Slice(order, func(a, b int) bool {
			return X[order[a]][f] < X[order[b]][f]
		})

		var gl, hl float64
		for k := 0; k < len(order)-1; k++ {
			i := order[k]
			gl += grad[i]
			hl += hess[i]

			cur, next := X[i][f], X[order[k+1]][f]
			if cur == next {
				continue
			}

			gr, hr := sumG-gl, sumH-hl
			g := gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - parent
			if g > gain {
				gain = g
				feature = f
				split = (cur + next) / 2
			}
		}
	}

	if feature < 0 {
		return 0, 0, 0
	}
	return feature, split, gain
}

// sampleIndices draws ratio*n indices without replacement, returned in
// ascending order for deterministic iteration.
func sampleIndices(rng *rand.Rand, n int, ratio float64) []int {
	k := int(math.Round(ratio * float64(n)))
	if k < 1 {
		k = 1
	}
	if k >= n {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	perm := rng.Perm(n)
	idx := append([]int(nil), perm[:k]...)
	sort.Ints(idx)
	return idx
}

func baseRate(y []int) float64 {
	pos := 0
	for _, v := range y {
		pos += v
	}
	rate := float64(pos) / float64(len(y))
	// Clamp so the baseline log-odds stays finite on degenerate labels.
	if rate < 1e-6 {
		rate = 1e-6
	}
	if rate > 1-1e-6 {
		rate = 1 - 1e-6
	}
	return rate
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
