package model

import (
	"math"
	"sort"
	"strconv"
)

// Softmax converts logits to probabilities. The max logit is subtracted first
// so large activations do not overflow.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	probs := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxVal))
		probs[i] = float32(e)
		sum += e
	}
	for i := range probs {
		probs[i] = float32(float64(probs[i]) / sum)
	}
	return probs
}

// ClampTopK limits k to [1, n].
func ClampTopK(k, n int) int {
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

// TopK returns the k most probable labels in descending order. Ties keep the
// lower class id first. Class ids without a label are named by their index.
func TopK(probs []float32, labels []string, k int) []Prediction {
	if len(probs) == 0 {
		return []Prediction{}
	}
	k = ClampTopK(k, len(probs))

	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return probs[idx[a]] > probs[idx[b]]
	})

	preds := make([]Prediction, k)
	for i := 0; i < k; i++ {
		id := idx[i]
		label := strconv.Itoa(id)
		if id < len(labels) {
			label = labels[id]
		}
		preds[i] = Prediction{Label: label, Score: probs[id]}
	}
	return preds
}
