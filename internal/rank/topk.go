// Package rank selects the highest-scoring candidates of a prediction.
package rank

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/hyperjump/fmrank/internal/models"
)

// SelectTopK pairs tasks with scores by position and returns the min(k, len(tasks))
// best candidates, score descending. k <= 0 yields an empty result.
//
// Only the returned prefix is ordered. Equal scores come back in unspecified order.
// NaN scores rank below every number.
func SelectTopK(tasks []uint32, scores []float32, k int) (models.RankedResult, error) {
	if len(tasks) != len(scores) {
		return nil, fmt.Errorf("%w: %d tasks, %d scores", models.ErrInputLengthMismatch, len(tasks), len(scores))
	}
	if k > len(tasks) {
		k = len(tasks)
	}
	if k <= 0 {
		return models.RankedResult{}, nil
	}

	c := newCollector(k)
	for i, task := range tasks {
		c.collect(models.ScoredCandidate{Task: task, Score: scores[i]})
	}
	return c.results(), nil
}

// collector keeps the k best candidates seen so far in a min-heap.
type collector struct {
	k int
	h candidateHeap
}

func newCollector(k int) *collector {
	return &collector{k: k, h: make(candidateHeap, 0, k)}
}

func (c *collector) collect(sc models.ScoredCandidate) {
	if c.h.Len() < c.k {
		heap.Push(&c.h, sc)
		return
	}
	if better(sc.Score, c.h[0].Score) {
		c.h[0] = sc
		heap.Fix(&c.h, 0)
	}
}

// results drains the heap, best first.
func (c *collector) results() models.RankedResult {
	out := make(models.RankedResult, c.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&c.h).(models.ScoredCandidate)
	}
	return out
}

// better reports whether a ranks strictly above b.
func better(a, b float32) bool {
	switch {
	case isNaN(a):
		return false
	case isNaN(b):
		return true
	default:
		return a > b
	}
}

func isNaN(f float32) bool { return math.IsNaN(float64(f)) }

// candidateHeap is a min-heap: the root is the worst kept candidate.
type candidateHeap []models.ScoredCandidate

func (h candidateHeap) Len() int           { return len(h) }
func (h candidateHeap) Less(i, j int) bool { return better(h[j].Score, h[i].Score) }
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)        { *h = append(*h, x.(models.ScoredCandidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
