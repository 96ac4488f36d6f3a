// Package matrix builds the sparse one-hot-plus-context feature matrix consumed by scoring engines.
package matrix

import "github.com/hyperjump/fmrank/internal/models"

// Node is one (feature index, feature value) entry of a row.
type Node struct {
	Index uint32
	Value float32
}

// Row is the sparse feature vector of one task: the task node followed by the fact nodes.
type Row []Node

// Matrix is an ordered list of rows. Row i belongs to task i of the request.
type Matrix struct {
	Rows []Row
	// HasLabel is always false for prediction.
	HasLabel bool
}

// Build emits one row per task: {task, 1} followed by every fact in order.
// Indices are neither deduplicated nor range-checked; that is the engine's concern.
// Empty tasks yield a matrix with zero rows.
func Build(tasks []uint32, facts []models.Fact) *Matrix {
	suffix := make([]Node, len(facts))
	for j, f := range facts {
		suffix[j] = Node{Index: f.Key, Value: float32(f.Value)}
	}

	width := 1 + len(facts)
	// One backing array for all nodes; rows are windows into it.
	nodes := make([]Node, len(tasks)*width)
	m := &Matrix{Rows: make([]Row, len(tasks))}
	for i, task := range tasks {
		row := nodes[i*width : (i+1)*width : (i+1)*width]
		row[0] = Node{Index: task, Value: 1}
		copy(row[1:], suffix)
		m.Rows[i] = row
	}
	return m
}

// NumRows returns the number of rows.
func (m *Matrix) NumRows() int {
	return len(m.Rows)
}

// Width returns the node count of a row, or 0 for an empty matrix.
// Build produces rows of equal width.
func (m *Matrix) Width() int {
	if len(m.Rows) == 0 {
		return 0
	}
	return len(m.Rows[0])
}

// NumNodes returns the total number of nodes across all rows.
func (m *Matrix) NumNodes() int {
	n := 0
	for _, r := range m.Rows {
		n += len(r)
	}
	return n
}

// MaxIndex returns the largest feature index in the matrix and false if it has no nodes.
func (m *Matrix) MaxIndex() (uint32, bool) {
	var max uint32
	found := false
	for _, r := range m.Rows {
		for _, n := range r {
			if !found || n.Index > max {
				max = n.Index
				found = true
			}
		}
	}
	return max, found
}

// Flatten returns row-major indices and values of a rectangular matrix.
// ok is false when rows differ in width.
func (m *Matrix) Flatten() (indices []int64, values []float32, ok bool) {
	width := m.Width()
	indices = make([]int64, 0, len(m.Rows)*width)
	values = make([]float32, 0, len(m.Rows)*width)
	for _, r := range m.Rows {
		if len(r) != width {
			return nil, nil, false
		}
		for _, n := range r {
			indices = append(indices, int64(n.Index))
			values = append(values, n.Value)
		}
	}
	return indices, values, true
}
