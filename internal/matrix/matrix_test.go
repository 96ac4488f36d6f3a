package matrix

import (
	"reflect"
	"testing"

	"github.com/hyperjump/fmrank/internal/models"
)

func TestBuild_rowCorrespondence(t *testing.T) {
	tasks := []uint32{10, 20, 30}
	facts := []models.Fact{{Key: 5, Value: 2}, {Key: 6, Value: 1}}
	m := Build(tasks, facts)

	if m.NumRows() != len(tasks) {
		t.Fatalf("rows = %d, want %d", m.NumRows(), len(tasks))
	}
	if m.HasLabel {
		t.Error("prediction matrix must not carry labels")
	}
	for i, row := range m.Rows {
		if len(row) != 1+len(facts) {
			t.Errorf("row %d: %d nodes, want %d", i, len(row), 1+len(facts))
		}
		if row[0] != (Node{Index: tasks[i], Value: 1}) {
			t.Errorf("row %d: first node %+v", i, row[0])
		}
	}
}

func TestBuild_sharedContextSuffix(t *testing.T) {
	facts := []models.Fact{{Key: 7, Value: 3}, {Key: 7, Value: 4}, {Key: 1, Value: 0}}
	m := Build([]uint32{1, 2, 3, 4}, facts)
	want := Row{{Index: 7, Value: 3}, {Index: 7, Value: 4}, {Index: 1, Value: 0}}
	for i, row := range m.Rows {
		if !reflect.DeepEqual(row[1:], want) {
			t.Errorf("row %d suffix = %v, want %v", i, row[1:], want)
		}
	}
}

func TestBuild_noFacts(t *testing.T) {
	m := Build([]uint32{4, 4}, nil)
	if m.Width() != 1 {
		t.Errorf("width = %d, want 1", m.Width())
	}
	if m.NumNodes() != 2 {
		t.Errorf("nodes = %d, want 2", m.NumNodes())
	}
}

func TestBuild_empty(t *testing.T) {
	m := Build(nil, []models.Fact{{Key: 1, Value: 1}})
	if m.NumRows() != 0 || m.Width() != 0 || m.NumNodes() != 0 {
		t.Errorf("expected empty matrix, got %+v", m)
	}
	if _, ok := m.MaxIndex(); ok {
		t.Error("empty matrix has no max index")
	}
}

func TestBuild_deterministic(t *testing.T) {
	tasks := []uint32{3, 1, 2}
	facts := []models.Fact{{Key: 9, Value: -1}}
	if !reflect.DeepEqual(Build(tasks, facts), Build(tasks, facts)) {
		t.Error("Build should be deterministic")
	}
}

func TestBuild_rowsDoNotAlias(t *testing.T) {
	m := Build([]uint32{1, 2}, []models.Fact{{Key: 5, Value: 5}})
	m.Rows[0] = append(m.Rows[0], Node{Index: 99, Value: 1})
	if m.Rows[1][0].Index != 2 {
		t.Error("appending to one row must not overwrite the next")
	}
}

func TestMaxIndex(t *testing.T) {
	m := Build([]uint32{10, 3}, []models.Fact{{Key: 42, Value: 1}})
	max, ok := m.MaxIndex()
	if !ok || max != 42 {
		t.Errorf("MaxIndex = %d,%v want 42,true", max, ok)
	}
}

func TestFlatten(t *testing.T) {
	m := Build([]uint32{10, 20}, []models.Fact{{Key: 5, Value: 2}})
	idx, vals, ok := m.Flatten()
	if !ok {
		t.Fatal("expected rectangular matrix")
	}
	if !reflect.DeepEqual(idx, []int64{10, 5, 20, 5}) {
		t.Errorf("indices = %v", idx)
	}
	if !reflect.DeepEqual(vals, []float32{1, 2, 1, 2}) {
		t.Errorf("values = %v", vals)
	}

	ragged := &Matrix{Rows: []Row{{{Index: 1, Value: 1}}, {{Index: 1, Value: 1}, {Index: 2, Value: 1}}}}
	if _, _, ok := ragged.Flatten(); ok {
		t.Error("ragged matrix should not flatten")
	}
}
