package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestNewPredictRequest(t *testing.T) {
	req, err := NewPredictRequest([]uint32{10, 20, 30}, []uint32{5, 6}, []int32{2, 1}, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []Fact{{Key: 5, Value: 2}, {Key: 6, Value: 1}}
	if !reflect.DeepEqual(req.Facts, want) {
		t.Errorf("facts = %v, want %v", req.Facts, want)
	}
	if !reflect.DeepEqual(req.Keys(), []uint32{5, 6}) {
		t.Errorf("keys = %v", req.Keys())
	}
	if !reflect.DeepEqual(req.Values(), []int32{2, 1}) {
		t.Errorf("values = %v", req.Values())
	}
	if req.K != 2 {
		t.Errorf("k = %d", req.K)
	}
}

func TestNewPredictRequest_lengthMismatch(t *testing.T) {
	_, err := NewPredictRequest([]uint32{1}, []uint32{5, 6}, []int32{2}, 1)
	if !errors.Is(err, ErrInputLengthMismatch) {
		t.Fatalf("expected ErrInputLengthMismatch, got %v", err)
	}
}

func TestScoredCandidate_JSONKeepsFloat32Precision(t *testing.T) {
	data, err := json.Marshal(ScoredCandidate{Task: 20, Score: 0.9})
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"task":20,"score":0.9}`; string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestStageError(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewStageError(StageLoad, fmt.Errorf("%w: index 9", ErrDataset)))
	if !errors.Is(err, ErrDataset) {
		t.Error("stage error should unwrap to the cause")
	}
	if got := FailedStage(err); got != StageLoad {
		t.Errorf("FailedStage = %q, want %q", got, StageLoad)
	}
	if got := FailedStage(errors.New("plain")); got != "" {
		t.Errorf("FailedStage on plain error = %q", got)
	}
}

func TestRankedResultTasks(t *testing.T) {
	r := RankedResult{{Task: 20, Score: 0.9}, {Task: 30, Score: 0.5}}
	if !reflect.DeepEqual(r.Tasks(), []uint32{20, 30}) {
		t.Errorf("Tasks() = %v", r.Tasks())
	}
}
