//go:build !cgo
// +build !cgo

package engine

import (
	"errors"
)

const onnxCompiled = false

// ONNXEngine stub type when built without CGO (see onnx.go for real implementation).
type ONNXEngine struct {
	Engine
}

// NewONNXEngine returns an error when built without CGO (ONNX not available).
func NewONNXEngine(_ Options) (*ONNXEngine, error) {
	return nil, errors.New("ONNX engine requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}
