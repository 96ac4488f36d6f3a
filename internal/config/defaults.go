package config

import "github.com/hyperjump/fmrank/internal/engine"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Engine.Type == "" {
		cfg.Engine.Type = string(engine.TypeONNX)
	}
	if cfg.Engine.ModelPath == "" && cfg.Engine.Type == string(engine.TypeONNX) {
		cfg.Engine.ModelPath = "/usr/local/var/fmrank/models/fm.onnx"
	}
	if cfg.Engine.OutputName == "" {
		cfg.Engine.OutputName = engine.DefaultScoresOutput
	}
	if cfg.Engine.InputNames == nil {
		cfg.Engine.InputNames = []string{engine.DefaultIndicesInput, engine.DefaultValuesInput}
	}
	if cfg.Engine.ModelDir == "" {
		cfg.Engine.ModelDir = "/usr/local/var/fmrank/models"
	}
	if cfg.Predict.DefaultK == nil {
		k := DefaultTopK
		cfg.Predict.DefaultK = &k
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/fmrank/data/predictions.db"
	}
	if cfg.Trainer.TrainBinary == "" {
		cfg.Trainer.TrainBinary = "xlearn_train"
	}
	if cfg.Trainer.PredictBinary == "" {
		cfg.Trainer.PredictBinary = "xlearn_predict"
	}
	if cfg.Watch.DebounceMs == 0 {
		cfg.Watch.DebounceMs = 500
	}
}
