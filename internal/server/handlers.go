package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/fmrank/internal/config"
	"github.com/hyperjump/fmrank/internal/engine"
	"github.com/hyperjump/fmrank/internal/lifecycle"
	"github.com/hyperjump/fmrank/internal/models"
	"github.com/hyperjump/fmrank/internal/validation"
	"go.uber.org/zap"
)

type predictRequest struct {
	Tasks  []uint32 `json:"tasks" validate:"max=1048576"`
	Keys   []uint32 `json:"keys"`
	Values []int32  `json:"values" validate:"eqfield=Keys"`
	K      *int     `json:"k,omitempty" validate:"omitempty,min=0"`
	Quiet  bool     `json:"quiet,omitempty"`
}

// initRequest names files relative to engine.model_dir and engine.output_dir.
type initRequest struct {
	Type         string `json:"type" validate:"omitempty,oneof=onnx mock"`
	ModelPath    string `json:"model_path,omitempty"`
	OutputPath   string `json:"output_path,omitempty"`
	Quiet        bool   `json:"quiet,omitempty"`
	FeatureCount uint32 `json:"feature_count,omitempty"`
}

type pageRequest struct {
	Offset int `validate:"min=0"`
	Limit  int `validate:"min=1,max=1000"`
}

func (s *Server) handlePredictDefault(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePredict(w, r)
	if !ok {
		return
	}
	h := s.DefaultHandle()
	resp, err := s.predictDefault(r.Context(), h, req)
	s.respondPredict(w, h, resp, err)
}

func (s *Server) handlePredictHandle(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePredict(w, r)
	if !ok {
		return
	}
	h := lifecycle.Handle(chi.URLParam(r, "handle"))
	resp, err := s.predictOn(r.Context(), h, req)
	s.respondPredict(w, h, resp, err)
}

func (s *Server) decodePredict(w http.ResponseWriter, r *http.Request) (*models.PredictRequest, bool) {
	var body predictRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if err := validation.ValidateStruct(&body); err != nil {
		s.respondErr(w, err)
		return nil, false
	}
	k := s.config.Predict.K()
	if body.K != nil {
		k = *body.K
	}
	req, err := models.NewPredictRequest(body.Tasks, body.Keys, body.Values, k)
	if err != nil {
		s.respondErr(w, err)
		return nil, false
	}
	req.Quiet = body.Quiet
	return req, true
}

// predictDefault serves h, the default handle read at request start. If a reload
// disposed h in the meantime, the request moves to the current default.
func (s *Server) predictDefault(ctx context.Context, h lifecycle.Handle, req *models.PredictRequest) (*models.PredictResponse, error) {
	for {
		resp, err := s.predictOn(ctx, h, req)
		if !errors.Is(err, models.ErrInvalidHandle) {
			return resp, err
		}
		cur := s.DefaultHandle()
		if cur == h {
			return resp, err
		}
		s.logger.Debug("default engine replaced during request", zap.String("from", string(h)), zap.String("to", string(cur)))
		h = cur
	}
}

// predictOn runs req on h under h's lock. Unknown handles never get a lock entry.
func (s *Server) predictOn(ctx context.Context, h lifecycle.Handle, req *models.PredictRequest) (*models.PredictResponse, error) {
	if _, err := s.registry.Info(h); err != nil {
		return nil, models.NewStageError(models.StageResolve, err)
	}
	s.logger.Debug("predict request", zap.String("handle", string(h)), zap.Int("tasks", len(req.Tasks)), zap.Int("k", req.K))

	mu := s.lockFor(h)
	mu.Lock()
	defer mu.Unlock()
	resp, err := s.pipeline.Predict(ctx, h, req)
	if errors.Is(err, models.ErrInvalidHandle) {
		// disposed between the check and the lock
		s.locks.CompareAndDelete(h, mu)
	}
	return resp, err
}

func (s *Server) respondPredict(w http.ResponseWriter, h lifecycle.Handle, resp *models.PredictResponse, err error) {
	if err != nil {
		s.logger.Debug("predict failed", zap.String("handle", string(h)), zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInitEngine(w http.ResponseWriter, r *http.Request) {
	var body initRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validation.ValidateStruct(&body); err != nil {
		s.respondErr(w, err)
		return
	}
	opts := s.config.Engine.InitOptions()
	if body.Type != "" {
		opts.Type = engine.Type(body.Type)
	}
	if body.ModelPath != "" {
		path, err := s.config.Engine.ResolveModel(body.ModelPath)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		opts.ModelPath = path
	}
	opts.OutputPath = ""
	if body.OutputPath != "" {
		path, err := s.config.Engine.ResolveOutput(body.OutputPath)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		opts.OutputPath = path
	}
	opts.Quiet = body.Quiet
	opts.FeatureCount = body.FeatureCount

	h, err := s.registry.Init(opts)
	if err != nil {
		s.logger.Error("engine init failed", zap.String("model", opts.ModelPath), zap.Error(err))
		s.respondErr(w, err)
		return
	}
	info, err := s.registry.Info(h)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, info)
}

func (s *Server) handleDisposeEngine(w http.ResponseWriter, r *http.Request) {
	h := lifecycle.Handle(chi.URLParam(r, "handle"))
	if h == s.DefaultHandle() {
		s.respondError(w, http.StatusConflict, "the default engine is replaced by reload, not disposed")
		return
	}
	s.logger.Debug("dispose engine request", zap.String("handle", string(h)))
	if err := s.dispose(h); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"handle": string(h), "status": "disposed"})
}

func (s *Server) handleListEngines(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"engines": s.registry.List(),
		"default": s.DefaultHandle(),
	})
}

func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		s.respondError(w, http.StatusNotImplemented, "prediction log not enabled")
		return
	}
	rec, err := s.storage.GetPrediction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "prediction not found")
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		s.respondError(w, http.StatusNotImplemented, "prediction log not enabled")
		return
	}
	page := pageRequest{Offset: 0, Limit: 20}
	q := r.URL.Query()
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "offset must be an integer")
			return
		}
		page.Offset = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		page.Limit = n
	}
	if err := validation.ValidateStruct(&page); err != nil {
		s.respondErr(w, err)
		return
	}
	recs, err := s.storage.ListPredictions(r.Context(), page.Offset, page.Limit)
	if err != nil {
		s.logger.Error("list predictions failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"predictions": recs, "offset": page.Offset, "limit": page.Limit})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"engines":        s.registry.Len(),
		"default_handle": s.DefaultHandle(),
		"onnx_available": engine.IsONNXAvailable(),
		"uptime_seconds": int64(s.uptime().Seconds()),
	}
	if s.storage != nil {
		count, err := s.storage.CountPredictions(r.Context())
		if err != nil {
			s.logger.Error("status: count predictions failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["predictions"] = count
		if du, ok := s.storage.(interface{ DiskUsageBytes() int64 }); ok {
			resp["disk_usage_bytes"] = du.DiskUsageBytes()
		}
	}
	resp["config"] = map[string]interface{}{
		"engine_type":   s.config.Engine.Type,
		"model_path":    s.config.Engine.ModelPath,
		"default_k":     s.config.Predict.K(),
		"max_k":         s.config.Predict.MaxK,
		"database_path": s.config.Storage.DatabasePath,
		"watch_model":   s.config.Watch.Model,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	var ve *validation.RequestValidationError
	switch {
	case errors.Is(err, models.ErrInputLengthMismatch), errors.Is(err, models.ErrInvalidRequest),
		errors.Is(err, config.ErrPathOutsideDir), errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidHandle):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInitialization), errors.Is(err, models.ErrDataset):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	body := map[string]interface{}{"error": err.Error()}
	if stage := models.FailedStage(err); stage != "" {
		body["stage"] = stage
	}
	var ve *validation.RequestValidationError
	if errors.As(err, &ve) {
		body["fields"] = ve.Fields
	}
	s.respondJSON(w, statusFor(err), body)
}

// respondJSON encodes before writing the header so an unencodable body becomes a 500.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		s.logger.Error("encode response failed", zap.Error(err))
		status = http.StatusInternalServerError
		buf.Reset()
		buf.WriteString(`{"error":"failed to encode response"}` + "\n")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
