package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/tendant/simple-image-predict/internal/monitoring"
	"github.com/tendant/simple-image-predict/internal/workflows"
	"github.com/tendant/simple-image-predict/pkg/prediction"
)

// RequestIDHeader carries the run ID of a /predict request
const RequestIDHeader = "X-Request-Id"

// PredictHandler handles image classification requests
type PredictHandler struct {
	workflow workflows.Workflow
	metrics  monitoring.MetricsMonitoring

	logger logr.Logger
}

// NewPredictHandler creates a new predict handler
func NewPredictHandler(workflow workflows.Workflow, metrics monitoring.MetricsMonitoring, logger logr.Logger) *PredictHandler {
	return &PredictHandler{
		workflow: workflow,
		metrics:  metrics,
		logger:   logger.WithName("http"),
	}
}

// HandlePredict handles POST /predict - runs the workflow and returns the prediction
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	code := h.handlePredict(w, r)
	h.metrics.ObserveRequest(code, time.Since(start))
}

func (h *PredictHandler) handlePredict(w http.ResponseWriter, r *http.Request) int {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		return writeError(w, http.StatusMethodNotAllowed, prediction.MsgMethodNotAllowed)
	}

	// Parse request
	req, err := decodeRequest(r.Body)
	if err != nil {
		err = fmt.Errorf("%w: %v", workflows.ErrInvalidRequest, err)
		h.logger.Info("Rejected request", "error", err.Error())
		return writeError(w, http.StatusBadRequest, err.Error())
	}

	runID := uuid.New().String()
	w.Header().Set(RequestIDHeader, runID)

	result, err := h.workflow.Execute(&workflows.WorkflowContext{
		Ctx:     r.Context(),
		Request: req,
		RunID:   runID,
	})
	if err != nil {
		if errors.Is(err, workflows.ErrNoFilename) {
			return writeError(w, http.StatusBadRequest, prediction.MsgNoFilename)
		}

		var serr *workflows.StageError
		if errors.As(err, &serr) {
			h.metrics.ObserveStageFailure(string(serr.Stage))
		}
		h.logger.Error(err, "Prediction request failed", "runID", runID)
		return writeError(w, http.StatusInternalServerError, err.Error())
	}

	return writeJSON(w, http.StatusOK, result.Prediction)
}

// decodeRequest reads a single JSON value from body. An empty body is treated
// as a request without a filename; anything after the value is rejected.
func decodeRequest(body io.Reader) (prediction.PredictRequest, error) {
	var req prediction.PredictRequest
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return req, nil
		}
		return req, err
	}
	if err := dec.Decode(&json.RawMessage{}); !errors.Is(err, io.EOF) {
		return req, errors.New("unexpected data after JSON body")
	}
	return req, nil
}

// HandleHealth returns health status
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, prediction.HealthResponse{Status: "healthy"})
}

func writeError(w http.ResponseWriter, code int, msg string) int {
	return writeJSON(w, code, prediction.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
	return code
}
