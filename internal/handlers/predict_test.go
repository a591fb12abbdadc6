package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/go-logr/logr/testr"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-image-predict/internal/monitoring"
	"github.com/tendant/simple-image-predict/internal/storage"
	"github.com/tendant/simple-image-predict/internal/workflows"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakePredictor struct {
	err   error
	calls atomic.Int32
}

func (p *fakePredictor) Predict(ctx context.Context, instances []*structpb.Value, parameters *structpb.Value) (*aiplatformpb.PredictResponse, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	pred, err := structpb.NewValue(map[string]any{
		"displayNames": []any{"tulip"},
		"confidences":  []any{0.88},
	})
	if err != nil {
		return nil, err
	}
	return &aiplatformpb.PredictResponse{
		Predictions:     []*structpb.Value{pred},
		DeployedModelId: "7",
	}, nil
}

type fakeMetricsMonitor struct {
	codes  []int
	stages []string
}

func (m *fakeMetricsMonitor) ObserveRequest(code int, _ time.Duration) {
	m.codes = append(m.codes, code)
}

func (m *fakeMetricsMonitor) ObserveStageFailure(stage string) {
	m.stages = append(m.stages, stage)
}

func TestHandlePredict(t *testing.T) {
	var imageHits atomic.Int32
	imageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		imageHits.Add(1)
		if r.URL.Path != "/tulip.jpg" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer imageSrv.Close()

	tcs := []struct {
		name         string
		method       string
		body         string
		predictErr   error
		wantCode     int
		wantBody     string
		wantContains string
		wantNetwork  bool
		wantStage    string
	}{
		{
			name:     "success",
			method:   http.MethodPost,
			body:     `{"filename": "` + imageSrv.URL + `/tulip.jpg"}`,
			wantCode: http.StatusOK,
			wantBody: `{
				"predictions": [{"displayNames": ["tulip"], "confidences": [0.88]}],
				"deployedModelId": "7"
			}`,
			wantNetwork: true,
		},
		{
			name:     "missing key",
			method:   http.MethodPost,
			body:     `{}`,
			wantCode: http.StatusBadRequest,
			wantBody: `{"error": "No filename provided"}`,
		},
		{
			name:     "empty filename",
			method:   http.MethodPost,
			body:     `{"filename": ""}`,
			wantCode: http.StatusBadRequest,
			wantBody: `{"error": "No filename provided"}`,
		},
		{
			name:     "null filename",
			method:   http.MethodPost,
			body:     `{"filename": null}`,
			wantCode: http.StatusBadRequest,
			wantBody: `{"error": "No filename provided"}`,
		},
		{
			name:     "null body",
			method:   http.MethodPost,
			body:     `null`,
			wantCode: http.StatusBadRequest,
			wantBody: `{"error": "No filename provided"}`,
		},
		{
			name:     "empty body",
			method:   http.MethodPost,
			body:     ``,
			wantCode: http.StatusBadRequest,
			wantBody: `{"error": "No filename provided"}`,
		},
		{
			name:         "malformed json",
			method:       http.MethodPost,
			body:         `{"filename": `,
			wantCode:     http.StatusBadRequest,
			wantContains: "Invalid request",
		},
		{
			name:         "wrong type",
			method:       http.MethodPost,
			body:         `{"filename": 42}`,
			wantCode:     http.StatusBadRequest,
			wantContains: "Invalid request",
		},
		{
			name:         "trailing garbage",
			method:       http.MethodPost,
			body:         `{"filename": ""} garbage`,
			wantCode:     http.StatusBadRequest,
			wantContains: "Invalid request",
		},
		{
			name:         "two json values",
			method:       http.MethodPost,
			body:         `{"filename": ""}{"filename": ""}`,
			wantCode:     http.StatusBadRequest,
			wantContains: "Invalid request",
		},
		{
			name:     "trailing whitespace",
			method:   http.MethodPost,
			body:     "{\"filename\": \"\"}\n  ",
			wantCode: http.StatusBadRequest,
			wantBody: `{"error": "No filename provided"}`,
		},
		{
			name:     "wrong method",
			method:   http.MethodGet,
			wantCode: http.StatusMethodNotAllowed,
			wantBody: `{"error": "Method not allowed"}`,
		},
		{
			name:         "download failure",
			method:       http.MethodPost,
			body:         `{"filename": "` + imageSrv.URL + `/missing.jpg"}`,
			wantCode:     http.StatusInternalServerError,
			wantContains: "404",
			wantNetwork:  true,
			wantStage:    "download",
		},
		{
			name:         "predict failure",
			method:       http.MethodPost,
			body:         `{"filename": "` + imageSrv.URL + `/tulip.jpg"}`,
			predictErr:   errors.New("project id is not configured (set PROJECTID)"),
			wantCode:     http.StatusInternalServerError,
			wantBody:     `{"error": "project id is not configured (set PROJECTID)"}`,
			wantNetwork:  true,
			wantStage:    "predict",
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			imageHits.Store(0)
			dir := t.TempDir()
			artifacts, err := storage.NewFilesystemStorage(dir)
			require.NoError(t, err)
			predictor := &fakePredictor{err: tc.predictErr}
			metrics := &fakeMetricsMonitor{}
			logger := testr.New(t)

			wf := workflows.NewClassificationWorkflow(
				storage.NewHTTPImageReader(imageSrv.Client()),
				artifacts,
				predictor,
				nil,
				logger,
			)
			h := NewPredictHandler(wf, metrics, logger)

			req := httptest.NewRequest(tc.method, "/predict", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rw := httptest.NewRecorder()
			h.HandlePredict(rw, req)

			assert.Equal(t, tc.wantCode, rw.Code)
			assert.Equal(t, "application/json", rw.Header().Get("Content-Type"))
			if tc.wantBody != "" {
				assert.JSONEq(t, tc.wantBody, rw.Body.String())
			}
			if tc.wantContains != "" {
				assert.Contains(t, rw.Body.String(), tc.wantContains)
			}

			if tc.wantNetwork {
				assert.Equal(t, int32(1), imageHits.Load())
				_, err := uuid.Parse(rw.Header().Get(RequestIDHeader))
				assert.NoError(t, err)
			} else {
				assert.Zero(t, imageHits.Load())
				assert.Zero(t, predictor.calls.Load())
			}

			assert.Equal(t, []int{tc.wantCode}, metrics.codes)
			if tc.wantStage != "" {
				assert.Equal(t, []string{tc.wantStage}, metrics.stages)
			} else {
				assert.Empty(t, metrics.stages)
			}

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestHandlePredict_Metrics(t *testing.T) {
	imageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer imageSrv.Close()

	artifacts, err := storage.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	logger := testr.New(t)
	h := NewPredictHandler(
		workflows.NewClassificationWorkflow(storage.NewHTTPImageReader(imageSrv.Client()), artifacts, &fakePredictor{}, nil, logger),
		monitoring.NewMetricsMonitor(reg),
		logger,
	)

	for _, body := range []string{`{"filename": "` + imageSrv.URL + `/a.jpg"}`, `{}`} {
		rw := httptest.NewRecorder()
		h.HandlePredict(rw, httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body)))
	}

	n, err := testutil.GatherAndCount(reg, "simple_image_predict_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHandleHealth(t *testing.T) {
	rw := httptest.NewRecorder()
	HandleHealth(rw, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rw.Code)
	assert.JSONEq(t, `{"status": "healthy"}`, rw.Body.String())
}
