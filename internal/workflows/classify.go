package workflows

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/go-logr/logr"
	"github.com/tendant/simple-image-predict/internal/vertex"
	"github.com/tendant/simple-image-predict/pkg/prediction"
	"google.golang.org/protobuf/types/known/structpb"
)

const defaultArtifactExt = ".img"

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tif":  true,
	".tiff": true,
}

// ImageReader fetches remote images
type ImageReader interface {
	GetReader(ctx context.Context, url string) (io.ReadCloser, error)
}

// ArtifactStore holds the transient copy of a downloaded image
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Remove(ctx context.Context, key string) error
}

// Predictor submits instances to a prediction endpoint
type Predictor interface {
	Predict(ctx context.Context, instances []*structpb.Value, parameters *structpb.Value) (*aiplatformpb.PredictResponse, error)
}

// ClassificationWorkflow downloads an image, sends it to the prediction
// endpoint and returns the converted response
type ClassificationWorkflow struct {
	imageReader  ImageReader
	artifacts    ArtifactStore
	predictor    Predictor
	preprocessor *Preprocessor

	logger logr.Logger
}

// NewClassificationWorkflow creates a new image classification workflow
func NewClassificationWorkflow(
	imageReader ImageReader,
	artifacts ArtifactStore,
	predictor Predictor,
	preprocessor *Preprocessor,
	logger logr.Logger,
) *ClassificationWorkflow {
	if preprocessor == nil {
		preprocessor = NewPreprocessor(0)
	}
	return &ClassificationWorkflow{
		imageReader:  imageReader,
		artifacts:    artifacts,
		predictor:    predictor,
		preprocessor: preprocessor,
		logger:       logger.WithName("workflow"),
	}
}

// Name returns the workflow name
func (w *ClassificationWorkflow) Name() string {
	return "ClassificationWorkflow"
}

// Execute runs the classification workflow. Failures are returned as
// ErrNoFilename or a *StageError.
func (w *ClassificationWorkflow) Execute(wctx *WorkflowContext) (*WorkflowResult, error) {
	log := w.logger.WithValues("runID", wctx.RunID)
	ctx := wctx.Ctx

	// Step 1: Validate request
	imageURL := wctx.Request.Filename
	if imageURL == "" {
		log.Info("Validation failed: no filename")
		return nil, ErrNoFilename
	}

	log.Info("Starting classification workflow", "filename", imageURL)

	// The artifact key is assigned before anything can fail, so cleanup
	// always has a path to work with.
	key := artifactKey(wctx.RunID, imageURL)
	defer w.cleanup(context.WithoutCancel(ctx), log, key)

	// Step 2: Download the image into the staging area
	size, err := w.download(ctx, imageURL, key)
	if err != nil {
		log.Error(err, "Download failed")
		return nil, err
	}
	log.V(1).Info("Image downloaded", "key", key, "bytes", size)

	// Step 3: Read the staged bytes back
	data, err := w.readArtifact(ctx, key)
	if err != nil {
		log.Error(err, "Failed to read staged image")
		return nil, stageError(StageStaging, err)
	}

	// Step 4: Downscale oversized images when enabled
	data, resized, err := w.preprocessor.Process(data)
	if err != nil {
		log.Error(err, "Preprocessing failed")
		return nil, stageError(StagePreprocess, err)
	}
	if resized {
		log.V(1).Info("Image downscaled", "bytes", len(data))
	}

	// Step 5: Encode the instance and parameters
	instance, err := vertex.NewImageClassificationInstance(data)
	if err != nil {
		log.Error(err, "Failed to encode instance")
		return nil, stageError(StageEncode, err)
	}
	params, err := vertex.NewImageClassificationParams(prediction.ConfidenceThreshold, prediction.MaxPredictions)
	if err != nil {
		log.Error(err, "Failed to encode parameters")
		return nil, stageError(StageEncode, err)
	}

	// Step 6: Predict
	resp, err := w.predictor.Predict(ctx, []*structpb.Value{instance}, params)
	if err != nil {
		log.Error(err, "Prediction failed")
		return nil, stageError(StagePredict, err)
	}
	log.V(1).Info("Prediction received", "deployedModelID", resp.GetDeployedModelId())

	// Step 7: Convert the response
	out, err := vertex.ToMap(resp)
	if err != nil {
		log.Error(err, "Failed to convert response")
		return nil, stageError(StageConvert, err)
	}

	log.Info("Classification workflow completed successfully")

	return &WorkflowResult{
		Prediction:      out,
		DeployedModelID: resp.GetDeployedModelId(),
		ImageBytes:      len(data),
		Resized:         resized,
	}, nil
}

func (w *ClassificationWorkflow) download(ctx context.Context, imageURL, key string) (int64, error) {
	body, err := w.imageReader.GetReader(ctx, imageURL)
	if err != nil {
		return 0, stageError(StageDownload, err)
	}
	defer body.Close()

	n, err := w.artifacts.Put(ctx, key, body)
	if err != nil {
		return n, stageError(StageStaging, err)
	}
	return n, nil
}

func (w *ClassificationWorkflow) readArtifact(ctx context.Context, key string) ([]byte, error) {
	r, err := w.artifacts.GetReader(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("image read failed: %w", err)
	}
	return data, nil
}

// cleanup removes the staged artifact if it exists. Failures are logged and
// never replace the workflow's own outcome.
func (w *ClassificationWorkflow) cleanup(ctx context.Context, log logr.Logger, key string) {
	exists, err := w.artifacts.Exists(ctx, key)
	if err != nil {
		log.Error(err, "Failed to check staged image", "key", key)
		return
	}
	if !exists {
		return
	}
	if err := w.artifacts.Remove(ctx, key); err != nil {
		log.Error(err, "Failed to remove staged image", "key", key)
		return
	}
	log.V(1).Info("Staged image removed", "key", key)
}

// artifactKey derives a request-scoped file name, keeping the image
// extension of the URL when it has a known one.
func artifactKey(runID, imageURL string) string {
	ext := defaultArtifactExt
	if u, err := url.Parse(imageURL); err == nil {
		if e := strings.ToLower(path.Ext(u.Path)); imageExts[e] {
			ext = e
		}
	}
	return runID + ext
}
