package workflows

import (
	"errors"

	"github.com/tendant/simple-image-predict/pkg/prediction"
)

var (
	// ErrNoFilename is returned when the request carries no image URL
	ErrNoFilename = errors.New(prediction.MsgNoFilename)

	// ErrInvalidRequest is returned when the request body cannot be decoded
	ErrInvalidRequest = errors.New("Invalid request")
)

// Stage names a step of the classification workflow
type Stage string

// Workflow stages, in execution order
const (
	StageDownload   Stage = "download"
	StageStaging    Stage = "staging"
	StagePreprocess Stage = "preprocess"
	StageEncode     Stage = "encode"
	StagePredict    Stage = "predict"
	StageConvert    Stage = "convert"
)

// StageError reports the stage a workflow failed in. Its message is the
// message of the underlying error.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
