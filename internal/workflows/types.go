package workflows

import (
	"context"

	"github.com/tendant/simple-image-predict/pkg/prediction"
)

// WorkflowContext contains context for workflow execution
type WorkflowContext struct {
	Ctx     context.Context
	Request prediction.PredictRequest
	RunID   string
}

// WorkflowResult contains the result of workflow execution
type WorkflowResult struct {
	// Prediction is the service response converted to a generic map.
	Prediction      map[string]any
	DeployedModelID string
	// ImageBytes is the size of the payload sent, after preprocessing.
	ImageBytes int
	Resized    bool
}

// Workflow defines the interface for processing workflows
type Workflow interface {
	// Execute runs the workflow
	Execute(wctx *WorkflowContext) (*WorkflowResult, error)

	// Name returns the workflow name
	Name() string
}
