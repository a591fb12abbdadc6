package prediction

// PredictRequest represents a request to classify a remote image
type PredictRequest struct {
	// Filename is the URL of the image to classify.
	Filename string `json:"filename"`
}

// ErrorResponse is the body returned for any non-200 response
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body returned by the health endpoint
type HealthResponse struct {
	Status string `json:"status"`
}

// Fixed classification parameters sent with every instance
const (
	ConfidenceThreshold = 0.5
	MaxPredictions      = 5
)

// Vertex AI defaults
const (
	DefaultLocation = "us-central1"
	DefaultHTTPPort = 7000
)

// DefaultAPIEndpoint returns the regional API host for the given location.
func DefaultAPIEndpoint(location string) string {
	return location + "-aiplatform.googleapis.com"
}

// Error messages returned to clients
const (
	MsgNoFilename       = "No filename provided"
	MsgMethodNotAllowed = "Method not allowed"
)
