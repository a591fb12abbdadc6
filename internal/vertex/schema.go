package vertex

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EndpointPath returns the fully qualified endpoint resource name.
func EndpointPath(project, location, endpoint string) string {
	return fmt.Sprintf("projects/%s/locations/%s/endpoints/%s", project, location, endpoint)
}

// NewImageClassificationInstance builds one image classification instance
// carrying the base64-encoded image.
func NewImageClassificationInstance(content []byte) (*structpb.Value, error) {
	v, err := structpb.NewValue(map[string]any{
		"content": base64.StdEncoding.EncodeToString(content),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build instance: %w", err)
	}
	return v, nil
}

// NewImageClassificationParams builds the prediction parameters.
func NewImageClassificationParams(confidenceThreshold float64, maxPredictions int) (*structpb.Value, error) {
	v, err := structpb.NewValue(map[string]any{
		"confidenceThreshold": confidenceThreshold,
		"maxPredictions":      maxPredictions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build parameters: %w", err)
	}
	return v, nil
}

// ToMap converts a protobuf message to a generic JSON-compatible map using
// the protobuf JSON mapping (lowerCamelCase names, unset fields omitted).
func ToMap(m proto.Message) (map[string]any, error) {
	b, err := protojson.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}
