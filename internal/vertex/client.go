package vertex

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/go-logr/logr"
	"google.golang.org/api/option"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	// ErrMissingProjectID is returned when no project is configured
	ErrMissingProjectID = errors.New("project id is not configured (set PROJECTID)")

	// ErrMissingEndpointID is returned when no endpoint is configured
	ErrMissingEndpointID = errors.New("endpoint id is not configured (set ENDPOINT)")
)

// Config identifies the prediction endpoint.
type Config struct {
	ProjectID   string
	EndpointID  string
	Location    string
	APIEndpoint string

	// Timeout bounds a single predict call. Zero means no timeout.
	Timeout time.Duration
}

// predictionService is the subset of the generated client the Client uses.
type predictionService interface {
	Predict(ctx context.Context, req *aiplatformpb.PredictRequest) (*aiplatformpb.PredictResponse, error)
	Close() error
}

type gapicService struct {
	client *aiplatform.PredictionClient
}

func (s *gapicService) Predict(ctx context.Context, req *aiplatformpb.PredictRequest) (*aiplatformpb.PredictResponse, error) {
	return s.client.Predict(ctx, req)
}

func (s *gapicService) Close() error {
	return s.client.Close()
}

// Client calls a Vertex AI prediction endpoint. The underlying connection is
// created on first use so that missing credentials surface per request.
type Client struct {
	config Config
	opts   []option.ClientOption

	mu  sync.Mutex
	svc predictionService

	logger logr.Logger
}

// NewClient creates a new client. Extra options are passed to the generated
// client after the regional endpoint option.
func NewClient(cfg Config, logger logr.Logger, opts ...option.ClientOption) *Client {
	return &Client{
		config: cfg,
		opts:   opts,
		logger: logger.WithName("vertex"),
	}
}

// Endpoint returns the endpoint resource name the client predicts against.
func (c *Client) Endpoint() string {
	return EndpointPath(c.config.ProjectID, c.config.Location, c.config.EndpointID)
}

// Predict submits the instances with the given parameters.
func (c *Client) Predict(ctx context.Context, instances []*structpb.Value, parameters *structpb.Value) (*aiplatformpb.PredictResponse, error) {
	if c.config.ProjectID == "" {
		return nil, ErrMissingProjectID
	}
	if c.config.EndpointID == "" {
		return nil, ErrMissingEndpointID
	}

	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	endpoint := c.Endpoint()
	resp, err := svc.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:   endpoint,
		Instances:  instances,
		Parameters: parameters,
	})
	if err != nil {
		if st, ok := status.FromError(err); ok {
			return nil, fmt.Errorf("predict %s failed (%s): %w", endpoint, st.Code(), err)
		}
		return nil, fmt.Errorf("predict %s failed: %w", endpoint, err)
	}

	c.logger.V(1).Info("Received prediction", "deployedModelID", resp.DeployedModelId, "predictions", len(resp.Predictions))
	return resp, nil
}

// Close releases the underlying connection, if one was opened.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.svc == nil {
		return nil
	}
	err := c.svc.Close()
	c.svc = nil
	return err
}

func (c *Client) service(ctx context.Context) (predictionService, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.svc != nil {
		return c.svc, nil
	}

	opts := append([]option.ClientOption{
		option.WithEndpoint(dialAddress(c.config.APIEndpoint)),
	}, c.opts...)
	// The connection outlives the request that happens to open it.
	client, err := aiplatform.NewPredictionClient(context.WithoutCancel(ctx), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create prediction client: %w", err)
	}
	c.logger.Info("Created prediction client", "apiEndpoint", c.config.APIEndpoint)
	c.svc = &gapicService{client: client}
	return c.svc, nil
}

// dialAddress returns apiEndpoint with the default HTTPS port appended unless
// it already names a port.
func dialAddress(apiEndpoint string) string {
	if _, _, err := net.SplitHostPort(apiEndpoint); err == nil {
		return apiEndpoint
	}
	return net.JoinHostPort(apiEndpoint, "443")
}
