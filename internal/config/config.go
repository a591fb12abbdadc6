package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/tendant/simple-image-predict/pkg/prediction"
	"gopkg.in/yaml.v3"
)

const defaultShutdownTimeout = 10 * time.Second

// Environment variable names
const (
	EnvPort              = "PORT"
	EnvProjectID         = "PROJECTID"
	EnvEndpointID        = "ENDPOINT"
	EnvLocation          = "LOCATION"
	EnvAPIEndpoint       = "API_ENDPOINT"
	EnvStagingDir        = "STAGING_DIR"
	EnvDownloadTimeout   = "DOWNLOAD_TIMEOUT"
	EnvPredictTimeout    = "PREDICT_TIMEOUT"
	EnvMaxImageDimension = "MAX_IMAGE_DIMENSION"
	EnvShutdownTimeout   = "SHUTDOWN_TIMEOUT"
)

// LookupFunc looks up an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Config is the configuration.
type Config struct {
	HTTPPort int `yaml:"httpPort"`

	// ProjectID and EndpointID identify the Vertex AI endpoint. They are
	// not required at startup; a request fails if they are still empty.
	ProjectID  string `yaml:"projectId"`
	EndpointID string `yaml:"endpointId"`
	Location   string `yaml:"location"`
	// APIEndpoint is the regional API host. Defaults to
	// "<location>-aiplatform.googleapis.com".
	APIEndpoint string `yaml:"apiEndpoint"`

	// StagingDir holds the transient image files, one per in-flight request.
	StagingDir string `yaml:"stagingDir"`

	// DownloadTimeout and PredictTimeout bound the external calls. Zero
	// means no timeout.
	DownloadTimeout time.Duration `yaml:"downloadTimeout"`
	PredictTimeout  time.Duration `yaml:"predictTimeout"`

	// MaxImageDimension downscales images whose width or height exceeds it
	// before they are sent. Zero disables downscaling.
	MaxImageDimension int `yaml:"maxImageDimension"`

	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// WithDefaults fills in default values for optional fields.
func (c *Config) WithDefaults() {
	if c.HTTPPort == 0 {
		c.HTTPPort = prediction.DefaultHTTPPort
	}
	if c.Location == "" {
		c.Location = prediction.DefaultLocation
	}
	if c.APIEndpoint == "" {
		c.APIEndpoint = prediction.DefaultAPIEndpoint(c.Location)
	}
	if c.StagingDir == "" {
		c.StagingDir = filepath.Join(os.TempDir(), "simple-image-predict")
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("httpPort must be between 1 and 65535")
	}
	if c.Location == "" {
		return fmt.Errorf("location must be set")
	}
	if c.APIEndpoint == "" {
		return fmt.Errorf("apiEndpoint must be set")
	}
	if c.StagingDir == "" {
		return fmt.Errorf("stagingDir must be set")
	}
	if c.DownloadTimeout < 0 {
		return fmt.Errorf("downloadTimeout must not be negative")
	}
	if c.PredictTimeout < 0 {
		return fmt.Errorf("predictTimeout must not be negative")
	}
	if c.MaxImageDimension < 0 {
		return fmt.Errorf("maxImageDimension must not be negative")
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdownTimeout must not be negative")
	}
	return nil
}

// Parse parses the configuration file at the given path, returning a new
// Config struct.
func Parse(path string) (Config, error) {
	var config Config

	b, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("config: read: %s", err)
	}

	if err = yaml.Unmarshal(b, &config); err != nil {
		return config, fmt.Errorf("config: unmarshal: %s", err)
	}
	return config, nil
}

// Load builds the configuration from the optional YAML file at path, then
// overlays values from the dotenv file and the environment. Process
// environment wins over the dotenv file. A missing dotenv file is ignored.
func Load(path, envFile string, lookup LookupFunc) (Config, error) {
	var c Config
	if path != "" {
		var err error
		if c, err = Parse(path); err != nil {
			return c, err
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return c, fmt.Errorf("config: read env file: %s", err)
		}
		if err == nil {
			dotenv = m
		}
	}

	merged := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := c.ApplyEnv(merged); err != nil {
		return c, err
	}

	c.WithDefaults()
	return c, nil
}

// ApplyEnv overrides fields with the environment variables that are set.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %s", key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %s", key, err)
		}
		*dst = d
		return nil
	}

	str(EnvProjectID, &c.ProjectID)
	str(EnvEndpointID, &c.EndpointID)
	str(EnvLocation, &c.Location)
	str(EnvAPIEndpoint, &c.APIEndpoint)
	str(EnvStagingDir, &c.StagingDir)

	if err := num(EnvPort, &c.HTTPPort); err != nil {
		return err
	}
	if err := num(EnvMaxImageDimension, &c.MaxImageDimension); err != nil {
		return err
	}
	if err := dur(EnvDownloadTimeout, &c.DownloadTimeout); err != nil {
		return err
	}
	if err := dur(EnvPredictTimeout, &c.PredictTimeout); err != nil {
		return err
	}
	if err := dur(EnvShutdownTimeout, &c.ShutdownTimeout); err != nil {
		return err
	}
	return nil
}
