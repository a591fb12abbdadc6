package workflows

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const resizeJPEGQuality = 90

// Preprocessor downscales images that exceed a maximum dimension
type Preprocessor struct {
	maxDimension int
}

// NewPreprocessor creates a preprocessor. A maxDimension of zero or less
// leaves every image untouched.
func NewPreprocessor(maxDimension int) *Preprocessor {
	return &Preprocessor{maxDimension: maxDimension}
}

// Process returns the bytes to send and whether they were re-encoded.
// Images that fit, and data whose header cannot be read as an image, are
// returned unchanged.
func (p *Preprocessor) Process(data []byte) ([]byte, bool, error) {
	if p.maxDimension <= 0 {
		return data, false, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return data, false, nil
	}
	if cfg.Width <= p.maxDimension && cfg.Height <= p.maxDimension {
		return data, false, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, false, fmt.Errorf("image decode failed: %w", err)
	}

	// Fit keeps the aspect ratio
	resized := imaging.Fit(img, p.maxDimension, p.maxDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(resizeJPEGQuality)); err != nil {
		return nil, false, fmt.Errorf("JPEG encode failed: %w", err)
	}
	return buf.Bytes(), true, nil
}
