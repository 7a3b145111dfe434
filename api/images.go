package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MaxImageSize is the largest course image accepted for upload
const MaxImageSize = 5 << 20

var (
	// ErrNotImage is returned for uploads whose content is not an image
	ErrNotImage = errors.New("file is not an image")

	// ErrImageTooLarge is returned for uploads over MaxImageSize
	ErrImageTooLarge = errors.New("image exceeds 5MB")

	// ErrImageUpload is returned when the image host rejects or fails an upload
	ErrImageUpload = errors.New("failed to upload image")
)

// DefaultImageEndpoint is the imgbb upload API
const DefaultImageEndpoint = "https://api.imgbb.com/1/upload"

// ImageHost uploads course images to imgbb and returns their public URL
type ImageHost struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewImageHost creates an ImageHost. An empty endpoint means DefaultImageEndpoint.
func NewImageHost(endpoint, apiKey string, timeout time.Duration, logger *zap.Logger) *ImageHost {
	if endpoint == "" {
		endpoint = DefaultImageEndpoint
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ImageHost{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Upload sends the image read from r. Size and type are checked before any
// network call.
func (h *ImageHost) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	if len(data) > MaxImageSize {
		return "", ErrImageTooLarge
	}
	if !strings.HasPrefix(http.DetectContentType(data), "image/") {
		return "", ErrNotImage
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}

	target := h.endpoint + "?" + url.Values{"key": {h.apiKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageUpload, err)
	}
	defer resp.Body.Close()

	var result struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil && resp.StatusCode == http.StatusOK {
		return "", fmt.Errorf("%w: decoding response: %v", ErrImageUpload, err)
	}
	if resp.StatusCode != http.StatusOK || result.Data.URL == "" {
		h.logger.Warn("image upload rejected", zap.Int("status", resp.StatusCode))
		return "", fmt.Errorf("%w: status %d", ErrImageUpload, resp.StatusCode)
	}

	h.logger.Debug("image uploaded", zap.String("url", result.Data.URL), zap.Int("bytes", len(data)))
	return result.Data.URL, nil
}
