package ml

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/san-kum/squat-coach-cv/server/codec"
	"github.com/san-kum/squat-coach-cv/server/models"
	"go.uber.org/zap"
)

// Client talks to the landmark service that hosts the pose and hand models.
// It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	config     *ClientConfig
}

type ClientConfig struct {
	Timeout             time.Duration
	MaxRetries          int
	RetryDelay          time.Duration
	HealthCheckInterval time.Duration
	PosePath            string
	HandsPath           string
	JPEGQuality         int
}

func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:             10 * time.Second,
		MaxRetries:          0,
		RetryDelay:          200 * time.Millisecond,
		HealthCheckInterval: 30 * time.Second,
		PosePath:            "/pose",
		HandsPath:           "/hands",
		JPEGQuality:         90,
	}
}

type DetectionRequest struct {
	Image  string `json:"image"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type PoseResponse struct {
	Landmarks []models.Landmark `json:"landmarks"`
}

type HandsResponse struct {
	Hands []models.HandLandmarks `json:"hands"`
}

func NewClient(baseURL string, config *ClientConfig, logger *zap.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("landmark service base URL is required")
	}
	if config == nil {
		config = DefaultClientConfig()
	}

	return &Client{
		baseURL: baseURL,
		logger:  logger,
		config:  config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    30 * time.Second,
				DisableCompression: true,
			},
		},
	}, nil
}

func (c *Client) DetectPose(ctx context.Context, img image.Image) (*models.PoseLandmarks, error) {
	var resp PoseResponse
	if err := c.detect(ctx, c.config.PosePath, img, &resp); err != nil {
		return nil, fmt.Errorf("pose detection failed: %w", err)
	}

	if len(resp.Landmarks) == 0 {
		return nil, nil
	}
	return &models.PoseLandmarks{Landmarks: resp.Landmarks}, nil
}

func (c *Client) DetectHands(ctx context.Context, img image.Image) ([]models.HandLandmarks, error) {
	var resp HandsResponse
	if err := c.detect(ctx, c.config.HandsPath, img, &resp); err != nil {
		return nil, fmt.Errorf("hand detection failed: %w", err)
	}

	hands := resp.Hands[:0]
	for _, hand := range resp.Hands {
		if len(hand.Landmarks) > 0 {
			hands = append(hands, hand)
		}
	}
	return hands, nil
}

func (c *Client) detect(ctx context.Context, path string, img image.Image, dest any) error {
	jpegData, err := codec.JPEGBytes(img, c.config.JPEGQuality)
	if err != nil {
		return err
	}

	requestData, err := json.Marshal(&DetectionRequest{
		Image:  base64.StdEncoding.EncodeToString(jpegData),
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying landmark request",
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		lastErr = c.post(ctx, path, requestData, dest)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}

	return lastErr
}

func (c *Client) post(ctx context.Context, path string, body []byte, dest any) error {
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("User-Agent", "squat-coach-cv/1.0")

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("landmark service error (status %d): %s",
			response.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(response.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("landmark service unhealthy (status %d)", response.StatusCode)
	}

	return nil
}

// StartHealthChecker polls the landmark service until ctx is cancelled.
func (c *Client) StartHealthChecker(ctx context.Context) {
	if err := c.HealthCheck(ctx); err != nil {
		c.logger.Warn("Landmark service not available at startup", zap.Error(err))
	}

	if c.config.HealthCheckInterval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(c.config.HealthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.HealthCheck(ctx); err != nil {
					c.logger.Error("Landmark service health check failed", zap.Error(err))
				} else {
					c.logger.Debug("Landmark service health check passed")
				}
			}
		}
	}()
}
