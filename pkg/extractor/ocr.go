package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xhad/greenlens/internal/faults"
)

type OCRClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second
}

// HTTPOCRClient talks to the OCR collaborator over HTTP. The backend is slow
// and rate-limited, so every call waits on the limiter and is bounded by the
// configured timeout.
type HTTPOCRClient struct {
	config  OCRClientConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

type ocrResponse struct {
	Text  string   `json:"text"`
	Pages []string `json:"pages"`
}

func NewOCRClient(config OCRClientConfig, logger *zap.Logger) *HTTPOCRClient {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 0.5
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPOCRClient{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  logger,
	}
}

func (c *HTTPOCRClient) Recognize(ctx context.Context, data []byte) (string, []string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", nil, fmt.Errorf("%w: %v", faults.ErrOCRTimeout, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/ocr", bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", faults.ErrOCRFailed, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", nil, fmt.Errorf("%w: after %s", faults.ErrOCRTimeout, time.Since(start))
		}
		return "", nil, fmt.Errorf("%w: %v", faults.ErrOCRFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", nil, fmt.Errorf("%w: ocr backend", faults.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return "", nil, fmt.Errorf("%w: status %d", faults.ErrOCRFailed, resp.StatusCode)
	}

	var body ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", nil, fmt.Errorf("%w: decoding response: %v", faults.ErrOCRFailed, err)
	}

	c.logger.Debug("ocr completed",
		zap.Duration("took", time.Since(start)),
		zap.Int("pages", len(body.Pages)),
		zap.Int("chars", len(body.Text)))

	if body.Text == "" && len(body.Pages) == 0 {
		return "", nil, fmt.Errorf("%w: empty response", faults.ErrOCRFailed)
	}
	return body.Text, body.Pages, nil
}
