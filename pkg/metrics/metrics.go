// Package metrics talks to the external collaborator that serves verified
// company metrics. The pipeline only ever reads snapshots; refreshes replace
// a company's snapshot whole (models.Company.ReplaceSnapshot), so a running
// analysis sees either the old or the new snapshot, never a mix.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xhad/greenlens/internal/faults"
	"github.com/xhad/greenlens/internal/models"
	"github.com/xhad/greenlens/internal/types"
)

type ProviderConfig struct {
	BaseURL string
	Timeout time.Duration
}

type HTTPProvider struct {
	config ProviderConfig
	client *http.Client
	logger *zap.Logger
}

func NewProvider(config ProviderConfig, logger *zap.Logger) *HTTPProvider {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPProvider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

// Fetch requests the company's metric snapshot. Unknown companies yield
// ErrNotFound; the caller decides whether to proceed rule-only.
func (p *HTTPProvider) Fetch(ctx context.Context, companyID string) (*models.MetricSnapshot, error) {
	url := fmt.Sprintf("%s/v1/companies/%s/metrics", p.config.BaseURL, companyID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("metrics request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: metrics provider", faults.ErrTimeout)
		}
		return nil, fmt.Errorf("%w: metrics provider: %v", faults.ErrTimeout, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: company %s", faults.ErrNotFound, companyID)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: metrics provider", faults.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("metrics provider: status %d", resp.StatusCode)
	}

	var snapshot models.MetricSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("metrics provider: decoding snapshot: %v", err)
	}
	snapshot.CompanyID = companyID
	snapshot.FetchedAt = time.Now()

	p.logger.Debug("fetched metric snapshot",
		zap.String("company_id", companyID),
		zap.Int("metrics", len(snapshot.Metrics)))

	return &snapshot, nil
}

// Refresh fetches a fresh snapshot and swaps it into the company atomically.
// This is the only operation that mutates a company.
func Refresh(ctx context.Context, provider types.MetricsProvider, company *models.Company) error {
	snapshot, err := provider.Fetch(ctx, company.ID)
	if err != nil {
		return err
	}
	company.ReplaceSnapshot(snapshot)
	return nil
}
