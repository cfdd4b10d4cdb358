package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
)

// Prober produces one raw health observation for a region endpoint. Raw
// results feed the monitor's rolling window and are never exposed directly.
type Prober interface {
	Kind() core.ProbeKind
	Probe(ctx context.Context, endpoint core.RegionEndpoint) core.HealthCheckResult
}

type ComputeProber struct {
	client *http.Client
	path   string
}

func NewComputeProber(timeout time.Duration) *ComputeProber {
	return &ComputeProber{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		path: "/health",
	}
}

func (p *ComputeProber) Kind() core.ProbeKind {
	return core.ProbeCompute
}

func (p *ComputeProber) Probe(ctx context.Context, endpoint core.RegionEndpoint) core.HealthCheckResult {
	result := core.HealthCheckResult{
		RegionID:  endpoint.RegionID,
		Kind:      core.ProbeCompute,
		CheckedAt: time.Now(),
	}

	url := "http://" + endpoint.ComputeEndpoint + p.path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = fmt.Sprintf("failed to create request: %v", err)
		return result
	}
	req.Header.Set("User-Agent", "dr-pilot-light/1.0")

	start := time.Now()
	resp, err := p.client.Do(req)
	result.Latency = time.Since(start)

	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
		return result
	}

	result.Healthy = true
	return result
}

// DatabaseStateFetcher is the slice of the database adapter the prober needs.
type DatabaseStateFetcher interface {
	Describe(ctx context.Context, replicaID string) (core.DatabaseReplica, error)
}

type DatabaseProber struct {
	db      DatabaseStateFetcher
	timeout time.Duration
}

func NewDatabaseProber(db DatabaseStateFetcher, timeout time.Duration) *DatabaseProber {
	return &DatabaseProber{db: db, timeout: timeout}
}

func (p *DatabaseProber) Kind() core.ProbeKind {
	return core.ProbeDatabase
}

func (p *DatabaseProber) Probe(ctx context.Context, endpoint core.RegionEndpoint) core.HealthCheckResult {
	result := core.HealthCheckResult{
		RegionID:  endpoint.RegionID,
		Kind:      core.ProbeDatabase,
		CheckedAt: time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	replica, err := p.db.Describe(ctx, endpoint.DatabaseHandle)
	result.Latency = time.Since(start)

	if err != nil {
		result.Error = fmt.Sprintf("describe failed: %v", err)
		return result
	}

	// A promoted standalone instance is as healthy as an available replica.
	switch replica.PromotionState {
	case core.PromotionReplica, core.PromotionStandalone:
		result.Healthy = true
	default:
		result.Error = fmt.Sprintf("database in state %q", replica.PromotionState)
	}
	return result
}
