package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Result is the outcome of an endpoint probe
type Result struct {
	Healthy    bool
	Message    string
	StatusCode int
	Attempts   int
	CheckedAt  time.Time
	Duration   time.Duration
}

// HTTPProber checks that a freshly released endpoint answers. It retries
// until one attempt succeeds or Attempts is used up.
type HTTPProber struct {
	// Attempts is the number of requests before giving up (default: 3)
	Attempts int

	// Interval is the pause between attempts (default: 5s)
	Interval time.Duration

	// ExpectedStatusMin is the minimum acceptable HTTP status code (default: 200)
	ExpectedStatusMin int

	// ExpectedStatusMax is the maximum acceptable HTTP status code (default: 399)
	ExpectedStatusMax int

	Client *http.Client
}

// NewHTTPProber creates a prober with a 10 second request timeout
func NewHTTPProber() *HTTPProber {
	return &HTTPProber{
		Attempts:          3,
		Interval:          5 * time.Second,
		ExpectedStatusMin: 200,
		ExpectedStatusMax: 399,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Probe GETs url until it answers within the expected range
func (p *HTTPProber) Probe(ctx context.Context, url string) Result {
	start := time.Now()
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var res Result
	for i := 1; i <= attempts; i++ {
		res = p.once(ctx, url)
		res.Attempts = i
		if res.Healthy || i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			res.Message = fmt.Sprintf("%s (%v)", res.Message, ctx.Err())
			res.CheckedAt = start
			res.Duration = time.Since(start)
			return res
		case <-time.After(p.Interval):
		}
	}

	res.CheckedAt = start
	res.Duration = time.Since(start)
	return res
}

func (p *HTTPProber) once(ctx context.Context, url string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("User-Agent", "wharf-probe")

	resp, err := p.Client.Do(req)
	if err != nil {
		return Result{Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode >= p.ExpectedStatusMin && resp.StatusCode <= p.ExpectedStatusMax
	message := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if !healthy {
		message = fmt.Sprintf("%s (expected %d-%d)", message, p.ExpectedStatusMin, p.ExpectedStatusMax)
	}
	return Result{Healthy: healthy, Message: message, StatusCode: resp.StatusCode}
}
