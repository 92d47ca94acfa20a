package production

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/comalice/scxmlcore/ir"
)

// BasicHTTPEventProcessor implements session.HTTPSender: it satisfies
// SCXML's #BasicHTTPEventProcessor send type (W3C C.2) by POSTing the
// event's data as a JSON body with the event name carried in the
// _scxmleventname query parameter, per the Basic HTTP Event I/O Processor's
// wire contract. Rate-limited so a chart with a runaway <send> loop can't
// turn into an unbounded outbound flood — this is the one component in the
// whole tree with an actual network egress surface, so it is also the one
// given its own backpressure knob independent of the scheduler's timing.
type BasicHTTPEventProcessor struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewBasicHTTPEventProcessor returns a processor limited to ratePerSecond
// requests/second with a burst of burst.
func NewBasicHTTPEventProcessor(ratePerSecond float64, burst int) *BasicHTTPEventProcessor {
	return &BasicHTTPEventProcessor{
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Post delivers ev to target, blocking on the rate limiter. A non-nil error
// causes the caller (the session driver) to raise error.communication
// rather than crash the session (spec.md §4.6).
func (p *BasicHTTPEventProcessor) Post(target string, ev ir.EventObject) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("production: rate limit wait: %w", err)
	}

	body, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("production: marshal event data: %w", err)
	}

	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("production: invalid target %q: %w", target, err)
	}
	q := u.Query()
	q.Set("_scxmleventname", ev.Name)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("production: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("production: post to %q: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("production: %q responded %s", target, resp.Status)
	}
	return nil
}
