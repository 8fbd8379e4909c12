package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
	"github.com/JakeFAU/event-ingestor/internal/metrics"
	"github.com/JakeFAU/event-ingestor/internal/retry"
)

const robotsFallbackReasonTimeout = "robots.txt timed out"

// defaultRobotsPolicy retries robots.txt briefly; event sites behind slow
// CDNs often time out on the first TLS handshake.
func defaultRobotsPolicy(timeout time.Duration) *retry.Policy {
	return retry.New(retry.Config{
		MaxAttempts:  4,
		BaseDelay:    250 * time.Millisecond,
		MaxDelay:     time.Second,
		CallTimeout:  timeout,
		AbandonGrace: time.Second,
	})
}

// robotsAwareTransport retries robots.txt lookups and, when they keep timing
// out, answers allow-all so a flaky host does not block its event listing.
// Every other request goes straight to base.
type robotsAwareTransport struct {
	base   http.RoundTripper
	state  *robotsProbeState
	policy *retry.Policy
}

func (t *robotsAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots transport received nil request")
	}
	if t.state == nil || !isRobotsTxtRequest(req) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("robots transport base roundtrip: %w", err)
		}
		return resp, nil
	}
	policy := t.policy
	if policy == nil {
		policy = defaultRobotsPolicy(0)
	}
	return t.state.roundTripWithRetry(req, t.base, policy)
}

func isRobotsTxtRequest(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	return strings.EqualFold(req.URL.Path, "/robots.txt")
}

// robotsProbeState remembers whether robots.txt had to be assumed allow-all
// for the current fetch.
type robotsProbeState struct {
	mu            sync.Mutex
	indeterminate bool
	reason        string
}

func newRobotsProbeState() *robotsProbeState {
	return &robotsProbeState{}
}

func (s *robotsProbeState) apply(resp *ingest.FetchResponse) {
	if s == nil || resp == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indeterminate {
		resp.RobotsIndeterminate = true
	}
}

func (s *robotsProbeState) roundTripWithRetry(req *http.Request, base http.RoundTripper, policy *retry.Policy) (*http.Response, error) {
	var (
		mu   sync.Mutex
		resp *http.Response
	)
	_, err := policy.Do(req.Context(), func(ctx context.Context) error {
		r, err := base.RoundTrip(req.Clone(ctx))
		if err != nil {
			if !isTimeout(err) {
				return fmt.Errorf("%w: %w", ingest.ErrFatal, err)
			}
			return err
		}
		mu.Lock()
		resp = r
		mu.Unlock()
		return nil
	})
	mu.Lock()
	defer mu.Unlock()
	switch {
	case err == nil:
		return resp, nil
	case req.Context().Err() != nil:
		return nil, fmt.Errorf("robots roundtrip: %w", req.Context().Err())
	case isTimeout(err):
		s.markIndeterminate(robotsFallbackReasonTimeout)
		return syntheticRobotsAllowAllResponse(req), nil
	default:
		return nil, fmt.Errorf("robots roundtrip non-transient: %w", err)
	}
}

func (s *robotsProbeState) markIndeterminate(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indeterminate {
		return
	}
	s.indeterminate = true
	s.reason = reason
	metrics.ObserveRobotsFallback()
}

func syntheticRobotsAllowAllResponse(req *http.Request) *http.Response {
	const body = "User-agent: *\nAllow: /"
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Header:        make(http.Header),
		Request:       req,
	}
}

func isTimeout(err error) bool {
	if err == nil || errors.Is(err, ingest.ErrFatal) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, retry.ErrAbandoned) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
