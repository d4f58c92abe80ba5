// Package artifactstore implements spec.md §4.8's ArtifactStore interface:
// a pluggable remote cache backend the TaskRunner fetches from on a local
// cache miss. Nothing in the engine calls Put.
//
// The HTTP implementation is adapted from the teacher's internal/client
// (APIClient backed by github.com/hashicorp/go-retryablehttp, with
// github.com/cenkalti/backoff/v4 driving the retry schedule instead of
// retryablehttp's built-in exponential backoff, generalized from turbo's
// Vercel-specific remote cache API to a plain hash-addressed PUT/GET blob
// protocol).
package artifactstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

// ArtifactStore is the remote cache backend interface, spec.md §4.8.
type ArtifactStore interface {
	// Fetch downloads the artifact for hash, returning (nil, false, nil) on
	// a clean miss.
	Fetch(ctx context.Context, hash string) (io.ReadCloser, bool, error)
	// Put uploads the artifact for hash.
	Put(ctx context.Context, hash string, body io.Reader, size int64) error
}

// ErrTooManyFailures is returned once consecutive failures reach the
// configured threshold, matching the teacher's APIClient.ErrTooManyFailures
// circuit-breaker behavior.
var ErrTooManyFailures = errors.New("artifact store: too many consecutive failures, skipping remote requests")

// HTTPStore is an ArtifactStore backed by a PUT/GET blob HTTP API.
type HTTPStore struct {
	BaseURL    string
	Token      string
	httpClient *retryablehttp.Client

	maxFailures  int
	failureCount int
}

// NewHTTPStore constructs an HTTPStore. maxFailures <= 0 disables the
// circuit breaker.
func NewHTTPStore(baseURL, token string, timeout time.Duration, logger hclog.Logger, maxFailures int) *HTTPStore {
	client := &retryablehttp.Client{
		HTTPClient: &http.Client{Timeout: timeout},
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
		RetryMax:     3,
		Backoff:      exponentialBackoff,
		Logger:       logger,
	}
	return &HTTPStore{BaseURL: baseURL, Token: token, httpClient: client, maxFailures: maxFailures}
}

// exponentialBackoff adapts github.com/cenkalti/backoff/v4's
// ExponentialBackOff into retryablehttp's Backoff function shape, so the
// retry *schedule* comes from backoff/v4 while retryablehttp still drives
// the retry loop. resp is ignored, so Retry-After headers are not consulted.
func exponentialBackoff(min, max time.Duration, attempt int, resp *http.Response) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min
	b.MaxInterval = max
	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = b.NextBackOff()
	}
	if d > max || d == backoff.Stop {
		return max
	}
	return d
}

func (s *HTTPStore) url(hash string) string {
	return fmt.Sprintf("%s/v1/artifacts/%s", s.BaseURL, hash)
}

func (s *HTTPStore) circuitOpen() bool {
	return s.maxFailures > 0 && s.failureCount >= s.maxFailures
}

func (s *HTTPStore) recordResult(err error) {
	if err != nil {
		s.failureCount++
	} else {
		s.failureCount = 0
	}
}

// Fetch implements ArtifactStore.
func (s *HTTPStore) Fetch(ctx context.Context, hash string) (io.ReadCloser, bool, error) {
	if s.circuitOpen() {
		return nil, false, ErrTooManyFailures
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.url(hash), nil)
	if err != nil {
		return nil, false, err
	}
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	s.recordResult(err)
	if err != nil {
		return nil, false, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, true, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, false, nil
	default:
		resp.Body.Close()
		return nil, false, errors.Errorf("artifact store fetch %v: unexpected status %v", hash, resp.StatusCode)
	}
}

// Put implements ArtifactStore.
func (s *HTTPStore) Put(ctx context.Context, hash string, body io.Reader, size int64) error {
	if s.circuitOpen() {
		return ErrTooManyFailures
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, s.url(hash), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	s.recordResult(err)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return errors.Errorf("artifact store put %v: unexpected status %v", hash, resp.StatusCode)
	}
	return nil
}

func (s *HTTPStore) authorize(req *retryablehttp.Request) {
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
}

// NullStore is a no-op ArtifactStore, used when remote caching is disabled.
type NullStore struct{}

func (NullStore) Fetch(context.Context, string) (io.ReadCloser, bool, error) { return nil, false, nil }
func (NullStore) Put(context.Context, string, io.Reader, int64) error        { return nil }
