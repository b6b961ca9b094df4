// Package storage talks to the external content-addressable file store. The
// core never reads file bodies; it only needs existence checks and deletes
// for attachment garbage collection.
package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"civreg/pkg/platform/circuit"
	"civreg/pkg/platform/sentinel"
)

// Client is the file-storage boundary: HEAD-then-DELETE semantics.
type Client interface {
	// Head reports whether the file exists.
	Head(ctx context.Context, filename string) (bool, error)
	// Delete removes the file. Deleting a missing file is not an error.
	Delete(ctx context.Context, filename string) error
}

// HTTPClient implements Client against the storage collaborator's HTTP API,
// guarded by a circuit breaker so a storage outage cannot stall the GC loop
// with per-call timeouts stacking up.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	breaker *circuit.Breaker
}

// NewHTTPClient builds a storage client. The breaker opens after repeated
// failures; while open, calls fail fast with ErrUnavailable.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: circuit.New(5, 30*time.Second),
	}
}

func (c *HTTPClient) Head(ctx context.Context, filename string) (bool, error) {
	if !c.breaker.Allow() {
		return false, sentinel.ErrUnavailable
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.fileURL(filename), nil)
	if err != nil {
		return false, fmt.Errorf("build head request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return false, fmt.Errorf("head %s: %w", filename, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		c.breaker.RecordSuccess()
		return true, nil
	case http.StatusNotFound:
		c.breaker.RecordSuccess()
		return false, nil
	default:
		c.breaker.RecordFailure()
		return false, fmt.Errorf("head %s: unexpected status %d", filename, resp.StatusCode)
	}
}

func (c *HTTPClient) Delete(ctx context.Context, filename string) error {
	if !c.breaker.Allow() {
		return sentinel.ErrUnavailable
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.fileURL(filename), nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("delete %s: %w", filename, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		c.breaker.RecordSuccess()
		return nil
	default:
		c.breaker.RecordFailure()
		return fmt.Errorf("delete %s: unexpected status %d", filename, resp.StatusCode)
	}
}

// Health probes the storage root so the health checker can report on the
// collaborator independently of GC activity.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("storage health: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("storage health: status %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) fileURL(filename string) string {
	return c.baseURL + "/files/" + url.PathEscape(filename)
}
