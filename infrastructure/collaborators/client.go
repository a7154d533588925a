// Package collaborators implements the outbound HTTP adapters behind the
// application ports. Every adapter shares one client shape: a base URL, a
// bounded http.Client, a circuit breaker guarding the upstream, and
// structured logging of every failure.
package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	appErrors "knowmap-backend/pkg/errors"
)

// Client is the shared transport for all collaborator adapters.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	breaker *gobreaker.CircuitBreaker
}

// BreakerSettings tunes the circuit guarding one upstream.
type BreakerSettings struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerSettings returns the settings used unless config overrides
// them.
func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// NewClient builds a transport for one upstream service.
func NewClient(baseURL string, timeout time.Duration, settings BreakerSettings, logger *zap.Logger) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
		breaker: cb,
	}
}

// GetJSON issues a GET and decodes the response body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// PostJSON issues a POST with a JSON body and decodes the response into out.
// out may be nil when the response body does not matter.
func (c *Client) PostJSON(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// PutJSON issues a PUT with a JSON body.
func (c *Client) PutJSON(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return appErrors.NewInternalError("failed to encode request body").WithCause(err)
		}
		payload = bytes.NewReader(buf)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
		if err != nil {
			return nil, appErrors.NewInternalError("failed to build request").WithCause(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, appErrors.NewTimeoutError(fmt.Sprintf("%s %s", method, path)).WithCause(err)
			}
			return nil, appErrors.NewNetworkError(fmt.Sprintf("%s %s failed", method, path), err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, appErrors.NewNetworkError("failed to read response body", err)
		}
		if resp.StatusCode >= 400 {
			return nil, appErrors.NewExternalError(
				fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode), nil)
		}
		return data, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			c.logger.Warn("circuit breaker rejected request",
				zap.String("method", method),
				zap.String("path", path),
				zap.Error(err))
			return appErrors.NewExternalError("upstream temporarily unavailable", err)
		}
		c.logger.Error("collaborator request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return err
	}

	if out == nil {
		return nil
	}
	data := result.([]byte)
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return appErrors.NewExternalError("failed to decode upstream response", err)
	}
	return nil
}
