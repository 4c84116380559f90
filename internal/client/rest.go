// Package client talks to a running prediction service.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"accident-severity/internal/ml"
)

type Client struct {
	base string
	rest *resty.Client
}

func NewREST(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}
	r.SetHeader("Accept", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status           int      `json:"-"`
	Message          string   `json:"error"`
	RequiredFeatures []string `json:"required_features,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("service returned %d: %s", e.Status, e.Message)
}

// FeatureList is the answer of GET /features.
type FeatureList struct {
	Features  []string `json:"features"`
	Threshold float64  `json:"threshold"`
}

func (c *Client) Features(ctx context.Context) (*FeatureList, error) {
	out := &FeatureList{}
	apiErr := &APIError{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(out).
		SetError(apiErr).
		Get(c.base + "/features")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		return nil, apiErr
	}
	return out, nil
}

// Predict posts one feature mapping to /predict.
func (c *Client) Predict(ctx context.Context, input map[string]any) (*ml.Prediction, error) {
	out := &ml.Prediction{}
	apiErr := &APIError{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(input).
		SetResult(out).
		SetError(apiErr).
		Post(c.base + "/predict")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		if apiErr.Message == "" {
			apiErr.Message = resp.String()
		}
		return nil, apiErr
	}
	return out, nil
}

// Healthy reports whether the service has a model loaded.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	resp, err := c.rest.R().SetContext(ctx).Get(c.base + "/health")
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return true, nil
	case http.StatusServiceUnavailable:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected health status %d", resp.StatusCode())
	}
}
