// Copyright 2026 The switchRoute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/traylinx/switchRoute/internal/config"
)

// Forwarder delivers a routed request body to an upstream provider and
// returns the raw response. Implementations must not mutate the body.
type Forwarder interface {
	Forward(ctx context.Context, provider *config.Provider, body []byte) (*UpstreamResponse, error)
}

// UpstreamResponse is the provider reply as received on the wire.
type UpstreamResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// HTTPForwarder is the pass-through Forwarder used in production. It posts
// the body to the provider's messages endpoint with the provider's key.
type HTTPForwarder struct {
	client *http.Client
}

// NewHTTPForwarder creates a forwarder with sane upstream timeouts.
func NewHTTPForwarder() *HTTPForwarder {
	return &HTTPForwarder{
		client: &http.Client{
			Timeout: 10 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (f *HTTPForwarder) Forward(ctx context.Context, provider *config.Provider, body []byte) (*UpstreamResponse, error) {
	url := strings.TrimSuffix(provider.APIBaseURL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if provider.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+provider.APIKey)
		req.Header.Set("x-api-key", provider.APIKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request to %s failed: %w", provider.Name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	return &UpstreamResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}
