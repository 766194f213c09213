// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package aggregate drives the batched verify-and-accumulate protocol
// with the Helper (§4.8): it owns the outbound HTTP client and the round
// itself.
package aggregate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ppmleader/internal/leader/params"
	"ppmleader/internal/leader/problem"
	"ppmleader/internal/leader/wire"
)

// userAgent identifies the Leader to the Helper on every outbound request.
const userAgent = "ppm-leader/1.0/leader"

// Client is the Leader's HTTP client for the two Helper-facing endpoints
// named in §6. The connection pool is shared across requests, per §5's
// shared-resource policy.
type Client struct {
	http   *http.Client
	params *params.Parameters
}

// NewClient builds a Client with a bounded per-request timeout. There is
// no finer-grained deadline in the core (§5 "Cancellation / timeouts").
func NewClient(p *params.Parameters, timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}, params: p}
}

// VerifyStart posts a VerifyStartRequest to the Helper's /aggregate and
// decodes its VerifyResponse. A non-2xx response is translated to a
// *problem.Error of kind helperError, carrying either the Helper's own
// problem document or a synthesized detail string (§4.8 step 1).
func (c *Client) VerifyStart(ctx context.Context, req wire.VerifyStartRequest) (wire.VerifyResponse, error) {
	var resp wire.VerifyResponse
	if err := c.post(ctx, c.params.AggregateEndpoint(), req, &resp); err != nil {
		return wire.VerifyResponse{}, err
	}
	return resp, nil
}

// OutputShare posts an OutputShareRequest to the Helper's /output_share
// and decodes its EncryptedOutputShare.
func (c *Client) OutputShare(ctx context.Context, req wire.OutputShareRequest) (wire.EncryptedOutputShare, error) {
	var resp wire.EncryptedOutputShare
	if err := c.post(ctx, c.params.OutputShareEndpoint(), req, &resp); err != nil {
		return wire.EncryptedOutputShare{}, err
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, url string, body, out interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return problem.New(problem.UnknownError, fmt.Sprintf("encode helper request: %v", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return problem.New(problem.UnknownError, fmt.Sprintf("build helper request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return problem.New(problem.HelperError, fmt.Sprintf("helper request failed: %v", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return problem.New(problem.HelperError, fmt.Sprintf("read helper response: %v", err))
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		if httpResp.Header.Get("Content-Type") == "application/problem+json" {
			if doc, derr := problem.Decode(respBody); derr == nil {
				return problem.New(problem.HelperError, fmt.Sprintf("helper problem %s: %s", doc.Type, doc.Detail))
			}
		}
		return problem.New(problem.HelperError, fmt.Sprintf("helper returned status %d: %s", httpResp.StatusCode, string(respBody)))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return problem.New(problem.HelperError, fmt.Sprintf("decode helper response: %v", err))
		}
	}
	return nil
}
