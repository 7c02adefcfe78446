// Copyright 2025 Esteban Alvarez. All Rights Reserved.
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

// Package provider talks to the DigitalOcean-shaped droplet and monitoring
// API. There is no third-party SDK for it in the pack, and the
// classification + credit-acquisition interplay with the key pool is
// specific enough that a generic HTTP client library wouldn't simplify it,
// so this wraps net/http.Client directly with explicit timeouts.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"droxporter/internal/registry"
)

const (
	connectTimeout = 5 * time.Second
	readTimeout    = 30 * time.Second

	// PerPage is the droplet-list page size the client always requests.
	PerPage = 100

	userAgent = "droxporter/1.0 (+metrics-exporter)"
)

// Sample is a single (labels, value) pair produced by the provider client,
// ready for Metric Store upsert.
type Sample struct {
	Labels map[string]string
	Value  float64
}

// Client is a thin, shared, thread-safe wrapper around net/http.Client
// configured with the provider's connect/read timeouts.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New constructs a Client. baseURL is the provider API root, e.g.
// "https://api.digitalocean.com".
func New(baseURL string) *Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: readTimeout,
			Transport: &http.Transport{
				Proxy:       http.ProxyFromEnvironment,
				DialContext: dialer.DialContext,
			},
		},
	}
}

type dropletListResponse struct {
	Droplets []dropletJSON `json:"droplets"`
	Links    struct {
		Pages struct {
			Next string `json:"next"`
		} `json:"pages"`
	} `json:"links"`
}

type dropletJSON struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Memory uint32 `json:"memory"`
	Vcpus  uint32 `json:"vcpus"`
	Disk   uint32 `json:"disk"`
	Metrics *struct {
		Bandwidth []struct {
			Direction string  `json:"direction"` // e.g. "private_inbound"
			Value     float64 `json:"value"`
		} `json:"bandwidth"`
	} `json:"metrics,omitempty"`
}

// ListDropletsPage fetches one page of the droplet list. Each call
// consumes exactly one reservation against the droplet-refresh key group
// (the caller is responsible for reserving before calling). It returns the
// page's droplets, any inline bandwidth samples embedded in the response
// (spec.md §4.C "critically"), and whether a further page follows.
func (c *Client) ListDropletsPage(ctx context.Context, token string, page int) (droplets []registry.Droplet, inline []Sample, hasNext bool, err error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(PerPage))

	body, status, err := c.get(ctx, token, "/v2/droplets", q)
	if err != nil {
		return nil, nil, false, err
	}
	if classErr := classifyStatus(status, string(body)); classErr != nil {
		return nil, nil, false, classErr
	}

	var resp dropletListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, false, &ParseError{Err: err}
	}

	droplets = make([]registry.Droplet, 0, len(resp.Droplets))
	for _, d := range resp.Droplets {
		droplets = append(droplets, registry.Droplet{
			ID:        d.ID,
			Name:      d.Name,
			Status:    d.Status,
			MemoryMB:  d.Memory,
			VCPUCount: d.Vcpus,
			DiskGB:    d.Disk,
		})
		if d.Metrics == nil {
			continue
		}
		for _, bw := range d.Metrics.Bandwidth {
			inline = append(inline, Sample{
				Labels: map[string]string{"droplet": d.Name, "type": bw.Direction},
				Value:  bw.Value,
			})
		}
	}
	return droplets, inline, resp.Links.Pages.Next != "", nil
}

type metricSeriesResponse struct {
	Status string `json:"status"`
	Data   struct {
		Result []struct {
			Metric map[string]string `json:"metric"`
			Values [][2]any           `json:"values"` // [unix_ts, "value-as-string"]
		} `json:"result"`
	} `json:"data"`
}

// FetchMetric requests the last 5 minutes (start/end as Unix seconds; no
// resolution parameter is sent) for the named metric kind/sub_type
// against one droplet, and returns only the
// last finite point in the series (right-to-left scan, protects against
// trailing NaNs per spec.md §9). One call consumes exactly one
// reservation (the caller reserves before calling).
func (c *Client) FetchMetric(ctx context.Context, token, kind string, dropletID uint64, subType string) (float64, error) {
	now := time.Now()
	q := url.Values{}
	q.Set("host_id", strconv.FormatUint(dropletID, 10))
	q.Set("start", strconv.FormatInt(now.Add(-5*time.Minute).Unix(), 10))
	q.Set("end", strconv.FormatInt(now.Unix(), 10))
	if subType != "" {
		q.Set("interface", subType)
	}

	body, status, err := c.get(ctx, token, "/v2/monitoring/metrics/droplet/"+kind, q)
	if err != nil {
		return 0, err
	}
	if classErr := classifyStatus(status, string(body)); classErr != nil {
		return 0, classErr
	}

	var resp metricSeriesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, &ParseError{Err: err}
	}
	if len(resp.Data.Result) == 0 {
		return 0, &ParseError{Err: fmt.Errorf("empty result set for %s", kind)}
	}

	value, ok := lastFinitePoint(resp.Data.Result[0].Values)
	if !ok {
		return 0, &ParseError{Err: fmt.Errorf("no finite point in series for %s", kind)}
	}
	return value, nil
}

// lastFinitePoint scans right-to-left for the first point whose value
// parses as a finite float64, skipping trailing NaN/Inf/null points.
func lastFinitePoint(points [][2]any) (float64, bool) {
	for i := len(points) - 1; i >= 0; i-- {
		raw, ok := points[i][1].(string)
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if isFinite(v) {
			return v, true
		}
	}
	return 0, false
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (c *Client) get(ctx context.Context, token, path string, q url.Values) ([]byte, int, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, &TransientError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &TransientError{Err: err}
	}
	return body, resp.StatusCode, nil
}
