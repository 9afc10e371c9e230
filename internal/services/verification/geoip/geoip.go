// Package geoip resolves client addresses to a coarse location through the
// ip-api.com JSON endpoint.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"

	"github.com/uwezert/verification/internal/platform/timeouts"
)

const defaultBaseURL = "http://ip-api.com"

const lookupFields = "status,message,country,countryCode,region,regionName,city,zip,lat,lon,isp,org,as,query"

// Client queries the upstream location service. Lookups are bounded by the
// underlying HTTP client timeout, so a slow upstream cannot stall
// registration indefinitely.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a location client. An empty baseURL selects the public
// ip-api.com endpoint.
func New(baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeouts.GeoLookup,
		},
	}
}

// Lookup resolves one address. Addresses that can never resolve publicly
// (empty, loopback, private ranges) short-circuit to nil, nil so local and
// in-cluster traffic skips the upstream call.
func (c *Client) Lookup(ctx context.Context, ip string) (map[string]any, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil, nil
	}
	if addr, err := netip.ParseAddr(ip); err == nil {
		if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
			return nil, nil
		}
	}

	endpoint := fmt.Sprintf("%s/json/%s?fields=%s", c.baseURL, url.PathEscape(ip), url.QueryEscape(lookupFields))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build lookup request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", ip, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lookup %s: upstream status %d", ip, resp.StatusCode)
	}
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode lookup response: %w", err)
	}
	if status, _ := result["status"].(string); status != "success" {
		message, _ := result["message"].(string)
		if message == "" {
			message = "unresolvable address"
		}
		return nil, fmt.Errorf("lookup %s: %s", ip, message)
	}
	delete(result, "status")
	return result, nil
}
