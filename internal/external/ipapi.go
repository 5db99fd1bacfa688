package external

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjannette/cryptovest-backend/internal/httputil"
)

const (
	defaultIPAPIBase = "https://ipapi.co"
	unknownLocation  = "Unknown"
)

type Location struct {
	IP      string `json:"ip"`
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country_name"`
}

// GeoClient resolves an IP to a coarse location. It never fails: any error
// yields "Unknown" fields.
type GeoClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewGeoClient(baseURL string) *GeoClient {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultIPAPIBase
	}
	return &GeoClient{
		baseURL:    base,
		httpClient: &http.Client{Timeout: 4 * time.Second},
	}
}

// Locate is single-attempt since it runs inside a user action.
func (c *GeoClient) Locate(ctx context.Context, ip string) Location {
	loc := Location{IP: ip, City: unknownLocation, Region: unknownLocation, Country: unknownLocation}
	if !routable(ip) {
		return loc
	}

	endpoint := c.baseURL + "/" + url.PathEscape(ip) + "/json/"
	resp, err := httputil.Do(ctx, c.httpClient, httputil.NoRetry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return loc
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return loc
	}

	var data Location
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return loc
	}
	if data.City != "" {
		loc.City = data.City
	}
	if data.Region != "" {
		loc.Region = data.Region
	}
	if data.Country != "" {
		loc.Country = data.Country
	}
	return loc
}

// routable reports whether ip is a public address worth looking up.
func routable(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return !(parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() || parsed.IsLinkLocalUnicast())
}
