// Package kakao resolves cleansed Korean addresses to coordinates via the
// Kakao Local address-search API.
package kakao

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Coordinate is a resolved latitude/longitude pair.
type Coordinate struct {
	Lat float64
	Lon float64
}

type Config struct {
	BaseURL    string
	RESTAPIKey string
	// Timeout bounds a single attempt; it is deliberately shorter than
	// RetryWait * attempts so one stuck call cannot stall a page.
	Timeout   time.Duration
	RetryMax  int // additional attempts after the first
	RetryWait time.Duration
}

type Client struct {
	cfg  Config
	http *retryablehttp.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://dapi.kakao.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 2 // 3 attempts total
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 1 * time.Second
	}

	rc := retryablehttp.NewClient()
	// Equal min/max gives a fixed inter-attempt delay. The default retry
	// policy retries network errors and 5xx only; 4xx returns straight away.
	rc.RetryWaitMin = cfg.RetryWait
	rc.RetryWaitMax = cfg.RetryWait
	rc.RetryMax = cfg.RetryMax
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = nil

	return &Client{cfg: cfg, http: rc}
}

type addressResponse struct {
	Documents []document `json:"documents"`
}

// Kakao serves x/y as JSON strings.
type document struct {
	X           string `json:"x"` // longitude
	Y           string `json:"y"` // latitude
	AddressName string `json:"address_name"`
}

// Resolve geocodes one address. A miss of any kind (blank input, client
// error, exhausted retries, zero documents, unparsable coordinates) yields
// (nil, nil); coordinates are supplementary and never fail a record. The only
// error returned is context cancellation.
func (c *Client) Resolve(ctx context.Context, address string) (*Coordinate, error) {
	if address == "" {
		return nil, nil
	}

	q := url.Values{}
	q.Set("query", address)
	u := fmt.Sprintf("%s/v2/local/search/address.json?%s", c.cfg.BaseURL, q.Encode())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "KakaoAK "+c.cfg.RESTAPIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("[WARN] kakao geocode gave up for %q: %v", address, err)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("[WARN] kakao geocode client error %d for %q", resp.StatusCode, address)
		return nil, nil
	}

	var body addressResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Printf("[WARN] kakao geocode decode failed for %q: %v", address, err)
		return nil, nil
	}
	if len(body.Documents) == 0 {
		log.Printf("[WARN] kakao geocode found no coordinates for %q", address)
		return nil, nil
	}

	doc := body.Documents[0]
	lat, errLat := strconv.ParseFloat(doc.Y, 64)
	lon, errLon := strconv.ParseFloat(doc.X, 64)
	if errLat != nil || errLon != nil {
		log.Printf("[WARN] kakao geocode returned unparsable coordinates for %q: x=%q y=%q", address, doc.X, doc.Y)
		return nil, nil
	}
	return &Coordinate{Lat: lat, Lon: lon}, nil
}
