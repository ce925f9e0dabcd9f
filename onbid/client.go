package onbid

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

var (
	// ErrUnavailable marks network, timeout, or upstream status failures on
	// the list endpoint. These abort the whole ingestion run.
	ErrUnavailable = errors.New("onbid: source unavailable")
	// ErrMalformed marks an envelope with no body or no item list.
	ErrMalformed = errors.New("onbid: malformed response")
)

type Config struct {
	BaseURL    string
	ServiceKey string
	Timeout    time.Duration
	RetryMax   int
}

type Client struct {
	cfg  Config
	http *retryablehttp.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://openapi.onbid.co.kr/openapi/services/KamcoPblsalThingInquireSvc"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}

	rc := retryablehttp.NewClient()
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 1 * time.Second
	rc.RetryMax = cfg.RetryMax
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = nil

	return &Client{cfg: cfg, http: rc}
}

// FetchPage fetches one page of the public-sale listing feed. totalCount is
// trustworthy only on the page-1 response; callers capture it once and ignore
// later values.
func (c *Client) FetchPage(ctx context.Context, pageNo, numOfRows int) ([]Item, int, error) {
	q := url.Values{}
	q.Set("serviceKey", c.cfg.ServiceKey)
	q.Set("pageNo", fmt.Sprintf("%d", pageNo))
	q.Set("numOfRows", fmt.Sprintf("%d", numOfRows))
	q.Set("DPSL_MTD_CD", "0001") // sale-method filter, fixed

	raw, err := c.get(ctx, "/getKamcoPbctCltrList", q)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: page %d: %v", ErrUnavailable, pageNo, err)
	}

	var resp listResponse
	if err := xml.Unmarshal(raw, &resp); err != nil {
		return nil, 0, fmt.Errorf("%w: page %d: %v", ErrMalformed, pageNo, err)
	}
	if resp.Body == nil || resp.Body.Items == nil {
		return nil, 0, fmt.Errorf("%w: page %d: envelope missing body or items", ErrMalformed, pageNo)
	}
	return resp.Body.Items.Item, resp.Body.TotalCount, nil
}

// FetchBasicInfo fetches the announcement detail for one listing. Detail data
// is supplementary: any failure is logged and reported as not found.
func (c *Client) FetchBasicInfo(ctx context.Context, plnmNo, pbctNo string) *BasicInfo {
	q := url.Values{}
	q.Set("serviceKey", c.cfg.ServiceKey)
	q.Set("PLNM_NO", plnmNo)
	q.Set("PBCT_NO", pbctNo)

	raw, err := c.get(ctx, "/getKamcoPlnmPbctBasicInfoDetail", q)
	if err != nil {
		log.Printf("[WARN] onbid basic info fetch failed (PLNM_NO=%s PBCT_NO=%s): %v", plnmNo, pbctNo, err)
		return nil
	}
	var resp basicInfoResponse
	if err := xml.Unmarshal(raw, &resp); err != nil {
		log.Printf("[WARN] onbid basic info decode failed (PLNM_NO=%s PBCT_NO=%s): %v", plnmNo, pbctNo, err)
		return nil
	}
	if resp.Body == nil {
		return nil
	}
	return resp.Body.Item
}

// FetchFiles fetches the attachment list for one announcement. Fails soft:
// an empty slice on any error.
func (c *Client) FetchFiles(ctx context.Context, plnmNo, pbctNo string) []FileInfo {
	q := url.Values{}
	q.Set("serviceKey", c.cfg.ServiceKey)
	q.Set("PLNM_NO", plnmNo)
	q.Set("PBCT_NO", pbctNo)
	q.Set("numOfRows", "10")
	q.Set("pageNo", "1")

	raw, err := c.get(ctx, "/getKamcoPlnmPbctFileInfoDetail", q)
	if err != nil {
		log.Printf("[WARN] onbid file info fetch failed (PLNM_NO=%s PBCT_NO=%s): %v", plnmNo, pbctNo, err)
		return nil
	}
	var resp fileInfoResponse
	if err := xml.Unmarshal(raw, &resp); err != nil {
		log.Printf("[WARN] onbid file info decode failed (PLNM_NO=%s PBCT_NO=%s): %v", plnmNo, pbctNo, err)
		return nil
	}
	if resp.Body == nil || resp.Body.Items == nil {
		return nil
	}
	return resp.Body.Items.FileItem
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := fmt.Sprintf("%s%s?%s", c.cfg.BaseURL, path, q.Encode())
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return readAllLimit(resp.Body, 4<<20) // 4MB guard
}

func readAllLimit(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, errors.New("payload too large")
	}
	return b, nil
}
