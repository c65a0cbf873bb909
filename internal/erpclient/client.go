// Package erpclient retrieves complete record sets from the ERP's paged
// list endpoints.
package erpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	// DefaultPageSize is used when a request leaves PageSize unset.
	DefaultPageSize = 1000
	// DefaultMaxRecords caps a single table fetch.
	DefaultMaxRecords = 1_000_000

	maxBodyBytes = 64 << 20
)

// Recorder observes page fetches.
type Recorder interface {
	ObservePage(table string, records int, duration time.Duration, err error)
}

// Options configure a Client.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// RateLimit bounds page requests per second. Zero disables throttling.
	RateLimit  float64
	HTTPClient *http.Client
	Logger     *slog.Logger
	Recorder   Recorder
}

// Client wraps interactions with the ERP list API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	recorder   Recorder
}

// New constructs a client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("erpclient: base url required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("erpclient: base url: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	c := &Client{
		baseURL:    base,
		token:      opts.Token,
		httpClient: httpClient,
		logger:     opts.Logger,
		recorder:   opts.Recorder,
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return c, nil
}

// Request describes one table fetch.
type Request struct {
	// Table is the endpoint code, e.g. "fac".
	Table string
	// RecordKey names the envelope array. Defaults to Table.
	RecordKey  string
	PageSize   int
	MaxRecords int
	// Fields restricts the projection when set.
	Fields []string
}

func (r Request) normalized() Request {
	if r.RecordKey == "" {
		r.RecordKey = r.Table
	}
	if r.PageSize <= 0 {
		r.PageSize = DefaultPageSize
	}
	if r.MaxRecords <= 0 {
		r.MaxRecords = DefaultMaxRecords
	}
	return r
}

// FetchResult is the outcome of a fetch that did not fail.
type FetchResult struct {
	Table   string            `json:"table"`
	Records []json.RawMessage `json:"-"`
	// TotalCount is the server-declared total.
	TotalCount int `json:"total_count"`
	Pages      int `json:"pages"`
	// Complete is true when every declared record was retrieved.
	Complete bool `json:"complete"`
	// Truncated is true when MaxRecords stopped the loop.
	Truncated bool `json:"truncated"`
}

// FetchError aborts a table fetch.
type FetchError struct {
	Table  string
	Page   int
	Offset int
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("erpclient: fetch %s page %d (offset %d): status %d: %v", e.Table, e.Page, e.Offset, e.Status, e.Err)
	}
	return fmt.Sprintf("erpclient: fetch %s page %d (offset %d): %v", e.Table, e.Page, e.Offset, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrStatus marks non-2xx responses.
var ErrStatus = errors.New("unexpected status")

type page struct {
	records []json.RawMessage
	total   int
	known   bool
}

// FetchAll pages through req.Table until the declared total is reached or
// the safety cap is hit. An error discards everything fetched so far.
func (c *Client) FetchAll(ctx context.Context, req Request) (FetchResult, error) {
	req = req.normalized()
	if req.Table == "" {
		return FetchResult{}, errors.New("erpclient: table required")
	}

	result := FetchResult{Table: req.Table, Records: []json.RawMessage{}}
	totalKnown := false
	offset := 0
	for {
		if len(result.Records) >= req.MaxRecords {
			result.Truncated = true
			break
		}
		limit := req.PageSize
		if remaining := req.MaxRecords - len(result.Records); remaining < limit {
			limit = remaining
		}

		pageNo := result.Pages + 1
		started := time.Now()
		p, err := c.fetchPage(ctx, req, offset, limit)
		c.observe(req.Table, len(p.records), time.Since(started), err)
		if err != nil {
			var fe *FetchError
			if errors.As(err, &fe) {
				fe.Page, fe.Offset = pageNo, offset
				return FetchResult{}, fe
			}
			return FetchResult{}, &FetchError{Table: req.Table, Page: pageNo, Offset: offset, Err: err}
		}
		result.Pages = pageNo
		if p.known {
			result.TotalCount = p.total
			totalKnown = true
		}
		result.Records = append(result.Records, p.records...)
		offset += len(p.records)
		c.log().Debug("erp page fetched", slog.String("table", req.Table), slog.Int("page", pageNo), slog.Int("records", len(p.records)), slog.Int("total_count", result.TotalCount))

		if len(p.records) == 0 {
			break
		}
		if totalKnown && offset >= result.TotalCount {
			break
		}
		if !totalKnown && len(p.records) < limit {
			break
		}
	}

	if !totalKnown {
		// Without a declared total, a short page marks the end.
		result.TotalCount = len(result.Records)
		if result.Truncated {
			result.TotalCount = -1
		}
	}
	result.Complete = len(result.Records) == result.TotalCount
	if !result.Complete {
		c.log().Warn("erp fetch incomplete",
			slog.String("table", req.Table),
			slog.Int("records", len(result.Records)),
			slog.Int("total_count", result.TotalCount),
			slog.Bool("truncated", result.Truncated),
		)
	}
	return result, nil
}

func (c *Client) fetchPage(ctx context.Context, req Request, offset, limit int) (page, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return page{}, err
		}
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))
	if len(req.Fields) > 0 {
		query.Set("fields", strings.Join(req.Fields, ","))
	}
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(req.Table), query.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return page{}, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return page{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return page{}, &FetchError{Table: req.Table, Status: resp.StatusCode, Err: ErrStatus}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return page{}, err
	}
	return decodeEnvelope(body, req.RecordKey)
}

// decodeEnvelope extracts {<key>: [...], count, total_count}.
func decodeEnvelope(body []byte, key string) (page, error) {
	if !gjson.ValidBytes(body) {
		return page{}, errors.New("invalid json envelope")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return page{}, errors.New("envelope is not an object")
	}

	// Keys are matched literally; table codes may contain path syntax.
	var list gjson.Result
	root.ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			list = v
			return false
		}
		return true
	})

	var p page
	switch {
	case !list.Exists() || list.Type == gjson.Null:
		p.records = nil
	case list.IsArray():
		list.ForEach(func(_, v gjson.Result) bool {
			p.records = append(p.records, json.RawMessage(v.Raw))
			return true
		})
	default:
		return page{}, fmt.Errorf("envelope key %q is not an array", key)
	}

	if total := root.Get("total_count"); total.Exists() && total.Type != gjson.Null {
		n := -1
		switch total.Type {
		case gjson.Number:
			if total.Num == float64(int64(total.Num)) {
				n = int(total.Int())
			}
		case gjson.String:
			if v, err := strconv.Atoi(strings.TrimSpace(total.Str)); err == nil {
				n = v
			}
		}
		if n < 0 {
			return page{}, fmt.Errorf("invalid total_count %s", total.Raw)
		}
		p.total, p.known = n, true
	}
	return p, nil
}

func (c *Client) observe(table string, records int, d time.Duration, err error) {
	if c.recorder != nil {
		c.recorder.ObservePage(table, records, d, err)
	}
}

func (c *Client) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}
