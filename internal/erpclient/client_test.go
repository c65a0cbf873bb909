package erpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeERP struct {
	mu        sync.Mutex
	total     int
	omitTotal bool
	failPage  int
	status    int
	requests  []string
}

func (f *fakeERP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.URL.RawQuery)
	n := len(f.requests)
	f.mu.Unlock()

	if f.failPage != 0 && n == f.failPage {
		w.WriteHeader(f.status)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	rows := make([]map[string]any, 0, limit)
	for i := offset; i < offset+limit && i < f.total; i++ {
		rows = append(rows, map[string]any{"id": i + 1, "imp": "10.5"})
	}
	body := map[string]any{"fac": rows, "count": len(rows)}
	if !f.omitTotal {
		body["total_count"] = f.total
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeERP) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type pageLog struct {
	mu    sync.Mutex
	pages int
	errs  int
}

func (p *pageLog) ObservePage(_ string, _ int, _ time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages++
	if err != nil {
		p.errs++
	}
}

func newTestClient(t *testing.T, h http.Handler, rec Recorder) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	client, err := New(Options{BaseURL: srv.URL + "/", Token: "secret", Recorder: rec})
	require.NoError(t, err)
	return client
}

func TestFetchAllPagesUntilTotal(t *testing.T) {
	erp := &fakeERP{total: 2500}
	rec := &pageLog{}
	client := newTestClient(t, erp, rec)

	res, err := client.FetchAll(context.Background(), Request{Table: "fac", PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, 3, erp.calls())
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 2500, res.TotalCount)
	assert.Len(t, res.Records, 2500)
	assert.True(t, res.Complete)
	assert.False(t, res.Truncated)
	assert.Equal(t, 3, rec.pages)

	assert.Equal(t, "limit=1000&offset=0", erp.requests[0])
	assert.Equal(t, "limit=1000&offset=2000", erp.requests[2])

	var last map[string]any
	require.NoError(t, json.Unmarshal(res.Records[2499], &last))
	assert.EqualValues(t, 2500, last["id"])
}

func TestFetchAllSendsProjectionAndToken(t *testing.T) {
	var auth, fields string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		fields = r.URL.Query().Get("fields")
		_, _ = fmt.Fprint(w, `{"fac":[{"id":1}],"count":1,"total_count":1}`)
	}), nil)

	res, err := client.FetchAll(context.Background(), Request{Table: "fac", Fields: []string{"id", "imp"}})
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "id,imp", fields)
}

func TestFetchAllSafetyCapMarksIncomplete(t *testing.T) {
	erp := &fakeERP{total: 2500}
	client := newTestClient(t, erp, nil)

	res, err := client.FetchAll(context.Background(), Request{Table: "fac", PageSize: 1000, MaxRecords: 1500})
	require.NoError(t, err)
	assert.Len(t, res.Records, 1500)
	assert.Equal(t, 2, erp.calls())
	assert.Equal(t, "limit=500&offset=1000", erp.requests[1])
	assert.False(t, res.Complete)
	assert.True(t, res.Truncated)
	assert.Equal(t, 2500, res.TotalCount)
}

func TestFetchAllNon2xxAbortsWithFetchError(t *testing.T) {
	erp := &fakeERP{total: 2500, failPage: 2, status: http.StatusUnauthorized}
	rec := &pageLog{}
	client := newTestClient(t, erp, rec)

	res, err := client.FetchAll(context.Background(), Request{Table: "fac", PageSize: 1000})
	require.Error(t, err)
	assert.Nil(t, res.Records)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "fac", fe.Table)
	assert.Equal(t, 2, fe.Page)
	assert.Equal(t, 1000, fe.Offset)
	assert.Equal(t, http.StatusUnauthorized, fe.Status)
	assert.ErrorIs(t, err, ErrStatus)
	assert.Contains(t, err.Error(), "fac page 2")
	assert.Equal(t, 1, rec.errs)
}

func TestFetchAllEmptyPageStops(t *testing.T) {
	calls := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_, _ = fmt.Fprint(w, `{"fac":[{"id":1},{"id":2}],"count":2,"total_count":10}`)
			return
		}
		_, _ = fmt.Fprint(w, `{"fac":[],"count":0,"total_count":10}`)
	}), nil)

	res, err := client.FetchAll(context.Background(), Request{Table: "fac", PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, res.Records, 2)
	assert.False(t, res.Complete)
	assert.False(t, res.Truncated)
}

func TestFetchAllWithoutTotalStopsOnShortPage(t *testing.T) {
	erp := &fakeERP{total: 25, omitTotal: true}
	client := newTestClient(t, erp, nil)

	res, err := client.FetchAll(context.Background(), Request{Table: "fac", PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, erp.calls())
	assert.Len(t, res.Records, 25)
	assert.Equal(t, 25, res.TotalCount)
	assert.True(t, res.Complete)
}

func TestFetchAllZeroTotal(t *testing.T) {
	erp := &fakeERP{total: 0}
	client := newTestClient(t, erp, nil)

	res, err := client.FetchAll(context.Background(), Request{Table: "fac"})
	require.NoError(t, err)
	assert.Equal(t, 1, erp.calls())
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)
	assert.True(t, res.Complete)
}

func TestFetchAllRejectsBadEnvelope(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"fac":{"id":1},"total_count":1}`)
	}), nil)
	_, err := client.FetchAll(context.Background(), Request{Table: "fac"})
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 1, fe.Page)

	client = newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `not json`)
	}), nil)
	_, err = client.FetchAll(context.Background(), Request{Table: "fac"})
	require.Error(t, err)
}

func TestFetchAllRecordKeyIsLiteral(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"fac.lin":[{"id":1}],"fac":{"lin":[{"id":2},{"id":3}]},"total_count":1}`)
	}), nil)
	res, err := client.FetchAll(context.Background(), Request{Table: "lines", RecordKey: "fac.lin"})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.JSONEq(t, `{"id":1}`, string(res.Records[0]))
}

func TestFetchAllHonoursCancellation(t *testing.T) {
	erp := &fakeERP{total: 10}
	client := newTestClient(t, erp, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.FetchAll(ctx, Request{Table: "fac"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestDecodeEnvelopeTotalCountForms(t *testing.T) {
	for _, raw := range []string{`3`, `"3"`, `3.0`} {
		p, err := decodeEnvelope([]byte(`{"fac":[],"total_count":`+raw+`}`), "fac")
		require.NoError(t, err, raw)
		assert.True(t, p.known)
		assert.Equal(t, 3, p.total)
	}
	for _, raw := range []string{`-1`, `"many"`, `2.5`, `true`} {
		_, err := decodeEnvelope([]byte(`{"fac":[],"total_count":`+raw+`}`), "fac")
		assert.Error(t, err, raw)
	}
	p, err := decodeEnvelope([]byte(`{"fac":[{"id":1}],"total_count":null}`), "fac")
	require.NoError(t, err)
	assert.False(t, p.known)
	assert.Len(t, p.records, 1)
}
