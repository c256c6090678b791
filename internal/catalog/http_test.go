package catalog_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ProductCatalog/internal/cache"
	"ProductCatalog/internal/catalog"
	"ProductCatalog/pkg/kit"
)

type stubSource struct {
	items []catalog.SourceItem
	err   error
}

func (s stubSource) FetchProducts(context.Context) ([]catalog.SourceItem, error) {
	return s.items, s.err
}

type testEnv struct {
	ts    *httptest.Server
	store *catalog.MemStore
	ids   []string
}

func newCatalogTS(t *testing.T, src catalog.ProductSource, mode catalog.AuthMode) *testEnv {
	t.Helper()

	store := catalog.NewMemStore()
	var ids []string
	for _, name := range []string{"Phone X", "Phone Case", "Laptop"} {
		p, err := store.Insert(context.Background(), catalog.Product{ExternalID: "ext-" + name, Name: name})
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	reg := prometheus.NewRegistry()
	s := catalog.NewServer(catalog.ServerDeps{
		Store:       store,
		Cache:       cache.NewMemory(),
		Source:      src,
		Log:         zap.NewNop(),
		Registry:    reg,
		AuthMode:    mode,
		SyncLimiter: kit.NewIPRateLimiter(1, time.Minute),
	})

	h := catalog.NewHandler(s, catalog.HTTPDeps{
		Log:            zap.NewNop(),
		Service:        "catalog",
		Registry:       reg,
		MetricsEnabled: true,
		MetricsToken:   "scrape",
	})

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, store: store, ids: ids}
}

func do(t *testing.T, method, url string, header http.Header) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func bearer(tok string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + tok}}
}

func TestHTTP_ListProducts(t *testing.T) {
	env := newCatalogTS(t, stubSource{}, catalog.AuthModePrefix)

	resp, body := do(t, http.MethodGet, env.ts.URL+"/products?limit=2&name=phone", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page struct {
		Data       []map[string]any `json:"data"`
		Total      int              `json:"total"`
		Page       int              `json:"page"`
		Limit      int              `json:"limit"`
		TotalPages int              `json:"totalPages"`
	}
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, 1, page.TotalPages)
	require.Len(t, page.Data, 2)
	assert.ElementsMatch(t, []any{"Phone X", "Phone Case"}, []any{page.Data[0]["name"], page.Data[1]["name"]})
	assert.Contains(t, page.Data[0], "externalId")
}

func TestHTTP_ListProductsRejectsBadParams(t *testing.T) {
	env := newCatalogTS(t, stubSource{}, catalog.AuthModePrefix)

	badQueries := []string{
		"page=abc",
		"limit=101",
		"minPrice=cheap",
		"minPrice=10&maxPrice=1",
		"page=-2",
		"page=9223372036854775807&limit=100",
	}
	for _, q := range badQueries {
		t.Run(q, func(t *testing.T) {
			resp, body := do(t, http.MethodGet, env.ts.URL+"/products?"+q, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var e kit.ErrorResponse
			require.NoError(t, json.Unmarshal(body, &e))
			assert.Equal(t, "invalid request", e.Error)
			assert.NotEmpty(t, e.Details)
		})
	}
}

func TestHTTP_DeleteProduct(t *testing.T) {
	env := newCatalogTS(t, stubSource{}, catalog.AuthModePrefix)

	// warm the cache so the delete has something to invalidate
	_, _ = do(t, http.MethodGet, env.ts.URL+"/products", nil)

	resp, body := do(t, http.MethodDelete, env.ts.URL+"/products/"+env.ids[0], nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":"`+env.ids[0]+`","deleted":true}`, string(body))

	resp, body = do(t, http.MethodGet, env.ts.URL+"/products", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"total":2`)

	resp, _ = do(t, http.MethodDelete, env.ts.URL+"/products/"+env.ids[0], nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "repeat delete is a no-op")

	resp, _ = do(t, http.MethodDelete, env.ts.URL+"/products/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_Sync(t *testing.T) {
	src := stubSource{items: []catalog.SourceItem{
		{ExternalID: "ext-Phone X", Name: "Phone X2"},
		{ExternalID: "new-1", Name: "Tablet"},
	}}
	env := newCatalogTS(t, src, catalog.AuthModePrefix)

	resp, body := do(t, http.MethodPost, env.ts.URL+"/products/sync", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"fetched":2,"inserted":1,"updated":1,"failed":0}`, string(body))

	resp, _ = do(t, http.MethodPost, env.ts.URL+"/products/sync", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestHTTP_SyncSourceDown(t *testing.T) {
	env := newCatalogTS(t, stubSource{err: catalog.ErrExternalSourceUnavailable}, catalog.AuthModePrefix)

	resp, _ := do(t, http.MethodPost, env.ts.URL+"/products/sync", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestHTTP_ReportsRequireBearer(t *testing.T) {
	env := newCatalogTS(t, stubSource{}, catalog.AuthModePrefix)
	paths := []string{
		"/reports/deleted-percentage",
		"/reports/non-deleted-percentage",
		"/reports/products-by-category",
	}

	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			resp, _ := do(t, http.MethodGet, env.ts.URL+p, nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

			resp, _ = do(t, http.MethodGet, env.ts.URL+p, http.Header{"Authorization": []string{"Basic abc"}})
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			resp, _ = do(t, http.MethodGet, env.ts.URL+p, bearer(""))
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			resp, _ = do(t, http.MethodGet, env.ts.URL+p, bearer("anything"))
			assert.Equal(t, http.StatusOK, resp.StatusCode, "the token itself is not verified")
		})
	}
}

func TestHTTP_ReportsJWTMode(t *testing.T) {
	env := newCatalogTS(t, stubSource{}, catalog.AuthModeJWT)
	url := env.ts.URL + "/reports/deleted-percentage"

	resp, _ := do(t, http.MethodGet, url, bearer("anything"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte("whatever"))
	require.NoError(t, err)

	resp, _ = do(t, http.MethodGet, url, bearer(tok))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTP_Reports(t *testing.T) {
	env := newCatalogTS(t, stubSource{}, catalog.AuthModePrefix)
	auth := bearer("t")

	resp, _ := do(t, http.MethodDelete, env.ts.URL+"/products/"+env.ids[2], nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, http.MethodGet, env.ts.URL+"/reports/deleted-percentage", auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"total":3,"deleted":1,"percentage":33}`, string(body))

	resp, body = do(t, http.MethodGet, env.ts.URL+"/reports/non-deleted-percentage?withPrice=false", auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"count":2,"percentage":66.67}`, string(body))

	resp, body = do(t, http.MethodGet, env.ts.URL+"/reports/products-by-category", auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[{"category":null,"count":2,"percentage":100}]`, string(body))

	for _, q := range []string{"withPrice=maybe", "startDate=yesterday", "startDate=2026-02-02&endDate=2026-02-01"} {
		resp, _ = do(t, http.MethodGet, env.ts.URL+"/reports/non-deleted-percentage?"+q, auth)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestHTTP_ProbesAndMetrics(t *testing.T) {
	env := newCatalogTS(t, stubSource{}, catalog.AuthModePrefix)

	resp, _ := do(t, http.MethodGet, env.ts.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, env.ts.URL+"/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, _ = do(t, http.MethodGet, env.ts.URL+"/products", nil)

	resp, _ = do(t, http.MethodGet, env.ts.URL+"/metrics", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := do(t, http.MethodGet, env.ts.URL+"/metrics", bearer("scrape"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "http_requests_total")
	assert.Contains(t, string(body), `catalog_cache_operations_total{op="get",result="miss"}`)
}
