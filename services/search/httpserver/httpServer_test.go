// Copyright 2023 AI Redefined Inc. <dev+cogment@ai-r.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kermorvant/horae-archi/services/search/backend/memory"
	"github.com/kermorvant/horae-archi/services/search/catalog"
	"github.com/kermorvant/horae-archi/services/search/engine"
	"github.com/kermorvant/horae-archi/services/search/metrics"
)

func sampleRecords() []*catalog.Record {
	return []*catalog.Record{
		catalog.NewRecord("a.json", map[string]interface{}{
			catalog.SceneDescriptionField: "The Annunciation in a gothic church",
			catalog.SpatialContextField:   "Interior",
			catalog.BuildingTypesField:    []interface{}{"Church"},
			catalog.PersonsField:          []interface{}{"Mary", "Gabriel"},
		}),
		catalog.NewRecord("b.json", map[string]interface{}{
			catalog.SceneDescriptionField: "A king in front of a city gate",
			catalog.SpatialContextField:   "Exterior",
			catalog.PersonsField:          []interface{}{"King"},
		}),
		catalog.NewRecord("c.json", map[string]interface{}{
			catalog.SceneDescriptionField: "Saints before a church gate",
			catalog.SpatialContextField:   "Exterior",
			catalog.PersonsField:          []interface{}{"Saint Peter"},
		}),
	}
}

func createServer(t *testing.T, records []*catalog.Record, options Options) *Server {
	b, err := memory.CreateMemoryBackend()
	require.NoError(t, err)
	t.Cleanup(b.Destroy)

	e, err := engine.NewEngine(b, engine.DefaultOptions)
	require.NoError(t, err)
	require.NoError(t, e.Load(context.Background(), records))

	server, err := New(0, e, options)
	require.NoError(t, err)
	return server
}

func recordResponse(t *testing.T, server *Server, method string, route string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	var err error
	if body != "" {
		req, err = http.NewRequest(method, route, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req, err = http.NewRequest(method, route, nil)
	}
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	server.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	decoded := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded))
	return decoded
}

func TestSearchPage(t *testing.T) {
	server := createServer(t, sampleRecords(), DefaultOptions)

	rr := recordResponse(t, server, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "3 results, page 1 of 1")
	assert.Contains(t, rr.Body.String(), "<h3>a.json</h3>")
	assert.Contains(t, rr.Body.String(), "<h3>b.json</h3>")
	assert.Contains(t, rr.Body.String(), "<h3>c.json</h3>")
	assert.Contains(t, rr.Body.String(), "Mary, Gabriel")
}

func TestSearchPageWithFilters(t *testing.T) {
	server := createServer(t, sampleRecords(), DefaultOptions)

	rr := recordResponse(t, server, http.MethodGet, "/?query=church&f_spatial=exterior", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "1 results, page 1 of 1")
	assert.Contains(t, rr.Body.String(), "<h3>c.json</h3>")
	assert.NotContains(t, rr.Body.String(), "<h3>a.json</h3>")
	// The form is filled with the current search
	assert.Contains(t, rr.Body.String(), `name="query" value="church"`)
	assert.Contains(t, rr.Body.String(), `name="f_spatial" value="exterior"`)
}

func TestSearchPageNoResults(t *testing.T) {
	server := createServer(t, sampleRecords(), DefaultOptions)

	rr := recordResponse(t, server, http.MethodGet, "/?query=dragon", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "0 results, page 1 of 1")
	assert.Contains(t, rr.Body.String(), "No miniature matches this search.")
}

func TestSearchPagePagination(t *testing.T) {
	records := make([]*catalog.Record, 60)
	for recordIdx := range records {
		records[recordIdx] = catalog.NewRecord(fmt.Sprintf("%03d.json", recordIdx), map[string]interface{}{
			catalog.SceneDescriptionField: "A tower",
		})
	}
	server := createServer(t, records, DefaultOptions)

	rr := recordResponse(t, server, http.MethodGet, "/?query=tower", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "60 results, page 1 of 2")
	assert.Contains(t, rr.Body.String(), `class="next"`)
	assert.Contains(t, rr.Body.String(), "page=2")
	assert.NotContains(t, rr.Body.String(), `class="previous"`)
	assert.Contains(t, rr.Body.String(), "<h3>047.json</h3>")
	assert.NotContains(t, rr.Body.String(), "<h3>048.json</h3>")

	rr = recordResponse(t, server, http.MethodGet, "/?query=tower&page=2", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "60 results, page 2 of 2")
	assert.Contains(t, rr.Body.String(), `class="previous"`)
	assert.NotContains(t, rr.Body.String(), `class="next"`)
	assert.Contains(t, rr.Body.String(), "<h3>048.json</h3>")
}

func TestSearchPageInvalidPage(t *testing.T) {
	server := createServer(t, sampleRecords(), DefaultOptions)

	rr := recordResponse(t, server, http.MethodGet, "/?page=abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	decoded := decodeJSON(t, rr)
	assert.Equal(t, `invalid "page" parameter "abc", expecting an integer`, decoded["message"])
}

func TestSubmitSearch(t *testing.T) {
	server := createServer(t, sampleRecords(), DefaultOptions)

	form := url.Values{}
	form.Set("query", "church")
	form.Set("f_spatial", "Interior")
	form.Set("page", "4")
	rr := recordResponse(t, server, http.MethodPost, "/", form.Encode())

	assert.Equal(t, http.StatusFound, rr.Code)
	location, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/", location.Path)
	assert.Equal(t, url.Values{
		"query":          {"church"},
		"f_scene_desc":   {""},
		"f_scene_interp": {""},
		"f_spatial":      {"Interior"},
		"f_arch":         {""},
		"f_buildings":    {""},
		"f_elements":     {""},
		"f_persons":      {""},
		"page":           {"1"},
	}, location.Query())
}

func TestAPISearch(t *testing.T) {
	server := createServer(t, sampleRecords(), DefaultOptions)

	rr := recordResponse(t, server, http.MethodGet, "/api/search?query=church", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	decoded := decodeJSON(t, rr)
	assert.Equal(t, "church", decoded["query"])
	assert.Equal(t, float64(1), decoded["page"])
	assert.Equal(t, float64(1), decoded["total_pages"])
	assert.Equal(t, float64(2), decoded["total_results"])

	results := decoded["results"].([]interface{})
	require.Len(t, results, 2)
	assert.Equal(t, "a.json", results[0].(map[string]interface{})["_filename"])
	assert.Equal(t, "c.json", results[1].(map[string]interface{})["_filename"])
	assert.Equal(t, "Exterior", results[1].(map[string]interface{})["spatial_context"])

	filters := decoded["filters"].(map[string]interface{})
	assert.Equal(t, "", filters["f_persons"])
}

func TestAPISearchEmptyPage(t *testing.T) {
	server := createServer(t, sampleRecords(), DefaultOptions)

	rr := recordResponse(t, server, http.MethodGet, "/api/search?page=3", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	decoded := decodeJSON(t, rr)
	assert.Equal(t, float64(3), decoded["page"])
	assert.Equal(t, float64(3), decoded["total_results"])
	assert.Equal(t, []interface{}{}, decoded["results"])
}

func TestAPIRecord(t *testing.T) {
	server := createServer(t, sampleRecords(), DefaultOptions)

	rr := recordResponse(t, server, http.MethodGet, "/api/records/b.json", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	decoded := decodeJSON(t, rr)
	assert.Equal(t, "b.json", decoded["_filename"])
	assert.Equal(t, []interface{}{"King"}, decoded["persons"])

	rr = recordResponse(t, server, http.MethodGet, "/api/records/unknown.json", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	decoded = decodeJSON(t, rr)
	assert.Equal(t, `no record "unknown.json" found`, decoded["message"])
}

func TestAPIInfo(t *testing.T) {
	server := createServer(t, sampleRecords(), DefaultOptions)

	rr := recordResponse(t, server, http.MethodGet, "/api", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	decoded := decodeJSON(t, rr)
	assert.Equal(t, float64(3), decoded["records"])
	assert.Contains(t, decoded, "version")
	assert.Contains(t, decoded, "message")
}

func TestHealth(t *testing.T) {
	server := createServer(t, sampleRecords(), DefaultOptions)

	rr := recordResponse(t, server, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "{\"status\":\"ok\"}", rr.Body.String())
}

func TestMetrics(t *testing.T) {
	server := createServer(t, sampleRecords(), Options{MaxConcurrentRequests: 4, Metrics: metrics.New()})

	rr := recordResponse(t, server, http.MethodGet, "/api/search?query=church", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = recordResponse(t, server, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `horae_http_requests_total{method="GET",route="/api/search",status="200"} 1`)
}

// failingBackend holds no records and fails every lookup
type failingBackend struct{}

func (failingBackend) Destroy() {}

func (failingBackend) Store(ctx context.Context, records []*catalog.Record) error {
	return nil
}

func (failingBackend) Count(ctx context.Context) (int, error) {
	return 0, nil
}

func (failingBackend) Postings(ctx context.Context, token string) ([]int, error) {
	return nil, fmt.Errorf("boom")
}

func (failingBackend) RetrieveRecords(ctx context.Context, indices []int) ([]*catalog.Record, error) {
	return nil, fmt.Errorf("boom")
}

func (failingBackend) RecordByFilename(ctx context.Context, filename string) (*catalog.Record, error) {
	return nil, fmt.Errorf("boom")
}

func TestBackendFailure(t *testing.T) {
	e, err := engine.NewEngine(failingBackend{}, engine.DefaultOptions)
	require.NoError(t, err)
	server, err := New(0, e, DefaultOptions)
	require.NoError(t, err)

	rr := recordResponse(t, server, http.MethodGet, "/api/search?query=x", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	decoded := decodeJSON(t, rr)
	assert.Equal(t, `unable to search "x": boom`, decoded["message"])

	rr = recordResponse(t, server, http.MethodGet, "/api/records/a.json", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	decoded = decodeJSON(t, rr)
	assert.Equal(t, `unable to retrieve record "a.json": boom`, decoded["message"])
}

func Test404(t *testing.T) {
	server := createServer(t, sampleRecords(), DefaultOptions)

	rr := recordResponse(t, server, http.MethodGet, "/foo", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	decoded := decodeJSON(t, rr)
	assert.Equal(t, "/foo not found", decoded["message"])
}

func Test405(t *testing.T) {
	server := createServer(t, sampleRecords(), DefaultOptions)

	rr := recordResponse(t, server, http.MethodDelete, "/", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	decoded := decodeJSON(t, rr)
	assert.Equal(t, "method not allowed", decoded["message"])
}

func TestConcurrencyLimit(t *testing.T) {
	server := createServer(t, sampleRecords(), Options{MaxConcurrentRequests: 1})

	// Hold the only slot
	require.NoError(t, server.slots.Acquire(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "/api/search", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	server.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	// Health and metrics routes are not limited
	rr = recordResponse(t, server, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	server.slots.Release(1)

	rr = recordResponse(t, server, http.MethodGet, "/api/search", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}
