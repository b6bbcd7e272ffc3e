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

package engine

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kermorvant/horae-archi/services/search/backend/memory"
	"github.com/kermorvant/horae-archi/services/search/catalog"
	"github.com/kermorvant/horae-archi/services/search/metrics"
)

func makeRecord(filename string, fields map[string]interface{}) *catalog.Record {
	return catalog.NewRecord(filename, fields)
}

func sampleRecords() []*catalog.Record {
	return []*catalog.Record{
		makeRecord("a.json", map[string]interface{}{
			catalog.SceneDescriptionField:      "The Annunciation in a gothic church",
			catalog.SceneInterpretationField:   "Mary receives the angel",
			catalog.SpatialContextField:        "Interior",
			catalog.ArchitecturalContextField:  "Religious",
			catalog.BuildingTypesField:         []interface{}{"Church"},
			catalog.ArchitecturalElementsField: []interface{}{"Ribbed vault", "Column"},
			catalog.PersonsField:               []interface{}{"Mary", "Gabriel"},
		}),
		makeRecord("b.json", map[string]interface{}{
			catalog.SceneDescriptionField:      "A king in front of a city gate",
			catalog.SpatialContextField:        "Exterior",
			catalog.ArchitecturalContextField:  "Urban",
			catalog.BuildingTypesField:         []interface{}{"City wall", "Gate house"},
			catalog.ArchitecturalElementsField: []interface{}{"Crenellation"},
			catalog.PersonsField:               []interface{}{"King"},
		}),
		makeRecord("c.json", map[string]interface{}{
			catalog.SceneDescriptionField:      "Saints before a church gate",
			catalog.SceneInterpretationField:   "Procession",
			catalog.SpatialContextField:        "Exterior",
			catalog.ArchitecturalContextField:  "Religious",
			catalog.BuildingTypesField:         []interface{}{"Church", "Bell tower"},
			catalog.ArchitecturalElementsField: []interface{}{"Portal"},
			catalog.PersonsField:               []interface{}{"Saint Peter", "Saint Paul"},
		}),
	}
}

func createEngine(t testing.TB, records []*catalog.Record, options Options) *Engine {
	b, err := memory.CreateMemoryBackend()
	require.NoError(t, err)
	t.Cleanup(b.Destroy)

	e, err := NewEngine(b, options)
	require.NoError(t, err)

	err = e.Load(context.Background(), records)
	require.NoError(t, err)
	return e
}

func extractFilenames(records []*catalog.Record) []string {
	filenames := []string{}
	for _, record := range records {
		filenames = append(filenames, record.Filename)
	}
	return filenames
}

func TestNewEngineInvalidOptions(t *testing.T) {
	b, err := memory.CreateMemoryBackend()
	require.NoError(t, err)
	defer b.Destroy()

	_, err = NewEngine(b, Options{ResultsPerPage: 0})
	assert.Error(t, err)
}

func TestMatchKeywords(t *testing.T) {
	e := createEngine(t, sampleRecords(), DefaultOptions)
	ctx := context.Background()

	testCases := []struct {
		keywords string
		expected []int
	}{
		{"", []int{0, 1, 2}},
		{"   ", []int{0, 1, 2}},
		{"!!!", []int{0, 1, 2}},
		{"church", []int{0, 2}},
		{"CHURCH", []int{0, 2}},
		{"church gate", []int{2}},
		{"gate church", []int{2}},
		{"gate, king!", []int{1}},
		{"saint", []int{2}},
		{"crenellation", []int{1}},
		{"church dragon", []int{}},
		{"dragon church", []int{}},
	}
	for _, testCase := range testCases {
		t.Run(fmt.Sprintf("%q", testCase.keywords), func(t *testing.T) {
			matches, err := e.Match(ctx, testCase.keywords, Filters{})
			assert.NoError(t, err)
			assert.Equal(t, testCase.expected, matches)
		})
	}
}

func TestMatchFilters(t *testing.T) {
	e := createEngine(t, sampleRecords(), DefaultOptions)
	ctx := context.Background()

	testCases := []struct {
		name     string
		filters  Filters
		expected []int
	}{
		{"description", Filters{SceneDescription: "GOTHIC"}, []int{0}},
		{"interpretation", Filters{SceneInterpretation: "angel"}, []int{0}},
		{"interpretation missing", Filters{SceneInterpretation: "e"}, []int{0, 2}},
		{"spatial exact", Filters{SpatialContext: "exterior"}, []int{1, 2}},
		{"spatial partial", Filters{SpatialContext: "exter"}, []int{}},
		{"architectural", Filters{ArchitecturalContext: "Religious"}, []int{0, 2}},
		{"buildings", Filters{BuildingTypes: "tower"}, []int{2}},
		{"buildings across items", Filters{BuildingTypes: "church bell"}, []int{}},
		{"elements", Filters{ArchitecturalElements: "vault"}, []int{0}},
		{"persons", Filters{Persons: "saint"}, []int{2}},
		{"not trimmed", Filters{Persons: " king"}, []int{}},
		{"combined", Filters{SpatialContext: "Exterior", ArchitecturalContext: "Urban"}, []int{1}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			matches, err := e.Match(ctx, "", testCase.filters)
			assert.NoError(t, err)
			assert.Equal(t, testCase.expected, matches)
		})
	}
}

func TestMatchKeywordsAndFilters(t *testing.T) {
	e := createEngine(t, sampleRecords(), DefaultOptions)

	matches, err := e.Match(context.Background(), "church", Filters{SpatialContext: "Interior"})
	assert.NoError(t, err)
	assert.Equal(t, []int{0}, matches)
}

func TestSearchPagination(t *testing.T) {
	records := make([]*catalog.Record, 100)
	for recordIdx := range records {
		records[recordIdx] = makeRecord(fmt.Sprintf("%03d.json", recordIdx), map[string]interface{}{
			catalog.SceneDescriptionField: "A tower",
		})
	}
	e := createEngine(t, records, DefaultOptions)
	ctx := context.Background()

	result, err := e.Search(ctx, Query{Keywords: "tower", Page: 1})
	assert.NoError(t, err)
	assert.Equal(t, 100, result.TotalResults)
	assert.Equal(t, 3, result.TotalPages)
	assert.Equal(t, 1, result.Page)
	assert.Len(t, result.Records, 48)
	assert.Equal(t, "000.json", result.Records[0].Filename)

	result, err = e.Search(ctx, Query{Keywords: "tower", Page: 3})
	assert.NoError(t, err)
	assert.Len(t, result.Records, 4)
	assert.Equal(t, "096.json", result.Records[0].Filename)

	result, err = e.Search(ctx, Query{Keywords: "tower", Page: 5})
	assert.NoError(t, err)
	assert.Equal(t, 5, result.Page)
	assert.Equal(t, 3, result.TotalPages)
	assert.Len(t, result.Records, 0)

	result, err = e.Search(ctx, Query{Keywords: "tower", Page: 0})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Page)
	assert.Len(t, result.Records, 48)

	result, err = e.Search(ctx, Query{Keywords: "dragon", Page: 1})
	assert.NoError(t, err)
	assert.Equal(t, 0, result.TotalResults)
	assert.Equal(t, 1, result.TotalPages)
	assert.Len(t, result.Records, 0)
}

func TestSearchFilteredPages(t *testing.T) {
	records := make([]*catalog.Record, 300)
	for recordIdx := range records {
		spatial := "Interior"
		if recordIdx%3 == 0 {
			spatial = "Exterior"
		}
		records[recordIdx] = makeRecord(fmt.Sprintf("%03d.json", recordIdx), map[string]interface{}{
			catalog.SceneDescriptionField: "A tower",
			catalog.SpatialContextField:   spatial,
		})
	}
	e := createEngine(t, records, Options{ResultsPerPage: 10, CacheSize: 0})

	result, err := e.Search(context.Background(), Query{Filters: Filters{SpatialContext: "exterior"}, Page: 2})
	assert.NoError(t, err)
	assert.Equal(t, 100, result.TotalResults)
	assert.Equal(t, 10, result.TotalPages)
	assert.Equal(t, "030.json", result.Records[0].Filename)
	assert.Equal(t, "057.json", result.Records[9].Filename)
}

func TestCache(t *testing.T) {
	m := metrics.New()
	e := createEngine(t, sampleRecords(), Options{ResultsPerPage: 48, CacheSize: 4, Metrics: m})
	ctx := context.Background()

	matches, err := e.Match(ctx, "church", Filters{})
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 2}, matches)
	assert.Equal(t, 1, e.cache.Len())

	// Same tokens, same cache entry
	matches, err = e.Match(ctx, "  Church!", Filters{})
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 2}, matches)
	assert.Equal(t, 1, e.cache.Len())

	// Loading new records invalidates the cache
	err = e.Load(ctx, []*catalog.Record{makeRecord("z.json", map[string]interface{}{
		catalog.SceneDescriptionField: "A church",
	})})
	require.NoError(t, err)
	assert.Equal(t, 0, e.cache.Len())

	matches, err = e.Match(ctx, "church", Filters{})
	assert.NoError(t, err)
	assert.Equal(t, []int{0}, matches)
}

func TestRecord(t *testing.T) {
	e := createEngine(t, sampleRecords(), DefaultOptions)

	record, err := e.Record(context.Background(), "b.json")
	assert.NoError(t, err)
	assert.Equal(t, []string{"King"}, record.Persons)

	_, err = e.Record(context.Background(), "unknown.json")
	assert.Error(t, err)
}

func TestSearchCanceled(t *testing.T) {
	e := createEngine(t, sampleRecords(), Options{ResultsPerPage: 48})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Search(ctx, Query{Filters: Filters{Persons: "saint"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPaginate(t *testing.T) {
	start, end, totalPages := paginate(0, 48, 1)
	assert.Equal(t, []int{0, 0, 1}, []int{start, end, totalPages})

	start, end, totalPages = paginate(48, 48, 1)
	assert.Equal(t, []int{0, 48, 1}, []int{start, end, totalPages})

	start, end, totalPages = paginate(49, 48, 2)
	assert.Equal(t, []int{48, 49, 2}, []int{start, end, totalPages})

	start, end, totalPages = paginate(10, 48, 7)
	assert.Equal(t, []int{10, 10, 1}, []int{start, end, totalPages})

	start, end, totalPages = paginate(10, 48, math.MaxInt)
	assert.Equal(t, []int{10, 10, 1}, []int{start, end, totalPages})
}

func TestIntersectSorted(t *testing.T) {
	assert.Equal(t, []int{2, 5}, intersectSorted([]int{1, 2, 5, 9}, []int{0, 2, 3, 5}))
	assert.Equal(t, []int{}, intersectSorted([]int{1, 2}, []int{}))
	assert.Equal(t, []int{}, intersectSorted([]int{1, 3}, []int{2, 4}))
}

func BenchmarkSearch(b *testing.B) {
	records := make([]*catalog.Record, 5000)
	for recordIdx := range records {
		records[recordIdx] = makeRecord(fmt.Sprintf("%05d.json", recordIdx), map[string]interface{}{
			catalog.SceneDescriptionField: fmt.Sprintf("tower number %d", recordIdx%50),
			catalog.PersonsField:          []interface{}{"Saint", fmt.Sprintf("Donor %d", recordIdx%7)},
		})
	}
	e := createEngine(b, records, Options{ResultsPerPage: 48, CacheSize: 0})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := e.Search(context.Background(), Query{Keywords: "tower saint", Filters: Filters{Persons: "donor 3"}})
		assert.NoError(b, err)
	}
}
