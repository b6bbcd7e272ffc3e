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
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/kermorvant/horae-archi/services/search/backend"
	"github.com/kermorvant/horae-archi/services/search/catalog"
	"github.com/kermorvant/horae-archi/services/search/metrics"
)

var log = logrus.WithField("component", "engine")

// Number of records retrieved at once from the backend while filtering
const filterBatchSize = 512

type Options struct {
	ResultsPerPage int
	// CacheSize is the number of searches whose matches are kept, 0 disables the cache
	CacheSize int
	Metrics   *metrics.Metrics
}

var DefaultOptions = Options{
	ResultsPerPage: 48, // 4 cards × 12 rows per page
	CacheSize:      128,
	Metrics:        nil,
}

// Query is a search request
type Query struct {
	Keywords string
	Filters  Filters
	// Page is 1-based, lower values are considered as 1
	Page int
}

// Result is one page of the records matching a query
type Result struct {
	Records      []*catalog.Record
	Page         int
	TotalPages   int
	TotalResults int
}

type Engine struct {
	backend    backend.Backend
	options    Options
	cache      *lru.Cache
	generation uint64
}

func NewEngine(b backend.Backend, options Options) (*Engine, error) {
	if options.ResultsPerPage <= 0 {
		return nil, fmt.Errorf("invalid number of results per page %d, expecting a strictly positive number", options.ResultsPerPage)
	}
	e := &Engine{
		backend: b,
		options: options,
	}
	if options.CacheSize > 0 {
		cache, err := lru.New(options.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("unable to create the search cache: %w", err)
		}
		e.cache = cache
	}
	count, err := b.Count(context.Background())
	if err != nil {
		return nil, err
	}
	e.options.Metrics.SetRecords(count)
	return e, nil
}

// Load replaces the searched records
func (e *Engine) Load(ctx context.Context, records []*catalog.Record) error {
	err := e.backend.Store(ctx, records)
	if err != nil {
		return err
	}
	atomic.AddUint64(&e.generation, 1)
	if e.cache != nil {
		e.cache.Purge()
	}
	e.options.Metrics.SetRecords(len(records))
	log.WithField("count", len(records)).Debug("records loaded")
	return nil
}

func (e *Engine) ResultsPerPage() int {
	return e.options.ResultsPerPage
}

func (e *Engine) Count(ctx context.Context) (int, error) {
	return e.backend.Count(ctx)
}

func (e *Engine) Record(ctx context.Context, filename string) (*catalog.Record, error) {
	return e.backend.RecordByFilename(ctx, filename)
}

// Search retrieves the requested page of the records matching the query
func (e *Engine) Search(ctx context.Context, query Query) (*Result, error) {
	matches, err := e.Match(ctx, query.Keywords, query.Filters)
	if err != nil {
		return nil, err
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	start, end, totalPages := paginate(len(matches), e.options.ResultsPerPage, page)

	records, err := e.backend.RetrieveRecords(ctx, matches[start:end])
	if err != nil {
		return nil, err
	}

	e.options.Metrics.ObserveSearch(len(matches))

	return &Result{
		Records:      records,
		Page:         page,
		TotalPages:   totalPages,
		TotalResults: len(matches),
	}, nil
}

// Match returns the ascending indices of every record matching the keywords and the filters
func (e *Engine) Match(ctx context.Context, keywords string, filters Filters) ([]int, error) {
	tokens := catalog.Tokenize(keywords)
	key := fmt.Sprintf("%d\x01%s\x01%s", atomic.LoadUint64(&e.generation), strings.Join(tokens, " "), filters.cacheKey())

	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			e.options.Metrics.ObserveCacheLookup(true)
			return cached.([]int), nil
		}
		e.options.Metrics.ObserveCacheLookup(false)
	}

	candidates, err := e.searchKeywords(ctx, tokens)
	if err != nil {
		return nil, err
	}

	matches := candidates
	if !filters.IsEmpty() {
		matches, err = e.filter(ctx, candidates, filters)
		if err != nil {
			return nil, err
		}
	}

	log.WithFields(logrus.Fields{
		"tokens":     len(tokens),
		"candidates": len(candidates),
		"matches":    len(matches),
	}).Trace("search executed")

	if e.cache != nil {
		e.cache.Add(key, matches)
	}
	return matches, nil
}

func (e *Engine) searchKeywords(ctx context.Context, tokens []string) ([]int, error) {
	if len(tokens) == 0 {
		// Nothing to search for, every record is a candidate
		count, err := e.backend.Count(ctx)
		if err != nil {
			return nil, err
		}
		all := make([]int, count)
		for recordIdx := range all {
			all[recordIdx] = recordIdx
		}
		return all, nil
	}

	results, err := e.backend.Postings(ctx, tokens[0])
	if err != nil {
		return nil, err
	}
	for _, token := range tokens[1:] {
		if len(results) == 0 {
			break
		}
		postings, err := e.backend.Postings(ctx, token)
		if err != nil {
			return nil, err
		}
		results = intersectSorted(results, postings)
	}
	return results, nil
}

func (e *Engine) filter(ctx context.Context, candidates []int, filters Filters) ([]int, error) {
	matches := []int{}
	for batchStart := 0; batchStart < len(candidates); batchStart += filterBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batchEnd := batchStart + filterBatchSize
		if batchEnd > len(candidates) {
			batchEnd = len(candidates)
		}
		batch := candidates[batchStart:batchEnd]
		records, err := e.backend.RetrieveRecords(ctx, batch)
		if err != nil {
			return nil, err
		}
		for recordPos, record := range records {
			if filters.Accepts(record) {
				matches = append(matches, batch[recordPos])
			}
		}
	}
	return matches, nil
}
