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

package memory

import (
	"context"
	"sync"

	"github.com/kermorvant/horae-archi/services/search/backend"
	"github.com/kermorvant/horae-archi/services/search/catalog"
)

type memoryBackend struct {
	records   []*catalog.Record
	index     catalog.InvertedIndex
	filenames map[string]int
	dataMutex *sync.RWMutex
	destroyed bool
}

// CreateMemoryBackend creates a Backend holding every record and the index in memory
func CreateMemoryBackend() (backend.Backend, error) {
	return &memoryBackend{
		records:   []*catalog.Record{},
		index:     catalog.InvertedIndex{},
		filenames: map[string]int{},
		dataMutex: &sync.RWMutex{},
	}, nil
}

// Destroy releases the stored records
func (b *memoryBackend) Destroy() {
	b.dataMutex.Lock()
	defer b.dataMutex.Unlock()
	b.records = nil
	b.index = nil
	b.filenames = nil
	b.destroyed = true
}

func (b *memoryBackend) Store(ctx context.Context, records []*catalog.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	storedRecords := make([]*catalog.Record, len(records))
	copy(storedRecords, records)
	filenames := make(map[string]int, len(records))
	for recordIdx, record := range storedRecords {
		filenames[record.Filename] = recordIdx
	}
	index := catalog.BuildIndex(storedRecords)

	b.dataMutex.Lock()
	defer b.dataMutex.Unlock()
	if b.destroyed {
		return backend.NewUnexpectedError("memory backend destroyed")
	}
	b.records = storedRecords
	b.index = index
	b.filenames = filenames
	return nil
}

func (b *memoryBackend) Count(_ context.Context) (int, error) {
	b.dataMutex.RLock()
	defer b.dataMutex.RUnlock()
	return len(b.records), nil
}

func (b *memoryBackend) Postings(_ context.Context, token string) ([]int, error) {
	b.dataMutex.RLock()
	defer b.dataMutex.RUnlock()
	postings := b.index[token]
	result := make([]int, len(postings))
	copy(result, postings)
	return result, nil
}

func (b *memoryBackend) RetrieveRecords(_ context.Context, indices []int) ([]*catalog.Record, error) {
	b.dataMutex.RLock()
	defer b.dataMutex.RUnlock()
	result := make([]*catalog.Record, 0, len(indices))
	for _, recordIdx := range indices {
		if recordIdx < 0 || recordIdx >= len(b.records) {
			return nil, &backend.UnknownRecordError{Index: recordIdx}
		}
		result = append(result, b.records[recordIdx])
	}
	return result, nil
}

func (b *memoryBackend) RecordByFilename(_ context.Context, filename string) (*catalog.Record, error) {
	b.dataMutex.RLock()
	defer b.dataMutex.RUnlock()
	recordIdx, ok := b.filenames[filename]
	if !ok {
		return nil, &backend.UnknownRecordError{Filename: filename}
	}
	return b.records[recordIdx], nil
}
