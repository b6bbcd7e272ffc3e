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

package test

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kermorvant/horae-archi/services/search/backend"
	"github.com/kermorvant/horae-archi/services/search/catalog"
)

var vocabulary = []string{
	"church", "tower", "gate", "palace", "column", "arch", "vault", "window", "throne", "city",
}

func generateRecord(filename string, description string, persons ...string) *catalog.Record {
	personsList := make([]interface{}, len(persons))
	for personIdx, person := range persons {
		personsList[personIdx] = person
	}
	return catalog.NewRecord(filename, map[string]interface{}{
		catalog.SceneDescriptionField: description,
		catalog.SpatialContextField:   "Interior",
		catalog.PersonsField:          personsList,
	})
}

func generateRandomRecords(count int) []*catalog.Record {
	records := make([]*catalog.Record, count)
	for recordIdx := range records {
		description := ""
		for wordIdx := 0; wordIdx < 20; wordIdx++ {
			description += vocabulary[rand.Intn(len(vocabulary))] + " "
		}
		records[recordIdx] = generateRecord(fmt.Sprintf("record-%06d.json", recordIdx), description)
	}
	return records
}

func sampleRecords() []*catalog.Record {
	return []*catalog.Record{
		generateRecord("a.json", "A gothic church with a tower", "Saint Peter"),
		generateRecord("b.json", "The city gate", "King"),
		generateRecord("c.json", "A church gate", "Saint Paul", "Angel"),
	}
}

func extractFilenames(records []*catalog.Record) []string {
	filenames := []string{}
	for _, record := range records {
		filenames = append(filenames, record.Filename)
	}
	return filenames
}

// RunSuite runs the full backend test suite
func RunSuite(t *testing.T, createBackend func() backend.Backend, destroyBackend func(backend.Backend)) {
	t.Run("TestCreateBackend", func(t *testing.T) {
		b := createBackend()
		defer destroyBackend(b)

		assert.NotNil(t, b)

		count, err := b.Count(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 0, count)
	})
	t.Run("TestStore", func(t *testing.T) {
		b := createBackend()
		defer destroyBackend(b)

		err := b.Store(context.Background(), sampleRecords())
		assert.NoError(t, err)

		count, err := b.Count(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 3, count)
	})
	t.Run("TestStoreReplaces", func(t *testing.T) {
		b := createBackend()
		defer destroyBackend(b)

		err := b.Store(context.Background(), sampleRecords())
		require.NoError(t, err)

		err = b.Store(context.Background(), []*catalog.Record{generateRecord("z.json", "A lonely tower")})
		require.NoError(t, err)

		count, err := b.Count(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 1, count)

		postings, err := b.Postings(context.Background(), "church")
		assert.NoError(t, err)
		assert.Len(t, postings, 0)

		postings, err = b.Postings(context.Background(), "tower")
		assert.NoError(t, err)
		assert.Equal(t, []int{0}, postings)

		_, err = b.RecordByFilename(context.Background(), "a.json")
		var unknownErr *backend.UnknownRecordError
		assert.ErrorAs(t, err, &unknownErr)
	})
	t.Run("TestPostings", func(t *testing.T) {
		b := createBackend()
		defer destroyBackend(b)

		err := b.Store(context.Background(), sampleRecords())
		require.NoError(t, err)

		postings, err := b.Postings(context.Background(), "church")
		assert.NoError(t, err)
		assert.Equal(t, []int{0, 2}, postings)

		postings, err = b.Postings(context.Background(), "gate")
		assert.NoError(t, err)
		assert.Equal(t, []int{1, 2}, postings)

		postings, err = b.Postings(context.Background(), "saint")
		assert.NoError(t, err)
		assert.Equal(t, []int{0, 2}, postings)

		// Spatial context is indexed as well
		postings, err = b.Postings(context.Background(), "interior")
		assert.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2}, postings)

		postings, err = b.Postings(context.Background(), "dragon")
		assert.NoError(t, err)
		assert.Len(t, postings, 0)
	})
	t.Run("TestRetrieveRecords", func(t *testing.T) {
		b := createBackend()
		defer destroyBackend(b)

		err := b.Store(context.Background(), sampleRecords())
		require.NoError(t, err)

		records, err := b.RetrieveRecords(context.Background(), []int{2, 0})
		assert.NoError(t, err)
		assert.Equal(t, []string{"c.json", "a.json"}, extractFilenames(records))
		assert.Equal(t, "A church gate", records[0].SceneDescription)
		assert.Equal(t, []string{"Saint Paul", "Angel"}, records[0].Persons)
		assert.Equal(t, "Interior", records[0].SpatialContext)
		assert.Equal(t, records[0].SearchText(), sampleRecords()[2].SearchText())

		records, err = b.RetrieveRecords(context.Background(), []int{})
		assert.NoError(t, err)
		assert.Len(t, records, 0)
	})
	t.Run("TestRetrieveUnknownRecords", func(t *testing.T) {
		b := createBackend()
		defer destroyBackend(b)

		err := b.Store(context.Background(), sampleRecords())
		require.NoError(t, err)

		_, err = b.RetrieveRecords(context.Background(), []int{0, 3})
		var unknownErr *backend.UnknownRecordError
		assert.ErrorAs(t, err, &unknownErr)
		assert.Equal(t, 3, unknownErr.Index)

		_, err = b.RetrieveRecords(context.Background(), []int{-1})
		assert.ErrorAs(t, err, &unknownErr)
	})
	t.Run("TestRecordByFilename", func(t *testing.T) {
		b := createBackend()
		defer destroyBackend(b)

		err := b.Store(context.Background(), sampleRecords())
		require.NoError(t, err)

		record, err := b.RecordByFilename(context.Background(), "b.json")
		assert.NoError(t, err)
		assert.Equal(t, "The city gate", record.SceneDescription)
		assert.Equal(t, "b.json", record.Export()[catalog.FilenameField])

		_, err = b.RecordByFilename(context.Background(), "unknown.json")
		var unknownErr *backend.UnknownRecordError
		assert.ErrorAs(t, err, &unknownErr)
		assert.Equal(t, "unknown.json", unknownErr.Filename)
	})
	t.Run("TestStoreCanceled", func(t *testing.T) {
		b := createBackend()
		defer destroyBackend(b)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := b.Store(ctx, sampleRecords())
		assert.ErrorIs(t, err, context.Canceled)
	})
	t.Run("TestManyRecords", func(t *testing.T) {
		b := createBackend()
		defer destroyBackend(b)

		records := generateRandomRecords(500)
		err := b.Store(context.Background(), records)
		require.NoError(t, err)

		expectedIndex := catalog.BuildIndex(records)
		for _, token := range vocabulary {
			postings, err := b.Postings(context.Background(), token)
			assert.NoError(t, err)
			assert.Equal(t, len(expectedIndex[token]), len(postings))
			assert.IsIncreasing(t, postings)
		}
	})
}

// RunBenchmarks runs the backend benchmarks
func RunBenchmarks(b *testing.B, createBackend func() backend.Backend, destroyBackend func(backend.Backend)) {
	records := generateRandomRecords(2000)
	b.Run("BenchmarkStore", func(b *testing.B) {
		bck := createBackend()
		defer destroyBackend(bck)

		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			err := bck.Store(context.Background(), records)
			assert.NoError(b, err)
		}
	})
	b.Run("BenchmarkPostings", func(b *testing.B) {
		bck := createBackend()
		defer destroyBackend(bck)

		err := bck.Store(context.Background(), records)
		assert.NoError(b, err)

		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, err := bck.Postings(context.Background(), vocabulary[i%len(vocabulary)])
			assert.NoError(b, err)
		}
	})
	b.Run("BenchmarkRetrieveRecords", func(b *testing.B) {
		bck := createBackend()
		defer destroyBackend(bck)

		err := bck.Store(context.Background(), records)
		assert.NoError(b, err)

		indices := make([]int, 48)
		for i := range indices {
			indices[i] = i * 10
		}

		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, err := bck.RetrieveRecords(context.Background(), indices)
			assert.NoError(b, err)
		}
	})
}
