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

package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/kermorvant/horae-archi/services/search/backend"
	"github.com/kermorvant/horae-archi/services/search/catalog"
)

var log = logrus.WithField("component", "backend/bolt")

type boltBackend struct {
	db       *bolt.DB
	filePath string
}

// storedRecord is the serialized form of a record
type storedRecord struct {
	Filename string                 `json:"filename"`
	Document map[string]interface{} `json:"document"`
}

// Bucket structure is
//	records		> {record_idx}	> {storedRecord}
//	filenames	> {filename}		> {record_idx}
//	postings	> {token}				> {delta encoded record indices}
//	meta			> count					> {record count}

var recordsBucketName = []byte("records")

var filenamesBucketName = []byte("filenames")

var postingsBucketName = []byte("postings")

var metaBucketName = []byte("meta")

var countKey = []byte("count")

var rootBucketNames = [][]byte{recordsBucketName, filenamesBucketName, postingsBucketName, metaBucketName}

func getBucket(tx *bolt.Tx, name []byte) (*bolt.Bucket, error) {
	bucket := tx.Bucket(name)
	if bucket == nil {
		return nil, backend.NewUnexpectedError("%s bucket doesn't exist", name)
	}
	return bucket, nil
}

func serializeNumID(id int) []byte {
	// Format using a hex representation of a fixed length of 16 characters padded with 0
	return []byte(fmt.Sprintf("%016x", id))
}

func deserializeNumID(value []byte) (int, error) {
	number, err := strconv.ParseInt(string(value), 16, 64)
	if err != nil {
		return 0, backend.NewUnexpectedError("unable to deserialize number id (%w)", err)
	}
	return int(number), nil
}

func serializeRecord(record *catalog.Record) ([]byte, error) {
	v, err := json.Marshal(storedRecord{
		Filename: record.Filename,
		Document: record.Document,
	})
	if err != nil {
		return nil, backend.NewUnexpectedError("unable to serialize record %q (%w)", record.Filename, err)
	}
	return v, nil
}

func deserializeRecord(v []byte) (*catalog.Record, error) {
	stored := storedRecord{}
	err := json.Unmarshal(v, &stored)
	if err != nil {
		return nil, backend.NewUnexpectedError("unable to deserialize record (%w)", err)
	}
	return catalog.NewRecord(stored.Filename, stored.Document), nil
}

// serializePostings encodes sorted indices as a sequence of uvarint deltas
func serializePostings(postings []int) []byte {
	buf := make([]byte, 0, len(postings)*binary.MaxVarintLen32)
	tmp := make([]byte, binary.MaxVarintLen64)
	previous := 0
	for _, recordIdx := range postings {
		n := binary.PutUvarint(tmp, uint64(recordIdx-previous))
		buf = append(buf, tmp[:n]...)
		previous = recordIdx
	}
	return buf
}

func deserializePostings(v []byte) ([]int, error) {
	postings := []int{}
	previous := 0
	for len(v) > 0 {
		delta, n := binary.Uvarint(v)
		if n <= 0 {
			return nil, backend.NewUnexpectedError("unable to deserialize postings")
		}
		previous += int(delta)
		postings = append(postings, previous)
		v = v[n:]
	}
	return postings, nil
}

// CreateBoltBackend creates a Backend that will store records in a bolt-managed file
func CreateBoltBackend(filePath string) (backend.Backend, error) {
	db, err := bolt.Open(filePath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		// Opening of the file failed
		return nil, err
	}
	// Create the root buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range rootBucketNames {
			_, err := tx.CreateBucketIfNotExists(name)
			if err != nil {
				return backend.NewUnexpectedError("unable to create the %s bucket (%w)", name, err)
			}
		}
		return nil
	})
	if err != nil {
		// Creation of the root buckets failed
		db.Close()
		return nil, err
	}

	b := &boltBackend{
		db:       db,
		filePath: filePath,
	}
	return b, nil
}

func (b *boltBackend) Destroy() {
	b.db.Close()
}

func (b *boltBackend) Store(ctx context.Context, records []*catalog.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	index := catalog.BuildIndex(records)

	err := b.db.Update(func(tx *bolt.Tx) error {
		// Everything is rewritten from scratch
		for _, name := range rootBucketNames {
			if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
				return backend.NewUnexpectedError("unable to delete the %s bucket (%w)", name, err)
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return backend.NewUnexpectedError("unable to create the %s bucket (%w)", name, err)
			}
		}

		recordsBucket, err := getBucket(tx, recordsBucketName)
		if err != nil {
			return err
		}
		filenamesBucket, err := getBucket(tx, filenamesBucketName)
		if err != nil {
			return err
		}
		for recordIdx, record := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			recordKey := serializeNumID(recordIdx)
			recordV, err := serializeRecord(record)
			if err != nil {
				return err
			}
			if err := recordsBucket.Put(recordKey, recordV); err != nil {
				return backend.NewUnexpectedError("unable to store record %q (%w)", record.Filename, err)
			}
			if err := filenamesBucket.Put([]byte(record.Filename), recordKey); err != nil {
				return backend.NewUnexpectedError("unable to store record %q file name (%w)", record.Filename, err)
			}
		}

		postingsBucket, err := getBucket(tx, postingsBucketName)
		if err != nil {
			return err
		}
		for token, postings := range index {
			if err := postingsBucket.Put([]byte(token), serializePostings(postings)); err != nil {
				return backend.NewUnexpectedError("unable to store token %q postings (%w)", token, err)
			}
		}

		metaBucket, err := getBucket(tx, metaBucketName)
		if err != nil {
			return err
		}
		return metaBucket.Put(countKey, serializeNumID(len(records)))
	})
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"path":    b.filePath,
		"records": len(records),
		"tokens":  index.Tokens(),
	}).Debug("snapshot stored")
	return nil
}

func (b *boltBackend) count(tx *bolt.Tx) (int, error) {
	metaBucket, err := getBucket(tx, metaBucketName)
	if err != nil {
		return 0, err
	}
	countV := metaBucket.Get(countKey)
	if countV == nil {
		return 0, nil
	}
	return deserializeNumID(countV)
}

func (b *boltBackend) Count(_ context.Context) (int, error) {
	count := 0
	err := b.db.View(func(tx *bolt.Tx) error {
		var err error
		count, err = b.count(tx)
		return err
	})
	return count, err
}

func (b *boltBackend) Postings(_ context.Context, token string) ([]int, error) {
	postings := []int{}
	err := b.db.View(func(tx *bolt.Tx) error {
		postingsBucket, err := getBucket(tx, postingsBucketName)
		if err != nil {
			return err
		}
		postingsV := postingsBucket.Get([]byte(token))
		if postingsV == nil {
			return nil
		}
		postings, err = deserializePostings(postingsV)
		return err
	})
	if err != nil {
		return nil, err
	}
	return postings, nil
}

func (b *boltBackend) RetrieveRecords(ctx context.Context, indices []int) ([]*catalog.Record, error) {
	records := make([]*catalog.Record, 0, len(indices))
	err := b.db.View(func(tx *bolt.Tx) error {
		recordsBucket, err := getBucket(tx, recordsBucketName)
		if err != nil {
			return err
		}
		for _, recordIdx := range indices {
			if err := ctx.Err(); err != nil {
				return err
			}
			if recordIdx < 0 {
				return &backend.UnknownRecordError{Index: recordIdx}
			}
			recordV := recordsBucket.Get(serializeNumID(recordIdx))
			if recordV == nil {
				return &backend.UnknownRecordError{Index: recordIdx}
			}
			record, err := deserializeRecord(recordV)
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (b *boltBackend) RecordByFilename(_ context.Context, filename string) (*catalog.Record, error) {
	var record *catalog.Record
	err := b.db.View(func(tx *bolt.Tx) error {
		filenamesBucket, err := getBucket(tx, filenamesBucketName)
		if err != nil {
			return err
		}
		recordKey := filenamesBucket.Get([]byte(filename))
		if recordKey == nil {
			return &backend.UnknownRecordError{Filename: filename}
		}
		recordsBucket, err := getBucket(tx, recordsBucketName)
		if err != nil {
			return err
		}
		recordV := recordsBucket.Get(recordKey)
		if recordV == nil {
			return backend.NewUnexpectedError("no record stored for file %q", filename)
		}
		record, err = deserializeRecord(recordV)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}
