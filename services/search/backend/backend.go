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

package backend

import (
	"context"
	"fmt"

	"github.com/kermorvant/horae-archi/services/search/catalog"
)

// Backend defines the interface for the storage of the records and their inverted index
type Backend interface {
	Destroy()

	// Store replaces every stored record by the given ones and rebuilds the index
	Store(ctx context.Context, records []*catalog.Record) error

	Count(ctx context.Context) (int, error)
	// Postings returns the sorted indices of the records containing the given token
	Postings(ctx context.Context, token string) ([]int, error)
	// RetrieveRecords returns the records at the given indices, in the same order
	RetrieveRecords(ctx context.Context, indices []int) ([]*catalog.Record, error)
	RecordByFilename(ctx context.Context, filename string) (*catalog.Record, error)
}

// UnknownRecordError is raised when trying to retrieve an unknown record
type UnknownRecordError struct {
	Filename string
	Index    int
}

func (e *UnknownRecordError) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("no record %q found", e.Filename)
	}
	return fmt.Sprintf("no record #%d found", e.Index)
}

// UnexpectedError is raised when the underlying storage misbehaves
type UnexpectedError struct {
	Err error
}

func NewUnexpectedError(format string, a ...interface{}) *UnexpectedError {
	return &UnexpectedError{Err: fmt.Errorf(format, a...)}
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected backend error: %s", e.Err)
}

func (e *UnexpectedError) Unwrap() error {
	return e.Err
}
