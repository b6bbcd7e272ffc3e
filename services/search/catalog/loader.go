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

package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "catalog")

const recordFileExtension = ".json"

// LoadDirectory loads every json file at the root of the given directory, sorted by file name
func LoadDirectory(ctx context.Context, dir string) ([]*Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to list the data directory %q: %w", dir, err)
	}

	filenames := []string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordFileExtension) {
			continue
		}
		filenames = append(filenames, entry.Name())
	}
	sort.Strings(filenames)

	records := make([]*Record, 0, len(filenames))
	for _, filename := range filenames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(dir, filename))
		if err != nil {
			return nil, fmt.Errorf("unable to read record file %q: %w", filename, err)
		}
		record, err := ParseRecord(filename, data)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	log.WithFields(logrus.Fields{
		"dir":   dir,
		"count": len(records),
	}).Debug("data directory loaded")

	return records, nil
}
