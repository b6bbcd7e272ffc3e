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

package search

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kermorvant/horae-archi/services/search/backend"
	"github.com/kermorvant/horae-archi/services/search/backend/bolt"
	"github.com/kermorvant/horae-archi/services/search/backend/memory"
	"github.com/kermorvant/horae-archi/services/search/catalog"
	"github.com/kermorvant/horae-archi/services/search/engine"
	"github.com/kermorvant/horae-archi/services/search/httpserver"
	"github.com/kermorvant/horae-archi/services/search/metrics"
)

var log = logrus.WithField("component", "search")

type StorageType int

const (
	Memory StorageType = iota
	File
)

func (s StorageType) String() string {
	switch s {
	case Memory:
		return "memory"
	case File:
		return "file"
	default:
		return fmt.Sprintf("StorageType(%d)", int(s))
	}
}

type Options struct {
	Port                  uint
	DataDir               string
	Storage               StorageType
	IndexFile             string
	Rebuild               bool
	ResultsPerPage        int
	CacheSize             int
	MaxConcurrentRequests int
}

var DefaultOptions = Options{
	Port:                  8080,
	DataDir:               "data",
	Storage:               Memory,
	IndexFile:             ".horae/index.db",
	Rebuild:               false,
	ResultsPerPage:        engine.DefaultOptions.ResultsPerPage,
	CacheSize:             engine.DefaultOptions.CacheSize,
	MaxConcurrentRequests: httpserver.DefaultOptions.MaxConcurrentRequests,
}

func loadRecords(ctx context.Context, b backend.Backend, dataDir string) error {
	records, err := catalog.LoadDirectory(ctx, dataDir)
	if err != nil {
		return err
	}
	err = b.Store(ctx, records)
	if err != nil {
		return errors.Annotatef(err, "unable to index the records of %q", dataDir)
	}
	log.WithField("data_dir", dataDir).Infof("loaded %d JSON records", len(records))
	return nil
}

func createBoltBackend(indexFile string) (backend.Backend, error) {
	if dir := filepath.Dir(indexFile); dir != "" {
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return nil, errors.Annotatef(err, "unable to create the index directory %q", dir)
		}
	}
	b, err := bolt.CreateBoltBackend(indexFile)
	if err != nil {
		return nil, errors.Annotate(err, "unable to create the bolt backend")
	}
	return b, nil
}

// OpenBackend creates the backend for the configured storage, ready to be searched
func OpenBackend(ctx context.Context, options Options) (backend.Backend, error) {
	switch options.Storage {
	case File:
		log.WithField("path", options.IndexFile).Info("using a file storage backend")
		b, err := createBoltBackend(options.IndexFile)
		if err != nil {
			return nil, err
		}
		count, err := b.Count(ctx)
		if err != nil {
			b.Destroy()
			return nil, err
		}
		if options.Rebuild || count == 0 {
			err = loadRecords(ctx, b, options.DataDir)
			if err != nil {
				b.Destroy()
				return nil, err
			}
		} else {
			log.WithField("path", options.IndexFile).Infof("loaded %d JSON records", count)
		}
		return b, nil
	case Memory:
		log.Info("using an in-memory storage")
		b, err := memory.CreateMemoryBackend()
		if err != nil {
			return nil, errors.Annotate(err, "unable to create the memory backend")
		}
		err = loadRecords(ctx, b, options.DataDir)
		if err != nil {
			b.Destroy()
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported storage %s", options.Storage)
	}
}

// BuildSnapshot indexes the records of the data directory into a bolt file and returns the number of records
func BuildSnapshot(ctx context.Context, dataDir string, indexFile string) (int, error) {
	b, err := createBoltBackend(indexFile)
	if err != nil {
		return 0, err
	}
	defer b.Destroy()

	err = loadRecords(ctx, b, dataDir)
	if err != nil {
		return 0, err
	}
	return b.Count(ctx)
}

func Run(ctx context.Context, options Options) error {
	m := metrics.New()

	b, err := OpenBackend(ctx, options)
	if err != nil {
		return err
	}
	defer b.Destroy()

	searchEngine, err := engine.NewEngine(b, engine.Options{
		ResultsPerPage: options.ResultsPerPage,
		CacheSize:      options.CacheSize,
		Metrics:        m,
	})
	if err != nil {
		return err
	}

	httpServer, err := httpserver.New(options.Port, searchEngine, httpserver.Options{
		MaxConcurrentRequests: options.MaxConcurrentRequests,
		Metrics:               m,
	})
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.WithFields(logrus.Fields{
			"port":                    options.Port,
			"max_concurrent_requests": options.MaxConcurrentRequests,
		}).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("unexpected error while serving http routes: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		log.Info("Gracefully stopping")

		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := httpServer.Shutdown(stopCtx)
		if err != nil {
			log.WithField("error", err).Warning("Error while stopping")
		}
		return ctx.Err()
	})

	return group.Wait()
}
