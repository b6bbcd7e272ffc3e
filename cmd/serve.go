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

package cmd

import (
	"context"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/kermorvant/horae-archi/cmd/utils"
	"github.com/kermorvant/horae-archi/services/search"
	"github.com/kermorvant/horae-archi/version"
)

// serveViper represents the configuration of the serve command
var serveViper = viper.New()

var servePortKey = "port"
var serveResultsPerPageKey = "results_per_page"
var serveCacheSizeKey = "cache_size"
var serveMaxConcurrentRequestsKey = "max_concurrent_requests"

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the search web application",
	Args:  cobra.NoArgs,
	RunE: func(_cmd *cobra.Command, _args []string) error {
		err := configureLog(rootViper)
		if err != nil {
			return err
		}

		log.WithFields(logrus.Fields{
			"version": version.Version,
			"hash":    version.Hash,
		}).Info("starting the search service")

		// Match GOMAXPROCS with the container CPU quota
		undoMaxProcs, err := maxprocs.Set(maxprocs.Logger(log.Debugf))
		if err != nil {
			log.WithField("error", err).Warn("unable to set GOMAXPROCS from the CPU quota")
		}
		defer undoMaxProcs()

		options := getServeOptions(serveViper)

		ctx := utils.ContextWithUserTermination(context.Background())

		err = search.Run(ctx, options)
		if err != nil {
			if err == context.Canceled {
				log.Info("interrupted by user")
				return nil
			}
			return err
		}
		return nil
	},
}

// defaultPort is the port from the PORT environment variable, when it is valid
func defaultPort() uint {
	portStr, ok := os.LookupEnv("PORT")
	if !ok || portStr == "" {
		return search.DefaultOptions.Port
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		log.WithField("value", portStr).Warn("Invalid value for PORT in environment, ignoring it")
		return search.DefaultOptions.Port
	}
	return uint(port)
}

func getServeOptions(cfg *viper.Viper) search.Options {
	options := search.DefaultOptions
	options.Port = cfg.GetUint(servePortKey)
	options.ResultsPerPage = cfg.GetInt(serveResultsPerPageKey)
	options.CacheSize = cfg.GetInt(serveCacheSizeKey)
	options.MaxConcurrentRequests = cfg.GetInt(serveMaxConcurrentRequestsKey)
	utils.GetStorageOptions(cfg, &options)
	return options
}

// populateServeFlags defines the serve flags, the PORT environment variable is read at this point
func populateServeFlags(cmd *cobra.Command, cfg *viper.Viper) {
	cfg.SetDefault(servePortKey, defaultPort())
	_ = cfg.BindEnv(servePortKey, "HORAE_PORT")
	cmd.Flags().Uint(
		servePortKey,
		cfg.GetUint(servePortKey),
		"The port to listen on, also read from HORAE_PORT or PORT",
	)

	utils.PopulateStorageOptionsFlags(cmd, cfg, search.DefaultOptions)

	cfg.SetDefault(serveResultsPerPageKey, search.DefaultOptions.ResultsPerPage)
	_ = cfg.BindEnv(serveResultsPerPageKey, "HORAE_RESULTS_PER_PAGE")
	cmd.Flags().Int(
		serveResultsPerPageKey,
		cfg.GetInt(serveResultsPerPageKey),
		"Number of results displayed on each page",
	)

	cfg.SetDefault(serveCacheSizeKey, search.DefaultOptions.CacheSize)
	_ = cfg.BindEnv(serveCacheSizeKey, "HORAE_CACHE_SIZE")
	cmd.Flags().Int(
		serveCacheSizeKey,
		cfg.GetInt(serveCacheSizeKey),
		"Number of searches kept in the results cache, 0 disables the cache",
	)

	cfg.SetDefault(serveMaxConcurrentRequestsKey, search.DefaultOptions.MaxConcurrentRequests)
	_ = cfg.BindEnv(serveMaxConcurrentRequestsKey, "HORAE_MAX_CONCURRENT_REQUESTS")
	cmd.Flags().Int(
		serveMaxConcurrentRequestsKey,
		cfg.GetInt(serveMaxConcurrentRequestsKey),
		"Maximum number of requests handled at the same time, the others wait for a slot, 0 means unbounded",
	)

	// Don't sort alphabetically, keep insertion order
	cmd.Flags().SortFlags = false

	// Bind "cobra" flags defined in the CLI with viper
	_ = cfg.BindPFlags(cmd.Flags())
}

func init() {
	populateServeFlags(serveCmd, serveViper)
}
