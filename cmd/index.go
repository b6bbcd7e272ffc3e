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

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kermorvant/horae-archi/cmd/utils"
	"github.com/kermorvant/horae-archi/services/search"
)

// indexViper represents the configuration of the index command
var indexViper = viper.New()

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the index file from the data directory",
	Args:  cobra.NoArgs,
	RunE: func(_cmd *cobra.Command, _args []string) error {
		err := configureLog(rootViper)
		if err != nil {
			return err
		}

		dataDir := indexViper.GetString(utils.DataDirKey)
		indexFile := indexViper.GetString(utils.IndexFileKey)

		ctx := utils.ContextWithUserTermination(context.Background())

		count, err := search.BuildSnapshot(ctx, dataDir, indexFile)
		if err != nil {
			if err == context.Canceled {
				log.Info("interrupted by user")
				return nil
			}
			return err
		}
		log.WithFields(logrus.Fields{
			"data_dir":   dataDir,
			"index_file": indexFile,
			"records":    count,
		}).Info("index file built")
		return nil
	},
}

func init() {
	indexViper.SetDefault(utils.DataDirKey, search.DefaultOptions.DataDir)
	_ = indexViper.BindEnv(utils.DataDirKey, "HORAE_DATA_DIR")
	indexCmd.Flags().String(
		utils.DataDirKey,
		indexViper.GetString(utils.DataDirKey),
		"The directory holding the JSON records",
	)

	indexViper.SetDefault(utils.IndexFileKey, search.DefaultOptions.IndexFile)
	_ = indexViper.BindEnv(utils.IndexFileKey, "HORAE_INDEX_FILE")
	indexCmd.Flags().String(
		utils.IndexFileKey,
		indexViper.GetString(utils.IndexFileKey),
		"The bolt index file to write, its previous content is replaced",
	)

	// Don't sort alphabetically, keep insertion order
	indexCmd.Flags().SortFlags = false

	// Bind "cobra" flags defined in the CLI with viper
	_ = indexViper.BindPFlags(indexCmd.Flags())
}
