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

package utils

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kermorvant/horae-archi/services/search"
)

const (
	DataDirKey     = "data_dir"
	FileStorageKey = "file_storage"
	IndexFileKey   = "index_file"
	RebuildKey     = "rebuild"
)

// PopulateStorageOptionsFlags defines the flags selecting where the searched records come from
func PopulateStorageOptionsFlags(cmd *cobra.Command, viper *viper.Viper, defaultValues search.Options) {
	viper.SetDefault(DataDirKey, defaultValues.DataDir)
	_ = viper.BindEnv(DataDirKey, "HORAE_DATA_DIR")
	cmd.Flags().String(
		DataDirKey,
		viper.GetString(DataDirKey),
		"The directory holding the JSON records",
	)

	viper.SetDefault(FileStorageKey, defaultValues.Storage == search.File)
	_ = viper.BindEnv(FileStorageKey, "HORAE_FILE_STORAGE")
	cmd.Flags().Bool(
		FileStorageKey,
		viper.GetBool(FileStorageKey),
		fmt.Sprintf(
			"Serve the records from a bolt index file instead of loading them in memory, "+
				"the file is built from the data directory when empty (default path is %q)",
			defaultValues.IndexFile,
		),
	)

	_ = viper.BindEnv(IndexFileKey, "HORAE_INDEX_FILE")
	cmd.Flags().String(
		IndexFileKey,
		viper.GetString(IndexFileKey),
		"Path of the bolt index file, providing it implies --"+FileStorageKey,
	)

	viper.SetDefault(RebuildKey, defaultValues.Rebuild)
	_ = viper.BindEnv(RebuildKey, "HORAE_REBUILD")
	cmd.Flags().Bool(
		RebuildKey,
		viper.GetBool(RebuildKey),
		"Rebuild the index file from the data directory even if it is not empty",
	)
}

// GetStorageOptions updates the given options from the flags defined by PopulateStorageOptionsFlags
func GetStorageOptions(viper *viper.Viper, options *search.Options) {
	options.DataDir = viper.GetString(DataDirKey)
	options.Rebuild = viper.GetBool(RebuildKey)
	indexFile := viper.GetString(IndexFileKey)
	if indexFile != "" {
		options.Storage = search.File
		options.IndexFile = indexFile
	} else if viper.GetBool(FileStorageKey) {
		options.Storage = search.File
	}
}
