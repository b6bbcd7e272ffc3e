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
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootViper represents the configuration shared by every command
var rootViper = viper.New()

var rootLogLevelKey = "log_level"
var rootLogFileKey = "log_file"
var rootLogFormatKey = "log_format"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "horae",
	Short: "Search the architectural descriptions of illuminated manuscripts miniatures",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootViper.SetDefault(rootLogLevelKey, logrus.InfoLevel.String())
	_ = rootViper.BindEnv(rootLogLevelKey, "HORAE_LOG_LEVEL")
	rootCmd.PersistentFlags().String(
		rootLogLevelKey,
		rootViper.GetString(rootLogLevelKey),
		fmt.Sprintf("Set minimum logging level as one of %v", expectedLogLevels),
	)

	_ = rootViper.BindEnv(rootLogFileKey, "HORAE_LOG_FILE")
	rootCmd.PersistentFlags().String(
		rootLogFileKey,
		rootViper.GetString(rootLogFileKey),
		"Set log file output",
	)

	_ = rootViper.BindEnv(rootLogFormatKey, "HORAE_LOG_FORMAT")
	rootCmd.PersistentFlags().String(
		rootLogFormatKey,
		rootViper.GetString(rootLogFormatKey),
		fmt.Sprintf(
			"Set log format as one of %v, default is %q, when a log file is specified it is %q",
			expectedLogFormats, textLog, jsonLog,
		),
	)

	// Don't sort alphabetically, keep insertion order
	rootCmd.PersistentFlags().SortFlags = false

	// Bind "cobra" flags defined in the CLI with viper
	_ = rootViper.BindPFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(versionCmd)
}
