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
	"github.com/spf13/viper"

	"github.com/kermorvant/horae-archi/utils"
)

var log = logrus.WithField("component", "cmd")

type logFormat string

const (
	textLog logFormat = "text"
	jsonLog logFormat = "json"
)

var expectedLogFormats = []logFormat{textLog, jsonLog}

func isValidLogFormat(desiredFormat logFormat) bool {
	for _, format := range expectedLogFormats {
		if format == desiredFormat {
			return true
		}
	}
	return false
}

const LogLevelOff = "off"

var expectedLogLevels = []string{
	logrus.TraceLevel.String(),
	logrus.DebugLevel.String(),
	logrus.InfoLevel.String(),
	logrus.WarnLevel.String(),
	logrus.ErrorLevel.String(),
	LogLevelOff,
}

func configureLog(cfg *viper.Viper) error {
	desiredFormat := textLog
	if cfg.IsSet(rootLogFormatKey) {
		desiredFormat = logFormat(cfg.GetString(rootLogFormatKey))
		if !isValidLogFormat(desiredFormat) {
			return fmt.Errorf(
				"invalid log format specified %q expecting one of %v",
				desiredFormat,
				expectedLogFormats,
			)
		}
	} else if cfg.IsSet(rootLogFileKey) {
		// default for file is json
		desiredFormat = jsonLog
	}

	switch desiredFormat {
	case jsonLog:
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case textLog:
		prefixFields := []string{"component", "sub_component"}
		_, noColor := os.LookupEnv("NO_COLOR")
		loggerFormatter := utils.MakeLoggerFormatter(prefixFields, "", noColor || cfg.IsSet(rootLogFileKey))
		logrus.SetFormatter(&loggerFormatter)
	}

	if cfg.IsSet(rootLogFileKey) {
		path := cfg.GetString(rootLogFileKey)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("unable to open log file %q: %w", path, err)
		}
		log.WithField("path", path).Info("Logger setup with a file output")
		logrus.SetOutput(file)
	}

	logLevelStr := cfg.GetString(rootLogLevelKey)
	for _, expectedLogLevel := range expectedLogLevels {
		if expectedLogLevel == logLevelStr {
			if logLevelStr == LogLevelOff {
				// Setting the level to "panic" (ie assertion failures)
				logrus.SetLevel(logrus.PanicLevel)
				return nil
			}
			logLevel, err := logrus.ParseLevel(logLevelStr)
			if err != nil {
				return err
			}
			logrus.SetLevel(logLevel)
			return nil
		}
	}
	return fmt.Errorf(
		"invalid log level specified %q expecting one of %v",
		logLevelStr,
		expectedLogLevels,
	)
}
