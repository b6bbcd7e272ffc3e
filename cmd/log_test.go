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
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kermorvant/horae-archi/utils"
)

func createLogViper(t *testing.T) *viper.Viper {
	t.Cleanup(func() {
		logrus.SetOutput(os.Stderr)
		logrus.SetLevel(logrus.InfoLevel)
		logrus.SetFormatter(&logrus.TextFormatter{})
	})
	cfg := viper.New()
	cfg.SetDefault(rootLogLevelKey, logrus.InfoLevel.String())
	return cfg
}

func TestConfigureLogLevel(t *testing.T) {
	cfg := createLogViper(t)
	cfg.Set(rootLogLevelKey, "debug")

	require.NoError(t, configureLog(cfg))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.IsType(t, &utils.LoggerFormatter{}, logrus.StandardLogger().Formatter)
}

func TestConfigureLogOff(t *testing.T) {
	cfg := createLogViper(t)
	cfg.Set(rootLogLevelKey, LogLevelOff)

	require.NoError(t, configureLog(cfg))
	assert.Equal(t, logrus.PanicLevel, logrus.GetLevel())
}

func TestConfigureLogInvalidLevel(t *testing.T) {
	cfg := createLogViper(t)
	cfg.Set(rootLogLevelKey, "verbose")

	assert.Error(t, configureLog(cfg))
}

func TestConfigureLogJSONFormat(t *testing.T) {
	cfg := createLogViper(t)
	cfg.Set(rootLogFormatKey, "json")

	require.NoError(t, configureLog(cfg))
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)
}

func TestConfigureLogInvalidFormat(t *testing.T) {
	cfg := createLogViper(t)
	cfg.Set(rootLogFormatKey, "xml")

	assert.Error(t, configureLog(cfg))
}

func TestConfigureLogFile(t *testing.T) {
	cfg := createLogViper(t)
	path := filepath.Join(t.TempDir(), "horae.log")
	cfg.Set(rootLogFileKey, path)

	require.NoError(t, configureLog(cfg))
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	logrus.WithField("component", "test").Info("written to the file")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"written to the file"`)
}
