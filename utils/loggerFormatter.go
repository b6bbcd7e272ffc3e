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
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type LoggerFormatter struct {
	// PrefixFields - the fields that will appear in the prefix in this order
	PrefixFields []string
	// TimestampFormat - defaults to RFC3339
	TimestampFormat string
	DisableColors   bool
}

func MakeLoggerFormatter(prefixFields []string, timestampFormat string, disableColors bool) LoggerFormatter {
	if timestampFormat == "" {
		timestampFormat = time.RFC3339
	}
	return LoggerFormatter{
		PrefixFields:    prefixFields,
		TimestampFormat: timestampFormat,
		DisableColors:   disableColors,
	}
}

// Format an log entry
func (f *LoggerFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	prefixFields, otherFields := f.splitFields(entry)

	b := &bytes.Buffer{}

	timestampFormat := f.TimestampFormat
	if timestampFormat == "" {
		timestampFormat = time.RFC3339
	}
	b.WriteString(entry.Time.Format(timestampFormat))

	if entry.HasCaller() {
		fmt.Fprintf(
			b,
			" (%s:%d %s)",
			entry.Caller.File,
			entry.Caller.Line,
			entry.Caller.Function,
		)
	}

	level := strings.ToUpper(entry.Level.String())
	if f.DisableColors {
		fmt.Fprintf(b, " [%s]", level[:4])
	} else {
		fmt.Fprintf(b, " \x1b[%dm[%s]", getColorByLevel(entry.Level), level[:4])
	}

	if len(prefixFields) > 0 {
		prefix := make([]string, 0, len(prefixFields))
		for _, field := range prefixFields {
			prefix = append(prefix, fmt.Sprintf("%v", entry.Data[field]))
		}
		fmt.Fprintf(b, " [%s]", strings.Join(prefix, ">"))
	}
	if f.DisableColors {
		b.WriteByte(' ')
	} else {
		b.WriteString(" \x1b[0m")
	}

	b.WriteString(strings.TrimSpace(entry.Message))

	for _, field := range otherFields {
		fmt.Fprintf(b, " [%s:%v]", field, entry.Data[field])
	}

	b.WriteByte('\n')

	return b.Bytes(), nil
}

func (f *LoggerFormatter) splitFields(entry *logrus.Entry) ([]string, []string) {
	prefixFields := []string{}
	otherFields := []string{}
	isPrefixField := map[string]bool{}
	for _, field := range f.PrefixFields {
		isPrefixField[field] = true
		if _, ok := entry.Data[field]; ok {
			prefixFields = append(prefixFields, field)
		}
	}
	for field := range entry.Data {
		if !isPrefixField[field] {
			otherFields = append(otherFields, field)
		}
	}
	sort.Strings(otherFields)
	return prefixFields, otherFields
}

const (
	colorRed    = 31
	colorYellow = 33
	colorBlue   = 36
	colorGray   = 37
)

func getColorByLevel(level logrus.Level) int {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return colorGray
	case logrus.WarnLevel:
		return colorYellow
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return colorRed
	default:
		return colorBlue
	}
}
