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
	"encoding/json"
	"fmt"
	"strings"
)

// Document field names
const (
	SceneDescriptionField      = "scene_description_enriched"
	SceneInterpretationField   = "scene_interpretation"
	SpatialContextField        = "spatial_context"
	ArchitecturalContextField  = "architectural_context"
	BuildingTypesField         = "building_types"
	ArchitecturalElementsField = "architectural_elements"
	PersonsField               = "persons"

	// FilenameField is only added to exported documents, it is never part of the stored document
	FilenameField = "_filename"
)

// Record is a single miniature description, as loaded from one JSON file
type Record struct {
	Filename              string
	SceneDescription      string
	SceneInterpretation   string
	SpatialContext        string
	ArchitecturalContext  string
	BuildingTypes         []string
	ArchitecturalElements []string
	Persons               []string

	// Document is the full JSON object, unmodified
	Document map[string]interface{}

	searchText string
}

// NewRecord builds a record from an already decoded JSON object
func NewRecord(filename string, document map[string]interface{}) *Record {
	if document == nil {
		document = map[string]interface{}{}
	}
	r := &Record{
		Filename:              filename,
		SceneDescription:      stringField(document, SceneDescriptionField),
		SceneInterpretation:   stringField(document, SceneInterpretationField),
		SpatialContext:        stringField(document, SpatialContextField),
		ArchitecturalContext:  stringField(document, ArchitecturalContextField),
		BuildingTypes:         listField(document, BuildingTypesField),
		ArchitecturalElements: listField(document, ArchitecturalElementsField),
		Persons:               listField(document, PersonsField),
		Document:              document,
	}
	r.searchText = strings.ToLower(strings.Join([]string{
		r.SceneDescription,
		r.SceneInterpretation,
		r.SpatialContext,
		r.ArchitecturalContext,
		strings.Join(r.BuildingTypes, " "),
		strings.Join(r.ArchitecturalElements, " "),
		strings.Join(r.Persons, " "),
	}, " "))
	return r
}

// ParseRecord decodes the content of a JSON file into a record
func ParseRecord(filename string, data []byte) (*Record, error) {
	document := map[string]interface{}{}
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, &InvalidRecordError{Filename: filename, Err: err}
	}
	if document == nil {
		return nil, &InvalidRecordError{Filename: filename, Err: fmt.Errorf("expecting a JSON object, got null")}
	}
	return NewRecord(filename, document), nil
}

// SearchText is the lowercase text the keyword index is built from
func (r *Record) SearchText() string {
	return r.searchText
}

// Export returns a copy of the document including the source file name
func (r *Record) Export() map[string]interface{} {
	exported := make(map[string]interface{}, len(r.Document)+1)
	for key, value := range r.Document {
		exported[key] = value
	}
	exported[FilenameField] = r.Filename
	return exported
}

// InvalidRecordError is raised when a file doesn't hold a valid JSON object
type InvalidRecordError struct {
	Filename string
	Err      error
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid record in %q (%s)", e.Filename, e.Err)
}

func (e *InvalidRecordError) Unwrap() error {
	return e.Err
}

func stringField(document map[string]interface{}, name string) string {
	return stringify(document[name])
}

func listField(document map[string]interface{}, name string) []string {
	switch value := document[name].(type) {
	case nil:
		return []string{}
	case []interface{}:
		result := make([]string, 0, len(value))
		for _, item := range value {
			result = append(result, stringify(item))
		}
		return result
	default:
		// A scalar where a list is expected is considered as a single item list
		return []string{stringify(value)}
	}
}

func stringify(value interface{}) string {
	switch value := value.(type) {
	case nil:
		return ""
	case string:
		return value
	default:
		serialized, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(serialized)
	}
}
