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

package engine

import (
	"strings"

	"github.com/kermorvant/horae-archi/services/search/catalog"
)

// Filters are the per-field constraints of a search, an empty filter accepts everything
type Filters struct {
	SceneDescription      string `json:"f_scene_desc" form:"f_scene_desc"`
	SceneInterpretation   string `json:"f_scene_interp" form:"f_scene_interp"`
	SpatialContext        string `json:"f_spatial" form:"f_spatial"`
	ArchitecturalContext  string `json:"f_arch" form:"f_arch"`
	BuildingTypes         string `json:"f_buildings" form:"f_buildings"`
	ArchitecturalElements string `json:"f_elements" form:"f_elements"`
	Persons               string `json:"f_persons" form:"f_persons"`
}

// IsEmpty returns true when no filter is set
func (f Filters) IsEmpty() bool {
	return f == Filters{}
}

// Accepts checks a record against every filter
func (f Filters) Accepts(record *catalog.Record) bool {
	// Free text fields
	if !filterContains(f.SceneDescription, record.SceneDescription) {
		return false
	}
	if !filterContains(f.SceneInterpretation, record.SceneInterpretation) {
		return false
	}

	// Controlled vocabularies need an exact match
	if !filterExact(f.SpatialContext, record.SpatialContext) {
		return false
	}
	if !filterExact(f.ArchitecturalContext, record.ArchitecturalContext) {
		return false
	}

	// List fields
	if !filterList(f.BuildingTypes, record.BuildingTypes) {
		return false
	}
	if !filterList(f.ArchitecturalElements, record.ArchitecturalElements) {
		return false
	}
	return filterList(f.Persons, record.Persons)
}

func (f Filters) cacheKey() string {
	return strings.ToLower(strings.Join([]string{
		f.SceneDescription,
		f.SceneInterpretation,
		f.SpatialContext,
		f.ArchitecturalContext,
		f.BuildingTypes,
		f.ArchitecturalElements,
		f.Persons,
	}, "\x00"))
}

func filterExact(value string, fieldValue string) bool {
	if value == "" {
		return true
	}
	return strings.ToLower(value) == strings.ToLower(fieldValue)
}

func filterContains(text string, fieldValue string) bool {
	if text == "" {
		return true
	}
	return strings.Contains(strings.ToLower(fieldValue), strings.ToLower(text))
}

func filterList(text string, values []string) bool {
	if text == "" {
		return true
	}
	text = strings.ToLower(text)
	for _, value := range values {
		if strings.Contains(strings.ToLower(value), text) {
			return true
		}
	}
	return false
}
