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

package httpserver

import (
	"html/template"
	"strings"

	"github.com/kermorvant/horae-archi/services/search/catalog"
	"github.com/kermorvant/horae-archi/services/search/engine"
)

var templateFuncs = template.FuncMap{
	"join": strings.Join,
}

type resultView struct {
	Filename              string
	SceneDescription      string
	SceneInterpretation   string
	SpatialContext        string
	ArchitecturalContext  string
	BuildingTypes         []string
	ArchitecturalElements []string
	Persons               []string
}

type pageView struct {
	Query        string
	Filters      engine.Filters
	Results      []resultView
	Page         int
	TotalPages   int
	TotalResults int
	PreviousURL  string
	NextURL      string
}

func newResultView(record *catalog.Record) resultView {
	return resultView{
		Filename:              record.Filename,
		SceneDescription:      record.SceneDescription,
		SceneInterpretation:   record.SceneInterpretation,
		SpatialContext:        record.SpatialContext,
		ArchitecturalContext:  record.ArchitecturalContext,
		BuildingTypes:         record.BuildingTypes,
		ArchitecturalElements: record.ArchitecturalElements,
		Persons:               record.Persons,
	}
}

func newPageView(request searchRequest, result *engine.Result) pageView {
	view := pageView{
		Query:        request.Query,
		Filters:      request.Filters,
		Results:      make([]resultView, 0, len(result.Records)),
		Page:         result.Page,
		TotalPages:   result.TotalPages,
		TotalResults: result.TotalResults,
	}
	for _, record := range result.Records {
		view.Results = append(view.Results, newResultView(record))
	}
	if result.Page > 1 {
		previousPage := result.Page - 1
		if previousPage > result.TotalPages {
			previousPage = result.TotalPages
		}
		view.PreviousURL = request.pageURL(previousPage)
	}
	if result.Page < result.TotalPages {
		view.NextURL = request.pageURL(result.Page + 1)
	}
	return view
}
