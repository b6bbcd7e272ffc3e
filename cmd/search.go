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
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kermorvant/horae-archi/cmd/utils"
	"github.com/kermorvant/horae-archi/services/search"
	"github.com/kermorvant/horae-archi/services/search/engine"
)

// searchViper represents the configuration of the search command
var searchViper = viper.New()

const (
	searchOutputKey         = "output"
	searchPageKey           = "page"
	searchResultsPerPageKey = "results_per_page"
	searchSceneDescKey      = "f_scene_desc"
	searchSceneInterpKey    = "f_scene_interp"
	searchSpatialKey        = "f_spatial"
	searchArchitecturalKey  = "f_arch"
	searchBuildingsKey      = "f_buildings"
	searchElementsKey       = "f_elements"
	searchPersonsKey        = "f_persons"
)

type searchOutput struct {
	Query        string                   `json:"query"`
	Filters      engine.Filters           `json:"filters"`
	Page         int                      `json:"page"`
	TotalPages   int                      `json:"total_pages"`
	TotalResults int                      `json:"total_results"`
	Results      []map[string]interface{} `json:"results"`
}

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search [keywords...]",
	Short: "Search the records from the command line",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := configureLog(rootViper)
		if err != nil {
			return err
		}

		outputFormat, err := retrieveConsoleOutputFormat(searchViper.GetString(searchOutputKey))
		if err != nil {
			return err
		}

		options := search.DefaultOptions
		utils.GetStorageOptions(searchViper, &options)

		ctx := utils.ContextWithUserTermination(context.Background())

		b, err := search.OpenBackend(ctx, options)
		if err != nil {
			return err
		}
		defer b.Destroy()

		searchEngine, err := engine.NewEngine(b, engine.Options{
			ResultsPerPage: searchViper.GetInt(searchResultsPerPageKey),
			CacheSize:      0,
		})
		if err != nil {
			return err
		}

		query := engine.Query{
			Keywords: strings.Join(args, " "),
			Filters: engine.Filters{
				SceneDescription:      searchViper.GetString(searchSceneDescKey),
				SceneInterpretation:   searchViper.GetString(searchSceneInterpKey),
				SpatialContext:        searchViper.GetString(searchSpatialKey),
				ArchitecturalContext:  searchViper.GetString(searchArchitecturalKey),
				BuildingTypes:         searchViper.GetString(searchBuildingsKey),
				ArchitecturalElements: searchViper.GetString(searchElementsKey),
				Persons:               searchViper.GetString(searchPersonsKey),
			},
			Page: searchViper.GetInt(searchPageKey),
		}
		result, err := searchEngine.Search(ctx, query)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch outputFormat {
		case text:
			table := tablewriter.NewWriter(out)
			table.SetBorder(false)
			table.SetHeader([]string{
				"file",
				"spatial context",
				"architectural context",
				"building types",
				"persons",
			})
			for _, record := range result.Records {
				table.Append([]string{
					record.Filename,
					record.SpatialContext,
					record.ArchitecturalContext,
					strings.Join(record.BuildingTypes, ", "),
					strings.Join(record.Persons, ", "),
				})
			}
			table.SetCaption(true, fmt.Sprintf(
				"%d results, page %d of %d",
				result.TotalResults,
				result.Page,
				result.TotalPages,
			))
			table.Render()
		case json:
			results := make([]map[string]interface{}, 0, len(result.Records))
			for _, record := range result.Records {
				results = append(results, record.Export())
			}
			return renderJSON(out, searchOutput{
				Query:        query.Keywords,
				Filters:      query.Filters,
				Page:         result.Page,
				TotalPages:   result.TotalPages,
				TotalResults: result.TotalResults,
				Results:      results,
			})
		}
		return nil
	},
}

func init() {
	searchViper.SetDefault(searchOutputKey, string(text))
	searchCmd.Flags().StringP(
		searchOutputKey,
		"o",
		searchViper.GetString(searchOutputKey),
		fmt.Sprintf("Output format as one of %v", expectedOutputFormats),
	)

	searchViper.SetDefault(searchPageKey, 1)
	searchCmd.Flags().Int(
		searchPageKey,
		searchViper.GetInt(searchPageKey),
		"The page of results to display",
	)

	searchViper.SetDefault(searchResultsPerPageKey, search.DefaultOptions.ResultsPerPage)
	_ = searchViper.BindEnv(searchResultsPerPageKey, "HORAE_RESULTS_PER_PAGE")
	searchCmd.Flags().Int(
		searchResultsPerPageKey,
		searchViper.GetInt(searchResultsPerPageKey),
		"Number of results displayed on each page",
	)

	for _, filter := range []struct {
		key  string
		desc string
	}{
		{searchSceneDescKey, "Only keep records whose scene description contains this text"},
		{searchSceneInterpKey, "Only keep records whose scene interpretation contains this text"},
		{searchSpatialKey, "Only keep records whose spatial context is this text"},
		{searchArchitecturalKey, "Only keep records whose architectural context is this text"},
		{searchBuildingsKey, "Only keep records with a building type containing this text"},
		{searchElementsKey, "Only keep records with an architectural element containing this text"},
		{searchPersonsKey, "Only keep records with a person containing this text"},
	} {
		searchViper.SetDefault(filter.key, "")
		searchCmd.Flags().String(filter.key, "", filter.desc)
	}

	utils.PopulateStorageOptionsFlags(searchCmd, searchViper, search.DefaultOptions)

	// Don't sort alphabetically, keep insertion order
	searchCmd.Flags().SortFlags = false

	// Bind "cobra" flags defined in the CLI with viper
	_ = searchViper.BindPFlags(searchCmd.Flags())
}
