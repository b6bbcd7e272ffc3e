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
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/kermorvant/horae-archi/services/search/backend"
	"github.com/kermorvant/horae-archi/services/search/engine"
	"github.com/kermorvant/horae-archi/services/search/metrics"
	"github.com/kermorvant/horae-archi/version"
)

var log = logrus.WithField("component", "httpserver")

//go:embed templates/*.html
var templatesFS embed.FS

const searchTemplateName = "search.html"

// Query parameters and form fields
const (
	queryParam         = "query"
	sceneDescParam     = "f_scene_desc"
	sceneInterpParam   = "f_scene_interp"
	spatialParam       = "f_spatial"
	architecturalParam = "f_arch"
	buildingsParam     = "f_buildings"
	elementsParam      = "f_elements"
	personsParam       = "f_persons"
	pageParam          = "page"
)

type Options struct {
	// MaxConcurrentRequests bounds the number of requests handled at the same time, 0 means unbounded
	MaxConcurrentRequests int
	Metrics               *metrics.Metrics
}

var DefaultOptions = Options{
	MaxConcurrentRequests: 4, // 2 workers × 2 threads
	Metrics:               nil,
}

type Server struct {
	http.Server
	engine  *engine.Engine
	metrics *metrics.Metrics
	slots   *semaphore.Weighted

	gin *gin.Engine
}

func New(port uint, searchEngine *engine.Engine, options Options) (*Server, error) {
	// Debug mode can be helpful during development
	gin.SetMode(gin.ReleaseMode)

	ginEngine := gin.New()

	server := &Server{
		Server: http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: ginEngine,
		},
		engine:  searchEngine,
		metrics: options.Metrics,
		gin:     ginEngine,
	}
	if options.MaxConcurrentRequests > 0 {
		server.slots = semaphore.NewWeighted(int64(options.MaxConcurrentRequests))
	}

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("unable to parse the html templates: %w", err)
	}
	server.gin.SetHTMLTemplate(tmpl)

	server.gin.HandleMethodNotAllowed = true

	// Allows all origins
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	server.gin.Use(cors.New(corsConfig))

	// Use a custom error handler
	server.gin.Use(ginErrorHandlerMiddleware)

	// Use the custom logger middleware
	server.gin.Use(ginLoggerMiddleware)

	server.gin.Use(ginMetricsMiddleware(server.metrics))

	// Recovery middleware recovers from any panics and writes a 500 if there was one.
	server.gin.Use(gin.Recovery())

	// Health and metrics routes are not subject to the concurrency limit
	server.gin.GET("/healthz", server.getHealth)
	server.gin.GET("/metrics", gin.WrapH(server.metrics.Handler()))

	limited := server.gin.Group("")
	limited.Use(ginConcurrencyLimiterMiddleware(server.slots, server.metrics))

	limited.GET("/", server.searchPage)
	limited.POST("/", server.submitSearch)

	apiGroup := limited.Group("/api")
	apiGroup.GET("", server.getInfo)
	apiGroup.GET("/search", server.search)
	apiGroup.GET("/records/:filename", server.getRecord)

	server.gin.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, fmt.Errorf("%s not found", c.Request.URL.Path))
	})

	server.gin.NoMethod(func(c *gin.Context) {
		abortWithError(c, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	})

	return server, nil
}

type searchRequest struct {
	Query   string
	Filters engine.Filters
	Page    int
}

func readSearchRequest(value func(key string) string) (searchRequest, error) {
	request := searchRequest{
		Query: value(queryParam),
		Filters: engine.Filters{
			SceneDescription:      value(sceneDescParam),
			SceneInterpretation:   value(sceneInterpParam),
			SpatialContext:        value(spatialParam),
			ArchitecturalContext:  value(architecturalParam),
			BuildingTypes:         value(buildingsParam),
			ArchitecturalElements: value(elementsParam),
			Persons:               value(personsParam),
		},
		Page: 1,
	}
	if pageStr := strings.TrimSpace(value(pageParam)); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil {
			return request, wrapError(
				http.StatusBadRequest,
				fmt.Errorf("invalid %q parameter %q, expecting an integer", pageParam, pageStr),
			)
		}
		request.Page = page
	}
	return request, nil
}

func (request searchRequest) values(page int) url.Values {
	values := url.Values{}
	values.Set(queryParam, request.Query)
	values.Set(sceneDescParam, request.Filters.SceneDescription)
	values.Set(sceneInterpParam, request.Filters.SceneInterpretation)
	values.Set(spatialParam, request.Filters.SpatialContext)
	values.Set(architecturalParam, request.Filters.ArchitecturalContext)
	values.Set(buildingsParam, request.Filters.BuildingTypes)
	values.Set(elementsParam, request.Filters.ArchitecturalElements)
	values.Set(personsParam, request.Filters.Persons)
	values.Set(pageParam, strconv.Itoa(page))
	return values
}

func (request searchRequest) pageURL(page int) string {
	return "/?" + request.values(page).Encode()
}

func (server *Server) runSearch(c *gin.Context) (searchRequest, *engine.Result, bool) {
	request, err := readSearchRequest(c.Query)
	if err != nil {
		abortWithError(c, errorStatusCode(err), err)
		return request, nil, false
	}

	result, err := server.engine.Search(c.Request.Context(), engine.Query{
		Keywords: request.Query,
		Filters:  request.Filters,
		Page:     request.Page,
	})
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, errors.Annotatef(err, "unable to search %q", request.Query))
		return request, nil, false
	}
	return request, result, true
}

func (server *Server) searchPage(c *gin.Context) {
	request, result, ok := server.runSearch(c)
	if !ok {
		return
	}
	c.HTML(http.StatusOK, searchTemplateName, newPageView(request, result))
}

// submitSearch redirects the form submission to the equivalent search page, starting from the first page
func (server *Server) submitSearch(c *gin.Context) {
	request, _ := readSearchRequest(c.PostForm)
	c.Redirect(http.StatusFound, request.pageURL(1))
}

type response struct {
	Message string `json:"message"`
}

type infoResponse struct {
	response
	Version     string `json:"version"`
	VersionHash string `json:"version_hash"`
	Records     int    `json:"records"`
}

func (server *Server) getInfo(c *gin.Context) {
	count, err := server.engine.Count(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, errors.Annotate(err, "unable to count the records"))
		return
	}
	c.JSON(http.StatusOK, infoResponse{
		response: response{
			Message: "This is the Horae architectural miniatures search",
		},
		Version:     version.Version,
		VersionHash: version.Hash,
		Records:     count,
	})
}

func (server *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type searchResponse struct {
	Query        string                   `json:"query"`
	Filters      engine.Filters           `json:"filters"`
	Page         int                      `json:"page"`
	TotalPages   int                      `json:"total_pages"`
	TotalResults int                      `json:"total_results"`
	Results      []map[string]interface{} `json:"results"`
}

func (server *Server) search(c *gin.Context) {
	request, result, ok := server.runSearch(c)
	if !ok {
		return
	}

	log.WithFields(logrus.Fields{
		"query":   request.Query,
		"page":    result.Page,
		"results": result.TotalResults,
	}).Debug("search")

	results := make([]map[string]interface{}, 0, len(result.Records))
	for _, record := range result.Records {
		results = append(results, record.Export())
	}
	c.JSON(http.StatusOK, searchResponse{
		Query:        request.Query,
		Filters:      request.Filters,
		Page:         result.Page,
		TotalPages:   result.TotalPages,
		TotalResults: result.TotalResults,
		Results:      results,
	})
}

func (server *Server) getRecord(c *gin.Context) {
	filename := c.Param("filename")
	record, err := server.engine.Record(c.Request.Context(), filename)
	if err != nil {
		var unknownErr *backend.UnknownRecordError
		if errors.As(err, &unknownErr) {
			abortWithError(c, http.StatusNotFound, err)
			return
		}
		abortWithError(c, http.StatusInternalServerError, errors.Annotatef(err, "unable to retrieve record %q", filename))
		return
	}
	c.JSON(http.StatusOK, record.Export())
}
