package runtime

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

type flowSummary struct {
	ID          string   `json:"id"`
	Description string   `json:"description,omitempty"`
	Steps       []string `json:"steps"`
}

type runRequest struct {
	TestData map[string]any `json:"test_data"`
}

// NewHttpHandler exposes the app's flows over HTTP:
//
//	GET  /flows          list flows
//	GET  /flows/:id      describe one flow
//	POST /flows/:id/run  run a flow, optionally overriding test data
//
// The run report is JSON unless ?format= names another registered writer.
func NewHttpHandler(app *App, g gin.IRoutes) {
	writers := NewReportWriterRegistry()
	g.GET("/flows", listFlows(app))
	g.GET("/flows/:id", describeFlow(app))
	g.POST("/flows/:id/run", runFlow(app, writers))
}

func summarize(flow Flow) flowSummary {
	steps := make([]string, len(flow.Steps))
	for i, s := range flow.Steps {
		steps[i] = s.ID
	}
	return flowSummary{ID: flow.ID, Description: flow.Description, Steps: steps}
}

func listFlows(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		flows := make([]flowSummary, 0, len(app.Flows))
		for _, id := range app.FlowIDs() {
			flows = append(flows, summarize(app.Flows[id]))
		}
		c.JSON(http.StatusOK, gin.H{"flows": flows})
	}
}

func describeFlow(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		flow, ok := app.Flows[c.Param("id")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"message": "flow not found: " + c.Param("id")})
			return
		}
		c.JSON(http.StatusOK, summarize(flow))
	}
}

var wrongBodyFormatRes = gin.H{"message": "Wrong request body format"}

func runFlow(app *App, writers *ReportWriterRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		format := c.DefaultQuery("format", "json")
		writer, ok := writers.Get(format)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"message": "unknown report format: " + format})
			return
		}

		var req runRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, wrongBodyFormatRes)
			return
		}

		report, err := app.RunFlow(c.Request.Context(), id, req.TestData)
		if errors.Is(err, ErrFlowNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
			return
		}
		if err != nil {
			slog.Error("Flow execution could not start",
				"flow", id,
				"path", c.Request.URL.Path,
				"error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}

		status := http.StatusOK
		if !report.Passed() {
			status = http.StatusUnprocessableEntity
		}
		if format == "json" {
			c.JSON(status, report)
			return
		}
		c.Status(status)
		c.Header("Content-Type", writer.ContentType())
		if err := writer.Write(c.Writer, []Report{report}); err != nil {
			slog.Error("Failed to write report", "flow", id, "format", format, "error", err.Error())
		}
	}
}
