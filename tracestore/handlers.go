package tracestore

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// RegisterRoutes adds trace endpoints to an Echo group
func (s *Store) RegisterRoutes(g *echo.Group) {
	g.GET("/traces", s.handleListTraces)
	g.GET("/traces/summaries", s.handleListSummaries)
	g.GET("/traces/:id", s.handleGetTrace)
	g.GET("/traces/:id/summary", s.handleGetSummary)
}

// handleListTraces returns the most recent traces, ?limit=N
func (s *Store) handleListTraces(c echo.Context) error {
	return c.JSON(http.StatusOK, s.GetRecentTraces(limitParam(c)))
}

// handleListSummaries returns summaries of the most recent traces, ?limit=N
func (s *Store) handleListSummaries(c echo.Context) error {
	return c.JSON(http.StatusOK, s.GetTraceSummaries(limitParam(c)))
}

// handleGetTrace returns a specific trace by session ID
func (s *Store) handleGetTrace(c echo.Context) error {
	trace := s.GetTrace(c.Param("id"))
	if trace == nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "trace not found",
		})
	}
	return c.JSON(http.StatusOK, trace)
}

// handleGetSummary returns the summary of a specific trace
func (s *Store) handleGetSummary(c echo.Context) error {
	summary := s.GetTraceSummary(c.Param("id"))
	if summary == nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "trace not found",
		})
	}
	return c.JSON(http.StatusOK, summary)
}

func limitParam(c echo.Context) int {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		return 10
	}
	return limit
}
