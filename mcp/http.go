package mcp

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	nxhttp "nexlayer.io/mcp/http"
)

// RegisterRoutes mounts the MCP endpoint. The HTTP transport is stateless:
// each POST carries one JSON-RPC message and no initialize is required.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.POST("/mcp", s.handleHTTP)
}

func (s *Server) handleHTTP(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	// The server's own environment says nothing about a remote client
	sess := &session{
		initialized:     true,
		clientType:      detectClient(ClientInfo{Name: c.Request().UserAgent()}, nil),
		protocolVersion: c.Request().Header.Get("Mcp-Protocol-Version"),
	}

	resp := s.handleMessage(c.Request().Context(), sess, body)
	if resp == nil {
		return c.NoContent(http.StatusAccepted)
	}
	return c.JSON(http.StatusOK, resp)
}

// ListenHTTP runs the HTTP transport until ctx is cancelled. Extra route
// setup (trace debug endpoints) is applied to the same echo server.
func (s *Server) ListenHTTP(ctx context.Context, config nxhttp.RunServerConfig, setup ...func(*echo.Echo)) error {
	if config.Logger == nil {
		config.Logger = s.logger
	}
	return nxhttp.RunServer(ctx, config, func(e *echo.Echo) error {
		s.RegisterRoutes(e)
		for _, fn := range setup {
			fn(e)
		}
		return nil
	})
}
