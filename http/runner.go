package http

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"

	"nexlayer.io/mcp/common"
)

// RunServerConfig contains configuration for running the HTTP server
type RunServerConfig struct {
	ServiceName string
	Version     string

	Server ServerConfig

	// HealthDetails adds fields to the /health response (optional)
	HealthDetails func() map[string]interface{}

	// Logger (optional, will create one if nil)
	Logger *common.ContextLogger
}

// SetupFunc is a function that sets up routes and handlers on an Echo instance
type SetupFunc func(*echo.Echo) error

// RunServer creates and runs an Echo server:
//   - Creates Echo instance with standard middleware
//   - Adds health check endpoint
//   - Serves until ctx is cancelled, then shuts down gracefully
//
// Example usage:
//
//	err := http.RunServer(ctx, cfg, func(e *echo.Echo) error {
//	    e.POST("/mcp", handleMCP)
//	    return nil
//	})
func RunServer(ctx context.Context, config RunServerConfig, setupFunc SetupFunc) error {
	logger := config.Logger
	if logger == nil {
		logger = common.ServiceLogger(config.ServiceName, config.Version)
	}

	e := NewEchoServer(config.Server, logger)
	e.GET("/health", HealthCheckHandler(config.ServiceName, config.Version, config.HealthDetails))

	if setupFunc != nil {
		if err := setupFunc(e); err != nil {
			return fmt.Errorf("setup function failed: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting %s on %s", config.ServiceName, config.Server.Addr())
		errCh <- StartServer(e, config.Server)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server error")
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	if err := GracefulShutdown(e, config.Server.ShutdownTimeout); err != nil {
		logger.WithError(err).Error("Error during shutdown")
		return err
	}

	logger.Info("Server stopped")
	return nil
}
