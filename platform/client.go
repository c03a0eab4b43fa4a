// Package platform is the client for the Nexlayer platform REST API.
//
// Every call returns the decoded response as a Result. JSON object bodies are
// returned as-is; any other JSON value is placed under "data" and a non-JSON
// body is placed under "message", so callers always receive an object.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"nexlayer.io/mcp/common"
	nxhttp "nexlayer.io/mcp/http"
)

// DefaultBaseURL is the production platform endpoint
const DefaultBaseURL = "https://app.nexlayer.io"

// ErrNoToken is returned by calls that require authentication when no token is configured
var ErrNoToken = errors.New("platform token is not configured (set NEXLAYER_PLATFORM_TOKEN)")

// Result is a decoded platform response
type Result map[string]interface{}

// String returns a value as string, or "" when absent or not a string
func (r Result) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Config configures a Client
type Config struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	RetryCount    int
	RetryInterval time.Duration
	UserAgent     string
}

// Client calls the platform API
type Client struct {
	config Config
	logger *common.ContextLogger
}

// NewClient creates a platform client. Empty fields take defaults.
func NewClient(config Config, logger *common.ContextLogger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = time.Second
	}
	if logger == nil {
		logger = common.NewContextLogger(nil, nil)
	}
	return &Client{
		config: config,
		logger: logger.WithField("component", "platform"),
	}
}

// BaseURL returns the configured endpoint
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// HasToken reports whether authenticated calls can be made
func (c *Client) HasToken() bool {
	return c.config.Token != ""
}

// StartUserDeployment submits a nexlayer.yaml. appName selects an existing
// reserved application and may be empty.
func (c *Client) StartUserDeployment(ctx context.Context, yamlBody []byte, appName string) (Result, error) {
	endpoint := "/startUserDeployment"
	if appName != "" {
		endpoint += "/" + url.PathEscape(appName)
	}
	req := c.newRequest("POST", endpoint)
	req.SetBody(yamlBody, nxhttp.ContentTypeYAML)
	return c.do(ctx, endpoint, req, false)
}

// GetDeploymentInfo returns the status of a deployed application
func (c *Client) GetDeploymentInfo(ctx context.Context, namespace, appName string) (Result, error) {
	endpoint := "/getDeploymentInfo/" + url.PathEscape(namespace) + "/" + url.PathEscape(appName)
	return c.do(ctx, endpoint, c.newRequest("GET", endpoint), false)
}

// GetReservations lists the caller's reserved applications
func (c *Client) GetReservations(ctx context.Context) (Result, error) {
	endpoint := "/getReservations"
	return c.do(ctx, endpoint, c.newRequest("GET", endpoint), true)
}

// AddReservation reserves a deployed application so it does not expire
func (c *Client) AddReservation(ctx context.Context, appName string) (Result, error) {
	return c.postJSON(ctx, "/addDeploymentReservation", map[string]string{"applicationName": appName}, true)
}

// RemoveReservation releases a reservation
func (c *Client) RemoveReservation(ctx context.Context, appName string) (Result, error) {
	return c.postJSON(ctx, "/removeDeploymentReservation", map[string]string{"applicationName": appName}, true)
}

// ExtendDeployment extends the lifetime of a temporary deployment
func (c *Client) ExtendDeployment(ctx context.Context, appName, sessionToken string) (Result, error) {
	body := map[string]string{"applicationName": appName, "sessionToken": sessionToken}
	return c.postJSON(ctx, "/extendDeployment", body, false)
}

// ClaimDeployment attaches a temporary deployment to the caller's account
func (c *Client) ClaimDeployment(ctx context.Context, appName, sessionToken string) (Result, error) {
	body := map[string]string{"applicationName": appName, "sessionToken": sessionToken}
	return c.postJSON(ctx, "/claimDeployment", body, false)
}

// SaveCustomDomain points a custom domain at an application
func (c *Client) SaveCustomDomain(ctx context.Context, appName, domain string) (Result, error) {
	endpoint := "/saveCustomDomain/" + url.PathEscape(appName)
	return c.postJSON(ctx, endpoint, map[string]string{"domain": domain}, true)
}

// SendFeedback submits free-form feedback
func (c *Client) SendFeedback(ctx context.Context, text string) (Result, error) {
	return c.postJSON(ctx, "/feedback", map[string]string{"text": text}, false)
}

func (c *Client) newRequest(method, endpoint string) *nxhttp.Request {
	req := nxhttp.NewRequest(method, c.config.BaseURL+endpoint)
	req.BearerToken = c.config.Token
	req.Timeout = c.config.Timeout
	req.RetryCount = c.config.RetryCount
	req.RetryInterval = c.config.RetryInterval
	if c.config.UserAgent != "" {
		req.UserAgent = c.config.UserAgent
	}
	return req
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body interface{}, needsToken bool) (Result, error) {
	req := c.newRequest("POST", endpoint)
	if err := req.SetJSON(body); err != nil {
		return nil, err
	}
	return c.do(ctx, endpoint, req, needsToken)
}

func (c *Client) do(ctx context.Context, endpoint string, req *nxhttp.Request, needsToken bool) (Result, error) {
	if needsToken && !c.HasToken() {
		return nil, ErrNoToken
	}

	logger := c.logger.WithFields(map[string]interface{}{
		"endpoint": endpoint,
		"method":   req.Method,
	})

	resp, err := nxhttp.Execute(ctx, req)
	if err != nil {
		var statusErr *nxhttp.StatusError
		if resp != nil && errors.As(err, &statusErr) {
			apiErr := &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: errorMessage(resp.Body, statusErr.Body)}
			logger.WithFields(map[string]interface{}{
				"status":   resp.StatusCode,
				"attempts": resp.Attempts,
			}).Warn("Platform request rejected")
			return nil, apiErr
		}
		logger.WithError(err).Warn("Platform request failed")
		return nil, fmt.Errorf("platform %s: %w", endpoint, err)
	}

	logger.WithFields(map[string]interface{}{
		"status":      resp.StatusCode,
		"duration_ms": resp.Duration.Milliseconds(),
	}).Debug("Platform request completed")

	return decodeResult(resp.Body), nil
}

// decodeResult coerces any response body into an object
func decodeResult(body []byte) Result {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return Result{}
	}

	var value interface{}
	if err := json.Unmarshal([]byte(trimmed), &value); err != nil {
		return Result{"message": trimmed}
	}
	if obj, ok := value.(map[string]interface{}); ok {
		return Result(obj)
	}
	return Result{"data": value}
}

// errorMessage prefers the "message" or "error" field of a JSON error body
func errorMessage(body []byte, fallback string) string {
	result := decodeResult(body)
	for _, key := range []string{"message", "error"} {
		if msg := result.String(key); msg != "" {
			return msg
		}
	}
	return fallback
}
