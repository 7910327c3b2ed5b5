package zsxq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "zsxqsync/pkg/errors"
	"zsxqsync/pkg/logger"
)

// Client talks to the topic feed and file resolution endpoints
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	endpoints  Endpoints
	location   *time.Location
	logger     logger.Logger
}

// Options configures a Client
type Options struct {
	Timeout   time.Duration
	Headers   map[string]string
	Endpoints Endpoints
	// Location normalizes create_time values that carry a zone
	Location   *time.Location
	HTTPClient *http.Client
	Logger     logger.Logger
}

// NewClient creates a new API client
func NewClient(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	endpoints := opts.Endpoints
	defaults := DefaultEndpoints()
	if endpoints.TopicsURL == "" {
		endpoints.TopicsURL = defaults.TopicsURL
	}
	if endpoints.FileDownloadURL == "" {
		endpoints.FileDownloadURL = defaults.FileDownloadURL
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	headers := map[string]string{
		"Accept": "application/json, text/plain, */*",
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &Client{
		httpClient: httpClient,
		headers:    headers,
		endpoints:  endpoints,
		location:   loc,
		logger:     log,
	}
}

// doRequest performs a GET with the configured headers
func (c *Client) doRequest(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"url":      rawURL,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
		}
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":      rawURL,
		"status":   resp.StatusCode,
		"duration": duration,
	})
	return resp, nil
}

// checkResponseStatus maps non-2xx statuses to typed errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	errType := errs.TypeForStatus(resp.StatusCode)
	message := http.StatusText(resp.StatusCode)
	if message == "" {
		message = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
	}
	if errType == errs.ErrorTypeAuth {
		message = "authentication rejected, check the access token cookie"
	}
	return &errs.Error{Type: errType, Message: message, Code: resp.StatusCode}
}

// GetJSON performs a GET request and decodes the JSON response
func (c *Client) GetJSON(ctx context.Context, rawURL string, target interface{}) error {
	resp, err := c.doRequest(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Code:    resp.StatusCode,
		}
	}

	if err := json.Unmarshal(body, target); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          rawURL,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return &errs.ParseError{Field: "response body", Cause: err}
	}

	return nil
}

// FetchPage requests one page of a group's feed older than cursor. It never
// retries.
func (c *Client) FetchPage(ctx context.Context, groupID string, cursor Cursor) (*Page, error) {
	pageURL := c.endpoints.Topics(groupID, cursor)

	var response TopicsResponse
	if err := c.GetJSON(ctx, pageURL, &response); err != nil {
		if errs.IsParseError(err) || ctx.Err() != nil {
			return nil, err
		}
		fetchErr := &errs.FetchError{GroupID: groupID, Cursor: cursor.Raw, Cause: err}
		if apiErr, ok := err.(*errs.Error); ok {
			fetchErr.Status = apiErr.Code
		}
		return nil, fetchErr
	}

	if !response.Succeeded || response.RespData == nil {
		if response.Succeeded {
			return nil, &errs.ParseError{Field: "resp_data", Cause: fmt.Errorf("missing in successful response")}
		}
		c.logger.WarnWithFields("feed answered without data", map[string]interface{}{
			"group_id": groupID,
			"cursor":   cursor.String(),
			"code":     response.Code,
			"info":     response.Info,
		})
		return &Page{}, nil
	}

	page := &Page{Topics: response.RespData.Topics}
	if len(page.Topics) == 0 {
		return page, nil
	}

	last := page.Topics[len(page.Topics)-1]
	earliest, err := CursorAt(last.CreateTime, c.location)
	if err != nil {
		return nil, fmt.Errorf("topic %d create_time: %w", last.TopicID, err)
	}
	page.Earliest = earliest

	return page, nil
}

// ResolveFileURL exchanges a file id for its short-lived download URL
func (c *Client) ResolveFileURL(ctx context.Context, fileID int64) (string, error) {
	var response FileDownloadResponse
	if err := c.GetJSON(ctx, c.endpoints.FileDownload(fileID), &response); err != nil {
		return "", err
	}
	if response.RespData == nil || response.RespData.DownloadURL == "" {
		return "", &errs.Error{
			Type:    errs.ErrorTypeNotFound,
			Message: fmt.Sprintf("no download url for file %d (code %d)", fileID, response.Code),
		}
	}
	return response.RespData.DownloadURL, nil
}

// Open starts streaming rawURL. The caller must close the body.
func (c *Client) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := c.doRequest(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if err := c.checkResponseStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}
