package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"claygrounds-desktop/internal/config"
)

// Client talks to the Claygrounds partner API
type Client struct {
	baseURL   string
	endpoints config.Endpoints
	http      *resty.Client // idempotent reads, retried on 429 and 5xx
	send      *resty.Client // requests that start work on the server, never retried
	schemas   *schemaSet
	venues    *venueNameCache
	log       *logrus.Entry
}

// NewClient creates a partner API client from configuration
func NewClient(cfg config.APIConfig, log *logrus.Entry) (*Client, error) {
	schemas, err := loadSchemas()
	if err != nil {
		return nil, err
	}

	client := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		endpoints: cfg.Endpoints,
		schemas:   schemas,
		venues:    newVenueNameCache(512),
		log:       log.WithField("svc", "api"),
	}

	client.http = resty.New().
		SetHeaders(cfg.DefaultHeaders).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Retry on 429 (Too Many Requests) and 5xx server errors
			if r == nil {
				return false
			}
			return r.StatusCode() == 429 || (r.StatusCode() >= 500 && r.StatusCode() <= 504)
		})

	client.send = resty.New().
		SetHeaders(cfg.DefaultHeaders).
		SetTimeout(cfg.Timeout)

	return client, nil
}

// BaseURL returns the API root the client was configured with
func (c *Client) BaseURL() string {
	return c.baseURL
}

// get performs a GET and returns the raw body of a successful response
func (c *Client) get(ctx context.Context, endpoint string, fallback string) ([]byte, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.buildURL(endpoint))
	return c.handle(ctx, resp, err, fallback)
}

// postJSON performs a POST with a JSON body on the non-retrying client
func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, fallback string) ([]byte, error) {
	resp, err := c.send.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(c.buildURL(endpoint))
	return c.handle(ctx, resp, err, fallback)
}

func (c *Client) handle(ctx context.Context, resp *resty.Response, err error, fallback string) ([]byte, error) {
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.log.WithError(err).Debug("request failed")
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	if !resp.IsSuccess() {
		return nil, &StatusError{
			StatusCode: resp.StatusCode(),
			Message:    serverMessage(resp.Body(), fallback),
		}
	}
	return resp.Body(), nil
}

// serverMessage pulls message or error out of a JSON error body
func serverMessage(body []byte, fallback string) string {
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fallback
	}
	if payload.Message != "" {
		return payload.Message
	}
	if s, ok := payload.Error.(string); ok && s != "" {
		return s
	}
	return fallback
}

// decode validates body against the named schema and unmarshals it
func (c *Client) decode(name string, body []byte, out any) error {
	if err := c.schemas.validate(name, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidResponse, name, err)
	}
	return nil
}

// buildURL constructs the full URL for an endpoint
func (c *Client) buildURL(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "/")
	return fmt.Sprintf("%s/%s", c.baseURL, endpoint)
}

func (c *Client) progressPath(operationID string) string {
	return strings.TrimRight(c.endpoints.Progress, "/") + "/" + url.PathEscape(operationID)
}
