package sparebank1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/vpnda/sparebank-sync/pkg/models"
	"github.com/vpnda/sparebank-sync/pkg/utils"
)

const (
	DefaultBaseURL = "https://api.sparebank1.no"

	// MediaType is required as Accept on every call and as Content-Type on
	// every POST.
	MediaType = "application/vnd.sparebank1.v1+json; charset=utf-8"

	accountsPath       = "/personal/banking/accounts"
	balancePath        = "/personal/banking/accounts/balance"
	debitTransferPath  = "/personal/banking/transfer/debit"
	creditTransferPath = "/personal/banking/transfer/creditcard/transferTo"

	defaultRetryAfter = time.Hour
)

// TokenProvider hands out a valid bearer token. It is called before every
// request; refreshing expired tokens is its job, not the client's.
type TokenProvider interface {
	EnsureTokenValid(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider that always returns the same token.
type StaticToken string

func (t StaticToken) EnsureTokenValid(ctx context.Context) (string, error) {
	return string(t), nil
}

// Client talks to the SpareBank 1 personal banking API. It keeps no state
// between calls apart from its configuration.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithDebug logs every request and response at debug level.
func WithDebug() Option {
	return func(c *Client) {
		c.httpClient.Transport = utils.DebugRoundTripperWithUnderlying(
			lo.Ternary[http.RoundTripper](c.httpClient.Transport != nil, c.httpClient.Transport, http.DefaultTransport))
	}
}

func NewClient(tokens TokenProvider, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		tokens:     tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorBody struct {
	Errors []models.StructuredError `json:"errors"`
}

// doRequest sends an authenticated request and decodes a successful JSON
// response into out. Statuses >= 400 become *models.UpstreamError or
// *models.RateLimitError, connection failures *models.TransportError.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body, out any) error {
	token, err := c.tokens.EnsureTokenValid(ctx)
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", MediaType)
	if body != nil {
		req.Header.Set("Content-Type", MediaType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("method", method).Str("url", fullURL).Msg("Network error talking to SpareBank 1")
		return &models.TransportError{Method: method, URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &models.TransportError{Method: method, URL: fullURL, Err: err}
	}

	if resp.StatusCode >= 400 {
		return newStatusError(method, fullURL, resp, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &models.UpstreamError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("%s %s returned an invalid response: %v", method, fullURL, err),
			Err:     err,
		}
	}
	return nil
}

func newStatusError(method, fullURL string, resp *http.Response, body []byte) error {
	text := strings.TrimSpace(string(body))
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		parsed.Errors = nil
		if text == "" {
			text = "Unable to read error response"
		}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return &models.RateLimitError{
			UpstreamError: &models.UpstreamError{
				Status: resp.StatusCode,
				Message: fmt.Sprintf("Rate limit exceeded. Retry after %d seconds: %s",
					int(retryAfter.Seconds()), text),
				Errors: parsed.Errors,
			},
			RetryAfter: retryAfter,
		}
	}

	summary := text
	if len(parsed.Errors) > 0 {
		summary = strings.Join(lo.Map(parsed.Errors, func(e models.StructuredError, _ int) string {
			return fmt.Sprintf("%s: %s",
				lo.CoalesceOrEmpty(e.Code, "unknown"),
				lo.CoalesceOrEmpty(e.Message, "No message provided"))
		}), "; ")
	}

	return &models.UpstreamError{
		Status:  resp.StatusCode,
		Message: fmt.Sprintf("%s %s failed – HTTP %d: %s", method, fullURL, resp.StatusCode, summary),
		Errors:  parsed.Errors,
	}
}

// parseRetryAfter reads a Retry-After value in seconds. Missing or
// unparseable values mean one hour.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}
