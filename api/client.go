package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ledgercache/ledgercache/cache/ledgercache"
	"github.com/ledgercache/ledgercache/log"
	"github.com/ledgercache/ledgercache/util"
	"github.com/sirupsen/logrus"
)

const (
	defaultClientTimeout  = 10 * time.Second
	defaultClientAttempts = 3
	defaultClientCooldown = 500 * time.Millisecond
)

// ErrUnexpectedStatus is returned if the server answers with an unexpected status code
var ErrUnexpectedStatus = errors.New("unexpected status code")

// Client talks to the REST API of a running instance.
// Only transport errors are retried, every HTTP answer is final.
type Client struct {
	baseURL  string
	http     *http.Client
	attempts uint
	cooldown time.Duration
}

// ClientOption configures the client
type ClientOption func(c *Client)

// WithAttempts sets the number of attempts per request
func WithAttempts(attempts uint) ClientOption {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
	}
}

// WithCooldown sets the delay between attempts
func WithCooldown(cooldown time.Duration) ClientOption {
	return func(c *Client) {
		c.cooldown = cooldown
	}
}

// WithHTTPClient replaces the underlying http client
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		c.http = h
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		http:     util.DefaultHTTPClient(defaultClientTimeout),
		attempts: defaultClientAttempts,
		cooldown: defaultClientCooldown,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func logger() *logrus.Entry {
	return log.PrefixedLog("client")
}

func entryPath(path, key string) string {
	return strings.Replace(path, "{key}", url.PathEscape(key), 1)
}

type response struct {
	status int
	body   []byte
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*response, error) {
	target := c.baseURL + path

	var res *response

	err := retry.Do(
		func() error {
			var reader io.Reader
			if body != nil {
				reader = bytes.NewReader(body)
			}

			req, err := http.NewRequestWithContext(ctx, method, target, reader)
			if err != nil {
				return retry.Unrecoverable(err)
			}

			resp, err := c.http.Do(req)
			if err != nil {
				if ctx.Err() != nil {
					return retry.Unrecoverable(err)
				}

				return err
			}

			defer resp.Body.Close()

			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}

			res = &response{status: resp.StatusCode, body: b}

			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(c.cooldown),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger().WithField("attempt", fmt.Sprintf("%d/%d", n+1, c.attempts)).
				Warnf("can't reach %s: %s", target, err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("can't execute %s %s: %w", method, target, err)
	}

	return res, nil
}

func unexpected(res *response) error {
	return fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, res.status, strings.TrimSpace(string(res.body)))
}

// Get returns the value for key. ledgercache.ErrKeyNotFound is returned if there is no live entry.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	res, err := c.do(ctx, http.MethodGet, entryPath(PathEntry, key), nil)
	if err != nil {
		return "", err
	}

	switch res.status {
	case http.StatusOK:
		return string(res.body), nil
	case http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ledgercache.ErrKeyNotFound, key)
	default:
		return "", unexpected(res)
	}
}

// Set stores the value for key
func (c *Client) Set(ctx context.Context, key, value string) error {
	res, err := c.do(ctx, http.MethodPut, entryPath(PathEntry, key), []byte(value))
	if err != nil {
		return err
	}

	if res.status != http.StatusOK {
		return unexpected(res)
	}

	return nil
}

// Add stores the value only if key has no live entry, ledgercache.ErrDuplicateKey otherwise
func (c *Client) Add(ctx context.Context, key, value string) error {
	res, err := c.do(ctx, http.MethodPost, entryPath(PathEntryAdd, key), []byte(value))
	if err != nil {
		return err
	}

	switch res.status {
	case http.StatusCreated:
		return nil
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ledgercache.ErrDuplicateKey, key)
	default:
		return unexpected(res)
	}
}

// GetOrAdd returns the live value for key or stores the passed one
func (c *Client) GetOrAdd(ctx context.Context, key, value string) (*GetOrAddResponse, error) {
	res, err := c.do(ctx, http.MethodPost, entryPath(PathEntryGetOrAdd, key), []byte(value))
	if err != nil {
		return nil, err
	}

	if res.status != http.StatusOK {
		return nil, unexpected(res)
	}

	var result GetOrAddResponse
	if err := json.Unmarshal(res.body, &result); err != nil {
		return nil, fmt.Errorf("can't parse response: %w", err)
	}

	return &result, nil
}

// Remove deletes key and returns its value. ledgercache.ErrKeyNotFound is returned if there was no live entry.
func (c *Client) Remove(ctx context.Context, key string) (string, error) {
	res, err := c.do(ctx, http.MethodDelete, entryPath(PathEntry, key), nil)
	if err != nil {
		return "", err
	}

	switch res.status {
	case http.StatusOK:
		return string(res.body), nil
	case http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ledgercache.ErrKeyNotFound, key)
	default:
		return "", unexpected(res)
	}
}

// List returns all live entries
func (c *Client) List(ctx context.Context) (map[string]string, error) {
	res, err := c.do(ctx, http.MethodGet, PathEntries, nil)
	if err != nil {
		return nil, err
	}

	if res.status != http.StatusOK {
		return nil, unexpected(res)
	}

	entries := make(map[string]string)
	if err := json.Unmarshal(res.body, &entries); err != nil {
		return nil, fmt.Errorf("can't parse response: %w", err)
	}

	return entries, nil
}

// Flush removes all entries
func (c *Client) Flush(ctx context.Context) error {
	res, err := c.do(ctx, http.MethodPost, PathCacheFlush, nil)
	if err != nil {
		return err
	}

	if res.status != http.StatusOK {
		return unexpected(res)
	}

	return nil
}

// Stats returns size and configuration of the cache
func (c *Client) Stats(ctx context.Context) (*StatsResponse, error) {
	res, err := c.do(ctx, http.MethodGet, PathCacheStats, nil)
	if err != nil {
		return nil, err
	}

	if res.status != http.StatusOK {
		return nil, unexpected(res)
	}

	var stats StatsResponse
	if err := json.Unmarshal(res.body, &stats); err != nil {
		return nil, fmt.Errorf("can't parse response: %w", err)
	}

	return &stats, nil
}
