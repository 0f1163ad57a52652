// Package docclient is the HTTP client of the document server. It implements
// the document loader and runtime used by worker processes.
package docclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/user/scribe/internal/docserver"
	"github.com/user/scribe/internal/document"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status int
	Code   string
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Is lets a 404 match document.ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == document.ErrNotFound && e.Status == http.StatusNotFound
}

// Client is a thin HTTP wrapper for the document server API.
type Client struct {
	URL        string
	HTTPClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP/2 cleartext client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		URL:        strings.TrimRight(baseURL, "/"),
		HTTPClient: defaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	tr := &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
		ReadIdleTimeout: 30 * time.Second,
		PingTimeout:     10 * time.Second,
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: tr,
	}
}

// Health checks /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// CreateDocument creates a document of kind and returns its ID.
func (c *Client) CreateDocument(ctx context.Context, kind string) (string, error) {
	var resp docserver.DocResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/docs", docserver.CreateDocRequest{Kind: kind}, &resp); err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	return resp.ID, nil
}

// Acquire implements document.Loader. The url is a document ID.
func (c *Client) Acquire(ctx context.Context, docURL string) (document.Document, error) {
	var resp docserver.DocResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/docs/"+url.PathEscape(docURL), nil, &resp); err != nil {
		return nil, err
	}
	return &Doc{c: c, id: resp.ID, text: resp.Text}, nil
}

// CreateMap implements document.Runtime.
func (c *Client) CreateMap(ctx context.Context) (document.SharedMap, error) {
	var resp docserver.MapResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/maps", nil, &resp); err != nil {
		return nil, fmt.Errorf("create map: %w", err)
	}
	return &Map{c: c, id: resp.ID}, nil
}

// OpenMap implements document.Runtime.
func (c *Client) OpenMap(ctx context.Context, id string) (document.SharedMap, error) {
	var resp docserver.MapResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/maps/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("open map %s: %w", id, err)
	}
	return &Map{c: c, id: resp.ID}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr docserver.ErrorResponse
		if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Code == "" {
			return &APIError{Status: resp.StatusCode, Code: "HTTP_" + fmt.Sprint(resp.StatusCode), Msg: strings.TrimSpace(string(data))}
		}
		return &APIError{Status: resp.StatusCode, Code: apiErr.Code, Msg: apiErr.Error}
	}

	if result != nil && len(data) > 0 {
		return json.Unmarshal(data, result)
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
