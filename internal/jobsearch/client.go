// Package jobsearch wraps the external job-listings API the tracker sources
// postings from.
package jobsearch

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	defaultHost     = "jsearch.p.rapidapi.com"
	contentEncoding = "gzip, deflate, br"
)

// Client talks to the job-search API.
type Client struct {
	apiKey     string
	logger     *zap.Logger
	HTTPClient *http.Client
	Host       string
}

// New builds a client for the given API key. An empty host falls back to the
// public endpoint.
func New(apiKey, host string, logger *zap.Logger) *Client {
	if host == "" {
		host = defaultHost
	}
	return &Client{
		apiKey: apiKey,
		logger: logger,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Host: host,
	}
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, target any) error {
	u := fmt.Sprintf("https://%s%s", c.Host, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	req.Header.Set("x-rapidapi-key", c.apiKey)
	req.Header.Set("x-rapidapi-host", c.Host)
	req.Header.Set("Accept-Encoding", contentEncoding)
	if q != nil {
		req.URL.RawQuery = q.Encode()
	}

	c.logger.Debug("make request", zap.String("url", req.URL.String()))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	if target == nil {
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return err
	}

	return nil
}
