package cftc

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"cot-sentiment-lab/internal/domain"
	"cot-sentiment-lab/internal/ingestion"
	"cot-sentiment-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultURLTemplate = "https://www.cftc.gov/files/dea/history/fut_disagg_txt_%d.zip"
	DefaultTimeout     = 60 * time.Second
	MaxArchiveSize     = 256 << 20
)

// Client downloads yearly report archives over HTTP.
// Implements ingestion.ReportSource interface.
type Client struct {
	urlTemplate string
	client      *http.Client
	logger      *zap.Logger
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithURLTemplate sets the archive URL template. It must contain one %d for the year.
func WithURLTemplate(tmpl string) ClientOption {
	return func(c *Client) {
		c.urlTemplate = tmpl
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new report archive client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		urlTemplate: DefaultURLTemplate,
		client:      &http.Client{Timeout: DefaultTimeout},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ingestion.ReportSource = (*Client)(nil)

// Fetch downloads and parses the archive for year.
// HTTP 404 maps to ingestion.ErrReportUnavailable, every other failure to
// ingestion.ErrRetrieval.
func (c *Client) Fetch(ctx context.Context, year int) ([]domain.RawReportRow, error) {
	url := fmt.Sprintf(c.urlTemplate, year)
	start := time.Now()

	data, err := c.download(ctx, url)
	if err != nil {
		reason := "transport"
		if isUnavailable(err) {
			reason = "unavailable"
		}
		observability.RecordDownload(time.Since(start).Seconds(), reason)
		return nil, err
	}
	observability.RecordDownload(time.Since(start).Seconds(), "")

	rows, err := parseArchive(data)
	if err != nil {
		observability.RecordDownload(0, "parse")
		return nil, fmt.Errorf("%w: %s: %w", ingestion.ErrRetrieval, url, err)
	}

	c.logger.Debug("report downloaded",
		zap.Int("year", year),
		zap.Int("bytes", len(data)),
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return rows, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ingestion.ErrRetrieval, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ingestion.ErrRetrieval, url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ingestion.ErrReportUnavailable, url)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d for %s", ingestion.ErrRetrieval, resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxArchiveSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ingestion.ErrRetrieval, url, err)
	}
	if len(data) > MaxArchiveSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ingestion.ErrRetrieval, url, MaxArchiveSize)
	}
	return data, nil
}

// parseArchive parses the first .txt entry of a zip archive.
func parseArchive(data []byte) ([]domain.RawReportRow, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".txt") {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()

		rows, err := Parse(rc)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.Name, err)
		}
		return rows, nil
	}

	return nil, fmt.Errorf("no .txt entry in archive")
}
