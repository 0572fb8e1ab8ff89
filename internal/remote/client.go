// Package remote talks to the content origin. It has no cache awareness,
// performs no retries and surfaces every failure to the caller.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/content-sync-engine/internal/config"
	"github.com/content-sync-engine/internal/models"
	"github.com/content-sync-engine/internal/validation"
	"github.com/rs/zerolog"
)

const (
	contentPath = "/content"
	// maxBodyBytes bounds how much of a response is decoded
	maxBodyBytes = 32 << 20
)

// digestFields are the only fields requested by Validate
var digestFields = []string{"id", "modified", "featuredMediaId"}

// Client defines the operations against the content origin
type Client interface {
	List(ctx context.Context, params models.ListParams) ([]models.RawPost, error)
	Get(ctx context.Context, id int) (*models.RawPost, error)
	Validate(ctx context.Context, known map[int]time.Time) ([]models.ValidationResult, error)
}

// StatusError is returned for non-2xx origin responses
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("origin returned %d for %s", e.StatusCode, e.URL)
}

// IsNotFound reports whether err is a 404 from the origin
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// httpClient is the concrete implementation of Client
type httpClient struct {
	baseURL    string
	userAgent  string
	digestSize int
	http       *http.Client
	log        zerolog.Logger
}

// NewClient creates an origin client from configuration
func NewClient(cfg *config.OriginConfig, log zerolog.Logger) Client {
	return newHTTPClient(cfg, &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: 4,
		},
	}, log)
}

// NewClientWithHTTP creates an origin client on top of an existing http.Client
func NewClientWithHTTP(cfg *config.OriginConfig, hc *http.Client, log zerolog.Logger) Client {
	return newHTTPClient(cfg, hc, log)
}

func newHTTPClient(cfg *config.OriginConfig, hc *http.Client, log zerolog.Logger) *httpClient {
	digestSize := cfg.DigestSize
	if digestSize <= 0 {
		digestSize = 100
	}
	return &httpClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		digestSize: digestSize,
		http:       hc,
		log:        log.With().Str("component", "remote").Logger(),
	}
}

// List fetches one page of content records
func (c *httpClient) List(ctx context.Context, params models.ListParams) ([]models.RawPost, error) {
	q := url.Values{}
	if params.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(params.PerPage))
	}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	q.Set("_embed", "true")
	if params.Search != "" {
		q.Set("search", params.Search)
	}
	if params.OrderBy != "" {
		q.Set("orderby", params.OrderBy)
	}
	if params.Order != "" {
		q.Set("order", params.Order)
	}
	if params.MetaKey != "" {
		q.Set("meta_key", params.MetaKey)
	}
	if len(params.Fields) > 0 {
		q.Set("_fields", strings.Join(params.Fields, ","))
	}

	var records []models.RawPost
	if err := c.getJSON(ctx, contentPath, q, &records); err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}

	c.log.Debug().
		Int("page", params.Page).
		Int("records", len(records)).
		Msg("Content page fetched")

	return records, nil
}

// Get fetches a single record by id
func (c *httpClient) Get(ctx context.Context, id int) (*models.RawPost, error) {
	q := url.Values{}
	q.Set("_embed", "true")

	var record models.RawPost
	if err := c.getJSON(ctx, contentPath+"/"+strconv.Itoa(id), q, &record); err != nil {
		return nil, fmt.Errorf("get content %d: %w", id, err)
	}
	return &record, nil
}

// Validate requests the most recently modified ids and classifies each one
// against known. Ids absent from the digest are not reported.
func (c *httpClient) Validate(ctx context.Context, known map[int]time.Time) ([]models.ValidationResult, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(c.digestSize))
	q.Set("_fields", strings.Join(digestFields, ","))
	q.Set("orderby", "modified")
	q.Set("order", "desc")

	var digest []models.DigestEntry
	if err := c.getJSON(ctx, contentPath, q, &digest); err != nil {
		return nil, fmt.Errorf("validation digest: %w", err)
	}

	results := make([]models.ValidationResult, 0, len(digest))
	for _, entry := range digest {
		modified, err := validation.ParseTimestamp(entry.Modified)
		if err != nil || entry.ID <= 0 {
			c.log.Warn().Int("post_id", entry.ID).Str("modified", entry.Modified).Msg("Ignoring malformed digest entry")
			continue
		}

		status := models.DriftUnchanged
		if cached, ok := known[entry.ID]; !ok {
			status = models.DriftNew
		} else if models.IsNewer(modified, cached) {
			status = models.DriftModified
		}

		results = append(results, models.ValidationResult{
			ID:       entry.ID,
			Modified: modified,
			Status:   status,
		})
	}
	return results, nil
}

func (c *httpClient) getJSON(ctx context.Context, path string, q url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, URL: endpoint, Body: string(body)}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	c.log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Origin request completed")
	return nil
}
