package mocks

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/content-sync-engine/internal/models"
	"github.com/content-sync-engine/internal/remote"
	"github.com/content-sync-engine/internal/validation"
)

// MockOrigin is an in-memory content origin implementing remote.Client
type MockOrigin struct {
	mu sync.Mutex

	Records     []models.RawPost
	DigestSize  int
	ListErr     error
	GetErr      error
	ValidateErr error
	// ListDelay slows every List call down, to widen race windows in tests
	ListDelay time.Duration
	GetFunc   func(ctx context.Context, id int) (*models.RawPost, error)

	listCalls     int
	getCalls      int
	validateCalls int
	fetchedIDs    []int
}

// Verify interface compliance
var _ remote.Client = (*MockOrigin)(nil)

func NewMockOrigin(records ...models.RawPost) *MockOrigin {
	return &MockOrigin{Records: records, DigestSize: 100}
}

// SetRecords replaces the origin content
func (m *MockOrigin) SetRecords(records ...models.RawPost) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = records
}

// Upsert replaces the record with the same id or appends it
func (m *MockOrigin) Upsert(record models.RawPost) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Records {
		if m.Records[i].ID == record.ID {
			m.Records[i] = record
			return
		}
	}
	m.Records = append(m.Records, record)
}

// SetListErr changes the error returned by List
func (m *MockOrigin) SetListErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListErr = err
}

func (m *MockOrigin) List(ctx context.Context, params models.ListParams) ([]models.RawPost, error) {
	m.mu.Lock()
	m.listCalls++
	delay := m.ListDelay
	err := m.ListErr
	records := append([]models.RawPost(nil), m.Records...)
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	perPage := params.PerPage
	if perPage <= 0 {
		perPage = len(records)
	}
	page := params.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= len(records) {
		return []models.RawPost{}, nil
	}
	end := start + perPage
	if end > len(records) {
		end = len(records)
	}
	return records[start:end], nil
}

func (m *MockOrigin) Get(ctx context.Context, id int) (*models.RawPost, error) {
	m.mu.Lock()
	m.getCalls++
	m.fetchedIDs = append(m.fetchedIDs, id)
	fn := m.GetFunc
	err := m.GetErr
	var found *models.RawPost
	for i := range m.Records {
		if m.Records[i].ID == id {
			rec := m.Records[i]
			found = &rec
			break
		}
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, &remote.StatusError{StatusCode: 404, URL: "/content/" + strconv.Itoa(id)}
	}
	return found, nil
}

func (m *MockOrigin) Validate(ctx context.Context, known map[int]time.Time) ([]models.ValidationResult, error) {
	m.mu.Lock()
	m.validateCalls++
	err := m.ValidateErr
	records := append([]models.RawPost(nil), m.Records...)
	size := m.DigestSize
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	type digest struct {
		id       int
		modified time.Time
	}
	entries := make([]digest, 0, len(records))
	for _, r := range records {
		// Same field the real digest requests
		modified, perr := validation.ParseTimestamp(firstSet(r.Modified, r.Date))
		if perr != nil {
			return nil, fmt.Errorf("mock origin: record %d: %w", r.ID, perr)
		}
		entries = append(entries, digest{id: r.ID, modified: modified})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].modified.After(entries[j].modified) })
	if size > 0 && len(entries) > size {
		entries = entries[:size]
	}

	results := make([]models.ValidationResult, 0, len(entries))
	for _, e := range entries {
		status := models.DriftUnchanged
		if cached, ok := known[e.id]; !ok {
			status = models.DriftNew
		} else if models.IsNewer(e.modified, cached) {
			status = models.DriftModified
		}
		results = append(results, models.ValidationResult{ID: e.id, Modified: e.modified, Status: status})
	}
	return results, nil
}

// Calls returns how often each endpoint was hit
func (m *MockOrigin) Calls() (list, get, validate int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls, m.getCalls, m.validateCalls
}

// FetchedIDs returns the ids requested through Get, in call order
func (m *MockOrigin) FetchedIDs() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.fetchedIDs...)
}

// ResetCalls zeroes the call counters
func (m *MockOrigin) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls, m.getCalls, m.validateCalls = 0, 0, 0
	m.fetchedIDs = nil
}

// RawRecord builds a minimal valid origin record
func RawRecord(id int, title string, date, modified time.Time) models.RawPost {
	return models.RawPost{
		ID:          id,
		Date:        date.UTC().Format("2006-01-02T15:04:05"),
		DateGMT:     date.UTC().Format("2006-01-02T15:04:05"),
		Modified:    modified.UTC().Format("2006-01-02T15:04:05"),
		ModifiedGMT: modified.UTC().Format("2006-01-02T15:04:05"),
		Slug:        validation.Slugify(title),
		Title:       models.Rendered{Rendered: title},
		Content:     models.Rendered{Rendered: "<p>" + title + " body</p>"},
	}
}

// EventRecord builds an origin record carrying event custom fields
func EventRecord(id int, title, eventType, startDate, endDate string, date, modified time.Time) models.RawPost {
	r := RawRecord(id, title, date, modified)
	r.ACF = []byte(fmt.Sprintf(`{"event_type":%q,"start_date":%q,"end_date":%q}`, eventType, startDate, endDate))
	return r
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
