package mocks

import (
	"context"
	"sync"

	"github.com/content-sync-engine/internal/models"
	"github.com/content-sync-engine/internal/service"
)

// MockContentService is a mock implementation of ContentService
type MockContentService struct {
	mu sync.Mutex

	Response  *models.APIResponse
	Err       error
	Info      models.CacheInfo
	HealthErr error
	// Known lists the ids InvalidatePost and UpdatePostFlags will find
	Known map[int]bool

	LastFilter   models.Filter
	LastForce    bool
	LastCall     string
	LastArg      string
	RefreshCalls int
	ClearCalls   int
	Invalidated  []int
	FlagUpdates  map[int]models.FlagOverrides

	listeners map[int]service.Listener
	nextID    int
	done      chan struct{}
	closeOnce sync.Once
}

// Verify interface compliance
var _ service.ContentService = (*MockContentService)(nil)

func NewMockContentService() *MockContentService {
	return &MockContentService{
		Response:    &models.APIResponse{Success: true, Data: []models.Post{}},
		Known:       make(map[int]bool),
		FlagUpdates: make(map[int]models.FlagOverrides),
		listeners:   make(map[int]service.Listener),
		done:        make(chan struct{}),
	}
}

func (m *MockContentService) result(call, arg string) (*models.APIResponse, error) {
	m.LastCall = call
	m.LastArg = arg
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}

func (m *MockContentService) GetContent(ctx context.Context, filter models.Filter, forceRefresh bool) (*models.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastFilter = filter
	m.LastForce = forceRefresh
	return m.result("GetContent", "")
}

func (m *MockContentService) RefreshContent(ctx context.Context, filter models.Filter) (*models.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastFilter = filter
	m.RefreshCalls++
	return m.result("RefreshContent", "")
}

func (m *MockContentService) ClearCache(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClearCalls++
}

func (m *MockContentService) InvalidatePost(ctx context.Context, id int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Known[id] {
		return false
	}
	m.Invalidated = append(m.Invalidated, id)
	delete(m.Known, id)
	return true
}

func (m *MockContentService) UpdatePostFlags(ctx context.Context, id int, overrides models.FlagOverrides) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Known[id] {
		return false
	}
	m.FlagUpdates[id] = overrides
	return true
}

func (m *MockContentService) SubscribeToUpdates(listener service.Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = listener
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Emit calls every subscribed listener with posts
func (m *MockContentService) Emit(posts []models.Post) {
	m.mu.Lock()
	listeners := make([]service.Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(posts)
	}
}

// Subscribers returns the number of active subscriptions
func (m *MockContentService) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

func (m *MockContentService) GetCacheInfo() models.CacheInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Info
}

func (m *MockContentService) GetByEventType(ctx context.Context, eventType string) (*models.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result("GetByEventType", eventType)
}

func (m *MockContentService) GetUpcoming(ctx context.Context) (*models.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result("GetUpcoming", "")
}

func (m *MockContentService) GetFeatured(ctx context.Context) (*models.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result("GetFeatured", "")
}

func (m *MockContentService) Search(ctx context.Context, q string) (*models.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result("Search", q)
}

func (m *MockContentService) GetByCategory(ctx context.Context, category string) (*models.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result("GetByCategory", category)
}

func (m *MockContentService) Health(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.HealthErr
}

func (m *MockContentService) Done() <-chan struct{} {
	return m.done
}

func (m *MockContentService) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

// MockValidationService is a mock implementation of ValidationService
type MockValidationService struct {
	mu       sync.Mutex
	Runs     int
	Kicks    int
	started  bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Verify interface compliance
var _ service.ValidationService = (*MockValidationService)(nil)

func NewMockValidationService() *MockValidationService {
	return &MockValidationService{stopCh: make(chan struct{})}
}

func (m *MockValidationService) Start(ctx context.Context) {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	select {
	case <-ctx.Done():
	case <-m.stopCh:
	}
}

func (m *MockValidationService) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *MockValidationService) RunOnce(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Runs++
	return true
}

func (m *MockValidationService) Kick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Kicks++
}
