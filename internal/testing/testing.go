// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/spc/internal/models"
	"github.com/desertthunder/spc/internal/shared"
)

// NewTestDB opens a migrated in-memory database that is closed when the test ends.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// MockVault is an in-memory credential vault that counts calls.
type MockVault struct {
	mu      sync.Mutex
	secrets map[string]models.Secret

	Gets    int
	Sets    int
	GetErr  error
	SetErr  error
	Written []string
}

func NewMockVault() *MockVault {
	return &MockVault{secrets: make(map[string]models.Secret)}
}

// Put seeds a secret without counting a call.
func (v *MockVault) Put(name, value string, expiresOn *time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.secrets[name] = models.Secret{Name: name, Value: value, ExpiresOn: expiresOn}
}

func (v *MockVault) GetSecret(_ context.Context, name string) (*models.Secret, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Gets++
	if v.GetErr != nil {
		return nil, v.GetErr
	}
	s, ok := v.secrets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrSecretNotFound, name)
	}
	return &s, nil
}

func (v *MockVault) SetSecret(_ context.Context, name, value string, expiresOn *time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Sets++
	if v.SetErr != nil {
		return v.SetErr
	}
	v.secrets[name] = models.Secret{Name: name, Value: value, ExpiresOn: expiresOn, UpdatedAt: time.Now()}
	v.Written = append(v.Written, name)
	return nil
}

// Calls returns the total number of vault calls.
func (v *MockVault) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Gets + v.Sets
}

// MockPlaylistAPI serves a fixed list of playlist items and records every call.
type MockPlaylistAPI struct {
	mu sync.Mutex

	Items []models.TrackItem
	// FailOffset makes the page at that offset fail when non-negative.
	FailOffset int
	RemoveErr  error
	// RemovePartial is how many URIs count as removed when RemoveErr is set.
	RemovePartial int

	TotalCalls int
	Offsets    []int
	Removed    [][]string
}

func NewMockPlaylistAPI(items []models.TrackItem) *MockPlaylistAPI {
	return &MockPlaylistAPI{Items: items, FailOffset: -1}
}

func (m *MockPlaylistAPI) TrackTotal(_ context.Context, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalCalls++
	return len(m.Items), nil
}

func (m *MockPlaylistAPI) TrackPage(_ context.Context, _ string, offset, limit int) (*models.TrackPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Offsets = append(m.Offsets, offset)
	if offset == m.FailOffset {
		return nil, fmt.Errorf("%w: page at offset %d", shared.ErrServiceUnavailable, offset)
	}

	page := &models.TrackPage{Total: len(m.Items), Offset: offset}
	if offset < len(m.Items) {
		end := min(offset+limit, len(m.Items))
		page.Items = append(page.Items, m.Items[offset:end]...)
	}
	return page, nil
}

func (m *MockPlaylistAPI) RemoveTracks(_ context.Context, _ string, uris []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RemoveErr != nil {
		n := min(m.RemovePartial, len(uris))
		if n > 0 {
			m.Removed = append(m.Removed, slices.Clone(uris[:n]))
		}
		return n, m.RemoveErr
	}
	m.Removed = append(m.Removed, slices.Clone(uris))
	return len(uris), nil
}

// SortedOffsets returns the requested page offsets in ascending order.
func (m *MockPlaylistAPI) SortedOffsets() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.Offsets)
	slices.Sort(out)
	return out
}

// Calls returns the number of page, total and removal calls made.
func (m *MockPlaylistAPI) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TotalCalls + len(m.Offsets) + len(m.Removed)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
