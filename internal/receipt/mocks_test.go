package receipt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zombor/receipt-capture/internal/scanning"
)

// mockDB is a mock implementation of DB
type mockDB struct {
	mu         sync.Mutex
	receipts   map[string]*Receipt
	jobs       map[string]*Job
	saveErr    error
	saveJobErr error
	listErr    error
}

func newMockDB() *mockDB {
	return &mockDB{
		receipts: make(map[string]*Receipt),
		jobs:     make(map[string]*Job),
	}
}

func (m *mockDB) SaveReceipt(receipt *Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *receipt
	m.receipts[receipt.ID] = &cp
	return nil
}

func (m *mockDB) GetReceipt(id string) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	receipt, ok := m.receipts[id]
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", id, ErrNotFound)
	}
	cp := *receipt
	return &cp, nil
}

func (m *mockDB) ListReceipts() ([]*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	receipts := make([]*Receipt, 0, len(m.receipts))
	for _, r := range m.receipts {
		receipts = append(receipts, r)
	}
	return receipts, nil
}

func (m *mockDB) DeleteReceipt(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.receipts, id)
	return nil
}

func (m *mockDB) SaveJob(job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveJobErr != nil {
		return m.saveJobErr
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *mockDB) GetJob(id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	cp := *job
	return &cp, nil
}

func (m *mockDB) ListJobs() ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		cp := *j
		jobs = append(jobs, &cp)
	}
	return jobs, nil
}

func (m *mockDB) Close() error {
	return nil
}

// mockStorage is a mock implementation of Storage
type mockStorage struct {
	mu        sync.Mutex
	files     map[string][]byte
	saveErr   error
	deleteErr error
}

func newMockStorage() *mockStorage {
	return &mockStorage{
		files: make(map[string][]byte),
	}
}

func (m *mockStorage) Save(filename string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.files[filename] = data
	return filename, nil
}

func (m *mockStorage) Get(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("file %s not found", path)
	}
	return data, nil
}

func (m *mockStorage) Delete(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.files, path)
	return nil
}

func (m *mockStorage) has(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

// mockScanner is a mock implementation of scanning.Scanner. When gate is
// set, scans block until it is closed.
type mockScanner struct {
	mu          sync.Mutex
	scanErr     error
	receiptData *scanning.ReceiptData
	gate        chan struct{}
	calls       int
}

func newMockScanner() *mockScanner {
	return &mockScanner{
		receiptData: &scanning.ReceiptData{
			Title:  "Test Receipt",
			Date:   "2024-01-15",
			Amount: 25.99,
		},
	}
}

func (m *mockScanner) ScanReceipt(ctx context.Context, data []byte, contentType string) (*scanning.ReceiptData, error) {
	m.mu.Lock()
	m.calls++
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	cp := *m.receiptData
	return &cp, nil
}

func (m *mockScanner) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanErr = err
}

func (m *mockScanner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockScanner) Close() error {
	return nil
}

// sequenceIDGenerator returns prefix-1, prefix-2, ...
type sequenceIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func (g *sequenceIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// mockTimeSource is a mock implementation of TimeSource
type mockTimeSource struct {
	now time.Time
}

func (m *mockTimeSource) Now() time.Time {
	return m.now
}
