package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/zombor/receipt-capture/internal/scanning"
	"github.com/zombor/receipt-capture/internal/tracking"
)

// ErrAlreadyProcessed is returned when retrying a job that already succeeded
var ErrAlreadyProcessed = errors.New("receipt already processed")

// IDGenerator generates unique IDs for jobs and receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemTime struct{}

func (systemTime) Now() time.Time {
	return time.Now()
}

// DefaultWorkers is the number of extractions that may run at once
const DefaultWorkers = 4

// Service accepts receipt uploads, extracts them in the background and
// archives the results
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
	scanTimeout time.Duration

	workers  *semaphore.Weighted
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	inflight map[string]bool
	rerun    map[string]bool
}

// NewService creates a Service with UUIDs and the system clock
func NewService(db DB, scanner scanning.Scanner, storage Storage) *Service {
	return NewServiceWithDeps(db, scanner, storage, uuidGenerator{}, systemTime{})
}

// NewServiceWithDeps creates a Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
		scanTimeout: 2 * time.Minute,
		workers:     semaphore.NewWeighted(DefaultWorkers),
		ctx:         ctx,
		cancel:      cancel,
		inflight:    make(map[string]bool),
		rerun:       make(map[string]bool),
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips the long, symbol-heavy names phones generate
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(repeatedSpaces.ReplaceAllString(base, " "))
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}

// Submit stores an uploaded file, records a pending job and starts
// extraction in the background. The returned job ID is the tracking handle.
func (s *Service) Submit(ctx context.Context, filename string, data []byte, contentType string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	job := &Job{
		ID:           id,
		OriginalName: filename,
		Filename:     savedPath,
		ContentType:  contentType,
		Status:       tracking.StatusPending,
		Attempts:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.SaveJob(job); err != nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving job: %w", err)
	}

	slog.Info("Receipt submitted", "tracking_id", id, "filename", filename, "content_type", contentType, "size", len(data))
	s.startExtraction(job.ID)
	return job, nil
}

// Job returns the current state of an extraction job
func (s *Service) Job(id string) (*Job, error) {
	job, err := s.db.GetJob(id)
	if err != nil {
		return nil, fmt.Errorf("getting job: %w", err)
	}
	return job, nil
}

// Retry re-runs extraction for a job under the same tracking ID. A job whose
// extraction is still running is returned unchanged.
func (s *Service) Retry(ctx context.Context, id string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	job, err := s.db.GetJob(id)
	if err != nil {
		return nil, fmt.Errorf("getting job: %w", err)
	}

	switch {
	case job.Status == tracking.StatusSucceeded:
		return nil, fmt.Errorf("job %s: %w", id, ErrAlreadyProcessed)
	case job.Status == tracking.StatusPending && s.running(id):
		return job, nil
	}

	job.Status = tracking.StatusPending
	job.Reason = ""
	job.Attempts++
	job.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveJob(job); err != nil {
		return nil, fmt.Errorf("saving job: %w", err)
	}

	slog.Info("Retrying receipt extraction", "tracking_id", id, "attempt", job.Attempts)
	s.startExtraction(id)
	return job, nil
}

// Resume restarts extraction for jobs left pending by a previous run
func (s *Service) Resume() error {
	jobs, err := s.db.ListJobs()
	if err != nil {
		return fmt.Errorf("listing jobs: %w", err)
	}
	for _, job := range jobs {
		if job.Status == tracking.StatusPending && !s.running(job.ID) {
			slog.Info("Resuming receipt extraction", "tracking_id", job.ID)
			s.startExtraction(job.ID)
		}
	}
	return nil
}

// Close stops accepting background work and waits for running extractions
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) running(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[id]
}

func (s *Service) startExtraction(id string) {
	s.mu.Lock()
	if s.inflight[id] {
		s.rerun[id] = true
		s.mu.Unlock()
		return
	}
	s.inflight[id] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for s.runExtraction(id) {
		}
	}()
}

// runExtraction makes one pass and reports whether another was requested meanwhile
func (s *Service) runExtraction(id string) bool {
	if err := s.workers.Acquire(s.ctx, 1); err == nil {
		if err := s.extract(id); err != nil {
			slog.Error("Receipt extraction bookkeeping failed", "tracking_id", id, "error", err)
		}
		s.workers.Release(1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	again := s.rerun[id] && s.ctx.Err() == nil
	delete(s.rerun, id)
	if !again {
		delete(s.inflight, id)
	}
	return again
}

// extract scans a stored file and resolves its job. Scanner failures resolve
// the job as failed; only storage and database errors are returned.
func (s *Service) extract(id string) error {
	job, err := s.db.GetJob(id)
	if err != nil {
		return fmt.Errorf("getting job: %w", err)
	}

	data, err := s.storage.Get(job.Filename)
	if err != nil {
		return s.fail(job, "The uploaded file could not be read. Please upload it again.", err)
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.scanTimeout)
	defer cancel()

	receiptData, err := s.scanner.ScanReceipt(ctx, data, job.ContentType)
	if err != nil {
		if s.ctx.Err() != nil {
			// Shutting down; the job stays pending and Resume picks it up.
			return nil
		}
		slog.Error("Failed to scan receipt",
			"tracking_id", id,
			"content_type", job.ContentType,
			"file_size", len(data),
			"error", err,
		)
		return s.fail(job, "We could not read this receipt. Try a clearer photo.", err)
	}

	now := s.timeSource.Now()
	date, err := time.Parse("2006-01-02", receiptData.Date)
	if err != nil {
		date = now
	}

	receipt := &Receipt{
		ID:          s.idGenerator.Generate(),
		TrackingID:  id,
		Title:       receiptData.Title,
		Date:        date,
		Amount:      int(math.Round(receiptData.Amount * 100)),
		Filename:    job.Filename,
		ContentType: job.ContentType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.SaveReceipt(receipt); err != nil {
		return s.fail(job, "The receipt could not be saved. Please retry.", err)
	}

	job.Status = tracking.StatusSucceeded
	job.ReceiptID = receipt.ID
	job.Reason = ""
	job.UpdatedAt = now
	if err := s.db.SaveJob(job); err != nil {
		return fmt.Errorf("saving job: %w", err)
	}

	slog.Info("Receipt extracted", "tracking_id", id, "receipt_id", receipt.ID, "title", receipt.Title, "amount", receipt.Amount)
	return nil
}

func (s *Service) fail(job *Job, reason string, cause error) error {
	slog.Warn("Receipt extraction failed", "tracking_id", job.ID, "reason", reason, "error", cause)
	job.Status = tracking.StatusFailed
	job.Reason = reason
	job.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveJob(job); err != nil {
		return fmt.Errorf("saving job: %w", err)
	}
	return nil
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts
func (s *Service) ListReceipts() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt and its file
func (s *Service) DeleteReceipt(id string) error {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if err := s.storage.Delete(receipt.Filename); err != nil {
		// The record goes regardless
		slog.Warn("Failed to delete file", "filename", receipt.Filename, "error", err)
	}

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetReceiptFile returns the stored file and its content type
func (s *Service) GetReceiptFile(id string) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}

	data, err := s.storage.Get(receipt.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}
	return data, receipt.ContentType, nil
}
