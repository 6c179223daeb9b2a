package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	receiptsBucket = []byte("receipts")
	jobsBucket     = []byte("jobs")
)

// ErrNotFound is returned when a receipt or job does not exist
var ErrNotFound = errors.New("not found")

// DB defines the interface for database operations
type DB interface {
	// SaveReceipt creates or replaces a receipt
	SaveReceipt(receipt *Receipt) error

	// GetReceipt retrieves a receipt by ID
	GetReceipt(id string) (*Receipt, error)

	// ListReceipts returns all receipts
	ListReceipts() ([]*Receipt, error)

	// DeleteReceipt removes a receipt
	DeleteReceipt(id string) error

	// SaveJob creates or replaces an extraction job
	SaveJob(job *Job) error

	// GetJob retrieves a job by tracking ID
	GetJob(id string) (*Job, error)

	// ListJobs returns all jobs
	ListJobs() ([]*Job, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements DB on a bbolt file
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens (or creates) the database file and its buckets
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{receiptsBucket, jobsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func put[T any](db *bbolt.DB, bucket []byte, id string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", bucket, err)
	}
	return db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(id), data)
	})
}

func get[T any](db *bbolt.DB, bucket []byte, id string) (*T, error) {
	var v T
	err := db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%s %s: %w", bucket, id, ErrNotFound)
		}
		return json.Unmarshal(data, &v)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func list[T any](db *bbolt.DB, bucket []byte) ([]*T, error) {
	items := make([]*T, 0)
	err := db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, data []byte) error {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return fmt.Errorf("unmarshaling %s %s: %w", bucket, k, err)
			}
			items = append(items, &v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// SaveReceipt creates or replaces a receipt
func (b *BoltDB) SaveReceipt(receipt *Receipt) error {
	return put(b.db, receiptsBucket, receipt.ID, receipt)
}

// GetReceipt retrieves a receipt by ID
func (b *BoltDB) GetReceipt(id string) (*Receipt, error) {
	return get[Receipt](b.db, receiptsBucket, id)
}

// ListReceipts returns all receipts
func (b *BoltDB) ListReceipts() ([]*Receipt, error) {
	return list[Receipt](b.db, receiptsBucket)
}

// DeleteReceipt removes a receipt
func (b *BoltDB) DeleteReceipt(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(receiptsBucket).Delete([]byte(id))
	})
}

// SaveJob creates or replaces a job
func (b *BoltDB) SaveJob(job *Job) error {
	return put(b.db, jobsBucket, job.ID, job)
}

// GetJob retrieves a job by tracking ID
func (b *BoltDB) GetJob(id string) (*Job, error) {
	return get[Job](b.db, jobsBucket, id)
}

// ListJobs returns all jobs
func (b *BoltDB) ListJobs() ([]*Job, error) {
	return list[Job](b.db, jobsBucket)
}

// Close closes the database
func (b *BoltDB) Close() error {
	return b.db.Close()
}
