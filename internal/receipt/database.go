package receipt

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	extractionBucketName = "extractions"
	keyBucketName        = "extraction_keys"
)

// DB defines the interface for extraction storage
type DB interface {
	// SaveExtraction stores an extraction and indexes it by key
	SaveExtraction(e *Extraction) error

	// GetExtraction retrieves an extraction by ID
	GetExtraction(id string) (*Extraction, error)

	// FindByKey retrieves the extraction stored for a request key
	FindByKey(key string) (*Extraction, error)

	// ListExtractions returns all extractions
	ListExtractions() ([]*Extraction, error)

	// DeleteExtraction removes an extraction and its key
	DeleteExtraction(id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(extractionBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(keyBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveExtraction stores an extraction and indexes it by key
func (b *BoltDB) SaveExtraction(e *Extraction) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshaling extraction: %w", err)
		}
		if err := tx.Bucket([]byte(extractionBucketName)).Put([]byte(e.ID), data); err != nil {
			return err
		}
		if e.Key == "" {
			return nil
		}
		return tx.Bucket([]byte(keyBucketName)).Put([]byte(e.Key), []byte(e.ID))
	})
}

// GetExtraction retrieves an extraction by ID
func (b *BoltDB) GetExtraction(id string) (*Extraction, error) {
	var e *Extraction
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		e, err = get(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// FindByKey retrieves the extraction stored for a request key
func (b *BoltDB) FindByKey(key string) (*Extraction, error) {
	var e *Extraction
	err := b.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(keyBucketName)).Get([]byte(key))
		if id == nil {
			return fmt.Errorf("%w: key %s", ErrNotFound, key)
		}
		var err error
		e, err = get(tx, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func get(tx *bbolt.Tx, id string) (*Extraction, error) {
	data := tx.Bucket([]byte(extractionBucketName)).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var e Extraction
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshaling extraction: %w", err)
	}
	return &e, nil
}

// ListExtractions returns all extractions
func (b *BoltDB) ListExtractions() ([]*Extraction, error) {
	extractions := make([]*Extraction, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(extractionBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var e Extraction
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("unmarshaling extraction: %w", err)
			}
			extractions = append(extractions, &e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return extractions, nil
}

// DeleteExtraction removes an extraction and its key
func (b *BoltDB) DeleteExtraction(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		e, err := get(tx, id)
		if err != nil {
			return err
		}
		if e.Key != "" {
			if err := tx.Bucket([]byte(keyBucketName)).Delete([]byte(e.Key)); err != nil {
				return err
			}
		}
		return tx.Bucket([]byte(extractionBucketName)).Delete([]byte(id))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
