package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

// Extractor turns an OCR document into structured fields
type Extractor interface {
	Extract(doc extraction.Document, opts extraction.Options) *extraction.Result
}

// IDGenerator generates unique IDs for extractions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles extraction requests. A nil DB disables the result cache.
type Service struct {
	db          DB
	extractor   Extractor
	validator   *Validator
	metrics     *Metrics
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, extractor Extractor, validator *Validator, metrics *Metrics) *Service {
	return NewServiceWithDeps(db, extractor, validator, metrics, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor Extractor, validator *Validator, metrics *Metrics, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		extractor:   extractor,
		validator:   validator,
		metrics:     metrics,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// requestKey hashes the normalized document and options, so formatting
// differences in the request body map to the same key
func requestKey(doc *extraction.Document, opts extraction.Options) (string, error) {
	data, err := json.Marshal(struct {
		Document *extraction.Document `json:"document"`
		Options  extraction.Options   `json:"options"`
	}{doc, opts})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Extract validates the request document, runs the extractor and stores the
// result. Identical requests are answered from the cache.
func (s *Service) Extract(req Request) (*Extraction, error) {
	doc, err := s.validator.Decode(req.Data)
	if err != nil {
		s.metrics.observeRejected()
		return nil, err
	}
	if req.Language != "" {
		doc.Language = req.Language
	}

	key, err := requestKey(doc, req.Options)
	if err != nil {
		return nil, err
	}

	if s.db != nil {
		cached, err := s.db.FindByKey(key)
		switch {
		case err == nil:
			s.metrics.observeCacheHit()
			slog.Debug("Serving cached extraction", "id", cached.ID, "key", key)
			return cached, nil
		case !errors.Is(err, ErrNotFound):
			slog.Warn("Failed to read extraction cache", "key", key, "error", err)
		}
	}

	start := s.timeSource.Now()
	result := s.extractor.Extract(*doc, req.Options)
	s.metrics.observeExtraction(result, s.timeSource.Now().Sub(start))

	e := &Extraction{
		ID:        s.idGenerator.Generate(),
		Key:       key,
		Result:    result,
		CreatedAt: s.timeSource.Now(),
	}

	if !result.Success {
		slog.Warn("Extraction failed", "id", e.ID, "reason", result.Error)
	} else {
		slog.Info("Extracted document",
			"id", e.ID,
			"language", result.Language,
			"confidence", result.Confidence,
			"warnings", len(result.Warnings),
			"needs_verification", result.NeedsVerification,
		)
	}

	if s.db != nil {
		if err := s.db.SaveExtraction(e); err != nil {
			return nil, fmt.Errorf("saving extraction: %w", err)
		}
	}
	return e, nil
}

// GetExtraction retrieves an extraction by ID
func (s *Service) GetExtraction(id string) (*Extraction, error) {
	if s.db == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e, err := s.db.GetExtraction(id)
	if err != nil {
		return nil, fmt.Errorf("getting extraction: %w", err)
	}
	return e, nil
}

// ListExtractions returns all stored extractions
func (s *Service) ListExtractions() ([]*Extraction, error) {
	if s.db == nil {
		return []*Extraction{}, nil
	}
	extractions, err := s.db.ListExtractions()
	if err != nil {
		return nil, fmt.Errorf("listing extractions: %w", err)
	}
	return extractions, nil
}

// DeleteExtraction removes a stored extraction
func (s *Service) DeleteExtraction(id string) error {
	if s.db == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.db.DeleteExtraction(id); err != nil {
		return fmt.Errorf("deleting extraction: %w", err)
	}
	return nil
}
