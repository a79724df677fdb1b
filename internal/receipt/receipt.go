package receipt

import (
	"errors"
	"time"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

var (
	// ErrNotFound is returned when an extraction does not exist
	ErrNotFound = errors.New("extraction not found")

	// ErrInvalidDocument is returned when request data is not a valid OCR document
	ErrInvalidDocument = errors.New("invalid document")
)

// Extraction represents a stored extraction result
type Extraction struct {
	ID        string             `json:"id"`
	Key       string             `json:"key"` // Hash of the normalized request
	Result    *extraction.Result `json:"result"`
	CreatedAt time.Time          `json:"created_at"`
}

// Request is a single extraction request
type Request struct {
	Data     []byte // Document JSON
	Language string // Overrides the document's language hint when set
	Options  extraction.Options
}
