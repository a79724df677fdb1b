package receipt

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

//go:embed document.schema.json
var documentSchema []byte

const documentSchemaURL = "document.schema.json"

// Validator checks request documents against the OCR document schema
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded document schema
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(documentSchemaURL, bytes.NewReader(documentSchema)); err != nil {
		return nil, fmt.Errorf("adding schema: %w", err)
	}
	schema, err := compiler.Compile(documentSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Decode validates data and decodes it into a document. Markdown code fences
// and text around the outermost JSON object are ignored.
func (v *Validator) Decode(data []byte) (*extraction.Document, error) {
	raw, err := trimToObject(string(data))
	if err != nil {
		return nil, err
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := v.schema.Validate(value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	var doc extraction.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return &doc, nil
}

// trimToObject strips code fences and returns the outermost JSON object
func trimToObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return "", fmt.Errorf("%w: no JSON object found", ErrInvalidDocument)
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return "", fmt.Errorf("%w: unterminated JSON object", ErrInvalidDocument)
	}
	return text[start : end+1], nil
}
