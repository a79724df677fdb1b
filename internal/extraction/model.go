package extraction

import (
	"encoding/json"
	"fmt"
)

// BoundingBox is an axis-aligned box in page pixels, serialised as [x, y, w, h].
type BoundingBox struct {
	X, Y, Width, Height float64
}

// Right returns the x coordinate of the right edge.
func (b BoundingBox) Right() float64 { return b.X + b.Width }

// Bottom returns the y coordinate of the bottom edge.
func (b BoundingBox) Bottom() float64 { return b.Y + b.Height }

// CenterX returns the horizontal centre.
func (b BoundingBox) CenterX() float64 { return b.X + b.Width/2 }

// CenterY returns the vertical centre.
func (b BoundingBox) CenterY() float64 { return b.Y + b.Height/2 }

// Union returns the smallest box containing both b and o.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	x := min(b.X, o.X)
	y := min(b.Y, o.Y)
	return BoundingBox{
		X:      x,
		Y:      y,
		Width:  max(b.Right(), o.Right()) - x,
		Height: max(b.Bottom(), o.Bottom()) - y,
	}
}

// MarshalJSON implements json.Marshaler.
func (b BoundingBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X, b.Y, b.Width, b.Height})
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decoding bounding box: %w", err)
	}
	if len(v) != 4 {
		return fmt.Errorf("bounding box needs 4 values, got %d", len(v))
	}
	*b = BoundingBox{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	return nil
}

// TextElement is a sub-line token reported by the OCR engine.
type TextElement struct {
	Text        string       `json:"text"`
	BoundingBox *BoundingBox `json:"boundingBox,omitempty"`
	Confidence  float64      `json:"confidence,omitempty"`
}

// TextLine is one OCR line.
type TextLine struct {
	Text        string        `json:"text"`
	BoundingBox *BoundingBox  `json:"boundingBox,omitempty"`
	Confidence  float64       `json:"confidence,omitempty"`
	Elements    []TextElement `json:"elements,omitempty"`
}

// Document is the engine input: OCR lines plus optional caller context.
type Document struct {
	// Text is the full OCR text. It is split into lines when Lines is empty.
	Text       string        `json:"text,omitempty"`
	Lines      []TextLine    `json:"lines"`
	Confidence float64       `json:"confidence,omitempty"`
	Language   string        `json:"language,omitempty"`
	PageWidth  float64       `json:"pageWidth,omitempty"`
	PageHeight float64       `json:"pageHeight,omitempty"`
	Items      []ReceiptItem `json:"items,omitempty"`
}

// Options tunes a single extraction.
type Options struct {
	// ApplyCorrections replaces field values with proposed corrections.
	ApplyCorrections bool
	// Trace attaches rows, candidates and rule outcomes to the result.
	Trace bool
	// WordLevel groups OCR elements instead of whole lines.
	WordLevel bool
}

// ReceiptItem is one purchased line item.
type ReceiptItem struct {
	Name       string  `json:"name"`
	Quantity   float64 `json:"quantity"`
	UnitPrice  *Money  `json:"unitPrice,omitempty"`
	TotalPrice *Money  `json:"totalPrice,omitempty"`
}

// TaxBreakdownEntry is one VAT rate row.
type TaxBreakdownEntry struct {
	Rate          float64 `json:"rate"`
	TaxAmount     Money   `json:"taxAmount"`
	TaxableAmount *Money  `json:"taxableAmount,omitempty"`
	GrossAmount   *Money  `json:"grossAmount,omitempty"`
}

// Fields holds the extracted values. Absent values are omitted.
type Fields struct {
	MerchantName  string              `json:"merchant_name,omitempty"`
	Date          string              `json:"date,omitempty"`
	Subtotal      *Money              `json:"subtotal,omitempty"`
	TaxBreakdown  []TaxBreakdownEntry `json:"tax_breakdown"`
	TaxTotal      *Money              `json:"tax_total,omitempty"`
	Total         *Money              `json:"total,omitempty"`
	Items         []ReceiptItem       `json:"items,omitempty"`
	PaymentMethod string              `json:"payment_method,omitempty"`
	ReceiptNumber string              `json:"receipt_number,omitempty"`
	DocumentType  string              `json:"document_type,omitempty"`
}

// Correction is a proposed change to a field value backed by a failed
// consistency rule.
type Correction struct {
	Field   Field  `json:"field"`
	From    Money  `json:"from"`
	To      Money  `json:"to"`
	Rule    string `json:"rule"`
	Reason  string `json:"reason"`
	Applied bool   `json:"applied"`
}

// Result is the engine output.
type Result struct {
	Success           bool         `json:"success"`
	Error             string       `json:"error,omitempty"`
	Fields            *Fields      `json:"fields,omitempty"`
	Confidence        float64      `json:"confidence"`
	Language          string       `json:"language,omitempty"`
	Warnings          []string     `json:"warnings"`
	AppliedPatterns   []string     `json:"appliedPatterns"`
	Corrections       []Correction `json:"corrections,omitempty"`
	NeedsVerification bool         `json:"needsVerification"`
	Trace             *Trace       `json:"trace,omitempty"`
}

// Trace is the audit record of how a result was reached.
type Trace struct {
	Rows             []TraceRow  `json:"rows"`
	Candidates       []Candidate `json:"candidates"`
	Rules            []Outcome   `json:"rules"`
	ConsistencyScore float64     `json:"consistencyScore"`
}

// TraceRow is a reconstructed row with its features.
type TraceRow struct {
	Index       int          `json:"index"`
	Text        string       `json:"text"`
	BoundingBox *BoundingBox `json:"boundingBox,omitempty"`
	Features    Features     `json:"features"`
}
