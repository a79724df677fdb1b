package extraction

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Field names an amount field resolved from competing candidates.
type Field string

const (
	FieldSubtotal Field = "subtotal"
	FieldTaxTotal Field = "tax_total"
	FieldTotal    Field = "total"
)

func amountFields() []Field {
	return []Field{FieldSubtotal, FieldTaxTotal, FieldTotal}
}

// Source is the evidence source that produced a candidate.
type Source int

const (
	SourceTable Source = iota
	SourceLine
	SourceItemsSum
)

func (s Source) String() string {
	switch s {
	case SourceTable:
		return "table"
	case SourceLine:
		return "line"
	case SourceItemsSum:
		return "items_sum"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// priority orders sources for tie-breaking; higher wins.
func (s Source) priority() int {
	switch s {
	case SourceTable:
		return 3
	case SourceLine:
		return 2
	case SourceItemsSum:
		return 1
	default:
		return 0
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Source) UnmarshalText(text []byte) error {
	for _, src := range []Source{SourceTable, SourceLine, SourceItemsSum} {
		if src.String() == string(text) {
			*s = src
			return nil
		}
	}
	return fmt.Errorf("unknown candidate source %q", text)
}

// Candidate is one proposed value for an amount field.
type Candidate struct {
	Field  Field           `json:"field"`
	Amount decimal.Decimal `json:"-"`
	Score  float64         `json:"score"`
	Source Source          `json:"source"`
	// LineIndex is the row the evidence came from, or -1.
	LineIndex int    `json:"lineIndex"`
	Label     string `json:"label"`
}

// MarshalJSON renders Amount as Money.
func (c Candidate) MarshalJSON() ([]byte, error) {
	type plain Candidate
	return json.Marshal(struct {
		plain
		Amount Money `json:"amount"`
	}{plain: plain(c), Amount: NewMoney(c.Amount)})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Candidate) UnmarshalJSON(data []byte) error {
	type plain Candidate
	var v struct {
		plain
		Amount Money `json:"amount"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = Candidate(v.plain)
	c.Amount = v.Amount.Decimal
	return nil
}

// outranks reports whether a ranks strictly before b: score, then source
// priority, then earlier row, then smaller amount.
func outranks(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if pa, pb := a.Source.priority(), b.Source.priority(); pa != pb {
		return pa > pb
	}
	if la, lb := rowOrder(a.LineIndex), rowOrder(b.LineIndex); la != lb {
		return la < lb
	}
	return a.Amount.LessThan(b.Amount)
}

// rowOrder places candidates without a row after anchored ones.
func rowOrder(i int) int {
	if i < 0 {
		return int(^uint(0) >> 1)
	}
	return i
}

// rankCandidates sorts candidates best first.
func rankCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool { return outranks(cs[i], cs[j]) })
}

// best returns the top-ranked candidate of field among cs matching keep.
func best(cs []Candidate, field Field, keep func(Candidate) bool) (Candidate, bool) {
	var top Candidate
	found := false
	for _, c := range cs {
		if c.Field != field || (keep != nil && !keep(c)) {
			continue
		}
		if !found || outranks(c, top) {
			top, found = c, true
		}
	}
	return top, found
}

func clampScore(s float64) float64 {
	return min(max(s, 0), 100)
}

func clampUnit(v float64) float64 {
	return min(max(v, 0), 1)
}
