package extraction

import (
	"github.com/zombor/receipt-extractor/internal/keywords"
)

// verificationThreshold is the confidence below which results need review.
const verificationThreshold = 0.6

// assembly is everything gathered for one document before it becomes a Result.
type assembly struct {
	language   keywords.Language
	fields     Fields
	resolution Resolution
	notes      *notes
	rows       []analyzedRow
	trace      bool
}

// assemble builds the final result. Field amounts come from the resolution,
// with applied corrections already folded in.
func assemble(a assembly) *Result {
	f := a.fields
	if v, ok := a.resolution.Values[FieldSubtotal]; ok {
		f.Subtotal = MoneyPtr(v)
	}
	if v, ok := a.resolution.Values[FieldTaxTotal]; ok {
		f.TaxTotal = MoneyPtr(v)
	}
	if v, ok := a.resolution.Values[FieldTotal]; ok {
		f.Total = MoneyPtr(v)
	}
	if f.TaxBreakdown == nil {
		f.TaxBreakdown = []TaxBreakdownEntry{}
	}

	warnings := append([]string{}, a.notes.warnings...)
	warnings = append(warnings, a.resolution.Warnings()...)
	for _, o := range a.resolution.Outcomes {
		if o.Band != BandSkipped {
			a.notes.pattern("rule:%s:%s", o.Rule, o.Band)
		}
	}

	res := &Result{
		Success:         true,
		Fields:          &f,
		Confidence:      a.resolution.Score,
		Language:        string(a.language),
		Warnings:        warnings,
		AppliedPatterns: append([]string{}, a.notes.patterns...),
		Corrections:     a.resolution.Corrections,
	}
	res.NeedsVerification = res.Confidence < verificationThreshold ||
		(len(warnings) > 0 && !a.resolution.Applied()) ||
		f.Total == nil

	if a.trace {
		res.Trace = buildTrace(a)
	}
	return res
}

func buildTrace(a assembly) *Trace {
	t := &Trace{
		Rows:             make([]TraceRow, 0, len(a.rows)),
		Candidates:       a.resolution.Selection.Candidates,
		Rules:            a.resolution.Outcomes,
		ConsistencyScore: a.resolution.Score,
	}
	for _, r := range a.rows {
		t.Rows = append(t.Rows, TraceRow{Index: r.Index, Text: r.Text, BoundingBox: r.Box, Features: r.Features})
	}
	return t
}

// failure is the result for input that cannot be processed at all.
func failure(reason string) *Result {
	return &Result{
		Success:           false,
		Error:             reason,
		Warnings:          []string{},
		AppliedPatterns:   []string{},
		NeedsVerification: true,
	}
}
