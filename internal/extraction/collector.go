package extraction

import (
	"fmt"

	"github.com/zombor/receipt-extractor/internal/keywords"
)

// notes accumulates warnings and applied patterns in insertion order.
type notes struct {
	warnings []string
	patterns []string
	seen     map[string]bool
}

func newNotes() *notes {
	return &notes{warnings: []string{}, patterns: []string{}, seen: make(map[string]bool)}
}

func (n *notes) warn(format string, args ...any) {
	n.warnings = append(n.warnings, fmt.Sprintf(format, args...))
}

func (n *notes) pattern(format string, args ...any) {
	p := fmt.Sprintf(format, args...)
	if n.seen[p] {
		return
	}
	n.seen[p] = true
	n.patterns = append(n.patterns, p)
}

// collector runs the candidate producers over the rows of one document.
type collector struct {
	reg    *keywords.Registry
	lang   keywords.Language
	format keywords.NumberFormat
	rows   []analyzedRow
	notes  *notes

	candidates   []Candidate
	tableEntries []TaxBreakdownEntry
	taxLines     []taxLine
	// consumed marks rows claimed by the table producer.
	consumed map[int]bool
}

func newCollector(reg *keywords.Registry, lang keywords.Language, format keywords.NumberFormat, rows []analyzedRow, n *notes) *collector {
	return &collector{
		reg:      reg,
		lang:     lang,
		format:   format,
		rows:     rows,
		notes:    n,
		consumed: make(map[int]bool),
	}
}

func (c *collector) add(cand Candidate) {
	cand.Score = clampScore(cand.Score)
	c.candidates = append(c.candidates, cand)
}

// taxLine is a tax row carrying one rate and its amount.
type taxLine struct {
	entry TaxBreakdownEntry
	row   int
}

// breakdown returns table entries when any were found, else the rate-bearing
// tax lines with duplicate rates dropped.
func (c *collector) breakdown() []TaxBreakdownEntry {
	if len(c.tableEntries) > 0 {
		return c.tableEntries
	}
	var out []TaxBreakdownEntry
	for _, l := range c.rateLines() {
		out = append(out, l.entry)
	}
	return out
}

// rateLines returns the first tax line of each distinct rate.
func (c *collector) rateLines() []taxLine {
	var out []taxLine
	seen := make(map[float64]bool)
	for _, l := range c.taxLines {
		if seen[l.entry.Rate] {
			continue
		}
		seen[l.entry.Rate] = true
		out = append(out, l)
	}
	return out
}

// parse converts a token, recording a warning when it fits no convention.
func (c *collector) parse(t numberToken) (Money, bool) {
	d, err := parseToken(t, c.format)
	if err != nil {
		c.notes.warn("unparseable amount: %s", t.Raw)
		return Money{}, false
	}
	return NewMoney(d), true
}
