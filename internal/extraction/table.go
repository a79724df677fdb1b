package extraction

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-extractor/internal/keywords"
)

const (
	tableBaseScore      = 80.0
	tablePriorityBonus  = 15.0
	tableConsistent     = 5.0
	tableInconsistent   = -25.0
	minHeaderColumnKind = 2
)

var (
	invariantTolerance = decimal.RequireFromString("0.01")
	rateTolerance      = decimal.RequireFromString("0.05")
	hundred            = decimal.NewFromInt(100)
)

type headerColumn struct {
	kind keywords.Column
	x    float64
	hasX bool
}

// tableHeader is a row naming the columns of a tax table.
type tableHeader struct {
	row     int
	columns []headerColumn
}

// taxTable is a run of breakdown rows with optional totals printed below.
type taxTable struct {
	anchor     int
	entries    []TaxBreakdownEntry
	sums       []Candidate
	confidence []float64
	consistent bool
	label      string
}

// collectTables finds tax tables and rate rows and emits their entries and
// column sums.
func (c *collector) collectTables() {
	for i := 0; i < len(c.rows); i++ {
		h, ok := c.header(i)
		if !ok {
			continue
		}
		i = c.readTable(h) - 1
	}

	loose := taxTable{anchor: -1, consistent: true, label: "tax rows"}
	for i := 0; i < len(c.rows); i++ {
		if c.consumed[i] {
			continue
		}
		c.readRateRow(i, &loose)
	}
	if len(loose.entries) > 0 {
		c.emitTable(loose)
	}
}

// header recognizes row i as a column header: no numbers, at least two
// column kinds including rate or tax, and a numeric row right below.
func (c *collector) header(i int) (tableHeader, bool) {
	r := c.rows[i]
	if len(r.Tokens) > 0 || i+1 >= len(c.rows) || len(c.rows[i+1].Tokens) < 2 {
		return tableHeader{}, false
	}

	h := tableHeader{row: i}
	kinds := make(map[keywords.Column]bool)
	text := r.Normalized
	for pos := 0; pos < len(text); {
		m, ok := c.reg.ColumnAt(text, pos, c.lang)
		if !ok {
			pos++
			continue
		}
		x, hasX := r.xAt(m.Start, m.End, true)
		h.columns = append(h.columns, headerColumn{kind: m.Column, x: x, hasX: hasX})
		kinds[m.Column] = true
		pos = m.End
	}
	if len(kinds) < minHeaderColumnKind || !(kinds[keywords.ColumnRate] || kinds[keywords.ColumnTax]) {
		return tableHeader{}, false
	}
	return h, true
}

// readTable consumes the header and the data rows under it, returning the
// index of the first row after the table.
func (c *collector) readTable(h tableHeader) int {
	c.consumed[h.row] = true
	c.notes.pattern("table:header:%d-columns", len(h.columns))

	t := taxTable{anchor: h.row, consistent: true, label: "tax table"}
	j := h.row + 1
	for ; j < len(c.rows); j++ {
		r := c.rows[j]
		if len(r.Tokens) < 2 {
			break
		}
		if m, ok := c.reg.Head(r.Normalized, c.lang, keywords.Total, keywords.Subtotal); ok && len(r.amountTokens()) >= 2 {
			c.consumed[j] = true
			c.readSumRow(h, r, m, &t)
			j++
			break
		}
		c.consumed[j] = true
		t.confidence = append(t.confidence, r.Confidence)
		cells := c.align(h, r)
		if cells == nil {
			continue
		}
		if e, ok := c.entryFrom(cells, r); ok {
			t.entries = append(t.entries, e)
			if !c.checkEntry(e) {
				t.consistent = false
			}
		}
	}
	c.emitTable(t)
	return j
}

// cell is a numeric token placed under a header column.
type cell struct {
	kind  keywords.Column
	token numberToken
}

// align places the tokens of r under the header columns, warning about rows
// that cannot be aligned and values that lose their column to a closer one.
func (c *collector) align(h tableHeader, r analyzedRow) []cell {
	cells, dropped := assign(h, r)
	if cells == nil {
		c.notes.warn("tax table row could not be aligned: %s", r.Text)
		return nil
	}
	for _, t := range dropped {
		c.notes.warn("tax table value %s dropped: another value is closer to its column in row: %s", t.Raw, r.Text)
	}
	return cells
}

// assign maps row tokens onto header columns: in order when the counts
// agree, otherwise by nearest header centre. Without geometry a short row is
// aligned to the rightmost columns. Tokens that lose their column to a
// closer token are returned as dropped.
func assign(h tableHeader, r analyzedRow) ([]cell, []numberToken) {
	if len(r.Tokens) == len(h.columns) {
		return alignRight(h, r.Tokens), nil
	}
	if cells, dropped, ok := alignByPosition(h, r); ok {
		return cells, dropped
	}
	if len(r.Tokens) < len(h.columns) {
		return alignRight(h, r.Tokens), nil
	}
	return nil, nil
}

func alignRight(h tableHeader, tokens []numberToken) []cell {
	offset := len(h.columns) - len(tokens)
	cells := make([]cell, len(tokens))
	for i, t := range tokens {
		cells[i] = cell{kind: h.columns[offset+i].kind, token: t}
	}
	return cells
}

func alignByPosition(h tableHeader, r analyzedRow) ([]cell, []numberToken, bool) {
	for _, col := range h.columns {
		if !col.hasX {
			return nil, nil, false
		}
	}
	taken := make(map[int]float64)
	placed := make(map[int]numberToken)
	var dropped []numberToken
	for _, t := range r.Tokens {
		x, ok := r.xAt(t.Start, t.End, false)
		if !ok {
			return nil, nil, false
		}
		nearest, dist := -1, math.Inf(1)
		for ci, col := range h.columns {
			if d := math.Abs(col.x - x); d < dist {
				nearest, dist = ci, d
			}
		}
		if prev, ok := taken[nearest]; ok {
			if prev <= dist {
				dropped = append(dropped, t)
				continue
			}
			dropped = append(dropped, placed[nearest])
		}
		taken[nearest] = dist
		placed[nearest] = t
	}
	order := make([]int, 0, len(placed))
	for ci := range placed {
		order = append(order, ci)
	}
	sort.Ints(order)
	cells := make([]cell, 0, len(order))
	for _, ci := range order {
		cells = append(cells, cell{kind: h.columns[ci].kind, token: placed[ci]})
	}
	return cells, dropped, true
}

// entryFrom builds a breakdown entry, deriving a missing tax or rate from
// the other columns.
func (c *collector) entryFrom(cells []cell, r analyzedRow) (TaxBreakdownEntry, bool) {
	var e TaxBreakdownEntry
	var rate *float64
	var tax *Money
	for _, cl := range cells {
		if cl.token.Percent || cl.kind == keywords.ColumnRate {
			if v, ok := parseRate(cl.token); ok {
				rate = &v
			}
			continue
		}
		m, ok := c.parse(cl.token)
		if !ok {
			continue
		}
		switch cl.kind {
		case keywords.ColumnNet:
			e.TaxableAmount = &m
		case keywords.ColumnTax:
			tax = &m
		case keywords.ColumnGross:
			e.GrossAmount = &m
		}
	}

	switch {
	case tax != nil:
		e.TaxAmount = *tax
	case e.TaxableAmount != nil && e.GrossAmount != nil:
		e.TaxAmount = NewMoney(e.GrossAmount.Sub(e.TaxableAmount.Decimal))
	default:
		c.notes.warn("tax table row has no tax amount: %s", r.Text)
		return TaxBreakdownEntry{}, false
	}

	switch {
	case rate != nil:
		e.Rate = *rate
	case e.TaxableAmount != nil && e.TaxableAmount.IsPositive():
		e.Rate = roundRate(e.TaxAmount.Div(e.TaxableAmount.Decimal).Mul(hundred))
	case e.GrossAmount != nil && e.GrossAmount.GreaterThan(e.TaxAmount.Decimal):
		e.Rate = roundRate(e.TaxAmount.Div(e.GrossAmount.Sub(e.TaxAmount.Decimal)).Mul(hundred))
	}
	return e, true
}

func roundRate(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// checkEntry verifies taxable + tax = gross when all three are present.
func (c *collector) checkEntry(e TaxBreakdownEntry) bool {
	if e.TaxableAmount == nil || e.GrossAmount == nil {
		return true
	}
	sum := e.TaxableAmount.Add(e.TaxAmount.Decimal)
	if sum.Sub(e.GrossAmount.Decimal).Abs().GreaterThan(invariantTolerance) {
		c.notes.warn("tax breakdown %v%%: taxable %s + tax %s does not equal gross %s",
			e.Rate, e.TaxableAmount, e.TaxAmount, e.GrossAmount)
		return false
	}
	return true
}

// readSumRow turns a labelled totals row under a table into direct candidates.
func (c *collector) readSumRow(h tableHeader, r analyzedRow, m keywords.Match, t *taxTable) {
	c.notes.pattern("table:sum-row:%s", m.Keyword)
	t.confidence = append(t.confidence, r.Confidence)
	cells := c.align(h, r)
	if cells == nil {
		return
	}
	for _, cl := range cells {
		if cl.token.Percent {
			continue
		}
		var field Field
		switch cl.kind {
		case keywords.ColumnNet:
			field = FieldSubtotal
		case keywords.ColumnTax:
			field = FieldTaxTotal
		case keywords.ColumnGross:
			field = FieldTotal
		default:
			continue
		}
		if v, ok := c.parse(cl.token); ok {
			t.sums = append(t.sums, Candidate{Field: field, Amount: v.Decimal, Source: SourceTable, LineIndex: r.Index, Label: r.Text})
		}
	}
}

// readRateRow handles tax rows outside a headed table: a rate with two or
// three amounts on the same row, or a rate-only row followed by a row of
// three amounts.
func (c *collector) readRateRow(i int, t *taxTable) {
	r := c.rows[i]
	if _, ok := c.reg.Head(r.Normalized, c.lang, keywords.Tax, keywords.TaxAmount, keywords.TaxRate); !ok {
		return
	}
	ps := percents(r.Tokens)
	if len(ps) != 1 {
		return
	}
	rate, ok := parseRate(ps[0])
	if !ok {
		return
	}

	amts := r.amountTokens()
	rows := []analyzedRow{r}
	switch {
	case len(amts) == 2 || len(amts) == 3:
		c.notes.pattern("table:rate-row")
	case len(amts) == 0 && i+1 < len(c.rows):
		next := c.rows[i+1]
		if c.consumed[next.Index] || len(percents(next.Tokens)) > 0 || len(next.amountTokens()) != 3 {
			return
		}
		if _, labelled := c.reg.Head(next.Normalized, c.lang, lineCategories...); labelled {
			return
		}
		amts = next.amountTokens()
		rows = append(rows, next)
		c.notes.pattern("table:paired-rate-row")
	default:
		return
	}

	values := make([]decimal.Decimal, 0, len(amts))
	for _, a := range amts {
		v, ok := c.parse(a)
		if !ok {
			return
		}
		values = append(values, v.Decimal)
	}
	e, ok := solveRateRow(rate, values)
	if !ok {
		c.notes.warn("tax row could not be resolved: %s", r.Text)
		return
	}
	for _, row := range rows {
		c.consumed[row.Index] = true
		t.confidence = append(t.confidence, row.Confidence)
	}
	if t.anchor < 0 {
		t.anchor = r.Index
	}
	t.entries = append(t.entries, e)
}

// solveRateRow assigns unlabelled amounts to taxable, tax and gross using
// the rate. Three amounts must add up: the largest is gross and the other
// two split into taxable and tax. Two amounts are a tax plus either the
// taxable or the gross amount.
func solveRateRow(rate float64, values []decimal.Decimal) (TaxBreakdownEntry, bool) {
	r := decimal.NewFromFloat(rate).Div(hundred)
	switch len(values) {
	case 3:
		sorted := append([]decimal.Decimal(nil), values...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
		a, b, gross := sorted[0], sorted[1], sorted[2]
		if a.Add(b).Sub(gross).Abs().GreaterThan(invariantTolerance) {
			return TaxBreakdownEntry{}, false
		}
		net, tax := b, a
		if b.Mul(r).Sub(a).Abs().GreaterThan(a.Mul(r).Sub(b).Abs()) {
			net, tax = a, b
		}
		return TaxBreakdownEntry{Rate: rate, TaxAmount: NewMoney(tax), TaxableAmount: MoneyPtr(net), GrossAmount: MoneyPtr(gross)}, true
	case 2:
		grossRate := r.Div(decimal.NewFromInt(1).Add(r))
		type reading struct {
			entry TaxBreakdownEntry
			diff  decimal.Decimal
		}
		var readings []reading
		for _, pair := range [][2]decimal.Decimal{{values[0], values[1]}, {values[1], values[0]}} {
			tax, other := pair[0], pair[1]
			readings = append(readings,
				reading{TaxBreakdownEntry{Rate: rate, TaxAmount: NewMoney(tax), TaxableAmount: MoneyPtr(other)}, other.Mul(r).Sub(tax).Abs()},
				reading{TaxBreakdownEntry{Rate: rate, TaxAmount: NewMoney(tax), GrossAmount: MoneyPtr(other)}, other.Mul(grossRate).Sub(tax).Abs()},
			)
		}
		bestIdx := 0
		for i, rd := range readings {
			if rd.diff.LessThan(readings[bestIdx].diff) {
				bestIdx = i
			}
		}
		if readings[bestIdx].diff.GreaterThan(rateTolerance) {
			return TaxBreakdownEntry{}, false
		}
		return readings[bestIdx].entry, true
	}
	return TaxBreakdownEntry{}, false
}

// emitTable records a table's entries and proposes its column sums.
func (c *collector) emitTable(t taxTable) {
	c.tableEntries = append(c.tableEntries, t.entries...)
	if len(t.entries) == 0 && len(t.sums) == 0 {
		return
	}
	score := tableBaseScore + tablePriorityBonus
	if t.consistent {
		score += tableConsistent
	} else {
		score += tableInconsistent
	}
	score *= mean(t.confidence, defaultConfidence)

	for _, s := range t.sums {
		s.Score = score
		c.add(s)
	}
	if len(t.entries) == 0 {
		return
	}

	var tax, net, gross decimal.Decimal
	allNet, allGross := true, true
	for _, e := range t.entries {
		tax = tax.Add(e.TaxAmount.Decimal)
		if e.TaxableAmount != nil {
			net = net.Add(e.TaxableAmount.Decimal)
		} else {
			allNet = false
		}
		if e.GrossAmount != nil {
			gross = gross.Add(e.GrossAmount.Decimal)
		} else {
			allGross = false
		}
	}
	label := t.label + " (" + rateList(t.entries) + ")"
	c.add(Candidate{Field: FieldTaxTotal, Amount: tax, Score: score, Source: SourceTable, LineIndex: t.anchor, Label: label})
	if allNet {
		c.add(Candidate{Field: FieldSubtotal, Amount: net, Score: score, Source: SourceTable, LineIndex: t.anchor, Label: label})
	}
	if allGross {
		c.add(Candidate{Field: FieldTotal, Amount: gross, Score: score, Source: SourceTable, LineIndex: t.anchor, Label: label})
	}
}

func rateList(entries []TaxBreakdownEntry) string {
	rates := make([]string, 0, len(entries))
	for _, e := range entries {
		rates = append(rates, decimal.NewFromFloat(e.Rate).String()+"%")
	}
	return strings.Join(rates, ", ")
}

func mean(vs []float64, fallback float64) float64 {
	if len(vs) == 0 {
		return fallback
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
