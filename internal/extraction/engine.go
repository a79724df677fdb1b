package extraction

import (
	"strings"

	"github.com/zombor/receipt-extractor/internal/keywords"
)

// Engine turns OCR lines into structured receipt fields. It is stateless
// and safe for concurrent use.
type Engine struct {
	reg           *keywords.Registry
	reconstructor *LineReconstructor
	features      *FeatureExtractor
	resolver      *ConsistencyResolver
}

// NewEngine creates an Engine using reg for keywords and number formats.
func NewEngine(reg *keywords.Registry) *Engine {
	return &Engine{
		reg:           reg,
		reconstructor: NewLineReconstructor(),
		features:      NewFeatureExtractor(reg),
		resolver:      NewConsistencyResolver(DefaultRules()),
	}
}

// Extract runs the full pipeline on doc. The same input always yields the
// same result.
func (e *Engine) Extract(doc Document, opts Options) *Result {
	rows := e.reconstructor.Reconstruct(units(doc, opts.WordLevel))
	if len(rows) == 0 {
		return failure("no OCR text to extract from")
	}

	n := newNotes()
	lang := e.language(doc, rows, n)
	format := e.reg.Format(lang)
	analyzed := e.features.analyze(rows, measurePage(doc, rows), lang, format)

	c := newCollector(e.reg, lang, format, analyzed, n)
	c.collectTables()

	fp := fieldParser{reg: e.reg, lang: lang, rows: analyzed, notes: n}
	var fields Fields
	items := normalizeItems(doc.Items, n)
	if len(items) > 0 {
		n.pattern("items:caller")
	} else {
		items = fp.items(format, c.consumed)
	}
	fields.Items = items

	c.collectLines()
	c.collectRateSum()
	summary, ok := summarizeItems(items)
	if ok {
		c.collectItemsSum(*summary)
	}

	fields.TaxBreakdown = c.breakdown()
	fp.parse(&fields)

	sel := newSelection(c.candidates, summary, fields.TaxBreakdown)
	return assemble(assembly{
		language:   lang,
		fields:     fields,
		resolution: e.resolver.Resolve(sel, opts.ApplyCorrections),
		notes:      n,
		rows:       analyzed,
		trace:      opts.Trace,
	})
}

// language uses a valid caller hint, otherwise detects from the text.
func (e *Engine) language(doc Document, rows []Row, n *notes) keywords.Language {
	if doc.Language != "" {
		if lang, ok := keywords.ParseLanguage(doc.Language); ok {
			n.pattern("language:%s:hint", lang)
			return lang
		}
		n.warn("unsupported language hint %q; detecting from text", doc.Language)
	}

	texts := make([]string, 0, len(rows))
	for _, r := range rows {
		texts = append(texts, r.Text)
	}
	lang := e.reg.DetectLanguage(strings.Join(texts, "\n"))
	if lang == keywords.Unknown {
		n.warn("language could not be detected; using keywords of all languages")
	}
	n.pattern("language:%s:detected", lang)
	return lang
}
