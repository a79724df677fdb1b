package extraction

import (
	"sort"
	"strings"
)

// defaultConfidence stands in for a missing or zero OCR confidence.
const defaultConfidence = 0.9

// Row is a logical line rebuilt from one or more OCR units sharing a baseline.
type Row struct {
	Index      int
	Text       string
	Box        *BoundingBox
	Confidence float64
	// Members are the units of the row, left to right.
	Members []TextElement
}

// LineReconstructor groups OCR units into rows by vertical position.
type LineReconstructor struct {
	// MinTolerance and MaxTolerance bound the grouping tolerance in pixels.
	MinTolerance float64
	MaxTolerance float64
	// HeightFactor scales a unit's height into its tolerance.
	HeightFactor float64
}

// NewLineReconstructor returns a reconstructor with tolerance
// max(5, min(0.5h, 10)).
func NewLineReconstructor() *LineReconstructor {
	return &LineReconstructor{MinTolerance: 5, MaxTolerance: 10, HeightFactor: 0.5}
}

func (lr *LineReconstructor) tolerance(height float64) float64 {
	return max(lr.MinTolerance, min(lr.HeightFactor*height, lr.MaxTolerance))
}

// Reconstruct sorts units by top edge and merges those whose top edge falls
// within the running range of the current group, widened by the tolerance.
// Units without a bounding box become standalone rows after the others.
func (lr *LineReconstructor) Reconstruct(units []TextElement) []Row {
	var boxed, loose []TextElement
	for _, u := range units {
		if strings.TrimSpace(u.Text) == "" {
			continue
		}
		if u.BoundingBox != nil {
			boxed = append(boxed, u)
		} else {
			loose = append(loose, u)
		}
	}

	sort.SliceStable(boxed, func(i, j int) bool {
		return boxed[i].BoundingBox.Y < boxed[j].BoundingBox.Y
	})

	var rows []Row
	var group []TextElement
	var groupMin, groupMax float64
	for _, u := range boxed {
		top := u.BoundingBox.Y
		if len(group) > 0 {
			tol := lr.tolerance(u.BoundingBox.Height)
			if top >= groupMin-tol && top <= groupMax+tol {
				group = append(group, u)
				groupMin = min(groupMin, top)
				groupMax = max(groupMax, top)
				continue
			}
			rows = append(rows, mergeRow(group))
		}
		group = []TextElement{u}
		groupMin, groupMax = top, top
	}
	if len(group) > 0 {
		rows = append(rows, mergeRow(group))
	}

	for _, u := range loose {
		rows = append(rows, mergeRow([]TextElement{u}))
	}
	for i := range rows {
		rows[i].Index = i
	}
	return rows
}

func mergeRow(members []TextElement) Row {
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i].BoundingBox, members[j].BoundingBox
		if a == nil || b == nil {
			return false
		}
		return a.X < b.X
	})

	texts := make([]string, 0, len(members))
	var box *BoundingBox
	var conf float64
	for _, m := range members {
		texts = append(texts, strings.TrimSpace(m.Text))
		conf += unitConfidence(m.Confidence)
		if m.BoundingBox == nil {
			continue
		}
		if box == nil {
			b := *m.BoundingBox
			box = &b
		} else {
			u := box.Union(*m.BoundingBox)
			box = &u
		}
	}
	return Row{
		Text:       strings.Join(texts, " "),
		Box:        box,
		Confidence: conf / float64(len(members)),
		Members:    members,
	}
}

func unitConfidence(c float64) float64 {
	if c <= 0 || c > 1 {
		return defaultConfidence
	}
	return c
}

// units flattens a document into grouping units.
func units(doc Document, wordLevel bool) []TextElement {
	lines := doc.Lines
	if len(lines) == 0 && strings.TrimSpace(doc.Text) != "" {
		for _, t := range strings.Split(doc.Text, "\n") {
			lines = append(lines, TextLine{Text: t, Confidence: doc.Confidence})
		}
	}

	var out []TextElement
	for _, l := range lines {
		if wordLevel && len(l.Elements) > 0 && elementsBoxed(l.Elements) {
			for _, e := range l.Elements {
				if e.Confidence <= 0 {
					e.Confidence = l.Confidence
				}
				out = append(out, e)
			}
			continue
		}
		out = append(out, TextElement{Text: l.Text, BoundingBox: l.BoundingBox, Confidence: l.Confidence})
	}
	return out
}

func elementsBoxed(es []TextElement) bool {
	for _, e := range es {
		if e.BoundingBox == nil {
			return false
		}
	}
	return true
}
