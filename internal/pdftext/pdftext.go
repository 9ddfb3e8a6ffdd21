// Package pdftext reads the positioned text layout of a PDF. It yields, per
// page, text fragments with their position and size in PDF point space
// (origin bottom-left). It performs no interpretation of the text; that is
// the detector's job.
package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	pdflib "github.com/digitorus/pdf"

	"github.com/lexsign-io/lexsigngo/internal/apperr"
)

// Fragment is one run of text on a page, in PDF points, origin bottom-left.
type Fragment struct {
	Text   string
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Page holds the extracted layout of one PDF page.
type Page struct {
	Num       int // 1-based
	Width     float64
	Height    float64
	Fragments []Fragment
}

// glyph gap above which two text draws are separate fragments, as a
// fraction of the font size
const gapFactor = 0.45

// Extract reads every page of the PDF. A single page that fails to parse is
// skipped with a warning; only a document whose structure cannot be read at
// all is an error. Deterministic: identical bytes yield identical output.
func Extract(ctx context.Context, pdfBytes []byte) ([]Page, error) {
	if len(pdfBytes) == 0 {
		return nil, apperr.New(apperr.CodeInvalidPDF, "empty document")
	}

	reader, err := pdflib.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidPDF, "unreadable document", err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, apperr.New(apperr.CodeInvalidPDF, "document has no pages")
	}

	pages := make([]Page, 0, numPages)
	for num := 1; num <= numPages; num++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := extractPage(reader, num)
		if err != nil {
			log.Printf("⚠️ pdftext: page %d skipped: %v", num, err)
			continue
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// extractPage pulls one page's text. The underlying reader panics on
// malformed content streams, so this recovers and converts to an error.
func extractPage(reader *pdflib.Reader, num int) (page Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("content parse failure: %v", r)
		}
	}()

	p := reader.Page(num)
	if p.V.IsNull() {
		return Page{}, fmt.Errorf("page object missing")
	}

	width, height := mediaBoxSize(p)
	content := p.Content()
	frags := mergeTexts(content.Text)

	return Page{Num: num, Width: width, Height: height, Fragments: frags}, nil
}

// mediaBoxSize resolves the page MediaBox, walking up the page tree for
// inherited values. Falls back to A4 when absent.
func mediaBoxSize(p pdflib.Page) (float64, float64) {
	v := p.V
	for !v.IsNull() {
		mb := v.Key("MediaBox")
		if !mb.IsNull() && mb.Len() == 4 {
			w := mb.Index(2).Float64() - mb.Index(0).Float64()
			h := mb.Index(3).Float64() - mb.Index(1).Float64()
			if w > 0 && h > 0 {
				return w, h
			}
		}
		v = v.Key("Parent")
	}
	return 595.0, 842.0
}

// mergeTexts joins the reader's per-draw text items (often single glyphs)
// into fragments: same baseline, horizontally adjacent.
func mergeTexts(texts []pdflib.Text) []Fragment {
	if len(texts) == 0 {
		return nil
	}

	// Stable order: top of page first, then left to right. The content
	// stream order is not reliable across producers.
	sorted := make([]pdflib.Text, len(texts))
	copy(sorted, texts)
	sort.SliceStable(sorted, func(i, j int) bool {
		yi := roundHalf(sorted[i].Y)
		yj := roundHalf(sorted[j].Y)
		if yi != yj {
			return yi > yj
		}
		return sorted[i].X < sorted[j].X
	})

	var frags []Fragment
	var cur *Fragment
	var curEnd float64

	for _, t := range sorted {
		if t.S == "" {
			continue
		}
		sameLine := cur != nil && roundHalf(t.Y) == roundHalf(cur.Y)
		gap := t.X - curEnd
		maxGap := math.Max(t.FontSize*gapFactor, 1.0)

		if sameLine && gap >= -0.5 && gap <= maxGap {
			cur.Text += t.S
			curEnd = t.X + t.W
			cur.Width = curEnd - cur.X
			if t.FontSize > cur.Height {
				cur.Height = t.FontSize
			}
			continue
		}

		frags = append(frags, Fragment{})
		cur = &frags[len(frags)-1]
		*cur = Fragment{Text: t.S, X: t.X, Y: t.Y, Width: t.W, Height: t.FontSize}
		curEnd = t.X + t.W
	}
	return frags
}

// roundHalf rounds to the nearest half point, the tolerance used for "same
// baseline" grouping.
func roundHalf(v float64) float64 {
	return math.Round(v*2) / 2
}
