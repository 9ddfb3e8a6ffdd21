package pdftext

import (
	"context"
	"testing"

	pdflib "github.com/digitorus/pdf"

	"github.com/lexsign-io/lexsigngo/internal/apperr"
)

func glyph(s string, x, y, w float64) pdflib.Text {
	return pdflib.Text{S: s, X: x, Y: y, W: w, FontSize: 12}
}

func TestMergeTexts_JoinsAdjacentGlyphs(t *testing.T) {
	texts := []pdflib.Text{
		glyph("ח", 100, 700, 6),
		glyph("ת", 106, 700, 6),
		glyph("ם", 112, 700, 6),
	}
	frags := mergeTexts(texts)
	if len(frags) != 1 {
		t.Fatalf("Expected 1 merged fragment, got %d", len(frags))
	}
	f := frags[0]
	if f.Text != "חתם" {
		t.Errorf("Merged text: %q", f.Text)
	}
	if f.X != 100 || f.Width != 18 {
		t.Errorf("Merged geometry: x=%v w=%v", f.X, f.Width)
	}
}

func TestMergeTexts_SplitsOnGapAndBaseline(t *testing.T) {
	texts := []pdflib.Text{
		glyph("א", 100, 700, 6),
		glyph("ב", 200, 700, 6), // same line, far away
		glyph("ג", 100, 650, 6), // other line
	}
	frags := mergeTexts(texts)
	if len(frags) != 3 {
		t.Fatalf("Expected 3 fragments, got %d", len(frags))
	}
}

func TestMergeTexts_OrderIndependent(t *testing.T) {
	a := []pdflib.Text{glyph("א", 100, 700, 6), glyph("ב", 106, 700, 6)}
	b := []pdflib.Text{a[1], a[0]}
	fa, fb := mergeTexts(a), mergeTexts(b)
	if len(fa) != 1 || len(fb) != 1 || fa[0].Text != fb[0].Text {
		t.Errorf("Merge depends on content stream order: %+v vs %+v", fa, fb)
	}
}

func TestExtract_RejectsNonPDF(t *testing.T) {
	if _, err := Extract(context.Background(), nil); !apperr.Is(err, apperr.CodeInvalidPDF) {
		t.Errorf("Empty input: %v", err)
	}
	if _, err := Extract(context.Background(), []byte("not a pdf at all")); !apperr.Is(err, apperr.CodeInvalidPDF) {
		t.Errorf("Garbage input: %v", err)
	}
}
