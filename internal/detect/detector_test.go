package detect

import (
	"reflect"
	"testing"

	"github.com/lexsign-io/lexsigngo/internal/pdftext"
)

// a4 builds a one-page A4 layout from fragments
func a4(frags ...pdftext.Fragment) pdftext.Page {
	return pdftext.Page{Num: 1, Width: 595, Height: 842, Fragments: frags}
}

func frag(text string, x, y, w float64) pdftext.Fragment {
	return pdftext.Fragment{Text: text, X: x, Y: y, Width: w, Height: 12}
}

func TestDetectPage_KeywordWithUnderline(t *testing.T) {
	d := New()
	page := a4(
		frag("חתימה", 440, 700, 40),
		frag("__________", 300, 700, 120),
	)

	cands := d.detectPage(page)
	if len(cands) != 1 {
		t.Fatalf("Expected exactly 1 candidate, got %d", len(cands))
	}

	c := cands[0]
	if c.PageNum != 1 {
		t.Errorf("Expected page 1, got %d", c.PageNum)
	}
	if c.SignerLabel != "חתימה" {
		t.Errorf("Expected keyword label, got %q", c.SignerLabel)
	}
	if c.Source != SourceKeyword || c.Confidence != 0.9 {
		t.Errorf("Expected keyword source at 0.9, got %s/%v", c.Source, c.Confidence)
	}
	if c.X < 0 || c.Y < 0 || c.X+c.Width > d.defaults.BaseRenderWidth {
		t.Errorf("Candidate out of page bounds: %+v", c)
	}
	if c.Width < d.defaults.SpotMinWidthPx || c.Width > d.defaults.SpotMaxWidthPx {
		t.Errorf("Width outside clamp range: %v", c.Width)
	}
}

func TestDetectPage_ShortTextFallback(t *testing.T) {
	d := New()
	page := a4(
		frag("דוד כהן", 440, 650, 50),
		frag("----------", 280, 650, 110),
	)

	cands := d.detectPage(page)
	if len(cands) != 1 {
		t.Fatalf("Expected 1 fallback candidate, got %d", len(cands))
	}
	if cands[0].Source != SourceFallback || cands[0].Confidence != 0.5 {
		t.Errorf("Expected fallback at 0.5, got %s/%v", cands[0].Source, cands[0].Confidence)
	}
	if cands[0].SignerLabel != "דוד כהן" {
		t.Errorf("Expected short-text label, got %q", cands[0].SignerLabel)
	}
}

func TestDetectPage_RequiresUnderlineAndAnchor(t *testing.T) {
	d := New()

	// underline alone does not qualify
	if got := d.detectPage(a4(frag("__________", 300, 700, 120))); len(got) != 0 {
		t.Errorf("Underline without anchor should yield nothing, got %d", len(got))
	}
	// keyword alone does not qualify
	if got := d.detectPage(a4(frag("חתימה", 440, 700, 40))); len(got) != 0 {
		t.Errorf("Keyword without underline should yield nothing, got %d", len(got))
	}
	// keyword too far, no short text to fall back on
	page := a4(
		frag("חתימה", 550, 700, 40),
		frag("__________", 60, 700, 120),
	)
	if got := d.detectPage(page); len(got) != 0 {
		t.Errorf("Out-of-range keyword should yield nothing, got %d", len(got))
	}
}

func TestDetectPage_UnderlineWidthThreshold(t *testing.T) {
	d := New()
	// long run of dashes but rendered narrower than the layout minimum
	page := a4(
		frag("חתימה", 340, 700, 40),
		frag("--------", 300, 700, 20),
	)
	if got := d.detectPage(page); len(got) != 0 {
		t.Errorf("Narrow underline should be ignored, got %d candidates", len(got))
	}
}

func TestDetectPage_Deterministic(t *testing.T) {
	d := New()
	page := a4(
		frag("חתימת הלקוח", 430, 700, 70),
		frag("__________", 290, 700, 120),
		frag("חתימת העד", 430, 500, 60),
		frag("__________", 290, 500, 120),
	)
	first := d.detectPage(page)
	second := d.detectPage(page)
	if !reflect.DeepEqual(first, second) {
		t.Error("Detection is not deterministic for identical input")
	}
	if len(first) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(first))
	}
}

func TestDedupe_KeepsFirst(t *testing.T) {
	d := New()
	cands := []Candidate{
		{PageNum: 1, X: 100, Y: 200, SignerLabel: "a"},
		{PageNum: 1, X: 105, Y: 206, SignerLabel: "b"}, // within threshold
		{PageNum: 1, X: 400, Y: 200, SignerLabel: "c"},
		{PageNum: 2, X: 100, Y: 200, SignerLabel: "d"}, // other page
	}
	out := d.dedupe(cands)
	if len(out) != 3 {
		t.Fatalf("Expected 3 after dedupe, got %d", len(out))
	}
	if out[0].SignerLabel != "a" || out[1].SignerLabel != "c" || out[2].SignerLabel != "d" {
		t.Errorf("Dedupe kept wrong candidates: %+v", out)
	}
}

func TestDisambiguateLabels_TopToBottom(t *testing.T) {
	cands := []Candidate{
		{PageNum: 1, Y: 500, SignerLabel: "חתימה"},
		{PageNum: 1, Y: 100, SignerLabel: "חתימה"},
		{PageNum: 1, Y: 300, SignerLabel: "אחר"},
	}
	disambiguateLabels(cands)
	if cands[1].SignerLabel != "חתימה 1" {
		t.Errorf("Topmost duplicate should be index 1, got %q", cands[1].SignerLabel)
	}
	if cands[0].SignerLabel != "חתימה 2" {
		t.Errorf("Lower duplicate should be index 2, got %q", cands[0].SignerLabel)
	}
	if cands[2].SignerLabel != "אחר" {
		t.Errorf("Unique label must stay untouched, got %q", cands[2].SignerLabel)
	}
}
