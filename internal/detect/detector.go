// Package detect locates probable signature fields inside a PDF's text
// layout and assigns them to signers. The heuristics are layout-based:
// Hebrew signature keywords paired with underline glyph runs.
package detect

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/lexsign-io/lexsigngo/internal/models"
	"github.com/lexsign-io/lexsigngo/internal/pdftext"
)

// Candidate sources
const (
	SourceKeyword  = "keyword"
	SourceFallback = "fallback"
)

// Hebrew signature phrases, most specific first. Order matters: a longer
// phrase must win over its own prefix ("חתימת הלקוח" before "חתימת").
var signatureKeywords = []string{
	"חתימה וחותמת",
	"חתימת המבקש",
	"חתימת המצהיר",
	"חתימת הלקוח",
	"חתימת השוכר",
	"חתימת המשכיר",
	"חתימת העד",
	"חתום כאן",
	"חתימת",
	"חתימה",
	"חתום",
}

// Candidate is one probable signature field. The rectangle lives in the
// reference pixel space (origin top-left); the anchor stays in PDF points
// (origin bottom-left) for signer assignment.
type Candidate struct {
	PageNum int     `json:"pageNum"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`

	SignerLabel string  `json:"signerLabel,omitempty"`
	Confidence  float64 `json:"confidence"`
	Source      string  `json:"source"`

	AnchorX float64 `json:"-"`
	AnchorY float64 `json:"-"`

	// Populated by the assigner; SignerIndex is -1 until then
	SignerIndex  int     `json:"signerIndex"`
	SignerName   string  `json:"signerName,omitempty"`
	SignerUserID *string `json:"signerUserId,omitempty"`
}

// Detector runs signature-spot detection with a fixed geometry policy.
type Detector struct {
	defaults SpotDefaults
}

// New creates a detector with the production defaults.
func New() *Detector {
	return &Detector{defaults: Defaults()}
}

// Detect extracts the text layout and returns candidate spots, ordered by
// page, then top-to-bottom, then left-to-right. When signer descriptors are
// supplied the candidates come back assigned; with no signers they are
// returned untouched (SignerIndex -1) and the caller distributes them later.
func (d *Detector) Detect(ctx context.Context, pdfBytes []byte, signers []models.Signer) ([]Candidate, error) {
	pages, err := pdftext.Extract(ctx, pdfBytes)
	if err != nil {
		return nil, err
	}

	var cands []Candidate
	for _, page := range pages {
		cands = append(cands, d.detectPage(page)...)
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.PageNum != b.PageNum {
			return a.PageNum < b.PageNum
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Confidence > b.Confidence
	})

	cands = d.dedupe(cands)
	disambiguateLabels(cands)

	if len(signers) > 0 {
		AssignSigners(cands, pages, signers)
	}
	return cands, nil
}

// line is a group of fragments sharing a baseline (y rounded to half point)
type line struct {
	y     float64
	frags []lineFrag
}

type lineFrag struct {
	norm string
	x, y float64
	w, h float64
}

// buildLines groups a page's fragments into horizontal lines, normalizing
// the text of each fragment once.
func buildLines(page pdftext.Page) []line {
	byY := map[float64]*line{}
	var keys []float64
	for _, f := range page.Fragments {
		key := math.Round(f.Y*2) / 2
		ln, ok := byY[key]
		if !ok {
			ln = &line{y: key}
			byY[key] = ln
			keys = append(keys, key)
		}
		ln.frags = append(ln.frags, lineFrag{
			norm: normalizeText(f.Text),
			x:    f.X, y: f.Y, w: f.Width, h: f.Height,
		})
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(keys))) // top of page first
	lines := make([]line, 0, len(keys))
	for _, k := range keys {
		ln := byY[k]
		sort.SliceStable(ln.frags, func(i, j int) bool { return ln.frags[i].x < ln.frags[j].x })
		lines = append(lines, *ln)
	}
	return lines
}

func (d *Detector) detectPage(page pdftext.Page) []Candidate {
	var out []Candidate
	for _, ln := range buildLines(page) {
		var underlines, keywords, shortTexts []lineFrag
		for _, f := range ln.frags {
			switch {
			case isUnderlineText(f.norm, d.defaults.UnderlineMinRun) && f.w >= d.defaults.UnderlineMinWidthPt:
				underlines = append(underlines, f)
			case matchKeyword(f.norm, d.defaults.KeywordSubstringMax) != "":
				keywords = append(keywords, f)
			case f.norm != "" && hasHebrew(f.norm) && utf8.RuneCountInString(f.norm) <= d.defaults.ShortTextMaxRunes:
				shortTexts = append(shortTexts, f)
			}
		}

		// a signature section needs an underline plus an anchor
		if len(underlines) == 0 || (len(keywords) == 0 && len(shortTexts) == 0) {
			continue
		}

		usedKeyword := make([]bool, len(keywords))
		for _, u := range underlines {
			label, source := d.pickLabel(u, keywords, usedKeyword, shortTexts)
			if source == "" {
				continue
			}
			out = append(out, d.buildCandidate(page, u, label, source))
		}
	}
	return out
}

// pickLabel pairs an underline with the nearest unused keyword by
// horizontal-center distance, falling back to the nearest short-text
// fragment when no keyword is close enough.
func (d *Detector) pickLabel(u lineFrag, keywords []lineFrag, used []bool, shortTexts []lineFrag) (string, string) {
	uCenter := u.x + u.w/2

	best := -1
	bestDist := math.Inf(1)
	for i, k := range keywords {
		if used[i] {
			continue
		}
		dist := math.Abs(uCenter - (k.x + k.w/2))
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best >= 0 && bestDist <= d.defaults.PairMaxCenterDistPt {
		used[best] = true
		return keywords[best].norm, SourceKeyword
	}

	best = -1
	bestDist = math.Inf(1)
	for i, s := range shortTexts {
		dist := math.Abs(uCenter - (s.x + s.w/2))
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best >= 0 {
		return shortTexts[best].norm, SourceFallback
	}
	return "", ""
}

// buildCandidate converts the underline anchor from PDF point space to the
// reference pixel space and applies the spot geometry policy.
func (d *Detector) buildCandidate(page pdftext.Page, u lineFrag, label, source string) Candidate {
	def := d.defaults
	scale := def.BaseRenderWidth / page.Width
	pageHeightPx := page.Height * scale

	x := (u.x + def.XOffsetPt) * scale
	y := (page.Height-u.y)*scale + def.YOffsetPx
	w := clamp(u.w*scale, def.SpotMinWidthPx, def.SpotMaxWidthPx)
	h := def.SpotHeightPx

	x = clamp(x, 0, math.Max(0, def.BaseRenderWidth-w))
	y = clamp(y, 0, math.Max(0, pageHeightPx-h))

	confidence := 0.9
	if source == SourceFallback {
		confidence = 0.5
	}

	return Candidate{
		PageNum:     page.Num,
		X:           math.Round(x),
		Y:           math.Round(y),
		Width:       math.Round(w),
		Height:      h,
		SignerLabel: label,
		Confidence:  confidence,
		Source:      source,
		AnchorX:     u.x,
		AnchorY:     u.y,
		SignerIndex: -1,
	}
}

// dedupe drops candidates whose top-left corner sits within the pixel
// threshold of an earlier candidate on the same page (first wins).
func (d *Detector) dedupe(cands []Candidate) []Candidate {
	out := cands[:0]
	for _, c := range cands {
		dup := false
		for _, kept := range out {
			if kept.PageNum == c.PageNum &&
				math.Abs(kept.X-c.X) < d.defaults.DedupePx &&
				math.Abs(kept.Y-c.Y) < d.defaults.DedupePx {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

// disambiguateLabels appends a running index to labels that resolved
// identically on the same page, ordered top-to-bottom.
func disambiguateLabels(cands []Candidate) {
	type key struct {
		page  int
		label string
	}
	groups := map[key][]int{}
	for i, c := range cands {
		if c.SignerLabel == "" {
			continue
		}
		k := key{c.PageNum, c.SignerLabel}
		groups[k] = append(groups[k], i)
	}
	for _, idxs := range groups {
		if len(idxs) < 2 {
			continue
		}
		sort.SliceStable(idxs, func(a, b int) bool { return cands[idxs[a]].Y < cands[idxs[b]].Y })
		for n, i := range idxs {
			cands[i].SignerLabel = fmt.Sprintf("%s %d", cands[i].SignerLabel, n+1)
		}
	}
}

// matchKeyword returns the first (most specific) signature keyword matching
// the normalized text: whole word, colon-suffixed word, or, for short
// strings, substring.
func matchKeyword(norm string, substringMax int) string {
	if norm == "" || !hasHebrew(norm) {
		return ""
	}
	short := utf8.RuneCountInString(norm) < substringMax
	for _, kw := range signatureKeywords {
		if wordMatch(norm, kw) || wordMatch(norm, kw+":") {
			return kw
		}
		if short && strings.Contains(norm, kw) {
			return kw
		}
	}
	return ""
}

// wordMatch reports whether kw appears in s bounded by spaces or the string
// edges. kw may itself contain a space ("חתום כאן").
func wordMatch(s, kw string) bool {
	if s == kw {
		return true
	}
	for i := 0; i+len(kw) <= len(s); i++ {
		if s[i:i+len(kw)] != kw {
			continue
		}
		beforeOK := i == 0 || s[i-1] == ' '
		afterOK := i+len(kw) == len(s) || s[i+len(kw)] == ' '
		if beforeOK && afterOK {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
