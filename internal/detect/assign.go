package detect

import (
	"math"
	"strings"

	"github.com/lexsign-io/lexsigngo/internal/models"
	"github.com/lexsign-io/lexsigngo/internal/pdftext"
)

// AssignSigners maps every candidate to one of the signers, in place. Three
// passes: page-level label matching on tokens unique to one signer, a
// wider nearby-text fallback, and finally round-robin over the signer list
// in candidate order. With N signers every candidate ends up with a
// SignerIndex in [0, N).
//
// Known accuracy limit, preserved deliberately: when signers share all name
// tokens (identical first and last names) no token is unique, both passes
// find nothing and assignment degrades to round-robin.
func AssignSigners(cands []Candidate, pages []pdftext.Page, signers []models.Signer) {
	if len(signers) == 0 || len(cands) == 0 {
		return
	}

	unique := uniqueTokens(signers)
	labels := collectLabelCandidates(pages, unique)

	for i := range cands {
		if idx, ok := matchByLabel(&cands[i], labels); ok {
			setSigner(&cands[i], idx, signers)
		}
	}
	for i := range cands {
		if cands[i].SignerIndex >= 0 {
			continue
		}
		if idx, ok := matchNearby(&cands[i], pages, signers, unique); ok {
			setSigner(&cands[i], idx, signers)
		}
	}

	rr := 0
	for i := range cands {
		if cands[i].SignerIndex >= 0 {
			continue
		}
		setSigner(&cands[i], rr%len(signers), signers)
		rr++
	}
}

func setSigner(c *Candidate, idx int, signers []models.Signer) {
	c.SignerIndex = idx
	c.SignerName = signers[idx].Name
	c.SignerUserID = signers[idx].UserID
}

// uniqueTokens returns, per signer, the name tokens owned by that signer
// alone. A token shared by two signers (a common family name) is ambiguous
// and excluded entirely.
func uniqueTokens(signers []models.Signer) [][]string {
	count := map[string]int{}
	for _, s := range signers {
		seen := map[string]bool{}
		for _, t := range s.NameTokens() {
			t = normalizeText(t)
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			count[t]++
		}
	}
	out := make([][]string, len(signers))
	for i, s := range signers {
		for _, t := range s.NameTokens() {
			t = normalizeText(t)
			if t != "" && count[t] == 1 {
				out[i] = append(out[i], t)
			}
		}
	}
	return out
}

// labelCandidate is one occurrence of a signer-unique token in the page
// text, anchored at the containing fragment's rightmost x (Hebrew reads
// right to left, so the fragment's right edge is its visual start).
type labelCandidate struct {
	page      int
	signerIdx int
	x, y      float64
}

func collectLabelCandidates(pages []pdftext.Page, unique [][]string) []labelCandidate {
	var out []labelCandidate
	for _, page := range pages {
		for _, ln := range buildLines(page) {
			// joined line text, right to left
			parts := make([]string, 0, len(ln.frags))
			for i := len(ln.frags) - 1; i >= 0; i-- {
				if ln.frags[i].norm != "" {
					parts = append(parts, ln.frags[i].norm)
				}
			}
			joined := strings.Join(parts, " ")
			if joined == "" {
				continue
			}
			for si, tokens := range unique {
				for _, tok := range tokens {
					if !wordMatch(joined, tok) && !strings.Contains(joined, tok) {
						continue
					}
					// anchor at the fragment that carries the token
					for _, f := range ln.frags {
						if strings.Contains(f.norm, tok) {
							out = append(out, labelCandidate{
								page:      page.Num,
								signerIdx: si,
								x:         f.x + f.w,
								y:         f.y,
							})
							break
						}
					}
					break
				}
			}
		}
	}
	return out
}

// matchByLabel scores every same-page label candidate by
// 10*|dy| + |dx| and accepts the best when its vertical distance is inside
// the acceptance window.
func matchByLabel(c *Candidate, labels []labelCandidate) (int, bool) {
	best := -1
	bestScore := math.Inf(1)
	bestDy := math.Inf(1)
	for i, l := range labels {
		if l.page != c.PageNum {
			continue
		}
		dy := math.Abs(l.y - c.AnchorY)
		score := 10*dy + math.Abs(l.x-c.AnchorX)
		if score < bestScore {
			best, bestScore, bestDy = i, score, dy
		}
	}
	if best < 0 || bestDy > labelMatchMaxDy {
		return 0, false
	}
	return labels[best].signerIdx, true
}

// matchNearby scans all fragments within a wider vertical window of the
// spot and scores partial name-part matches. Token weight decays with
// position (first-name tokens outrank later ones) and doubles when the
// token is unique to one signer. If exactly one signer's name parts are
// present that signer wins unconditionally; otherwise the best score wins.
func matchNearby(c *Candidate, pages []pdftext.Page, signers []models.Signer, unique [][]string) (int, bool) {
	var page *pdftext.Page
	for i := range pages {
		if pages[i].Num == c.PageNum {
			page = &pages[i]
			break
		}
	}
	if page == nil {
		return 0, false
	}

	uniqueSet := make([]map[string]bool, len(signers))
	for i, toks := range unique {
		uniqueSet[i] = map[string]bool{}
		for _, t := range toks {
			uniqueSet[i][t] = true
		}
	}

	scores := make([]float64, len(signers))
	for _, f := range page.Fragments {
		if math.Abs(f.Y-c.AnchorY) > nearbyWindow {
			continue
		}
		norm := normalizeText(f.Text)
		if norm == "" {
			continue
		}
		for si, s := range signers {
			for pos, tok := range s.NameTokens() {
				tok = normalizeText(tok)
				if tok == "" || !strings.Contains(norm, tok) {
					continue
				}
				w := 1.0 / float64(pos+1)
				if uniqueSet[si][tok] {
					w *= 2
				}
				scores[si] += w
			}
		}
	}

	present := 0
	best := -1
	bestScore := 0.0
	for i, sc := range scores {
		if sc <= 0 {
			continue
		}
		present++
		if sc > bestScore {
			best, bestScore = i, sc
		}
	}
	if present == 0 {
		return 0, false
	}
	return best, true
}
