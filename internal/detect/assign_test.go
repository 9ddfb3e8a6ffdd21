package detect

import (
	"testing"

	"github.com/lexsign-io/lexsigngo/internal/models"
	"github.com/lexsign-io/lexsigngo/internal/pdftext"
)

func signer(name string) models.Signer { return models.Signer{Name: name} }

func cand(page int, ax, ay float64) Candidate {
	return Candidate{PageNum: page, AnchorX: ax, AnchorY: ay, SignerIndex: -1}
}

func TestAssignSigners_Exhaustive(t *testing.T) {
	cands := []Candidate{cand(1, 300, 700), cand(1, 300, 500), cand(1, 300, 300)}
	pages := []pdftext.Page{a4()} // no text to match against
	signers := []models.Signer{signer("דוד כהן"), signer("רות לוי")}

	AssignSigners(cands, pages, signers)

	for i, c := range cands {
		if c.SignerIndex < 0 || c.SignerIndex >= len(signers) {
			t.Fatalf("Candidate %d unassigned: index %d", i, c.SignerIndex)
		}
		if c.SignerName != signers[c.SignerIndex].Name {
			t.Errorf("Candidate %d name mismatch: %q", i, c.SignerName)
		}
	}
	// nothing matched, so order follows the signer list round-robin
	if cands[0].SignerIndex != 0 || cands[1].SignerIndex != 1 || cands[2].SignerIndex != 0 {
		t.Errorf("Expected round-robin 0,1,0, got %d,%d,%d",
			cands[0].SignerIndex, cands[1].SignerIndex, cands[2].SignerIndex)
	}
}

func TestAssignSigners_LabelMatch(t *testing.T) {
	// each underline has the signer's name printed on its line
	page := a4(
		frag("דוד כהן", 430, 700, 50),
		frag("__________", 290, 700, 120),
		frag("רות לוי", 430, 500, 50),
		frag("__________", 290, 500, 120),
	)
	cands := []Candidate{cand(1, 290, 700), cand(1, 290, 500)}
	signers := []models.Signer{signer("דוד כהן"), signer("רות לוי")}

	AssignSigners(cands, []pdftext.Page{page}, signers)

	if cands[0].SignerIndex != 0 {
		t.Errorf("Top spot should belong to the first signer, got %d", cands[0].SignerIndex)
	}
	if cands[1].SignerIndex != 1 {
		t.Errorf("Bottom spot should belong to the second signer, got %d", cands[1].SignerIndex)
	}
}

func TestAssignSigners_SharedTokensDegradeToRoundRobin(t *testing.T) {
	// identical names leave no unique token to match on
	page := a4(
		frag("__________", 290, 700, 120),
		frag("__________", 290, 500, 120),
	)
	cands := []Candidate{cand(1, 290, 700), cand(1, 290, 500)}
	signers := []models.Signer{signer("דוד כהן"), signer("דוד כהן")}

	AssignSigners(cands, []pdftext.Page{page}, signers)

	if cands[0].SignerIndex != 0 || cands[1].SignerIndex != 1 {
		t.Errorf("Expected round-robin 0,1, got %d,%d", cands[0].SignerIndex, cands[1].SignerIndex)
	}
}

func TestAssignSigners_NearbyFallback(t *testing.T) {
	// the name sits two lines above the underline, outside the label
	// window but inside the nearby one
	page := a4(
		frag("רות לוי", 430, 500, 50),
		frag("__________", 290, 400, 120),
	)
	cands := []Candidate{cand(1, 290, 400)}
	signers := []models.Signer{signer("דוד כהן"), signer("רות לוי")}

	AssignSigners(cands, []pdftext.Page{page}, signers)

	if cands[0].SignerIndex != 1 {
		t.Errorf("Expected nearby-text match to second signer, got %d", cands[0].SignerIndex)
	}
	if cands[0].SignerName != "רות לוי" {
		t.Errorf("Signer name not propagated: %q", cands[0].SignerName)
	}
}

func TestUniqueTokens_SharedFamilyNameExcluded(t *testing.T) {
	signers := []models.Signer{signer("דוד כהן"), signer("משה כהן")}
	unique := uniqueTokens(signers)

	if len(unique[0]) != 1 || unique[0][0] != "דוד" {
		t.Errorf("First signer unique tokens: %v", unique[0])
	}
	if len(unique[1]) != 1 || unique[1][0] != "משה" {
		t.Errorf("Second signer unique tokens: %v", unique[1])
	}
}
