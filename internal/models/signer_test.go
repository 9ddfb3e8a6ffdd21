package models

import (
	"encoding/json"
	"testing"
)

func TestSigner_UnmarshalMixedShapes(t *testing.T) {
	var list []Signer
	payload := `["דוד כהן", {"name": "רות לוי", "userId": "u-2"}, {"Name": "יוסי מזרחי", "user_id": "u-3"}]`
	if err := json.Unmarshal([]byte(payload), &list); err != nil {
		t.Fatalf("Failed to unmarshal signers: %v", err)
	}

	if len(list) != 3 {
		t.Fatalf("Expected 3 signers, got %d", len(list))
	}
	if list[0].Name != "דוד כהן" || list[0].UserID != nil {
		t.Errorf("Bare string signer parsed wrong: %+v", list[0])
	}
	if list[1].Name != "רות לוי" || list[1].UserID == nil || *list[1].UserID != "u-2" {
		t.Errorf("Object signer parsed wrong: %+v", list[1])
	}
	if list[2].Name != "יוסי מזרחי" || list[2].UserID == nil || *list[2].UserID != "u-3" {
		t.Errorf("Legacy-cased signer parsed wrong: %+v", list[2])
	}
}

func TestSigner_NameTokens(t *testing.T) {
	s := Signer{Name: "  דוד   כהן "}
	tokens := s.NameTokens()
	if len(tokens) != 2 || tokens[0] != "דוד" || tokens[1] != "כהן" {
		t.Errorf("Expected [דוד כהן], got %v", tokens)
	}
}
