package models

import (
	"encoding/json"
	"strings"
)

// Signer is the descriptor used during spot detection and assignment. It is
// not persisted as its own entity; it materializes as AssignedSignerID and
// SignerName on spots and as notification recipients.
//
// Clients historically sent either a bare name string or an object with
// name/userId in varying casings. The mixed shapes are normalized here, at
// the API boundary, exactly once; everything past this type deals with a
// single struct.
type Signer struct {
	Name   string  `json:"name"`
	UserID *string `json:"userId,omitempty"`
}

// UnmarshalJSON accepts "name", {"name": ..., "userId": ...} and the legacy
// casings {"Name": ...} / {"user_id": ...}.
func (s *Signer) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		s.Name = strings.TrimSpace(str)
		s.UserID = nil
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		switch strings.ToLower(strings.ReplaceAll(k, "_", "")) {
		case "name":
			var name string
			if err := json.Unmarshal(v, &name); err != nil {
				return err
			}
			s.Name = strings.TrimSpace(name)
		case "userid":
			var id string
			if err := json.Unmarshal(v, &id); err != nil {
				return err
			}
			if id != "" {
				s.UserID = &id
			}
		}
	}
	return nil
}

// NameTokens splits the signer's display name into non-empty tokens.
func (s Signer) NameTokens() []string {
	fields := strings.Fields(s.Name)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
