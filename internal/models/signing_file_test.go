package models

import (
	"testing"
	"time"
)

func TestSigningFile_AllRequiredSigned(t *testing.T) {
	cases := []struct {
		name  string
		spots []SignatureSpot
		want  bool
	}{
		{"no spots", nil, false},
		{"required unsigned", []SignatureSpot{{Required: true}}, false},
		{"required signed", []SignatureSpot{{Required: true, IsSigned: true}}, true},
		{
			"optional spot does not block",
			[]SignatureSpot{{Required: true, IsSigned: true}, {Required: false}},
			true,
		},
		{
			"one of two required missing",
			[]SignatureSpot{{Required: true, IsSigned: true}, {Required: true}},
			false,
		},
	}
	for _, tc := range cases {
		f := SigningFile{Spots: tc.spots}
		if got := f.AllRequiredSigned(); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSignatureSpot_ClearSignature(t *testing.T) {
	signedAt := time.Now().UTC()
	key := "signatures/spot-1.png"
	s := SignatureSpot{
		Required:        true,
		IsSigned:        true,
		SignedAt:        &signedAt,
		SignatureKey:    &key,
		SignerIP:        "10.0.0.5",
		SignerUserAgent: "agent",
		SignerSessionID: "sess-1",
	}

	s.ClearSignature()

	if s.IsSigned || s.SignedAt != nil || s.SignatureKey != nil {
		t.Errorf("Signature state not cleared: %+v", s)
	}
	if s.SignerIP != "" || s.SignerUserAgent != "" || s.SignerSessionID != "" {
		t.Errorf("Signer forensics not cleared: %+v", s)
	}
	if !s.Required {
		t.Error("Clearing must not touch the spot definition")
	}
}
