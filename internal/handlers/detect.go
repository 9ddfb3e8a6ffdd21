package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/lexsign-io/lexsigngo/internal/models"
)

// detectSpots runs signature-field detection on an uploaded PDF. Multipart:
// "document" (pdf) plus an optional "signers" JSON form field. Detection is
// CPU-bound and idempotent; it runs under the configured timeout and aborts
// early when the client disconnects.
func (r *Router) detectSpots(w http.ResponseWriter, req *http.Request) {
	pdf, err := readMultipartDocument(req)
	if err != nil {
		respondError(w, err)
		return
	}

	var signers []models.Signer
	if err := decodeFormJSON(req, "signers", &signers); err != nil {
		respondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), r.cfg.Signing.DetectTimeout)
	defer cancel()

	spots, err := r.detector.Detect(ctx, pdf, signers)
	if err != nil {
		respondError(w, err)
		return
	}

	log.Printf("🔍 Detection: %d candidate spots, %d signers", len(spots), len(signers))
	respondJSON(w, http.StatusOK, map[string]interface{}{"spots": spots})
}
