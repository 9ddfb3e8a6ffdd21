package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lexsign-io/lexsigngo/internal/evidence"
	"github.com/lexsign-io/lexsigngo/internal/middleware"
)

// getEvidence streams the full evidence package as a zip bundle.
func (r *Router) getEvidence(w http.ResponseWriter, req *http.Request) {
	sc, _ := middleware.SignerFrom(req)
	fileID := mux.Vars(req)["id"]

	bundle, err := r.assembler.BuildBundle(fileID, sc.UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="evidence-`+fileID+`.zip"`)
	w.Write(bundle)
}

// getCertificate renders the one-page completion certificate.
func (r *Router) getCertificate(w http.ResponseWriter, req *http.Request) {
	fileID := mux.Vars(req)["id"]

	manifest, err := r.assembler.BuildManifest(fileID)
	if err != nil {
		respondError(w, err)
		return
	}
	pdf, err := evidence.RenderCertificate(manifest)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="certificate-`+fileID+`.pdf"`)
	w.Write(pdf)
}
