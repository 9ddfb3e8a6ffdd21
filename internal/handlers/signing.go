package handlers

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lexsign-io/lexsigngo/internal/apperr"
	"github.com/lexsign-io/lexsigngo/internal/middleware"
	"github.com/lexsign-io/lexsigngo/internal/models"
	"github.com/lexsign-io/lexsigngo/internal/workflow"
)

const maxUploadBytes = 25 << 20 // 25MB

// readMultipartDocument pulls the "document" file part plus named JSON
// parts out of a multipart upload.
func readMultipartDocument(req *http.Request) ([]byte, error) {
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, "invalid multipart payload", err)
	}
	f, _, err := req.FormFile("document")
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, "document file is required", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, "failed reading document", err)
	}
	return data, nil
}

func decodeFormJSON(req *http.Request, field string, v interface{}) error {
	raw := req.FormValue(field)
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return apperr.Wrap(apperr.CodeValidation, "invalid "+field+" payload", err)
	}
	return nil
}

// uploadForSigning creates a signing file from a multipart payload:
// "document" (pdf), "meta", "spots", "signers" (JSON form fields).
func (r *Router) uploadForSigning(w http.ResponseWriter, req *http.Request) {
	sc, ok := middleware.SignerFrom(req)
	if !ok {
		respondError(w, apperr.New(apperr.CodeForbidden, "missing signer context"))
		return
	}

	pdf, err := readMultipartDocument(req)
	if err != nil {
		respondError(w, err)
		return
	}

	var meta struct {
		ClientID   string  `json:"clientId"`
		CaseID     *string `json:"caseId,omitempty"`
		FileName   string  `json:"fileName"`
		RequireOtp *bool   `json:"requireOtp,omitempty"`
	}
	var spots []workflow.SpotInput
	var signers []models.Signer
	if err := decodeFormJSON(req, "meta", &meta); err != nil {
		respondError(w, err)
		return
	}
	if err := decodeFormJSON(req, "spots", &spots); err != nil {
		respondError(w, err)
		return
	}
	if err := decodeFormJSON(req, "signers", &signers); err != nil {
		respondError(w, err)
		return
	}

	fileID, err := r.svc.Upload(workflow.UploadInput{
		LawyerID:   sc.UserID,
		ClientID:   meta.ClientID,
		CaseID:     meta.CaseID,
		FileName:   meta.FileName,
		PDF:        pdf,
		Spots:      spots,
		Signers:    signers,
		RequireOtp: meta.RequireOtp,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	log.Printf("📄 Signing file created: %s (%s) by %s", fileID, meta.FileName, sc.UserID)
	respondJSON(w, http.StatusCreated, map[string]string{"signingFileId": fileID})
}

func (r *Router) getSigningFile(w http.ResponseWriter, req *http.Request) {
	file, err := r.svc.Get(mux.Vars(req)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, file)
}

func (r *Router) getDocument(w http.ResponseWriter, req *http.Request) {
	sc, _ := middleware.SignerFrom(req)
	data, fileName, err := r.svc.ViewDocument(mux.Vars(req)["id"], sc)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+fileName+`"`)
	w.Write(data)
}

func (r *Router) signSpot(w http.ResponseWriter, req *http.Request) {
	sc, _ := middleware.SignerFrom(req)
	vars := mux.Vars(req)

	var body struct {
		ImageBase64 string `json:"imageBase64,omitempty"`
	}
	if req.Body != nil {
		_ = json.NewDecoder(req.Body).Decode(&body)
	}
	var image []byte
	if body.ImageBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(body.ImageBase64)
		if err != nil {
			respondError(w, apperr.New(apperr.CodeValidation, "signature image is not valid base64"))
			return
		}
		image = decoded
	}

	result, err := r.svc.SignSpot(vars["id"], vars["spotId"], sc, image)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (r *Router) rejectFile(w http.ResponseWriter, req *http.Request) {
	sc, _ := middleware.SignerFrom(req)

	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, apperr.New(apperr.CodeValidation, "invalid JSON payload"))
		return
	}

	if err := r.svc.Reject(mux.Vars(req)["id"], body.Reason, sc); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": models.FileStatusRejected})
}

func (r *Router) reuploadFile(w http.ResponseWriter, req *http.Request) {
	sc, _ := middleware.SignerFrom(req)

	pdf, err := readMultipartDocument(req)
	if err != nil {
		respondError(w, err)
		return
	}
	var meta struct {
		FileName string `json:"fileName"`
	}
	var spots []workflow.SpotInput
	var signers []models.Signer
	if err := decodeFormJSON(req, "meta", &meta); err != nil {
		respondError(w, err)
		return
	}
	if err := decodeFormJSON(req, "spots", &spots); err != nil {
		respondError(w, err)
		return
	}
	if err := decodeFormJSON(req, "signers", &signers); err != nil {
		respondError(w, err)
		return
	}

	err = r.svc.Reupload(mux.Vars(req)["id"], workflow.ReuploadInput{
		FileName: meta.FileName,
		PDF:      pdf,
		Spots:    spots,
		Signers:  signers,
	}, sc)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": models.FileStatusPending})
}

func (r *Router) updatePolicy(w http.ResponseWriter, req *http.Request) {
	sc, _ := middleware.SignerFrom(req)

	var body struct {
		RequireOtp         bool `json:"requireOtp"`
		WaiverAcknowledged bool `json:"waiverAcknowledged"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, apperr.New(apperr.CodeValidation, "invalid JSON payload"))
		return
	}

	if err := r.svc.UpdatePolicy(mux.Vars(req)["id"], body.RequireOtp, body.WaiverAcknowledged, sc); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"requireOtp": body.RequireOtp})
}

func (r *Router) submitConsent(w http.ResponseWriter, req *http.Request) {
	sc, _ := middleware.SignerFrom(req)

	var body struct {
		ContentHash string `json:"contentHash"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, apperr.New(apperr.CodeValidation, "invalid JSON payload"))
		return
	}

	record, err := r.svc.SubmitConsent(mux.Vars(req)["id"], sc, body.ContentHash)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, record)
}

func (r *Router) requestOtp(w http.ResponseWriter, req *http.Request) {
	sc, _ := middleware.SignerFrom(req)

	code, err := r.svc.RequestOtp(mux.Vars(req)["id"], sc)
	if err != nil {
		respondError(w, err)
		return
	}

	// Delivery (SMS/email) is handled outside this service. Outside
	// production the code is echoed so local flows can be exercised
	// end to end.
	resp := map[string]interface{}{"sent": true}
	if !r.cfg.IsProduction() {
		resp["code"] = code
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (r *Router) verifyOtp(w http.ResponseWriter, req *http.Request) {
	sc, _ := middleware.SignerFrom(req)

	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, apperr.New(apperr.CodeValidation, "invalid JSON payload"))
		return
	}

	if err := r.svc.VerifyOtp(mux.Vars(req)["id"], sc, body.Code); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

func (r *Router) verifyAuditChain(w http.ResponseWriter, req *http.Request) {
	broken, total, err := r.svc.VerifyChain(mux.Vars(req)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"intact":           broken < 0,
		"events":           total,
		"firstBrokenIndex": broken,
	})
}

func (r *Router) userDeletable(w http.ResponseWriter, req *http.Request) {
	if err := r.svc.AssertUserDeletable(mux.Vars(req)["id"]); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deletable": true})
}

func (r *Router) subscribeNotifications(w http.ResponseWriter, req *http.Request) {
	sc, ok := middleware.SignerFrom(req)
	if !ok {
		respondError(w, apperr.New(apperr.CodeForbidden, "missing signer context"))
		return
	}
	if err := r.hub.Subscribe(w, req, sc.UserID); err != nil {
		log.Printf("⚠️ websocket upgrade failed: %v", err)
	}
}
