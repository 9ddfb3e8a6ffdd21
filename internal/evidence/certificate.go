package evidence

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"
)

// RenderCertificate draws the one-page human-readable completion
// certificate: sender, signers, consent and OTP posture, integrity hashes,
// and a QR code carrying the bundle hash for quick verification.
func RenderCertificate(m *Manifest) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(18, 16, 18)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 10, "Certificate of Completion", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated %s", m.GeneratedAt.Format(time.RFC3339)), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	section := func(title string) {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 7, title, "B", 1, "L", false, 0, "")
		pdf.Ln(1)
	}
	row := func(label, value string) {
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(48, 5.5, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Courier", "", 8)
		pdf.MultiCell(0, 5.5, value, "", "L", false)
	}

	section("Document")
	row("File", m.FileName)
	row("Signing file ID", m.SigningFileID)
	row("Status", m.Status)
	if m.SignedAt != nil {
		row("Signed at", m.SignedAt.Format(time.RFC3339))
	}
	pdf.Ln(3)

	section("Signers")
	for _, spot := range m.Spots {
		state := "unsigned"
		if spot.IsSigned && spot.SignedAt != nil {
			state = "signed " + spot.SignedAt.Format(time.RFC3339)
		}
		name := spot.SignerName
		if name == "" {
			name = "(primary client)"
		}
		row(fmt.Sprintf("Page %d", spot.PageNum), fmt.Sprintf("%s - %s", name, state))
	}
	pdf.Ln(3)

	section("Policy")
	row("OTP required", fmt.Sprintf("%t", m.RequireOtp))
	if m.OtpWaiverAcknowledged {
		row("OTP waiver", "explicitly acknowledged")
	}
	row("Policy version", m.PolicyVersion)
	row("Consents recorded", fmt.Sprintf("%d", len(m.Consents)))
	pdf.Ln(3)

	section("Integrity")
	row("Original SHA-256", m.OriginalHash)
	row("Presented SHA-256", m.PresentedHash)
	if m.SignedHash != "" {
		row("Signed SHA-256", m.SignedHash)
	}
	row("Audit events", fmt.Sprintf("%d (chain intact: %t)", len(m.Events), m.ChainIntact))
	row("Bundle hash", m.BundleHash)

	// QR with the verification payload
	qrPng, err := qrcode.Encode(fmt.Sprintf("lexsign:%s:%s", m.SigningFileID, m.BundleHash), qrcode.Medium, 256)
	if err == nil {
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("verify-qr", opts, bytes.NewReader(qrPng))
		pdf.ImageOptions("verify-qr", 170, 255, 24, 24, false, opts, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
