package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"signflow/backend/pkg/models"
)

// CertificateConfig carries the deployment-fixed certificate parameters.
type CertificateConfig struct {
	Issuer    string
	Algorithm string
}

// ContentHash returns the hex-encoded SHA-256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewCertificate builds the compliance certificate for one signature: a
// fresh serial, a one-year validity window starting now, and content
// hashes binding the document text and the normalized signature bytes.
func NewCertificate(cfg CertificateConfig, signerID, documentText string, signatureBytes []byte, now time.Time) *models.Certificate {
	return &models.Certificate{
		Issuer:        cfg.Issuer,
		Subject:       signerID,
		ValidFrom:     now,
		ValidTo:       now.AddDate(1, 0, 0),
		SerialNumber:  uuid.New().String(),
		Algorithm:     cfg.Algorithm,
		DocumentHash:  ContentHash([]byte(documentText)),
		SignatureHash: ContentHash(signatureBytes),
		Timestamp:     now,
	}
}
