package services

import (
	"context"
	"strings"
	"time"

	"signflow/backend/internal/logging"
	"signflow/backend/internal/signature"
	"signflow/backend/pkg/models"
)

// DefaultHooks returns the built-in extension point implementations:
// hash-based integrity, structural certificate checks, commission-format
// notary validation, and notification-driven finalization.
func DefaultHooks(notifier Notifier, logger *logging.Logger) Hooks {
	return Hooks{
		Integrity:   hashIntegrityChecker{},
		Certificate: structuralCertValidator{},
		Notary:      commissionNotaryValidator{},
		Digital:     basicDigitalChecker{},
		Finalizer:   &notifyFinalizer{notifier: notifier, logger: logger},
	}
}

// hashIntegrityChecker recomputes the content hashes recorded in the
// certificate from the document text and stored signature bytes.
type hashIntegrityChecker struct{}

func (hashIntegrityChecker) CheckIntegrity(_ context.Context, doc *models.Document, sig []byte, cert *models.Certificate) (bool, error) {
	var text string
	if doc != nil && doc.ExtractedText != nil {
		text = *doc.ExtractedText
	}
	if cert.DocumentHash != signature.ContentHash([]byte(text)) {
		return false, nil
	}
	if cert.SignatureHash != signature.ContentHash(sig) {
		return false, nil
	}
	return true, nil
}

// structuralCertValidator checks the certificate's shape, not its
// cryptographic provenance.
type structuralCertValidator struct{}

func (structuralCertValidator) ValidateCertificate(_ context.Context, cert *models.Certificate) error {
	switch {
	case cert.SerialNumber == "":
		return models.NewError(models.KindInvalidInput, "InvalidCertificate", "certificate has no serial number")
	case cert.Issuer == "" || cert.Subject == "":
		return models.NewError(models.KindInvalidInput, "InvalidCertificate", "certificate is missing issuer or subject")
	case cert.DocumentHash == "" || cert.SignatureHash == "":
		return models.NewError(models.KindInvalidInput, "InvalidCertificate", "certificate is missing content hashes")
	case !cert.ValidTo.After(cert.ValidFrom):
		return models.NewError(models.KindInvalidInput, "InvalidCertificate", "certificate validity window is empty")
	}
	return nil
}

// commissionNotaryValidator accepts any notary with a non-empty,
// plausibly-formatted commission number.
type commissionNotaryValidator struct{}

func (commissionNotaryValidator) ValidateNotary(_ context.Context, notaryID, commission string) error {
	if notaryID == "" || strings.TrimSpace(commission) == "" {
		return models.NewError(models.KindPermissionDenied, "InvalidNotaryCredentials",
			"notary id and commission number are required")
	}
	return nil
}

// basicDigitalChecker is the default for the "digital" signature type.
// It only requires a non-trivial payload; deployments replace it with
// real PKI verification.
type basicDigitalChecker struct{}

func (basicDigitalChecker) CheckDigital(_ context.Context, _ models.SignatureData, payload []byte) error {
	if len(payload) == 0 {
		return models.NewError(models.KindInvalidInput, "InvalidSignaturePayload",
			"digital signature payload is empty")
	}
	return nil
}

// notifyFinalizer sends completion notifications to every signer and the
// requester. Compliance-certificate generation beyond the per-signature
// certificates lives behind this hook in deployments that need it.
type notifyFinalizer struct {
	notifier Notifier
	logger   *logging.Logger
}

func (f *notifyFinalizer) Finalize(ctx context.Context, workflowID string, requests []*models.SignatureRequest) error {
	if len(requests) == 0 {
		return nil
	}
	title := requests[0].Title
	notified := map[string]bool{requests[0].RequestedBy: false}
	for _, r := range requests {
		if r.SignerID != nil {
			notified[*r.SignerID] = false
		}
	}
	for userID := range notified {
		n := Notification{
			Title: "Signing completed",
			Body:  "All required signatures for \"" + title + "\" have been collected.",
			Data: map[string]any{
				"workflow_id":  workflowID,
				"completed_at": time.Now().UTC().Format(time.RFC3339),
			},
		}
		if _, err := f.notifier.Send(ctx, userID, n); err != nil {
			f.logger.Warn("completion notification failed for user %s: %v", userID, err)
		}
	}
	return nil
}
