package services

import (
	"context"

	"signflow/backend/pkg/models"
)

// Notification is the payload handed to the external notification
// dispatcher.
type Notification struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

// Notifier dispatches a notification to a user. Callers treat Send as
// fire-and-forget: failures are logged, never propagated.
type Notifier interface {
	Send(ctx context.Context, userID string, n Notification) (bool, error)
}

// IntegrityChecker correlates a document, its stored signature bytes, and
// the certificate during re-verification.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context, doc *models.Document, signature []byte, cert *models.Certificate) (bool, error)
}

// CertificateValidator structurally validates a stored certificate.
type CertificateValidator interface {
	ValidateCertificate(ctx context.Context, cert *models.Certificate) error
}

// NotaryValidator validates notary credentials before notarization.
type NotaryValidator interface {
	ValidateNotary(ctx context.Context, notaryID, commission string) error
}

// DigitalChecker applies the type-specific checks for "digital"
// signatures. Deployments supply real PKI verification here; the engine
// only provides the extension point.
type DigitalChecker interface {
	CheckDigital(ctx context.Context, data models.SignatureData, payload []byte) error
}

// Finalizer runs the completion side effects for a workflow: completion
// notifications and compliance-certificate generation. Invoked exactly
// once per workflow, by the caller that wins the completion claim.
type Finalizer interface {
	Finalize(ctx context.Context, workflowID string, requests []*models.SignatureRequest) error
}

// Hooks bundles the engine's extension points.
type Hooks struct {
	Integrity   IntegrityChecker
	Certificate CertificateValidator
	Notary      NotaryValidator
	Digital     DigitalChecker
	Finalizer   Finalizer
}
