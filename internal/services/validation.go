package services

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"signflow/backend/internal/storage"
	"signflow/backend/pkg/models"
)

// ValidateSignature re-verifies a stored signature: signer binding, SIGNED
// state, certificate retrieval, the integrity and structure hooks, and a
// SIGNATURE_VALIDATED audit event. The record itself is never mutated.
func (s *SignatureService) ValidateSignature(ctx context.Context, requestID, signerID string) (*models.ValidationResult, error) {
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.SignerID == nil || *req.SignerID != signerID {
		return nil, models.NewError(models.KindPermissionDenied, "SignerMismatch",
			"caller is not the signer bound to this request")
	}
	if req.Status != models.RequestStatusSigned {
		return nil, models.NewError(models.KindStateConflict, "NotSigned",
			"signature request has not been signed")
	}

	certBytes, err := s.blobs.Get(ctx, storage.Key(req.WorkflowID, req.ID, storage.ArtifactCertificate))
	if err != nil {
		return nil, models.WrapError(models.KindDependencyFailure, "CertificateUnretrievable",
			"failed to retrieve certificate artifact", err)
	}
	var cert models.Certificate
	if err := json.Unmarshal(certBytes, &cert); err != nil {
		return nil, models.WrapError(models.KindDependencyFailure, "CertificateUnreadable",
			"failed to decode certificate artifact", err)
	}

	sigPayload, err := s.blobs.Get(ctx, storage.Key(req.WorkflowID, req.ID, storage.ArtifactSignature))
	if err != nil {
		return nil, models.WrapError(models.KindDependencyFailure, "SignatureUnretrievable",
			"failed to retrieve signature artifact", err)
	}
	sigBytes, err := base64.StdEncoding.DecodeString(string(sigPayload))
	if err != nil {
		return nil, models.WrapError(models.KindDependencyFailure, "SignatureUnreadable",
			"failed to decode stored signature", err)
	}

	doc, err := s.documents.Get(ctx, req.DocumentID)
	if err != nil {
		return nil, models.WrapError(models.KindDependencyFailure, "DocumentLookupFailed",
			"failed to load document for integrity check", err)
	}

	result := &models.ValidationResult{
		Certificate: &cert,
		Timestamp:   s.now().UTC(),
	}
	intact, err := s.hooks.Integrity.CheckIntegrity(ctx, doc, sigBytes, &cert)
	if err != nil {
		return nil, models.WrapError(models.KindDependencyFailure, "IntegrityCheckFailed",
			"integrity check could not run", err)
	}
	result.IntegrityCheck = intact
	result.IsValid = intact

	if err := s.hooks.Certificate.ValidateCertificate(ctx, &cert); err != nil {
		msg := err.Error()
		result.ErrorMessage = &msg
		result.IsValid = false
	} else if !intact {
		msg := "content hashes do not match the stored artifacts"
		result.ErrorMessage = &msg
	}

	desc := "stored signature re-verified"
	if err := s.repo.Append(ctx, &models.AuditEvent{
		DocumentID:  req.DocumentID,
		WorkflowID:  req.WorkflowID,
		SignatureID: &req.ID,
		EventType:   models.EventSignatureValidated,
		Description: &desc,
		PerformedBy: &signerID,
		Metadata: map[string]any{
			"is_valid":        result.IsValid,
			"integrity_check": result.IntegrityCheck,
		},
	}); err != nil {
		s.logger.Error("failed to record SIGNATURE_VALIDATED event for request %s: %v", req.ID, err)
	}

	return result, nil
}

// GenerateAuditTrail builds the compliance report for the workflow that
// requestID belongs to, from the ledger alone.
func (s *SignatureService) GenerateAuditTrail(ctx context.Context, requestID string) (*models.AuditTrail, error) {
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, req.WorkflowID)
	if err != nil {
		return nil, models.WrapError(models.KindDependencyFailure, "LedgerReadFailed",
			"failed to load audit events", err)
	}
	requests, err := s.repo.ListRequests(ctx, req.WorkflowID)
	if err != nil {
		return nil, models.WrapError(models.KindDependencyFailure, "WorkflowReloadFailed",
			"failed to load workflow records", err)
	}

	trail := &models.AuditTrail{
		WorkflowID:          req.WorkflowID,
		DocumentID:          req.DocumentID,
		Entries:             make([]*models.AuditTrailEntry, 0, len(events)),
		TimestampVerified:   true,
		AuditTrailComplete:  true,
		LegalValidity:       legallyValid(requests),
		TechnicalCompliance: technicallyCompliant(events),
		GeneratedAt:         s.now().UTC(),
	}

	for i, e := range events {
		if i > 0 && e.CreatedAt.Before(events[i-1].CreatedAt) {
			trail.TimestampVerified = false
		}
		if e.CreatedAt.IsZero() || e.EventType == "" || !hasActor(e) {
			trail.AuditTrailComplete = false
		}
		trail.Entries = append(trail.Entries, projectEvent(e))
	}
	return trail, nil
}

// legallyValid: the workflow completed, or at least one record is SIGNED.
func legallyValid(requests []*models.SignatureRequest) bool {
	for _, r := range requests {
		if r.WorkflowStatus == models.WorkflowStatusCompleted || r.Status == models.RequestStatusSigned {
			return true
		}
	}
	return false
}

// technicallyCompliant: the ledger holds both the creation and at least
// one signing fact.
func technicallyCompliant(events []*models.AuditEvent) bool {
	var created, signed bool
	for _, e := range events {
		switch e.EventType {
		case models.EventRequestCreated:
			created = true
		case models.EventSigned:
			signed = true
		}
	}
	return created && signed
}

func hasActor(e *models.AuditEvent) bool {
	return e.PerformedBy != nil || e.PerformedByEmail != nil || e.PerformedByName != nil
}

// projectEvent resolves the display actor (name, then email, then
// "system") and defaults missing network context to "unknown".
func projectEvent(e *models.AuditEvent) *models.AuditTrailEntry {
	actor := "system"
	if e.PerformedByName != nil && *e.PerformedByName != "" {
		actor = *e.PerformedByName
	} else if e.PerformedByEmail != nil && *e.PerformedByEmail != "" {
		actor = *e.PerformedByEmail
	}
	ip, userAgent := "unknown", "unknown"
	if e.IPAddress != nil && *e.IPAddress != "" {
		ip = *e.IPAddress
	}
	if e.UserAgent != nil && *e.UserAgent != "" {
		userAgent = *e.UserAgent
	}
	return &models.AuditTrailEntry{
		ID:          e.ID,
		EventType:   e.EventType,
		Description: e.Description,
		Actor:       actor,
		IPAddress:   ip,
		UserAgent:   userAgent,
		Metadata:    e.Metadata,
		CreatedAt:   e.CreatedAt,
	}
}
