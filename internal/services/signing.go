package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"signflow/backend/internal/repository"
	"signflow/backend/internal/signature"
	"signflow/backend/internal/storage"
	"signflow/backend/pkg/models"
)

// SignInput carries the parameters of a sign call.
type SignInput struct {
	RequestID   string
	SignerID    string
	Data        models.SignatureData
	Comments    *string
	Attachments []models.Attachment
}

// SignDocument executes one signer's sign operation: state and identity
// checks, payload normalization, certificate generation, artifact
// persistence, the conditional INVITED -> SIGNED transition, audit
// events, and the completion cascade. The record transition is a
// compare-and-swap: concurrent attempts on the same record cannot both
// succeed.
func (s *SignatureService) SignDocument(ctx context.Context, in SignInput) (*models.SignatureRequest, error) {
	req, err := s.getRequest(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	if err := checkSignable(req, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.checkSignerIdentity(ctx, req, in.SignerID); err != nil {
		return nil, err
	}

	normalized, sigBytes, err := signature.DecodePayload(in.Data.Signature)
	if err != nil {
		return nil, err
	}
	signedAt, err := signature.ParseTimestamp(in.Data.Timestamp)
	if err != nil {
		return nil, err
	}
	if in.Data.Type == "digital" {
		if err := s.hooks.Digital.CheckDigital(ctx, in.Data, sigBytes); err != nil {
			return nil, err
		}
	}

	doc, err := s.documents.Get(ctx, req.DocumentID)
	if err != nil {
		return nil, models.WrapError(models.KindDependencyFailure, "DocumentLookupFailed",
			"failed to load document for hashing", err)
	}
	var docText string
	if doc.ExtractedText != nil {
		docText = *doc.ExtractedText
	}

	now := s.now().UTC()
	cert := signature.NewCertificate(s.certConfig(), in.SignerID, docText, sigBytes, now)

	sigURL, certURL, err := s.storeArtifacts(ctx, req, normalized, cert)
	if err != nil {
		return nil, err
	}

	upd := repository.SignedUpdate{
		RequestID:         req.ID,
		BindSignerID:      in.SignerID,
		SignedAt:          signedAt.UTC(),
		SignatureImageURL: sigURL,
		CertificateURL:    certURL,
		IPAddress:         in.Data.IPAddress,
		UserAgent:         in.Data.UserAgent,
		Coordinates:       in.Data.Coordinates,
		LocationInfo:      in.Data.Location,
		Fields: models.FieldsPatch{
			Comments:    in.Comments,
			Attachments: in.Attachments,
		},
	}
	if err := s.repo.MarkSigned(ctx, upd); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, models.NewError(models.KindStateConflict, "AlreadySigned",
				"signature request is no longer open")
		}
		return nil, models.WrapError(models.KindDependencyFailure, "SignUpdateFailed",
			"failed to update signature request", err)
	}

	s.appendSigningEvents(ctx, req, in, cert)

	if err := s.cascadeCompletion(ctx, req.WorkflowID); err != nil {
		return nil, err
	}

	updated, err := s.repo.Get(ctx, req.ID)
	if err != nil {
		return nil, models.WrapError(models.KindDependencyFailure, "RequestReloadFailed",
			"failed to reload signature request", err)
	}
	return updated, nil
}

func (s *SignatureService) getRequest(ctx context.Context, id string) (*models.SignatureRequest, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewError(models.KindNotFound, "RequestNotFound", "signature request does not exist")
		}
		return nil, models.WrapError(models.KindDependencyFailure, "RequestLookupFailed",
			"failed to load signature request", err)
	}
	return req, nil
}

// checkSignable enforces the terminal-state and expiry rules, in order.
func checkSignable(req *models.SignatureRequest, now time.Time) error {
	switch req.Status {
	case models.RequestStatusSigned:
		return models.NewError(models.KindStateConflict, "AlreadySigned", "signature request is already signed")
	case models.RequestStatusDeclined:
		return models.NewError(models.KindStateConflict, "RequestDeclined", "signature request was declined")
	}
	if req.InvitationExpiresAt != nil && req.InvitationExpiresAt.Before(now) {
		return models.NewError(models.KindStateConflict, "InvitationExpired", "invitation has expired")
	}
	return nil
}

// checkSignerIdentity matches the caller against the record: the bound
// signer id if one exists, otherwise a case-insensitive email match
// against the resolved caller identity.
func (s *SignatureService) checkSignerIdentity(ctx context.Context, req *models.SignatureRequest, signerID string) error {
	if req.SignerID != nil {
		if *req.SignerID != signerID {
			return models.NewError(models.KindPermissionDenied, "SignerMismatch",
				"caller is not the signer bound to this request")
		}
		return nil
	}
	user, err := s.repo.FindByID(ctx, signerID)
	if err != nil {
		return models.NewError(models.KindPermissionDenied, "EmailMismatch",
			"caller identity could not be resolved")
	}
	if !strings.EqualFold(user.Email, req.SignerEmail) {
		return models.NewError(models.KindPermissionDenied, "EmailMismatch",
			"caller email does not match the designated signer")
	}
	return nil
}

// storeArtifacts persists the signature bytes and certificate JSON to blob
// storage under deterministic keys. A blob failure is fatal to the sign
// attempt: the artifacts are load-bearing.
func (s *SignatureService) storeArtifacts(ctx context.Context, req *models.SignatureRequest, normalized string, cert *models.Certificate) (string, string, error) {
	sigKey := storage.Key(req.WorkflowID, req.ID, storage.ArtifactSignature)
	sigURL, err := s.blobs.Put(ctx, sigKey, []byte(normalized), "text/plain", map[string]string{
		"workflow_id": req.WorkflowID,
		"request_id":  req.ID,
	})
	if err != nil {
		return "", "", models.WrapError(models.KindDependencyFailure, "BlobStoreFailed",
			"failed to store signature artifact", err)
	}

	certJSON, err := json.Marshal(cert)
	if err != nil {
		return "", "", models.WrapError(models.KindDependencyFailure, "CertificateEncodeFailed",
			"failed to encode certificate", err)
	}
	certKey := storage.Key(req.WorkflowID, req.ID, storage.ArtifactCertificate)
	certURL, err := s.blobs.Put(ctx, certKey, certJSON, "application/json", map[string]string{
		"workflow_id": req.WorkflowID,
		"request_id":  req.ID,
	})
	if err != nil {
		return "", "", models.WrapError(models.KindDependencyFailure, "BlobStoreFailed",
			"failed to store certificate artifact", err)
	}
	return sigURL, certURL, nil
}

// appendSigningEvents records SIGNED and SIGNATURE_VALIDATED as two
// distinct events: received and confirmed well-formed are different
// compliance facts. Append failures after the durable record update are
// logged, not propagated.
func (s *SignatureService) appendSigningEvents(ctx context.Context, req *models.SignatureRequest, in SignInput, cert *models.Certificate) {
	desc := "document signed by " + req.SignerEmail
	if err := s.repo.Append(ctx, &models.AuditEvent{
		DocumentID:       req.DocumentID,
		WorkflowID:       req.WorkflowID,
		SignatureID:      &req.ID,
		EventType:        models.EventSigned,
		Description:      &desc,
		PerformedBy:      &in.SignerID,
		PerformedByEmail: &req.SignerEmail,
		PerformedByName:  &req.SignerName,
		IPAddress:        &in.Data.IPAddress,
		UserAgent:        &in.Data.UserAgent,
		Metadata: map[string]any{
			"signature_type": in.Data.Type,
			"serial_number":  cert.SerialNumber,
			"coordinates":    in.Data.Coordinates,
			"location":       in.Data.Location,
		},
	}); err != nil {
		s.logger.Error("failed to record SIGNED event for request %s: %v", req.ID, err)
	}

	validatedDesc := "signature payload validated"
	if err := s.repo.Append(ctx, &models.AuditEvent{
		DocumentID:  req.DocumentID,
		WorkflowID:  req.WorkflowID,
		SignatureID: &req.ID,
		EventType:   models.EventSignatureValidated,
		Description: &validatedDesc,
		PerformedBy: &in.SignerID,
		Metadata: map[string]any{
			"is_valid":       true,
			"document_hash":  cert.DocumentHash,
			"signature_hash": cert.SignatureHash,
		},
	}); err != nil {
		s.logger.Error("failed to record SIGNATURE_VALIDATED event for request %s: %v", req.ID, err)
	}
}

// cascadeCompletion recomputes the aggregate state after a record change.
// The workflow is complete iff every required record is SIGNED. The
// completion claim guarantees that of two signers finishing
// near-simultaneously, exactly one triggers finalization.
func (s *SignatureService) cascadeCompletion(ctx context.Context, workflowID string) error {
	requests, err := s.repo.ListRequests(ctx, workflowID)
	if err != nil {
		return models.WrapError(models.KindDependencyFailure, "WorkflowReloadFailed",
			"failed to reload workflow records", err)
	}

	status := models.WorkflowStatusInProgress
	if workflowComplete(requests) {
		status = models.WorkflowStatusCompleted
	}
	if err := s.repo.SetWorkflowStatus(ctx, workflowID, status); err != nil {
		return models.WrapError(models.KindDependencyFailure, "StatusUpdateFailed",
			"failed to update aggregate status", err)
	}
	if status != models.WorkflowStatusCompleted {
		return nil
	}

	won, err := s.repo.ClaimCompletion(ctx, workflowID)
	if err != nil {
		return models.WrapError(models.KindDependencyFailure, "CompletionClaimFailed",
			"failed to claim workflow completion", err)
	}
	if !won {
		return nil
	}
	s.finalize(ctx, workflowID, requests)
	return nil
}

// workflowComplete reports whether every required record is SIGNED.
// Optional signers do not hold completion back.
func workflowComplete(requests []*models.SignatureRequest) bool {
	for _, r := range requests {
		if r.IsRequired && r.Status != models.RequestStatusSigned {
			return false
		}
	}
	return true
}

// finalize runs the completion side effects for the claim winner: the
// single WORKFLOW_COMPLETED event, the best-effort document status flip,
// and the finalization hook.
func (s *SignatureService) finalize(ctx context.Context, workflowID string, requests []*models.SignatureRequest) {
	if len(requests) == 0 {
		return
	}
	first := requests[0]
	desc := fmt.Sprintf("all %d required signature(s) collected", countRequired(requests))
	if err := s.repo.Append(ctx, &models.AuditEvent{
		DocumentID:  first.DocumentID,
		WorkflowID:  workflowID,
		EventType:   models.EventWorkflowCompleted,
		Description: &desc,
		PerformedBy: &first.RequestedBy,
	}); err != nil {
		s.logger.Error("failed to record WORKFLOW_COMPLETED event for workflow %s: %v", workflowID, err)
	}

	if err := s.documents.SetWorkflowState(ctx, first.DocumentID, "completed"); err != nil {
		s.logger.Warn("failed to flip document %s workflow state: %v", first.DocumentID, err)
	}

	if err := s.hooks.Finalizer.Finalize(ctx, workflowID, requests); err != nil {
		s.logger.Warn("finalization hook failed for workflow %s: %v", workflowID, err)
	}
}

func countRequired(requests []*models.SignatureRequest) int {
	n := 0
	for _, r := range requests {
		if r.IsRequired {
			n++
		}
	}
	return n
}
