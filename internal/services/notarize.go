package services

import (
	"context"

	"signflow/backend/internal/signature"
	"signflow/backend/internal/storage"
	"signflow/backend/pkg/models"
)

// NotarizeInput carries the parameters of a notarize call.
type NotarizeInput struct {
	RequestID  string
	NotaryID   string
	Seal       string
	Commission string
	Witnesses  []string
}

// NotarizeDocument attaches notarial metadata to a signature request,
// independent of the main signing path: credential validation, seal blob
// storage, a fields patch, the aggregate COMPLETED transition, and a
// NOTARIZED event.
func (s *SignatureService) NotarizeDocument(ctx context.Context, in NotarizeInput) (*models.SignatureRequest, error) {
	req, err := s.getRequest(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	if req.WorkflowStatus == models.WorkflowStatusCancelled {
		return nil, models.NewError(models.KindStateConflict, "WorkflowCancelled",
			"cancelled workflows cannot be notarized")
	}

	if err := s.hooks.Notary.ValidateNotary(ctx, in.NotaryID, in.Commission); err != nil {
		return nil, err
	}

	_, sealBytes, err := signature.DecodePayload(in.Seal)
	if err != nil {
		return nil, err
	}
	sealKey := storage.Key(req.WorkflowID, req.ID, storage.ArtifactSeal)
	sealURL, err := s.blobs.Put(ctx, sealKey, sealBytes, "application/octet-stream", map[string]string{
		"workflow_id": req.WorkflowID,
		"request_id":  req.ID,
		"notary_id":   in.NotaryID,
	})
	if err != nil {
		return nil, models.WrapError(models.KindDependencyFailure, "BlobStoreFailed",
			"failed to store notary seal", err)
	}

	now := s.now().UTC()
	patch := models.FieldsPatch{
		Notarization: &models.NotarizationInfo{
			NotaryID:    in.NotaryID,
			Commission:  in.Commission,
			SealURL:     sealURL,
			Witnesses:   in.Witnesses,
			NotarizedAt: now,
		},
	}
	if err := s.repo.MergeFields(ctx, req.ID, patch); err != nil {
		return nil, models.WrapError(models.KindDependencyFailure, "FieldsMergeFailed",
			"failed to attach notarization metadata", err)
	}

	if err := s.repo.SetWorkflowStatus(ctx, req.WorkflowID, models.WorkflowStatusCompleted); err != nil {
		return nil, models.WrapError(models.KindDependencyFailure, "StatusUpdateFailed",
			"failed to update aggregate status", err)
	}

	desc := "document notarized by notary " + in.NotaryID
	if err := s.repo.Append(ctx, &models.AuditEvent{
		DocumentID:  req.DocumentID,
		WorkflowID:  req.WorkflowID,
		SignatureID: &req.ID,
		EventType:   models.EventNotarized,
		Description: &desc,
		PerformedBy: &in.NotaryID,
		Metadata: map[string]any{
			"commission": in.Commission,
			"witnesses":  in.Witnesses,
		},
	}); err != nil {
		s.logger.Error("failed to record NOTARIZED event for request %s: %v", req.ID, err)
	}

	return s.repo.Get(ctx, req.ID)
}
