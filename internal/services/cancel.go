package services

import (
	"context"
	"errors"

	"signflow/backend/internal/repository"
	"signflow/backend/pkg/models"
)

// CancelSignatureRequest cancels the whole workflow the request belongs
// to. The rule is workflow-scoped: cancellation is rejected if any record
// in the workflow is already SIGNED, not just the targeted one.
func (s *SignatureService) CancelSignatureRequest(ctx context.Context, requestID, cancelledBy, reason string) error {
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return err
	}

	requests, err := s.repo.ListRequests(ctx, req.WorkflowID)
	if err != nil {
		return models.WrapError(models.KindDependencyFailure, "WorkflowReloadFailed",
			"failed to load workflow records", err)
	}
	for _, r := range requests {
		if r.Status == models.RequestStatusSigned {
			return models.NewError(models.KindStateConflict, "AlreadySigned",
				"workflow has a signed record and can no longer be cancelled")
		}
	}

	// The store re-checks the signed guard under row locks, so a sign
	// that commits between the read above and this write still blocks
	// the cancel.
	if err := s.repo.CancelWorkflow(ctx, req.WorkflowID, reason, s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return models.NewError(models.KindStateConflict, "AlreadySigned",
				"workflow has a signed record and can no longer be cancelled")
		}
		return models.WrapError(models.KindDependencyFailure, "CancelFailed",
			"failed to cancel workflow", err)
	}

	desc := "signing workflow cancelled: " + reason
	if err := s.repo.Append(ctx, &models.AuditEvent{
		DocumentID:  req.DocumentID,
		WorkflowID:  req.WorkflowID,
		SignatureID: &req.ID,
		EventType:   models.EventCancelled,
		Description: &desc,
		PerformedBy: &cancelledBy,
		Metadata:    map[string]any{"reason": reason},
	}); err != nil {
		s.logger.Error("failed to record CANCELLED event for workflow %s: %v", req.WorkflowID, err)
	}

	for _, r := range requests {
		if r.SignerID == nil {
			continue
		}
		_, err := s.notifier.Send(ctx, *r.SignerID, Notification{
			Title: "Signing cancelled",
			Body:  "The signing request for \"" + r.Title + "\" was cancelled.",
			Data:  map[string]any{"workflow_id": r.WorkflowID, "reason": reason},
		})
		if err != nil {
			s.logger.Warn("cancellation notification failed for request %s: %v", r.ID, err)
		}
	}
	return nil
}
