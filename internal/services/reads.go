package services

import (
	"context"

	"signflow/backend/pkg/models"
)

// GetRequest returns one signature request.
func (s *SignatureService) GetRequest(ctx context.Context, id string) (*models.SignatureRequest, error) {
	return s.getRequest(ctx, id)
}

// GetWorkflow returns a workflow summary with its member records. The
// aggregate status is recomputed from the records, never trusted as a
// stored field.
func (s *SignatureService) GetWorkflow(ctx context.Context, workflowID string) (*models.WorkflowSummary, error) {
	requests, err := s.repo.ListRequests(ctx, workflowID)
	if err != nil {
		return nil, models.WrapError(models.KindDependencyFailure, "WorkflowReloadFailed",
			"failed to load workflow records", err)
	}
	if len(requests) == 0 {
		return nil, models.NewError(models.KindNotFound, "WorkflowNotFound", "workflow does not exist")
	}
	first := requests[0]
	return &models.WorkflowSummary{
		WorkflowID:  workflowID,
		DocumentID:  first.DocumentID,
		RequestedBy: first.RequestedBy,
		Title:       first.Title,
		Status:      aggregateStatus(requests),
		DueDate:     first.DueDate,
		Requests:    requests,
	}, nil
}

// aggregateStatus derives the workflow-level state from its records. A
// stored COMPLETED covers notarization, which completes the workflow
// without requiring every record to be signed.
func aggregateStatus(requests []*models.SignatureRequest) models.WorkflowStatus {
	anySigned, storedCompleted := false, false
	for _, r := range requests {
		if r.WorkflowStatus == models.WorkflowStatusCancelled {
			return models.WorkflowStatusCancelled
		}
		if r.WorkflowStatus == models.WorkflowStatusCompleted {
			storedCompleted = true
		}
		if r.Status == models.RequestStatusSigned {
			anySigned = true
		}
	}
	if storedCompleted || (anySigned && workflowComplete(requests)) {
		return models.WorkflowStatusCompleted
	}
	if anySigned {
		return models.WorkflowStatusInProgress
	}
	return models.WorkflowStatusPending
}
