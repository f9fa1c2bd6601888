package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"signflow/backend/internal/logging"
	"signflow/backend/pkg/models"
)

func testRequest(workflowID, documentID, requestedBy string, order int) *models.SignatureRequest {
	return &models.SignatureRequest{
		ID:              uuid.New().String(),
		WorkflowID:      workflowID,
		DocumentID:      documentID,
		RequestedBy:     requestedBy,
		Title:           "Consulting Agreement",
		SignerEmail:     "signer@example.com",
		SignerName:      "Test Signer",
		Order:           order,
		IsRequired:      true,
		Status:          models.RequestStatusInvited,
		WorkflowStatus:  models.WorkflowStatusPending,
		InvitationToken: uuid.New().String(),
	}
}

func TestPostgresRepository(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatal(err)
	}

	store := NewPostgres(pool, logging.NewLogger())
	docs := NewPostgresDocuments(pool)

	requesterID := uuid.New().String()
	signerID := uuid.New().String()
	documentID := uuid.New().String()

	_, err = pool.Exec(ctx,
		"INSERT INTO users (id, email, first_name, last_name) VALUES ($1, $2, $3, $4), ($5, $6, $7, $8)",
		requesterID, "Requester@Example.com", "Rita", "Requester",
		signerID, "signer@example.com", "Test", "Signer")
	require.NoError(t, err)
	_, err = pool.Exec(ctx,
		"INSERT INTO documents (id, owner_id, title, workflow_state, extracted_text) VALUES ($1, $2, $3, $4, $5)",
		documentID, requesterID, "Consulting Agreement", "none", "the agreed terms")
	require.NoError(t, err)

	t.Run("CreateWorkflow and read back", func(t *testing.T) {
		workflowID := uuid.New().String()
		first := testRequest(workflowID, documentID, requesterID, 1)
		second := testRequest(workflowID, documentID, requesterID, 2)
		second.SignerEmail = "second@example.com"

		require.NoError(t, store.CreateWorkflow(ctx, []*models.SignatureRequest{first, second}))

		got, err := store.Get(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
		assert.Equal(t, models.RequestStatusInvited, got.Status)
		assert.Equal(t, models.WorkflowStatusPending, got.WorkflowStatus)
		assert.False(t, got.CreatedAt.IsZero())

		listed, err := store.ListRequests(ctx, workflowID)
		require.NoError(t, err)
		require.Len(t, listed, 2)
		assert.Equal(t, 1, listed[0].Order)
		assert.Equal(t, 2, listed[1].Order)
	})

	t.Run("CreateWorkflow is atomic", func(t *testing.T) {
		workflowID := uuid.New().String()
		first := testRequest(workflowID, documentID, requesterID, 1)
		clash := testRequest(workflowID, documentID, requesterID, 1)

		err := store.CreateWorkflow(ctx, []*models.SignatureRequest{first, clash})
		require.Error(t, err)

		listed, err := store.ListRequests(ctx, workflowID)
		require.NoError(t, err)
		assert.Empty(t, listed)
	})

	t.Run("Get unknown id", func(t *testing.T) {
		_, err := store.Get(ctx, uuid.New().String())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("MarkSigned transitions once", func(t *testing.T) {
		workflowID := uuid.New().String()
		req := testRequest(workflowID, documentID, requesterID, 1)
		require.NoError(t, store.CreateWorkflow(ctx, []*models.SignatureRequest{req}))

		comments := "looks good"
		upd := SignedUpdate{
			RequestID:         req.ID,
			BindSignerID:      signerID,
			SignedAt:          time.Now().UTC(),
			SignatureImageURL: "s3://bucket/sig",
			CertificateURL:    "s3://bucket/cert",
			IPAddress:         "203.0.113.7",
			UserAgent:         "test-agent",
			Fields:            models.FieldsPatch{Comments: &comments},
		}
		require.NoError(t, store.MarkSigned(ctx, upd))

		got, err := store.Get(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusSigned, got.Status)
		require.NotNil(t, got.SignerID)
		assert.Equal(t, signerID, *got.SignerID)
		require.NotNil(t, got.SignedAt)
		require.NotNil(t, got.Fields.Comments)
		assert.Equal(t, comments, *got.Fields.Comments)

		// The same transition again finds no INVITED row.
		assert.ErrorIs(t, store.MarkSigned(ctx, upd), ErrConflict)
	})

	t.Run("MarkSigned keeps an existing binding", func(t *testing.T) {
		workflowID := uuid.New().String()
		req := testRequest(workflowID, documentID, requesterID, 1)
		req.SignerID = &signerID
		require.NoError(t, store.CreateWorkflow(ctx, []*models.SignatureRequest{req}))

		require.NoError(t, store.MarkSigned(ctx, SignedUpdate{
			RequestID:         req.ID,
			BindSignerID:      uuid.New().String(),
			SignedAt:          time.Now().UTC(),
			SignatureImageURL: "s3://bucket/sig",
			CertificateURL:    "s3://bucket/cert",
		}))

		got, err := store.Get(ctx, req.ID)
		require.NoError(t, err)
		require.NotNil(t, got.SignerID)
		assert.Equal(t, signerID, *got.SignerID)
	})

	t.Run("CancelWorkflow declines open records", func(t *testing.T) {
		workflowID := uuid.New().String()
		first := testRequest(workflowID, documentID, requesterID, 1)
		second := testRequest(workflowID, documentID, requesterID, 2)
		require.NoError(t, store.CreateWorkflow(ctx, []*models.SignatureRequest{first, second}))

		require.NoError(t, store.CancelWorkflow(ctx, workflowID, "terms rejected", time.Now().UTC()))

		listed, err := store.ListRequests(ctx, workflowID)
		require.NoError(t, err)
		for _, r := range listed {
			assert.Equal(t, models.RequestStatusDeclined, r.Status)
			assert.Equal(t, models.WorkflowStatusCancelled, r.WorkflowStatus)
			require.NotNil(t, r.DeclineReason)
			assert.Equal(t, "terms rejected", *r.DeclineReason)
		}
	})

	t.Run("CancelWorkflow refuses signed workflows", func(t *testing.T) {
		workflowID := uuid.New().String()
		first := testRequest(workflowID, documentID, requesterID, 1)
		second := testRequest(workflowID, documentID, requesterID, 2)
		require.NoError(t, store.CreateWorkflow(ctx, []*models.SignatureRequest{first, second}))
		require.NoError(t, store.MarkSigned(ctx, SignedUpdate{
			RequestID:         first.ID,
			BindSignerID:      signerID,
			SignedAt:          time.Now().UTC(),
			SignatureImageURL: "s3://bucket/sig",
			CertificateURL:    "s3://bucket/cert",
		}))

		err := store.CancelWorkflow(ctx, workflowID, "too late", time.Now().UTC())
		assert.ErrorIs(t, err, ErrConflict)

		got, err := store.Get(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusInvited, got.Status)
	})

	t.Run("CancelWorkflow waits out an in-flight sign", func(t *testing.T) {
		workflowID := uuid.New().String()
		first := testRequest(workflowID, documentID, requesterID, 1)
		second := testRequest(workflowID, documentID, requesterID, 2)
		require.NoError(t, store.CreateWorkflow(ctx, []*models.SignatureRequest{first, second}))

		// Hold a signing transaction open on the first record, then fire
		// the cancel. The cancel must block on the row lock and, once the
		// sign commits, refuse to touch the workflow.
		tx, err := pool.Begin(ctx)
		require.NoError(t, err)
		tag, err := tx.Exec(ctx, `
			UPDATE signature_requests SET
				status = 'SIGNED', signed_at = now(), signer_id = $2, updated_at = now()
			WHERE id = $1 AND status = 'INVITED'`,
			first.ID, signerID)
		require.NoError(t, err)
		require.EqualValues(t, 1, tag.RowsAffected())

		cancelErr := make(chan error, 1)
		go func() {
			cancelErr <- store.CancelWorkflow(ctx, workflowID, "raced", time.Now().UTC())
		}()

		time.Sleep(200 * time.Millisecond)
		require.NoError(t, tx.Commit(ctx))
		assert.ErrorIs(t, <-cancelErr, ErrConflict)

		got, err := store.Get(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusSigned, got.Status)
		got, err = store.Get(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusInvited, got.Status)
		assert.Equal(t, models.WorkflowStatusPending, got.WorkflowStatus)
	})

	t.Run("MarkSigned waits out an in-flight cancel", func(t *testing.T) {
		workflowID := uuid.New().String()
		req := testRequest(workflowID, documentID, requesterID, 1)
		require.NoError(t, store.CreateWorkflow(ctx, []*models.SignatureRequest{req}))

		tx, err := pool.Begin(ctx)
		require.NoError(t, err)
		_, err = tx.Exec(ctx,
			"SELECT status FROM signature_requests WHERE workflow_id = $1 FOR UPDATE", workflowID)
		require.NoError(t, err)
		_, err = tx.Exec(ctx, `
			UPDATE signature_requests SET
				status = 'DECLINED', workflow_status = 'CANCELLED', updated_at = now()
			WHERE workflow_id = $1`, workflowID)
		require.NoError(t, err)

		signErr := make(chan error, 1)
		go func() {
			signErr <- store.MarkSigned(ctx, SignedUpdate{
				RequestID:         req.ID,
				BindSignerID:      signerID,
				SignedAt:          time.Now().UTC(),
				SignatureImageURL: "s3://bucket/sig",
				CertificateURL:    "s3://bucket/cert",
			})
		}()

		time.Sleep(200 * time.Millisecond)
		require.NoError(t, tx.Commit(ctx))
		assert.ErrorIs(t, <-signErr, ErrConflict)

		got, err := store.Get(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusDeclined, got.Status)
	})

	t.Run("SetWorkflowStatus never downgrades terminal states", func(t *testing.T) {
		workflowID := uuid.New().String()
		req := testRequest(workflowID, documentID, requesterID, 1)
		require.NoError(t, store.CreateWorkflow(ctx, []*models.SignatureRequest{req}))

		require.NoError(t, store.SetWorkflowStatus(ctx, workflowID, models.WorkflowStatusCompleted))
		require.NoError(t, store.SetWorkflowStatus(ctx, workflowID, models.WorkflowStatusInProgress))

		got, err := store.Get(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, models.WorkflowStatusCompleted, got.WorkflowStatus)
	})

	t.Run("ClaimCompletion wins once", func(t *testing.T) {
		workflowID := uuid.New().String()

		won, err := store.ClaimCompletion(ctx, workflowID)
		require.NoError(t, err)
		assert.True(t, won)

		won, err = store.ClaimCompletion(ctx, workflowID)
		require.NoError(t, err)
		assert.False(t, won)
	})

	t.Run("ClaimCompletion wins once under contention", func(t *testing.T) {
		workflowID := uuid.New().String()

		var wg sync.WaitGroup
		wins := make(chan bool, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				won, err := store.ClaimCompletion(ctx, workflowID)
				assert.NoError(t, err)
				wins <- won
			}()
		}
		wg.Wait()
		close(wins)

		count := 0
		for won := range wins {
			if won {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})

	t.Run("MergeFields is additive", func(t *testing.T) {
		workflowID := uuid.New().String()
		req := testRequest(workflowID, documentID, requesterID, 1)
		require.NoError(t, store.CreateWorkflow(ctx, []*models.SignatureRequest{req}))

		comments := "first pass"
		require.NoError(t, store.MergeFields(ctx, req.ID, models.FieldsPatch{Comments: &comments}))
		require.NoError(t, store.MergeFields(ctx, req.ID, models.FieldsPatch{
			Notarization: &models.NotarizationInfo{
				NotaryID:    "notary-1",
				Commission:  "TX-2026-00001",
				SealURL:     "s3://bucket/seal",
				NotarizedAt: time.Now().UTC(),
			},
		}))

		got, err := store.Get(ctx, req.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Fields.Comments)
		assert.Equal(t, comments, *got.Fields.Comments)
		require.NotNil(t, got.Fields.Notarization)
		assert.Equal(t, "notary-1", got.Fields.Notarization.NotaryID)
	})

	t.Run("Append and ListEvents", func(t *testing.T) {
		workflowID := uuid.New().String()
		for _, et := range []models.EventType{
			models.EventRequestCreated,
			models.EventInvitationSent,
			models.EventSigned,
		} {
			desc := string(et)
			err := store.Append(ctx, &models.AuditEvent{
				DocumentID:  documentID,
				WorkflowID:  workflowID,
				EventType:   et,
				Description: &desc,
				PerformedBy: &requesterID,
				Metadata:    map[string]any{"source": "test"},
			})
			require.NoError(t, err)
		}

		events, err := store.ListEvents(ctx, workflowID)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, models.EventRequestCreated, events[0].EventType)
		assert.Equal(t, models.EventSigned, events[2].EventType)
		for i, e := range events {
			assert.NotEmpty(t, e.ID)
			assert.False(t, e.CreatedAt.IsZero())
			if i > 0 {
				assert.Greater(t, e.Seq, events[i-1].Seq)
			}
		}
	})

	t.Run("FindByEmail is case-insensitive", func(t *testing.T) {
		u, err := store.FindByEmail(ctx, "requester@example.com")
		require.NoError(t, err)
		assert.Equal(t, requesterID, u.ID)

		_, err = store.FindByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Document access checks", func(t *testing.T) {
		ok, err := docs.HasEditAccess(ctx, documentID, requesterID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = docs.HasEditAccess(ctx, documentID, signerID)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = pool.Exec(ctx,
			"INSERT INTO document_shares (document_id, user_id, permission) VALUES ($1, $2, 'edit')",
			documentID, signerID)
		require.NoError(t, err)

		ok, err = docs.HasEditAccess(ctx, documentID, signerID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Document workflow state", func(t *testing.T) {
		require.NoError(t, docs.SetWorkflowState(ctx, documentID, "completed"))

		doc, err := docs.Get(ctx, documentID)
		require.NoError(t, err)
		assert.Equal(t, "completed", doc.WorkflowState)
	})
}
