package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"signflow/backend/internal/logging"
	"signflow/backend/internal/repository"
	"signflow/backend/pkg/models"
)

// fakeRepo is an in-memory Repository with the same conditional-update
// semantics as the Postgres implementation.
type fakeRepo struct {
	mu          sync.Mutex
	requests    map[string]*models.SignatureRequest
	events      []*models.AuditEvent
	users       map[string]*models.User
	completions map[string]bool
	seq         int64
	clock       time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		requests:    make(map[string]*models.SignatureRequest),
		users:       make(map[string]*models.User),
		completions: make(map[string]bool),
		clock:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRepo) addUser(u *models.User) { f.users[u.ID] = u }

func (f *fakeRepo) CreateWorkflow(_ context.Context, requests []*models.SignatureRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range requests {
		cp := *r
		f.requests[r.ID] = &cp
	}
	return nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (*models.SignatureRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRepo) ListRequests(_ context.Context, workflowID string) ([]*models.SignatureRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SignatureRequest
	for _, r := range f.requests {
		if r.WorkflowID == workflowID {
			cp := *r
			out = append(out, &cp)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Order < out[i].Order {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) MarkSigned(_ context.Context, upd repository.SignedUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[upd.RequestID]
	if !ok || r.Status != models.RequestStatusInvited {
		return repository.ErrConflict
	}
	if r.SignerID == nil {
		id := upd.BindSignerID
		r.SignerID = &id
	}
	r.Status = models.RequestStatusSigned
	signedAt := upd.SignedAt
	r.SignedAt = &signedAt
	r.SignatureImageURL = &upd.SignatureImageURL
	r.CertificateURL = &upd.CertificateURL
	r.IPAddress = &upd.IPAddress
	r.UserAgent = &upd.UserAgent
	r.Coordinates = upd.Coordinates
	r.LocationInfo = upd.LocationInfo
	r.Fields.ApplyPatch(upd.Fields)
	return nil
}

func (f *fakeRepo) CancelWorkflow(_ context.Context, workflowID, reason string, declinedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := false
	for _, r := range f.requests {
		if r.WorkflowID == workflowID && r.Status == models.RequestStatusSigned {
			return repository.ErrConflict
		}
	}
	for _, r := range f.requests {
		if r.WorkflowID != workflowID {
			continue
		}
		matched = true
		r.Status = models.RequestStatusDeclined
		r.WorkflowStatus = models.WorkflowStatusCancelled
		at := declinedAt
		r.DeclinedAt = &at
		reasonCp := reason
		r.DeclineReason = &reasonCp
	}
	if !matched {
		return repository.ErrConflict
	}
	return nil
}

func (f *fakeRepo) SetWorkflowStatus(_ context.Context, workflowID string, status models.WorkflowStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.WorkflowID != workflowID {
			continue
		}
		if r.WorkflowStatus == models.WorkflowStatusCompleted || r.WorkflowStatus == models.WorkflowStatusCancelled {
			continue
		}
		r.WorkflowStatus = status
	}
	return nil
}

func (f *fakeRepo) ClaimCompletion(_ context.Context, workflowID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completions[workflowID] {
		return false, nil
	}
	f.completions[workflowID] = true
	return true, nil
}

func (f *fakeRepo) MergeFields(_ context.Context, requestID string, patch models.FieldsPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[requestID]
	if !ok {
		return repository.ErrNotFound
	}
	r.Fields.ApplyPatch(patch)
	return nil
}

func (f *fakeRepo) Append(_ context.Context, event *models.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	event.ID = fmt.Sprintf("event-%d", f.seq)
	event.Seq = f.seq
	f.clock = f.clock.Add(time.Second)
	event.CreatedAt = f.clock
	cp := *event
	f.events = append(f.events, &cp)
	return nil
}

func (f *fakeRepo) ListEvents(_ context.Context, workflowID string) ([]*models.AuditEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AuditEvent
	for _, e := range f.events {
		if e.WorkflowID == workflowID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRepo) Ping(context.Context) error { return nil }

func (f *fakeRepo) eventsOfType(workflowID string, t models.EventType) []*models.AuditEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AuditEvent
	for _, e := range f.events {
		if e.WorkflowID == workflowID && e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

// fakeDocs is an in-memory DocumentStore.
type fakeDocs struct {
	mu     sync.Mutex
	docs   map[string]*models.Document
	shares map[string]map[string]bool
	states map[string]string
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{
		docs:   make(map[string]*models.Document),
		shares: make(map[string]map[string]bool),
		states: make(map[string]string),
	}
}

func (f *fakeDocs) add(d *models.Document) { f.docs[d.ID] = d }

func (f *fakeDocs) Get(_ context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocs) HasEditAccess(_ context.Context, documentID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[documentID]
	if !ok {
		return false, nil
	}
	return d.OwnerID == userID || f.shares[documentID][userID], nil
}

func (f *fakeDocs) SetWorkflowState(_ context.Context, documentID, state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[documentID]; !ok {
		return repository.ErrNotFound
	}
	f.states[documentID] = state
	return nil
}

// fakeBlobs is an in-memory BlobStore.
type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string][]byte)}
}

func (f *fakeBlobs) Put(_ context.Context, key string, data []byte, _ string, _ map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut {
		return "", fmt.Errorf("blob store unavailable")
	}
	f.objects[key] = data
	return "blob://" + key, nil
}

func (f *fakeBlobs) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object at %s", key)
	}
	return data, nil
}

// fakeNotifier records dispatched notifications and can be told to fail.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (f *fakeNotifier) Send(_ context.Context, userID string, _ Notification) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false, fmt.Errorf("dispatcher down")
	}
	f.sent = append(f.sent, userID)
	return true, nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestService(repo *fakeRepo, docs *fakeDocs, blobs *fakeBlobs, notifier *fakeNotifier) *SignatureService {
	logger := logging.NewLogger()
	return NewSignatureService(repo, docs, blobs, notifier, DefaultHooks(notifier, logger), Config{
		CertIssuer:    "Test Issuer",
		CertAlgorithm: "SHA256withRSA",
	}, logger)
}

// testEnv wires a service over the fakes with one document and three
// known users.
type testEnv struct {
	repo     *fakeRepo
	docs     *fakeDocs
	blobs    *fakeBlobs
	notifier *fakeNotifier
	svc      *SignatureService

	owner, alice, bob string
	docID             string
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:     newFakeRepo(),
		docs:     newFakeDocs(),
		blobs:    newFakeBlobs(),
		notifier: &fakeNotifier{},
		owner:    "user-owner",
		alice:    "user-alice",
		bob:      "user-bob",
		docID:    "doc-1",
	}
	env.svc = newTestService(env.repo, env.docs, env.blobs, env.notifier)

	env.repo.addUser(&models.User{ID: env.owner, Email: "owner@example.com", FirstName: "Olivia", LastName: "Owner"})
	env.repo.addUser(&models.User{ID: env.alice, Email: "alice@example.com", FirstName: "Alice", LastName: "Fields"})
	env.repo.addUser(&models.User{ID: env.bob, Email: "bob@example.com", FirstName: "Bob", LastName: "Rivera"})

	text := "This agreement is made between the parties."
	env.docs.add(&models.Document{
		ID:            env.docID,
		OwnerID:       env.owner,
		Title:         "Master Services Agreement",
		WorkflowState: "none",
		ExtractedText: &text,
	})
	return env
}

func (e *testEnv) signerAlice(required bool, order int) models.Signer {
	o := order
	return models.Signer{UserID: &e.alice, Email: "alice@example.com", Name: "Alice Fields", IsRequired: required, Order: &o}
}

func (e *testEnv) signerBob(required bool, order int) models.Signer {
	o := order
	return models.Signer{UserID: &e.bob, Email: "bob@example.com", Name: "Bob Rivera", IsRequired: required, Order: &o}
}

func signatureData() models.SignatureData {
	return models.SignatureData{
		Type:      "drawn",
		Signature: "data:image/png;base64,aGVsbG8=",
		Timestamp: "2026-01-02T10:00:00Z",
		IPAddress: "203.0.113.10",
		UserAgent: "integration-test",
	}
}
