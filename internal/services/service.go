package services

import (
	"time"

	"signflow/backend/internal/logging"
	"signflow/backend/internal/repository"
	"signflow/backend/internal/signature"
	"signflow/backend/internal/storage"
)

// Config carries the deployment-fixed signing parameters.
type Config struct {
	CertIssuer    string
	CertAlgorithm string
	InvitationTTL time.Duration
}

// SignatureService implements the signing workflow engine: workflow
// creation, signing with completion detection, re-verification, audit
// trails, cancellation, and notarization.
type SignatureService struct {
	repo      repository.Repository
	documents repository.DocumentStore
	blobs     storage.BlobStore
	notifier  Notifier
	hooks     Hooks
	cfg       Config
	logger    *logging.Logger
	now       func() time.Time
}

// NewSignatureService creates a new SignatureService.
func NewSignatureService(
	repo repository.Repository,
	documents repository.DocumentStore,
	blobs storage.BlobStore,
	notifier Notifier,
	hooks Hooks,
	cfg Config,
	logger *logging.Logger,
) *SignatureService {
	if cfg.InvitationTTL <= 0 {
		cfg.InvitationTTL = 14 * 24 * time.Hour
	}
	return &SignatureService{
		repo:      repo,
		documents: documents,
		blobs:     blobs,
		notifier:  notifier,
		hooks:     hooks,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *SignatureService) certConfig() signature.CertificateConfig {
	return signature.CertificateConfig{
		Issuer:    s.cfg.CertIssuer,
		Algorithm: s.cfg.CertAlgorithm,
	}
}
