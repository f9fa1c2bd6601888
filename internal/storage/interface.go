// Package storage provides blob storage for signing artifacts: signature
// images, compliance certificates, and notary seals.
package storage

import (
	"context"
	"fmt"
)

// BlobStore stores and retrieves opaque artifacts under deterministic keys.
type BlobStore interface {
	// Put stores data under key and returns a stable URL for it.
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) (string, error)
	// Get retrieves the bytes stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
}

// Artifact kinds used in blob keys.
const (
	ArtifactSignature   = "signature"
	ArtifactCertificate = "certificate"
	ArtifactSeal        = "seal"
)

// Key builds the deterministic blob key for one request's artifact.
func Key(workflowID, requestID, artifact string) string {
	return fmt.Sprintf("workflows/%s/requests/%s/%s", workflowID, requestID, artifact)
}
