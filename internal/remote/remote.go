// Package remote is the collaborator abstraction for talking to a source
// replica (spec §4.8): validating credentials, fetching a full clone or an
// incremental delta, and posting a submitted change for review. All errors
// returned by an implementation must be classified vcserr.Remote and are
// non-fatal to the calling operation (spec §7).
package remote

import (
	"context"

	"github.com/biscuitwizard/moovcs/internal/vcstypes"
)

// RemotePeer is the narrow capability a replica needs from another replica.
type RemotePeer interface {
	// ValidateAPIKey checks apiKey against baseURL's user-stat endpoint,
	// returning the external user id on success.
	ValidateAPIKey(ctx context.Context, baseURL, apiKey string) (userID string, err error)
	// FetchClone retrieves a full CloneData snapshot from url.
	FetchClone(ctx context.Context, url string) (*vcstypes.CloneData, error)
	// FetchDelta retrieves changes newer than sinceChangeID from baseURL.
	FetchDelta(ctx context.Context, baseURL, sinceChangeID string) (*vcstypes.Delta, error)
	// PostSubmit forwards a Review-bound change to baseURL, best-effort.
	PostSubmit(ctx context.Context, baseURL string, change *vcstypes.Change) error
}
