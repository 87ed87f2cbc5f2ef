package ops

import (
	"context"

	"github.com/biscuitwizard/moovcs/internal/changeindex"
	"github.com/biscuitwizard/moovcs/internal/vcstypes"
	"go.uber.org/zap"
)

func deriveID(name, description, author string, timestamp uint64) vcstypes.Digest {
	return changeindex.DeriveID(name, description, author, timestamp)
}

// noopCtx is used for best-effort remote calls issued from inside a held
// write lock; such calls carry no deadline and cannot be cancelled.
func noopCtx() context.Context { return context.Background() }

func zapErr(err error) zap.Field { return zap.Error(err) }
