package filters

import (
	"context"

	"github.com/baronrustamov/bloomsync/internal/filter/domain"
	"github.com/baronrustamov/bloomsync/internal/filter/repos/journal"
	"github.com/baronrustamov/bloomsync/internal/filter/services/pipeline"
)

// Syncer brings a local filter file up to date with its source.
// *pipeline.Pipeline is the production implementation.
type Syncer interface {
	Sync(ctx context.Context, src domain.Source, localPath string) (pipeline.Result, error)
}

// Journal records sync outcomes. *journal.Store is the production implementation.
type Journal interface {
	Record(e journal.Entry) error
	Get(name string) (journal.Entry, bool, error)
	Delete(name string) error
	Close() error
}

var _ Syncer = (*pipeline.Pipeline)(nil)
var _ Journal = (*journal.Store)(nil)
