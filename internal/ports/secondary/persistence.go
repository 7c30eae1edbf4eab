// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces through which the application drives external systems.
package secondary

import (
	"context"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/ledger"
)

// AssetRepository defines the secondary port for catalog persistence.
type AssetRepository interface {
	// Add inserts a record and sets its ID. A duplicate local or remote path
	// returns false with no error.
	Add(ctx context.Context, rec *asset.Record) (bool, error)

	// AddOrUpdate inserts a record, updating the existing row by local path on
	// a duplicate.
	AddOrUpdate(ctx context.Context, rec *asset.Record) (bool, error)

	// Upsert updates by ID when set, else behaves like AddOrUpdate.
	Upsert(ctx context.Context, rec *asset.Record) error

	// GetByID retrieves a record by its ID.
	GetByID(ctx context.Context, id int64) (*asset.Record, error)

	// GetAssets retrieves records matching the filter, ordered by ID.
	GetAssets(ctx context.Context, filter AssetFilter) ([]*asset.Record, error)

	// GetUnprocessed returns parents of parentType in scope that no childType
	// record references. With an empty childType it returns parents not yet
	// marked processed. Override returns every parent.
	GetUnprocessed(ctx context.Context, scope asset.Scope, parentType, childType asset.Type, override bool) ([]*asset.Record, error)

	// Counts returns the number of records per type in scope.
	Counts(ctx context.Context, scope asset.Scope) (map[asset.Type]int, error)

	// RemoteExists reports whether a record with the remote path exists.
	RemoteExists(ctx context.Context, remotePath string) (bool, error)

	// UpdateLocalPath sets the local path of the record with the remote path.
	UpdateLocalPath(ctx context.Context, remotePath, localPath string) error

	// Delete removes records by ID.
	Delete(ctx context.Context, ids []int64) error

	// ListAll returns every record.
	ListAll(ctx context.Context) ([]*asset.Record, error)
}

// AssetFilter contains filter options for querying the catalog. Empty fields
// match everything.
type AssetFilter struct {
	Network   string
	Station   string
	Campaign  string
	Types     []asset.Type
	Processed *bool
	ParentID  *int64
}

// MergeJobRepository defines the secondary port for the merge-job ledger.
type MergeJobRepository interface {
	// Record inserts a completed job. A duplicate key returns ErrDuplicate.
	Record(ctx context.Context, key ledger.Key) error

	// Upsert inserts a job or refreshes its completion time.
	Upsert(ctx context.Context, key ledger.Key) error

	// IsComplete reports whether the key has been recorded.
	IsComplete(ctx context.Context, key ledger.Key) (bool, error)

	// List returns all entries, newest first.
	List(ctx context.Context) ([]*ledger.Entry, error)

	// Delete removes an entry.
	Delete(ctx context.Context, key ledger.Key) error
}
