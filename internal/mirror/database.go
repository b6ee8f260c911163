package mirror

import (
	"context"
	"time"

	"mirror-go/internal/model"
)

// Database is the local mirror store. Every method that changes a
// synchronizable field goes through the dirty tracker and appends to the
// change log inside the same transaction.
type Database interface {
	// Resources

	// GetResource returns a resource with its meta, terms and plugin data.
	// Returns an error wrapping ErrNotFound if absent.
	GetResource(ctx context.Context, id int64) (*model.Resource, error)

	// ListResources returns resources matching filter, most recently
	// modified first (remote modification or local edit, whichever is later).
	ListResources(ctx context.Context, filter model.ResourceFilter) ([]*model.Resource, error)

	// ListDirty returns every dirty resource, optionally scoped to a type.
	ListDirty(ctx context.Context, resourceType string) ([]*model.Resource, error)

	// CreateResource inserts a local-only resource with a negative id.
	// It is dirty from the start with an empty baseline.
	CreateResource(ctx context.Context, r *model.Resource) (*model.Resource, error)

	// DeleteResource removes a resource and everything attached to it.
	DeleteResource(ctx context.Context, id int64) error

	// Dirty tracking

	// ApplyChanges applies field mutations as one transaction and returns the
	// updated resource. Changes that restore the baseline clear the dirty flag.
	ApplyChanges(ctx context.Context, id int64, changes []model.Change) (*model.Resource, error)

	// MarkChanged captures the current state as baseline if none exists and
	// sets the dirty flag. For mutation paths outside ApplyChanges.
	MarkChanged(ctx context.Context, id int64, fieldPath string) error

	// RecordSynced writes a synced state as the new clean baseline. A
	// local-only row matching r.LocalKey is re-keyed to r.ID.
	RecordSynced(ctx context.Context, r *model.Resource) (*model.Resource, error)

	// RefreshRemoteTimestamps updates the remote-reported timestamps of a
	// resource without touching any synchronizable field or the conflict baseline.
	RefreshRemoteTimestamps(ctx context.Context, id int64, createdAt, modifiedAt time.Time) error

	// DiscardChanges restores the baseline. Returns the restored resource, or
	// nil when the resource had never been synced and was deleted instead.
	DiscardChanges(ctx context.Context, id int64) (*model.Resource, error)

	// GetSnapshot returns the baseline of a dirty resource, or nil when clean.
	GetSnapshot(ctx context.Context, id int64) (*model.Snapshot, error)

	// Plugin data

	SetPluginData(ctx context.Context, id int64, plugin, key string, value any) error
	GetPluginData(ctx context.Context, id int64, plugin string) ([]*model.PluginDataEntry, error)

	// Terms

	UpsertTerm(ctx context.Context, term *model.Term) error
	GetTerm(ctx context.Context, id int64) (*model.Term, error)
	ListTerms(ctx context.Context, taxonomy string) ([]*model.Term, error)

	// Change log

	// History returns change log entries for a resource, newest first.
	// Entries of deleted resources stay reachable by their last id.
	History(ctx context.Context, id int64, limit int) ([]*model.ChangeLogEntry, error)

	// Status

	StatusByType(ctx context.Context) ([]*model.TypeStatus, error)

	// Sync runs

	CreateSyncRun(ctx context.Context, operation, parameters string) (*model.SyncRun, error)
	FinishSyncRun(ctx context.Context, id int64, status, summary string) error
	ListSyncRuns(ctx context.Context, limit int) ([]*model.SyncRun, error)
	MaxSyncRunID(ctx context.Context) (int64, error)

	// Maintenance

	// CheckMigrations verifies the database schema is up-to-date.
	CheckMigrations() error

	// BackupTo writes a consistent copy of the database to destPath.
	BackupTo(destPath string) error

	Close() error
}
