package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"mirror-go/internal/config"
	"mirror-go/internal/database"
	"mirror-go/internal/encryption"
	"mirror-go/internal/hooks"
	"mirror-go/internal/mirror"
	"mirror-go/internal/model"
	"mirror-go/internal/plugins"
	"mirror-go/internal/remote"
	"mirror-go/internal/vault"
)

// backupName is the vault item holding the mirror database.
const backupName = "db"

// ErrBehindVault is returned at startup when the vault holds a newer
// database backup than the local mirror.
var ErrBehindVault = errors.New("local mirror is behind its vault backup")

// MirrorApp is the application layer between the CLI and mirror.Service.
// It constructs all dependencies from config, records mutating commands as
// sync runs, and backs the database up to the vault on Close.
type MirrorApp struct {
	cfg       *config.Config
	db        mirror.Database
	vault     mirror.Vault // nil when no vault is configured
	encryptor mirror.Encryptor
	service   *mirror.Service
	op        *Operation
	logger    *slog.Logger
	logCloser io.Closer
	disable   func()
}

// dependencies are the collaborators a MirrorApp is assembled from.
type dependencies struct {
	db        mirror.Database
	vault     mirror.Vault
	remote    mirror.Remote
	encryptor mirror.Encryptor
	clock     mirror.Clock
	logger    *slog.Logger
}

// NewMirrorApp creates a fully wired MirrorApp from the given config.
// operation identifies the CLI command being run (e.g. "Pull", "Push").
// The caller must call Close when done.
func NewMirrorApp(ctx context.Context, cfg *config.Config, operation string, verbose bool) (*MirrorApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opID := newOperationID(time.Now(), mirror.UUIDGenerator{})
	logger, logCloser, err := newLogger(cfg.LogDir, cfg.Log, opID, verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	fail := func(err error) (*MirrorApp, error) {
		logCloser.Close()
		return nil, err
	}

	var v mirror.Vault
	if len(cfg.Vaults) > 0 {
		v, err = vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
		if err != nil {
			return fail(fmt.Errorf("creating vault: %w", err))
		}
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fail(fmt.Errorf("creating encryptor: %w", err))
	}

	rem, err := remote.NewRemoteFromConfig(cfg.Remote, mirror.RealClock{})
	if err != nil {
		return fail(fmt.Errorf("creating remote: %w", err))
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.HostID, mirror.RealClock{}, mirror.UUIDGenerator{})
	if err != nil {
		return fail(fmt.Errorf("creating database: %w", err))
	}

	a, err := newMirrorApp(ctx, cfg, operation, dependencies{
		db:        db,
		vault:     v,
		remote:    rem,
		encryptor: enc,
		clock:     mirror.RealClock{},
		logger:    logger,
	})
	if err != nil {
		db.Close()
		return fail(err)
	}
	a.logCloser = logCloser
	return a, nil
}

func newMirrorApp(ctx context.Context, cfg *config.Config, operation string, deps dependencies) (*MirrorApp, error) {
	if err := deps.db.CheckMigrations(); err != nil {
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	if deps.vault != nil {
		vaultVersion, err := deps.vault.GetBackupVersion(cfg.HostID, backupName)
		if err != nil {
			return nil, fmt.Errorf("checking vault backup version: %w", err)
		}
		localMax, err := deps.db.MaxSyncRunID(ctx)
		if err != nil {
			return nil, fmt.Errorf("checking local database version: %w", err)
		}
		if vaultVersion > localMax {
			return nil, fmt.Errorf("%w (local=%d, vault=%d): restore from vault or re-initialize", ErrBehindVault, localMax, vaultVersion)
		}
	}

	logger := &slogAdapter{l: deps.logger}
	pipeline := hooks.New(logger)
	disable, err := plugins.Enable(pipeline, cfg.Plugins)
	if err != nil {
		return nil, fmt.Errorf("enabling plugins: %w", err)
	}

	svc := mirror.NewService(deps.db, deps.remote, pipeline, logger, deps.clock, mirror.Options{
		ResourceTypes:   cfg.ResourceTypes,
		Taxonomies:      cfg.Taxonomies,
		PageSize:        cfg.Remote.PageSize,
		PushConcurrency: cfg.Push.Concurrency,
		RemoteTimeout:   cfg.Remote.Timeout.Duration,
	})

	return &MirrorApp{
		cfg:       cfg,
		db:        deps.db,
		vault:     deps.vault,
		encryptor: deps.encryptor,
		service:   svc,
		op:        NewOperation(operation),
		logger:    deps.logger,
		disable:   disable,
	}, nil
}

// begin persists the operation as a sync run, giving it an auto-increment ID.
// This should only be called for mutating commands.
func (a *MirrorApp) begin(ctx context.Context, parameters ...string) error {
	if a.op.Persisted() {
		return nil
	}
	if len(parameters) > 0 {
		a.op.Parameters = strings.Join(parameters, " ")
	}
	run, err := a.db.CreateSyncRun(ctx, a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting sync run: %w", err)
	}
	a.op.ID = run.ID
	return nil
}

// Pull syncs remote resources into the mirror. Pending local edits are only
// overwritten when the caller passes overwriteDirty; there is no config default.
func (a *MirrorApp) Pull(ctx context.Context, resourceType string, overwriteDirty bool) (*mirror.SyncReport, error) {
	opts := mirror.SyncOptions{
		Type:           resourceType,
		OverwriteDirty: overwriteDirty,
	}
	if err := a.begin(ctx, "type="+opts.Type, fmt.Sprintf("overwrite_dirty=%t", opts.OverwriteDirty)); err != nil {
		return nil, err
	}

	report, err := a.service.SyncAll(ctx, opts)
	if err != nil {
		a.op.Fail(err)
		return nil, err
	}
	a.op.Record(report.Status(), report.String())
	return report, nil
}

// Push sends dirty resources to the remote server.
func (a *MirrorApp) Push(ctx context.Context, resourceType string, skipConflictCheck bool) (*mirror.PushReport, error) {
	opts := mirror.PushOptions{
		Type:              resourceType,
		SkipConflictCheck: skipConflictCheck || a.cfg.Push.SkipConflictCheck,
	}
	if err := a.begin(ctx, "type="+opts.Type, fmt.Sprintf("skip_conflict_check=%t", opts.SkipConflictCheck)); err != nil {
		return nil, err
	}

	report, err := a.service.PushAll(ctx, opts)
	if err != nil {
		a.op.Fail(err)
		return nil, err
	}
	a.op.Record(report.Status(), report.String())
	return report, nil
}

// Status returns per-type counts.
func (a *MirrorApp) Status(ctx context.Context) ([]*model.TypeStatus, error) {
	return a.service.Status(ctx)
}

// List returns mirrored resources matching filter.
func (a *MirrorApp) List(ctx context.Context, filter model.ResourceFilter) ([]*model.Resource, error) {
	return a.service.ListResources(ctx, filter)
}

// Show returns one resource.
func (a *MirrorApp) Show(ctx context.Context, id int64) (*model.Resource, error) {
	return a.service.GetResource(ctx, id)
}

// ListTerms returns the term definitions of a taxonomy.
func (a *MirrorApp) ListTerms(ctx context.Context, taxonomy string) ([]*model.Term, error) {
	return a.service.ListTerms(ctx, taxonomy)
}

// Edit applies "path=value" assignments and removes the unset paths as one
// change set. Values are decoded as JSON when possible, except for the core
// text fields which always take the raw string.
func (a *MirrorApp) Edit(ctx context.Context, id int64, assignments, unset []string) (*model.Resource, error) {
	changes, err := parseChanges(assignments, unset)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, errors.New("no changes given")
	}
	if err := a.begin(ctx, fmt.Sprintf("id=%d", id)); err != nil {
		return nil, err
	}

	r, err := a.service.ApplyChanges(ctx, id, changes)
	if err != nil {
		a.op.Fail(err)
		return nil, err
	}
	return r, nil
}

// Create adds a local-only resource that the next push creates remotely.
func (a *MirrorApp) Create(ctx context.Context, r *model.Resource) (*model.Resource, error) {
	if err := a.begin(ctx, "type="+r.Type); err != nil {
		return nil, err
	}
	created, err := a.service.CreateResource(ctx, r)
	if err != nil {
		a.op.Fail(err)
		return nil, err
	}
	return created, nil
}

// Delete removes a resource locally, and remotely when requested.
func (a *MirrorApp) Delete(ctx context.Context, id int64, fromRemote bool) error {
	if err := a.begin(ctx, fmt.Sprintf("id=%d", id), fmt.Sprintf("remote=%t", fromRemote)); err != nil {
		return err
	}
	if err := a.service.DeleteResource(ctx, id, fromRemote); err != nil {
		a.op.Fail(err)
		return err
	}
	return nil
}

// Discard drops pending local edits of a resource.
func (a *MirrorApp) Discard(ctx context.Context, id int64) (*model.Resource, error) {
	if err := a.begin(ctx, fmt.Sprintf("id=%d", id)); err != nil {
		return nil, err
	}
	r, err := a.service.DiscardChanges(ctx, id)
	if err != nil {
		a.op.Fail(err)
		return nil, err
	}
	return r, nil
}

// Diff compares a dirty resource with its baseline.
func (a *MirrorApp) Diff(ctx context.Context, id int64) ([]mirror.FieldDiff, error) {
	return a.service.Diff(ctx, id)
}

// History returns the change log of a resource, newest first.
func (a *MirrorApp) History(ctx context.Context, id int64, limit int) ([]*model.ChangeLogEntry, error) {
	return a.service.History(ctx, id, limit)
}

// Runs returns the most recent sync runs.
func (a *MirrorApp) Runs(ctx context.Context, limit int) ([]*model.SyncRun, error) {
	return a.service.ListRuns(ctx, limit)
}

// Close finalizes the operation and closes all resources.
// For persisted operations: finishes the sync run, snapshots the database
// and uploads it to the vault. Otherwise it just closes the database.
func (a *MirrorApp) Close() error {
	var errs []error
	if a.disable != nil {
		a.disable()
	}

	var snapshot string
	if a.op.Persisted() {
		if err := a.db.FinishSyncRun(context.Background(), a.op.ID, a.op.Status, a.op.Summary); err != nil {
			errs = append(errs, fmt.Errorf("finishing sync run: %w", err))
		}
		if a.vault != nil {
			path, err := a.snapshotDatabase()
			if err != nil {
				errs = append(errs, err)
			}
			snapshot = path
		}
	}

	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}

	if snapshot != "" {
		if err := a.uploadBackup(snapshot, a.op.ID); err != nil {
			errs = append(errs, err)
		}
		os.Remove(snapshot)
	}

	if a.logCloser != nil {
		a.logCloser.Close()
	}
	return errors.Join(errs...)
}

// snapshotDatabase writes a consistent copy of the database to a temp file.
func (a *MirrorApp) snapshotDatabase() (string, error) {
	tmp, err := os.CreateTemp("", "mirror-db-backup-*.db")
	if err != nil {
		return "", fmt.Errorf("creating temp file for db backup: %w", err)
	}
	path := tmp.Name()
	tmp.Close()

	if err := a.db.BackupTo(path); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// uploadBackup encrypts the snapshot at path and uploads it to the vault.
func (a *MirrorApp) uploadBackup(path string, version int64) error {
	if !a.encryptor.IsConfigured() {
		return errors.New("backup not uploaded: encryption keys missing, run 'mirror keys init'")
	}

	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening db backup: %w", err)
	}
	defer src.Close()

	sealed, err := os.CreateTemp("", "mirror-db-backup-*.sealed")
	if err != nil {
		return fmt.Errorf("creating temp file for sealed backup: %w", err)
	}
	defer os.Remove(sealed.Name())
	defer sealed.Close()

	if err := a.encryptor.Encrypt(src, sealed); err != nil {
		return fmt.Errorf("encrypting db backup: %w", err)
	}
	size, err := sealed.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("sizing db backup: %w", err)
	}
	if _, err := sealed.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding db backup: %w", err)
	}

	if err := a.vault.PutBackup(a.cfg.HostID, backupName, sealed, size, version); err != nil {
		return fmt.Errorf("uploading backup to vault: %w", err)
	}
	a.logger.Info("database backed up", "vault_version", version, "size", size)
	return nil
}

// parseChanges turns CLI assignments into a change set.
func parseChanges(assignments, unset []string) ([]model.Change, error) {
	var changes []model.Change
	for _, s := range assignments {
		raw, value, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("expected path=value, got %q", s)
		}
		path, err := model.ParseFieldPath(raw)
		if err != nil {
			return nil, err
		}
		changes = append(changes, model.Change{Path: path, Value: decodeValue(path, value)})
	}
	for _, raw := range unset {
		path, err := model.ParseFieldPath(raw)
		if err != nil {
			return nil, err
		}
		changes = append(changes, model.Change{Path: path, Delete: true})
	}
	return changes, nil
}

func decodeValue(path model.FieldPath, raw string) any {
	switch path.Kind {
	case model.FieldTitle, model.FieldSlug, model.FieldStatus, model.FieldContent, model.FieldExcerpt:
		return raw
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
