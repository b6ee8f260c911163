package mirror

import (
	"context"
	"time"

	"mirror-go/internal/hooks"
)

const (
	defaultPageSize        = 50
	defaultPushConcurrency = 4
	defaultRemoteTimeout   = 30 * time.Second
)

// Options tunes the engines. Zero values fall back to defaults.
type Options struct {
	// ResourceTypes are pulled when a sync is not scoped to one type.
	ResourceTypes []string

	// Taxonomies whose term definitions are pulled with every full sync.
	Taxonomies []string

	PageSize        int
	PushConcurrency int

	// RemoteTimeout bounds every individual call to the remote API.
	RemoteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = defaultPageSize
	}
	if o.PushConcurrency <= 0 {
		o.PushConcurrency = defaultPushConcurrency
	}
	if o.RemoteTimeout <= 0 {
		o.RemoteTimeout = defaultRemoteTimeout
	}
	return o
}

// Service coordinates the local mirror, the remote API and the hook pipeline.
// It owns the per-resource locks shared by the pull, push and edit paths.
type Service struct {
	database Database
	remote   Remote
	pipeline *hooks.Pipeline
	logger   Logger
	clock    Clock
	opts     Options
	locks    *keyedMutex
}

// NewService creates a Service with the provided dependencies.
// pipeline may be nil when no optional modules are enabled.
func NewService(database Database, remote Remote, pipeline *hooks.Pipeline, logger Logger, clock Clock, opts Options) *Service {
	if pipeline == nil {
		pipeline = hooks.New(logger)
	}
	return &Service{
		database: database,
		remote:   remote,
		pipeline: pipeline,
		logger:   logger,
		clock:    clock,
		opts:     opts.withDefaults(),
		locks:    newKeyedMutex(),
	}
}

// Pipeline returns the hook pipeline run by the engines.
func (s *Service) Pipeline() *hooks.Pipeline {
	return s.pipeline
}

// callRemote runs fn with a bounded timeout. The call is detached from ctx
// cancellation so a request already in flight completes or fails on its own.
func callRemote[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return fn(cctx)
}
