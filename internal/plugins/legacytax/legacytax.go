// Package legacytax mirrors taxonomy assignments into _legacy_<taxonomy>
// meta slots for themes that still read them. The slots are derived data:
// they are written on push and stripped on pull.
package legacytax

import (
	"context"
	"strconv"
	"strings"

	"mirror-go/internal/hooks"
	"mirror-go/internal/model"
)

// Name is the plugin name used in config.
const Name = "legacy_taxonomy"

const (
	metaPrefix = "_legacy_"

	// Priority runs after other push transforms so the slots reflect the
	// final assignments.
	Priority = hooks.DefaultPriority + 10
)

// Register installs the plugin's handlers and returns a function removing them.
func Register(p *hooks.Pipeline) func() {
	offSync := hooks.On(p, hooks.ResourceBeforeSync, Name, hooks.DefaultPriority, beforeSync)
	offPush := hooks.On(p, hooks.ResourceBeforePush, Name, Priority, beforePush)
	return func() {
		offSync()
		offPush()
	}
}

func beforeSync(_ context.Context, in model.SyncPayload) (model.SyncPayload, error) {
	for key := range in.Resource.Meta {
		if strings.HasPrefix(key, metaPrefix) {
			delete(in.Resource.Meta, key)
		}
	}
	return in, nil
}

func beforePush(_ context.Context, in model.PushPayload) (model.PushPayload, error) {
	if len(in.Outbound.Terms) == 0 {
		return in, nil
	}
	if in.Outbound.Meta == nil {
		in.Outbound.Meta = map[string]any{}
	}
	for tax, ids := range in.Outbound.Terms {
		in.Outbound.Meta[metaPrefix+tax] = joinIDs(ids)
	}
	return in, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
