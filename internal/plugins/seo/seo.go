// Package seo keeps search-engine metadata out of the generic meta map.
// On pull the _seo_* meta keys move into plugin data; on push they are
// written back into the outbound meta.
package seo

import (
	"context"

	"mirror-go/internal/hooks"
	"mirror-go/internal/model"
)

// Name is the plugin name used in config and as the plugin data namespace.
const Name = "seo"

const metaPrefix = "_seo_"

// Keys are the plugin data keys owned by this plugin.
var Keys = []string{"title", "description"}

// Register installs the plugin's handlers and returns a function removing them.
func Register(p *hooks.Pipeline) func() {
	offSync := hooks.On(p, hooks.ResourceBeforeSync, Name, hooks.DefaultPriority, beforeSync)
	offPush := hooks.On(p, hooks.ResourceBeforePush, Name, hooks.DefaultPriority, beforePush)
	return func() {
		offSync()
		offPush()
	}
}

// beforeSync always emits the seo namespace, empty when the remote carries no
// _seo_* keys, so a key deleted remotely is cleared locally too.
func beforeSync(_ context.Context, in model.SyncPayload) (model.SyncPayload, error) {
	if in.PluginData == nil {
		in.PluginData = map[string]map[string]any{}
	}
	data := map[string]any{}
	for _, key := range Keys {
		v, ok := in.Resource.Meta[metaPrefix+key]
		if !ok {
			continue
		}
		data[key] = v
		delete(in.Resource.Meta, metaPrefix+key)
	}
	in.PluginData[Name] = data
	return in, nil
}

func beforePush(_ context.Context, in model.PushPayload) (model.PushPayload, error) {
	data := in.Local.PluginData[Name]
	if len(data) == 0 {
		return in, nil
	}
	if in.Outbound.Meta == nil {
		in.Outbound.Meta = map[string]any{}
	}
	for _, key := range Keys {
		if v, ok := data[key]; ok {
			in.Outbound.Meta[metaPrefix+key] = v
		}
	}
	return in, nil
}
