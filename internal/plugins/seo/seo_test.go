package seo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirror-go/internal/hooks"
	"mirror-go/internal/model"
)

func TestBeforeSync_MovesMetaIntoPluginData(t *testing.T) {
	p := hooks.New(nil)
	Register(p)

	in := model.SyncPayload{Resource: model.RemoteResource{
		ID: 1,
		Meta: map[string]any{
			"_seo_title":       "Best Post",
			"_seo_description": "All about it",
			"views":            float64(3),
		},
	}}

	out, err := hooks.Run(context.Background(), p, hooks.ResourceBeforeSync, in)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"views": float64(3)}, out.Resource.Meta)
	assert.Equal(t, map[string]any{"title": "Best Post", "description": "All about it"}, out.PluginData[Name])

	// The caller's payload is not modified.
	assert.Contains(t, in.Resource.Meta, "_seo_title")
}

func TestBeforeSync_NoSEOMeta(t *testing.T) {
	p := hooks.New(nil)
	Register(p)

	out, err := hooks.Run(context.Background(), p, hooks.ResourceBeforeSync,
		model.SyncPayload{Resource: model.RemoteResource{Meta: map[string]any{"a": "b"}}})
	require.NoError(t, err)
	require.Contains(t, out.PluginData, Name, "an empty namespace clears entries deleted remotely")
	assert.Empty(t, out.PluginData[Name])
	assert.Equal(t, map[string]any{"a": "b"}, out.Resource.Meta)
}

func TestBeforePush_WritesMetaBack(t *testing.T) {
	p := hooks.New(nil)
	Register(p)

	local := &model.Resource{
		ID:         1,
		PluginData: map[string]map[string]any{Name: {"title": "Edited"}},
	}
	in := model.PushPayload{Local: local, Outbound: model.Outbound(local)}

	out, err := hooks.Run(context.Background(), p, hooks.ResourceBeforePush, in)
	require.NoError(t, err)
	assert.Equal(t, "Edited", out.Outbound.Meta["_seo_title"])
	assert.NotContains(t, out.Outbound.Meta, "_seo_description")
}

func TestRegister_Unsubscribe(t *testing.T) {
	p := hooks.New(nil)
	off := Register(p)
	require.Equal(t, 1, hooks.Count(p, hooks.ResourceBeforeSync))
	require.Equal(t, 1, hooks.Count(p, hooks.ResourceBeforePush))

	off()
	assert.Zero(t, hooks.Count(p, hooks.ResourceBeforeSync))
	assert.Zero(t, hooks.Count(p, hooks.ResourceBeforePush))
}
