package legacytax

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirror-go/internal/hooks"
	"mirror-go/internal/model"
)

func TestBeforePush_WritesLegacySlots(t *testing.T) {
	p := hooks.New(nil)
	Register(p)

	local := &model.Resource{
		ID:    5,
		Meta:  map[string]any{"views": float64(1)},
		Terms: map[string][]int64{"tags": {7, 3}},
	}
	in := model.PushPayload{Local: local, Outbound: model.Outbound(local, "categories")}

	out, err := hooks.Run(context.Background(), p, hooks.ResourceBeforePush, in)
	require.NoError(t, err)
	assert.Equal(t, "3,7", out.Outbound.Meta["_legacy_tags"])
	assert.Equal(t, "", out.Outbound.Meta["_legacy_categories"])
	assert.Equal(t, float64(1), out.Outbound.Meta["views"])
	assert.NotContains(t, out.Local.Meta, "_legacy_tags")
}

func TestBeforePush_RunsAfterDefaultPriority(t *testing.T) {
	p := hooks.New(nil)
	Register(p)
	hooks.On(p, hooks.ResourceBeforePush, "retag", hooks.DefaultPriority,
		func(_ context.Context, in model.PushPayload) (model.PushPayload, error) {
			in.Outbound.Terms["tags"] = []int64{42}
			return in, nil
		})

	local := &model.Resource{ID: 5, Terms: map[string][]int64{"tags": {1}}}
	out, err := hooks.Run(context.Background(), p, hooks.ResourceBeforePush,
		model.PushPayload{Local: local, Outbound: model.Outbound(local)})
	require.NoError(t, err)
	assert.Equal(t, "42", out.Outbound.Meta["_legacy_tags"])
}

func TestBeforeSync_StripsLegacySlots(t *testing.T) {
	p := hooks.New(nil)
	Register(p)

	out, err := hooks.Run(context.Background(), p, hooks.ResourceBeforeSync, model.SyncPayload{
		Resource: model.RemoteResource{Meta: map[string]any{
			"_legacy_tags": "3,7",
			"_legacy_":     "x",
			"legacy":       "kept",
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"legacy": "kept"}, out.Resource.Meta)
}
