package model

// SyncPayload flows through the resource_before_sync event: a remote-shaped
// resource fetched by a pull (or returned by a push) before it is stored.
// Handlers may move data out of Resource into PluginData.
type SyncPayload struct {
	Resource   RemoteResource
	PluginData map[string]map[string]any
}

// Clone returns a deep copy.
func (p SyncPayload) Clone() SyncPayload {
	return SyncPayload{
		Resource:   p.Resource.Clone(),
		PluginData: clonePluginData(p.PluginData),
	}
}

// PushPayload flows through the resource_before_push event. Local is the
// resource as stored in the mirror; Outbound is the request body under
// construction and is the only part handlers should rewrite.
type PushPayload struct {
	Local    *Resource
	Outbound RemoteResource
}

// Clone returns a deep copy.
func (p PushPayload) Clone() PushPayload {
	return PushPayload{
		Local:    p.Local.Clone(),
		Outbound: p.Outbound.Clone(),
	}
}

// SyncSummary is fired once per pull with the counts of the batch.
type SyncSummary struct {
	Type         string // empty when the pull covered every type
	Fetched      int
	Upserted     int
	SkippedDirty int
	Errors       int
}
