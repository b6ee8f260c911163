package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"mirror-go/internal/model"
)

// GetResource returns a resource from the mirror.
func (s *Service) GetResource(ctx context.Context, id int64) (*model.Resource, error) {
	r, err := s.database.GetResource(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting resource %d: %w", id, err)
	}
	return r, nil
}

// ListResources returns resources matching filter, most recently modified first.
func (s *Service) ListResources(ctx context.Context, filter model.ResourceFilter) ([]*model.Resource, error) {
	rs, err := s.database.ListResources(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}
	return rs, nil
}

// ApplyChanges validates and applies a set of field mutations to one resource.
func (s *Service) ApplyChanges(ctx context.Context, id int64, changes []model.Change) (*model.Resource, error) {
	if len(changes) == 0 {
		return nil, fmt.Errorf("no changes given")
	}
	normalized := make([]model.Change, len(changes))
	for i, c := range changes {
		n, err := normalizeChange(c)
		if err != nil {
			return nil, err
		}
		normalized[i] = n
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	r, err := s.database.ApplyChanges(ctx, id, normalized)
	if err != nil {
		return nil, fmt.Errorf("applying changes to %d: %w", id, err)
	}
	s.logger.Info("resource edited", "id", id, "changes", len(changes), "dirty", r.Dirty)
	return r, nil
}

// UpdateField sets a single field addressed by its dotted path.
func (s *Service) UpdateField(ctx context.Context, id int64, path string, value any) (*model.Resource, error) {
	p, err := model.ParseFieldPath(path)
	if err != nil {
		return nil, err
	}
	return s.ApplyChanges(ctx, id, []model.Change{{Path: p, Value: value}})
}

// SetMeta sets one meta key.
func (s *Service) SetMeta(ctx context.Context, id int64, key string, value any) (*model.Resource, error) {
	return s.ApplyChanges(ctx, id, []model.Change{{Path: model.FieldPath{Kind: model.FieldMeta, Key: key}, Value: value}})
}

// DeleteMeta removes one meta key.
func (s *Service) DeleteMeta(ctx context.Context, id int64, key string) (*model.Resource, error) {
	return s.ApplyChanges(ctx, id, []model.Change{{Path: model.FieldPath{Kind: model.FieldMeta, Key: key}, Delete: true}})
}

// SetTerms replaces the term assignments of one taxonomy.
func (s *Service) SetTerms(ctx context.Context, id int64, taxonomy string, termIDs []int64) (*model.Resource, error) {
	return s.ApplyChanges(ctx, id, []model.Change{{Path: model.FieldPath{Kind: model.FieldTerms, Key: taxonomy}, Value: termIDs}})
}

// SetPluginData stores plugin-owned data for a resource and marks it pending push.
func (s *Service) SetPluginData(ctx context.Context, id int64, plugin, key string, value any) error {
	if plugin == "" || key == "" {
		return fmt.Errorf("plugin and key are required")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.database.SetPluginData(ctx, id, plugin, key, value); err != nil {
		return fmt.Errorf("setting plugin data on %d: %w", id, err)
	}
	return nil
}

// CreateResource adds a local-only resource. It is pushed with a create call
// and re-keyed to the id assigned by the remote server.
func (s *Service) CreateResource(ctx context.Context, r *model.Resource) (*model.Resource, error) {
	if r.Type == "" {
		return nil, fmt.Errorf("resource type is required")
	}
	if r.Status == "" {
		r.Status = model.StatusDraft
	}
	if _, err := model.ParseStatus(string(r.Status)); err != nil {
		return nil, err
	}

	created, err := s.database.CreateResource(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}
	s.logger.Info("resource created locally", "id", created.ID, "type", created.Type, "local_key", created.LocalKey)
	return created, nil
}

// DeleteResource removes a resource from the mirror. When remote is true the
// resource is deleted on the remote server first; a resource that is already
// gone remotely is not an error.
func (s *Service) DeleteResource(ctx context.Context, id int64, remote bool) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	r, err := s.database.GetResource(ctx, id)
	if err != nil {
		return fmt.Errorf("getting resource %d: %w", id, err)
	}

	if remote && !r.IsLocalOnly() {
		_, err := callRemote(ctx, s.opts.RemoteTimeout, func(c context.Context) (struct{}, error) {
			return struct{}{}, s.remote.Delete(c, r.Type, id)
		})
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("deleting remote resource %d: %w", id, err)
		}
	}

	if err := s.database.DeleteResource(ctx, id); err != nil {
		return fmt.Errorf("deleting resource %d: %w", id, err)
	}
	s.logger.Info("resource deleted", "id", id, "remote", remote)
	return nil
}

// normalizeChange checks a change against its field kind and coerces
// JSON-decoded values into the stored representation.
func normalizeChange(c model.Change) (model.Change, error) {
	switch c.Path.Kind {
	case model.FieldTitle, model.FieldSlug, model.FieldContent, model.FieldExcerpt, model.FieldStatus:
		if c.Delete {
			return c, fmt.Errorf("field %s cannot be deleted", c.Path)
		}
		str, ok := c.Value.(string)
		if !ok {
			return c, fmt.Errorf("field %s requires a string, got %T", c.Path, c.Value)
		}
		if c.Path.Kind == model.FieldStatus {
			if _, err := model.ParseStatus(str); err != nil {
				return c, err
			}
			c.Value = model.Status(str)
		} else {
			c.Value = str
		}
	case model.FieldMeta, model.FieldPlugin:
		if c.Path.Key == "" {
			return c, fmt.Errorf("field %s requires a key", c.Path)
		}
		if !c.Delete {
			if _, err := json.Marshal(c.Value); err != nil {
				return c, fmt.Errorf("field %s value is not JSON-serializable: %w", c.Path, err)
			}
		}
	case model.FieldTerms:
		if c.Path.Key == "" {
			return c, fmt.Errorf("field %s requires a taxonomy", c.Path)
		}
		if c.Delete {
			c.Value = []int64(nil)
			return c, nil
		}
		ids, err := termIDs(c.Value)
		if err != nil {
			return c, fmt.Errorf("field %s: %w", c.Path, err)
		}
		c.Value = model.NormalizeTermIDs(ids)
	default:
		return c, fmt.Errorf("unknown field kind %q", c.Path.Kind)
	}
	return c, nil
}

func termIDs(v any) ([]int64, error) {
	switch t := v.(type) {
	case []int64:
		return t, nil
	case []int:
		out := make([]int64, len(t))
		for i, n := range t {
			out[i] = int64(n)
		}
		return out, nil
	case []any:
		out := make([]int64, len(t))
		for i, n := range t {
			switch x := n.(type) {
			case float64:
				if x != math.Trunc(x) {
					return nil, fmt.Errorf("term id %v is not an integer", x)
				}
				out[i] = int64(x)
			case int:
				out[i] = int64(x)
			case int64:
				out[i] = x
			case json.Number:
				id, err := x.Int64()
				if err != nil {
					return nil, fmt.Errorf("term id %v: %w", x, err)
				}
				out[i] = id
			default:
				return nil, fmt.Errorf("term id %v has type %T", n, n)
			}
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("term ids must be a list, got %T", v)
	}
}
