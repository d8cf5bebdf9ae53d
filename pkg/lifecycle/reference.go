package lifecycle

import (
	"context"
	"errors"
	"log/slog"

	"github.com/EGF2/file/pkg/lifecycle/task"
)

// Tracker discovers the assets referenced by a non-asset entity and marks
// them as no longer standalone.
type Tracker struct {
	store  MetadataStore
	types  TypeResolver
	logger *slog.Logger
}

// NewTracker creates a reference tracker. When types is nil, type lookups go
// straight to the metadata store.
func NewTracker(store MetadataStore, types TypeResolver, logger *slog.Logger) *Tracker {
	if types == nil {
		types = store
	}
	return &Tracker{
		store:  store,
		types:  types,
		logger: logger.With("component", "reference"),
	}
}

// Triggered reports whether an event may carry asset references.
func (t *Tracker) Triggered(ev *ChangeEvent) bool {
	if ev.Current == nil {
		return false
	}
	if ev.Method != MethodCreate && ev.Method != MethodUpdate {
		return false
	}
	return !(ev.Object && ev.Current.ObjectType == ObjectTypeFile)
}

// Handle finds every asset referenced by the event's current entity and
// flips its standalone flag. It returns how many assets were changed.
//
// An explicit relation (edge.dst) is checked on its own; otherwise every
// string leaf of the entity body is a candidate id. Failed lookups are
// logged and skipped.
func (t *Tracker) Handle(ctx context.Context, ev *ChangeEvent) (int, error) {
	entity := ev.Current
	if entity == nil {
		return 0, nil
	}
	logger := t.logger.With("entity_id", entity.ID, "object_type", entity.ObjectType)

	var candidates []string
	if entity.Edge != nil {
		candidates = []string{entity.Edge.Dst}
	} else {
		candidates = Candidates(entity)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	assets := t.resolveAssets(ctx, logger, candidates)
	if len(assets) == 0 {
		return 0, nil
	}

	marks := task.Map(ctx, assets, t.markReferenced)
	changed := 0
	for _, r := range marks {
		if r.Err != nil {
			recordFailure("reference", r.Err)
			logger.Error("Failed to mark file referenced", "file_id", assets[r.Index], "kind", KindOf(r.Err), "error", r.Err)
			continue
		}
		if r.Value {
			changed++
		}
	}
	if changed > 0 {
		referencesMarkedTotal.Add(float64(changed))
		logger.Info("Files marked as referenced", "count", changed)
	}
	return changed, task.Errors(marks)
}

// Candidates returns the distinct non-empty string leaves of an entity body,
// excluding the entity's own id.
func Candidates(entity *Entity) []string {
	seen := make(map[string]struct{})
	var out []string
	ValueOf(entity.Doc).Walk(func(leaf Leaf) bool {
		s, ok := leaf.Value.Str()
		if !ok || s == "" || s == entity.ID {
			return true
		}
		if _, dup := seen[s]; dup {
			return true
		}
		seen[s] = struct{}{}
		out = append(out, s)
		return true
	})
	return out
}

// resolveAssets looks up candidate types concurrently and keeps the files.
func (t *Tracker) resolveAssets(ctx context.Context, logger *slog.Logger, candidates []string) []string {
	types := task.Map(ctx, candidates, func(ctx context.Context, id string) (string, error) {
		return t.types.GetObjectType(ctx, id)
	})

	var assets []string
	for _, r := range types {
		id := candidates[r.Index]
		if r.Err != nil {
			if errors.Is(r.Err, ErrObjectNotFound) {
				continue
			}
			err := classify(r.Err, func(err error) error { return &MetadataError{ID: id, Op: "get_type", Err: err} })
			recordFailure("reference", err)
			logger.Warn("Type lookup failed, skipping field", "candidate", id, "error", err)
			continue
		}
		if r.Value == ObjectTypeFile {
			assets = append(assets, id)
		}
	}
	return assets
}

// markReferenced sets standalone=false. It reports false when the asset was
// already referenced.
func (t *Tracker) markReferenced(ctx context.Context, id string) (bool, error) {
	entity, err := t.store.GetObject(ctx, id)
	if err != nil {
		return false, classify(err, func(err error) error { return &MetadataError{ID: id, Op: "get", Err: err} })
	}
	asset, err := entity.Asset()
	if err != nil {
		return false, &MetadataError{ID: id, Op: "decode", Err: err}
	}
	if !asset.Standalone {
		return false, nil
	}
	if _, err := t.store.UpdateObject(ctx, id, Document{"standalone": false}); err != nil {
		return false, classify(err, func(err error) error { return &MetadataError{ID: id, Op: "update", Err: err} })
	}
	return true, nil
}
