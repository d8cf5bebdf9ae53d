package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/EGF2/file/pkg/lifecycle"
)

// Publisher receives a change event after every successful write
type Publisher func(ctx context.Context, ev *lifecycle.ChangeEvent)

// Repository implements lifecycle.MetadataStore and lifecycle.SearchIndex
// using in-memory storage. Stored documents are JSON-normalized copies.
type Repository struct {
	mu       sync.RWMutex
	entities map[string]lifecycle.Document
	now      func() time.Time

	pubMu     sync.RWMutex
	publisher Publisher
}

var (
	_ lifecycle.MetadataStore = (*Repository)(nil)
	_ lifecycle.SearchIndex   = (*Repository)(nil)
)

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		entities: make(map[string]lifecycle.Document),
		now:      time.Now,
	}
}

// SetPublisher installs p as the change event publisher. Events are
// published after the write lock is released.
func (r *Repository) SetPublisher(p Publisher) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	r.publisher = p
}

// SetClock overrides the clock used for created_at
func (r *Repository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// CreateObject stores doc. An id and created_at are assigned unless the
// document already carries them.
func (r *Repository) CreateObject(ctx context.Context, doc lifecycle.Document) (*lifecycle.Entity, error) {
	stored, err := doc.Clone()
	if err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	if stored == nil {
		stored = lifecycle.Document{}
	}

	r.mu.Lock()
	id := stored.String("id")
	if id == "" {
		id = uuid.NewString()
		stored["id"] = id
	}
	if _, exists := r.entities[id]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("entity %s already exists", id)
	}
	if stored.String("created_at") == "" {
		stored["created_at"] = r.now().UTC().Format(time.RFC3339Nano)
	}
	r.entities[id] = stored
	current, err := entityCopy(stored)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	r.publish(ctx, &lifecycle.ChangeEvent{Method: lifecycle.MethodCreate, Object: true, Current: current})
	return entityCopy(stored)
}

func (r *Repository) GetObject(ctx context.Context, id string) (*lifecycle.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, exists := r.entities[id]
	if !exists {
		return nil, lifecycle.ErrObjectNotFound
	}
	return entityCopy(doc)
}

// UpdateObject merges the top-level fields of patch into the stored entity.
// The id and object_type fields cannot be changed.
func (r *Repository) UpdateObject(ctx context.Context, id string, patch lifecycle.Document) (*lifecycle.Entity, error) {
	normalized, err := patch.Clone()
	if err != nil {
		return nil, fmt.Errorf("normalize patch: %w", err)
	}

	r.mu.Lock()
	doc, exists := r.entities[id]
	if !exists {
		r.mu.Unlock()
		return nil, lifecycle.ErrObjectNotFound
	}
	previous, err := entityCopy(doc)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	updated := make(lifecycle.Document, len(doc)+len(normalized))
	for k, v := range doc {
		updated[k] = v
	}
	for k, v := range normalized {
		if k == "id" || k == "object_type" {
			continue
		}
		updated[k] = v
	}
	r.entities[id] = updated
	current, err := entityCopy(updated)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	r.publish(ctx, &lifecycle.ChangeEvent{Method: lifecycle.MethodUpdate, Object: true, Current: current, Previous: previous})
	return entityCopy(updated)
}

func (r *Repository) DeleteObject(ctx context.Context, id string) error {
	r.mu.Lock()
	doc, exists := r.entities[id]
	if !exists {
		r.mu.Unlock()
		return lifecycle.ErrObjectNotFound
	}
	delete(r.entities, id)
	r.mu.Unlock()

	previous, err := entityCopy(doc)
	if err != nil {
		return err
	}
	r.publish(ctx, &lifecycle.ChangeEvent{Method: lifecycle.MethodDelete, Object: true, Previous: previous})
	return nil
}

func (r *Repository) GetObjectType(ctx context.Context, id string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, exists := r.entities[id]
	if !exists {
		return "", lifecycle.ErrObjectNotFound
	}
	return doc.String("object_type"), nil
}

// Search returns ids matching q in ascending id order. Filters compare the
// string form of top-level fields; ranges apply to RFC 3339 timestamps.
func (r *Repository) Search(ctx context.Context, q lifecycle.SearchQuery) (*lifecycle.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	var ids []string
	for id, doc := range r.entities {
		if q.After != "" && id <= q.After {
			continue
		}
		if matches(doc, q) {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	if q.Count > 0 && len(ids) > q.Count {
		ids = ids[:q.Count]
	}
	result := &lifecycle.SearchResult{Results: ids}
	if len(ids) > 0 {
		result.Last = ids[len(ids)-1]
	}
	return result, nil
}

// Len returns the number of stored entities
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

func matches(doc lifecycle.Document, q lifecycle.SearchQuery) bool {
	if q.ObjectType != "" && doc.String("object_type") != q.ObjectType {
		return false
	}
	for field, want := range q.Filters {
		v, ok := doc[field]
		if !ok || lifecycle.ValueOf(v).String() != want {
			return false
		}
	}
	for field, rng := range q.Range {
		t, err := time.Parse(time.RFC3339Nano, doc.String(field))
		if err != nil {
			return false
		}
		if !rng.Gte.IsZero() && t.Before(rng.Gte) {
			return false
		}
		if !rng.Lte.IsZero() && t.After(rng.Lte) {
			return false
		}
	}
	return true
}

func (r *Repository) publish(ctx context.Context, ev *lifecycle.ChangeEvent) {
	r.pubMu.RLock()
	p := r.publisher
	r.pubMu.RUnlock()
	if p != nil {
		p(ctx, ev)
	}
}

func entityCopy(doc lifecycle.Document) (*lifecycle.Entity, error) {
	cp, err := doc.Clone()
	if err != nil {
		return nil, err
	}
	return lifecycle.NewEntity(cp)
}
