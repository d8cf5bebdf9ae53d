package lifecycle_test

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/EGF2/file/pkg/lifecycle"
	"github.com/EGF2/file/pkg/lifecycle/repo/memory"
	memorystorage "github.com/EGF2/file/pkg/lifecycle/storage/memory"
)

// fakeImages serves a fixed origin and records how often it was used
type fakeImages struct {
	width, height int
	fetchErr      error
	panicOnFetch  bool

	fetches atomic.Int32
	resizes atomic.Int32
}

func (f *fakeImages) FetchAndDecode(ctx context.Context, url string) (*lifecycle.ImageBuffer, error) {
	f.fetches.Add(1)
	if f.panicOnFetch {
		panic("decoder exploded")
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return &lifecycle.ImageBuffer{Image: image.NewRGBA(image.Rect(0, 0, f.width, f.height)), Format: "png"}, nil
}

func (f *fakeImages) ResizeCropCenter(buf *lifecycle.ImageBuffer, width, height int) ([]byte, error) {
	f.resizes.Add(1)
	return []byte{byte(width), byte(height)}, nil
}

func (f *fakeImages) IntrinsicSize(buf *lifecycle.ImageBuffer) (lifecycle.Dimensions, error) {
	b := buf.Image.Bounds()
	return lifecycle.Dimensions{Width: b.Dx(), Height: b.Dy()}, nil
}

// failingSearch fails every query
type failingSearch struct {
	calls atomic.Int32
}

func (s *failingSearch) Search(ctx context.Context, q lifecycle.SearchQuery) (*lifecycle.SearchResult, error) {
	s.calls.Add(1)
	return nil, errors.New("search unavailable")
}

type testEnv struct {
	repo     *memory.Repository
	objects  *memorystorage.Backend
	images   *fakeImages
	pipeline *lifecycle.Pipeline
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, opts ...lifecycle.Option) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:    memory.New(),
		objects: memorystorage.New("b"),
		images:  &fakeImages{width: 800, height: 600},
	}
	base := []lifecycle.Option{
		lifecycle.WithMetadataStore(env.repo),
		lifecycle.WithSearchIndex(env.repo),
		lifecycle.WithObjectStore(env.objects),
		lifecycle.WithImageTransformer(env.images),
		lifecycle.WithLogger(discardLogger()),
	}
	p, err := lifecycle.New(append(base, opts...)...)
	require.NoError(t, err)
	env.pipeline = p
	return env
}

func (e *testEnv) create(t *testing.T, doc lifecycle.Document) *lifecycle.Entity {
	t.Helper()
	entity, err := e.repo.CreateObject(context.Background(), doc)
	require.NoError(t, err)
	return entity
}

func (e *testEnv) asset(t *testing.T, id string) *lifecycle.Asset {
	t.Helper()
	entity, err := e.repo.GetObject(context.Background(), id)
	require.NoError(t, err)
	asset, err := entity.Asset()
	require.NoError(t, err)
	return asset
}

func resizeSpec(w, h int, url string) map[string]any {
	spec := map[string]any{"dimensions": map[string]any{"width": w, "height": h}}
	if url != "" {
		spec["url"] = url
	}
	return spec
}

// flakyTypes fails type lookups for the listed ids and defers the rest
type flakyTypes struct {
	next lifecycle.TypeResolver
	fail map[string]bool
}

func (f *flakyTypes) GetObjectType(ctx context.Context, id string) (string, error) {
	if f.fail[id] {
		return "", errors.New("connection refused")
	}
	return f.next.GetObjectType(ctx, id)
}

// flakyDeletes fails DeleteObject for the listed ids
type flakyDeletes struct {
	*memory.Repository
	fail map[string]bool
}

func (f *flakyDeletes) DeleteObject(ctx context.Context, id string) error {
	if f.fail[id] {
		return errors.New("statement timeout")
	}
	return f.Repository.DeleteObject(ctx, id)
}
