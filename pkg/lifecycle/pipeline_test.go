package lifecycle_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EGF2/file/pkg/lifecycle"
	"github.com/EGF2/file/pkg/lifecycle/repo/memory"
	memorystorage "github.com/EGF2/file/pkg/lifecycle/storage/memory"
)

func TestNew_RequiresCollaborators(t *testing.T) {
	repo := memory.New()
	objects := memorystorage.New("b")
	images := &fakeImages{}

	tests := []struct {
		name    string
		options []lifecycle.Option
		missing string
	}{
		{"no store", []lifecycle.Option{lifecycle.WithSearchIndex(repo), lifecycle.WithObjectStore(objects), lifecycle.WithImageTransformer(images)}, "metadata store"},
		{"no search", []lifecycle.Option{lifecycle.WithMetadataStore(repo), lifecycle.WithObjectStore(objects), lifecycle.WithImageTransformer(images)}, "search index"},
		{"no objects", []lifecycle.Option{lifecycle.WithMetadataStore(repo), lifecycle.WithSearchIndex(repo), lifecycle.WithImageTransformer(images)}, "object store"},
		{"no images", []lifecycle.Option{lifecycle.WithMetadataStore(repo), lifecycle.WithSearchIndex(repo), lifecycle.WithObjectStore(objects)}, "image transformer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := lifecycle.New(tt.options...)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, lifecycle.ErrMissingCollaborator)
			assert.Contains(t, err.Error(), tt.missing)
		})
	}
}

func TestNew_Accessors(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline

	assert.NotNil(t, p.Orchestrator())
	assert.NotNil(t, p.Tracker())
	assert.NotNil(t, p.Cascade())
	assert.NotNil(t, p.Collector())
	assert.NotNil(t, p.Dispatcher())
	assert.NotNil(t, p.Assets())
	assert.NotNil(t, p.Logger())
	assert.Equal(t, env.repo, p.Store())
}

func TestAssetCreator_Create(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.pipeline.Assets().Create(context.Background(), lifecycle.CreateAssetRequest{
		User:     "u1",
		Title:    "cat.jpg",
		MimeType: "image/jpeg",
		Size:     1234,
		Resizes:  []lifecycle.Dimensions{{Width: 100, Height: 100}, {Width: 300, Height: 200}},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(created.UploadURL, created.Asset.URL+"?"))
	assert.True(t, created.Asset.Standalone)
	assert.False(t, created.Asset.Uploaded)
	assert.True(t, created.Asset.Hosted)
	assert.Equal(t, lifecycle.ByteSize(1234), created.Asset.Size)
	assert.Equal(t, "u1", created.Asset.User)
	assert.Equal(t, 2, created.Asset.PendingResizes())
	assert.False(t, created.Asset.CreatedAt.IsZero())

	stored := env.asset(t, created.Entity.ID)
	assert.Equal(t, created.Asset.URL, stored.URL)
	assert.Equal(t, 0, env.objects.Calls(memorystorage.OpPut))

	_, _, err = lifecycle.ParseObjectURL(stored.URL)
	assert.NoError(t, err)
}

func TestCreateAssetRequest_Validate(t *testing.T) {
	tests := []struct {
		name string
		req  lifecycle.CreateAssetRequest
		err  string
	}{
		{"ok", lifecycle.CreateAssetRequest{MimeType: "application/pdf"}, ""},
		{"ok image", lifecycle.CreateAssetRequest{MimeType: "image/png", Resizes: []lifecycle.Dimensions{{Width: 1, Height: 1}}}, ""},
		{"missing mime type", lifecycle.CreateAssetRequest{}, "mime_type"},
		{"resizes on non-image", lifecycle.CreateAssetRequest{MimeType: "video/mp4", Resizes: []lifecycle.Dimensions{{Width: 1, Height: 1}}}, "image type"},
		{"zero dimensions", lifecycle.CreateAssetRequest{MimeType: "image/png", Resizes: []lifecycle.Dimensions{{Width: 0, Height: 1}}}, "positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.err == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, lifecycle.ErrInvalidAssetRequest)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestAssetCreator_ValidationTouchesNothing(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.pipeline.Assets().Create(context.Background(), lifecycle.CreateAssetRequest{Title: "x"})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidAssetRequest)
	assert.Equal(t, 0, env.objects.Calls(memorystorage.OpPresign))
	assert.Equal(t, 0, env.repo.Len())
}
