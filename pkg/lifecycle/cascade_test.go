package lifecycle_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EGF2/file/pkg/lifecycle"
	memorystorage "github.com/EGF2/file/pkg/lifecycle/storage/memory"
)

func TestCascade_DeletesPrimaryAndDerivatives(t *testing.T) {
	env := newTestEnv(t)
	asset := &lifecycle.Asset{
		ID:  "f1",
		URL: "https://store/b/2024-10/k1",
		Resizes: []lifecycle.DerivativeSpec{
			{Dimensions: lifecycle.Dimensions{Width: 10, Height: 10}, URL: "https://store/b/2024-10/k2"},
			{Dimensions: lifecycle.Dimensions{Width: 20, Height: 20}},
		},
	}

	res := env.pipeline.Cascade().Handle(context.Background(), asset)
	assert.Equal(t, lifecycle.CascadeResult{Deleted: 2}, res)
	assert.Equal(t, []string{"b/2024-10/k1", "b/2024-10/k2"}, env.objects.Deletes())
}

func TestCascade_ContinuesAfterFailure(t *testing.T) {
	env := newTestEnv(t)
	env.objects.FailOn(memorystorage.OpDelete, func(key string) bool {
		return strings.HasSuffix(key, "/k1")
	})
	asset := &lifecycle.Asset{
		ID:  "f1",
		URL: "https://store/b/2024-10/k1",
		Resizes: []lifecycle.DerivativeSpec{
			{URL: "https://store/nokey"},
			{URL: "https://store/b/2024-10/k3"},
		},
	}

	res := env.pipeline.Cascade().Handle(context.Background(), asset)
	assert.Equal(t, lifecycle.CascadeResult{Deleted: 1, Failed: 2}, res)
	assert.Equal(t, []string{"b/2024-10/k3"}, env.objects.Deletes())
	assert.Equal(t, 2, env.objects.Calls(memorystorage.OpDelete))
}

func TestCascade_Triggered(t *testing.T) {
	env := newTestEnv(t)
	c := env.pipeline.Cascade()

	file := mustEntity(t, lifecycle.Document{"id": "f1", "object_type": "file", "url": "https://store/b/w/f1"})
	post := mustEntity(t, lifecycle.Document{"id": "p1", "object_type": "post"})

	asset, ok := c.Triggered(&lifecycle.ChangeEvent{Method: lifecycle.MethodDelete, Object: true, Previous: file})
	require.True(t, ok)
	assert.Equal(t, "https://store/b/w/f1", asset.URL)

	_, ok = c.Triggered(&lifecycle.ChangeEvent{Method: lifecycle.MethodDelete, Object: true, Previous: post})
	assert.False(t, ok)
	_, ok = c.Triggered(&lifecycle.ChangeEvent{Method: lifecycle.MethodDelete, Object: true})
	assert.False(t, ok)
	_, ok = c.Triggered(&lifecycle.ChangeEvent{Method: lifecycle.MethodUpdate, Object: true, Previous: file, Current: file})
	assert.False(t, ok)
}

func TestParseObjectURL(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		bucket string
		key    string
		err    bool
	}{
		{name: "path style", url: "https://s3.amazonaws.com/media/2024-42/abc", bucket: "media", key: "2024-42/abc"},
		{name: "custom endpoint", url: "http://localhost:9000/media/2024-42/abc", bucket: "media", key: "2024-42/abc"},
		{name: "trailing slash", url: "https://store/b/2024-10/k1/", bucket: "b", key: "2024-10/k1"},
		{name: "virtual host", url: "https://media.s3.amazonaws.com/2024-42/abc", bucket: "media", key: "2024-42/abc"},
		{name: "regional virtual host", url: "https://my-media.s3.eu-west-1.amazonaws.com/2024-42/abc", bucket: "my-media", key: "2024-42/abc"},
		{name: "dash regional virtual host", url: "https://media.s3-us-west-2.amazonaws.com/2024-42/abc", bucket: "media", key: "2024-42/abc"},
		{name: "one segment", url: "https://store/abc", err: true},
		{name: "no bucket", url: "https://example.com/2024-42/abc", err: true},
		{name: "no host", url: "/b/2024-42/abc", err: true},
		{name: "unparseable", url: "http://[::1", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := lifecycle.ParseObjectURL(tt.url)
			if tt.err {
				require.Error(t, err)
				assert.Equal(t, lifecycle.KindMalformedReference, lifecycle.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestCascade_DeletedAssetWithFreeformSize(t *testing.T) {
	env := newTestEnv(t)

	var ev lifecycle.ChangeEvent
	require.NoError(t, json.Unmarshal([]byte(`{
		"method": "DELETE",
		"object": true,
		"previous": {"id": "a2", "object_type": "file", "size": "12kb",
			"url": "https://store/b/2024-10/k1",
			"resizes": [{"dimensions": {"width": 10, "height": 10}, "url": "https://store/b/2024-10/k2"}]}
	}`), &ev))

	route := env.pipeline.Dispatcher().Dispatch(context.Background(), &ev)
	assert.Equal(t, lifecycle.RouteCascade, route)
	assert.Equal(t, []string{"b/2024-10/k1", "b/2024-10/k2"}, env.objects.Deletes())
}
