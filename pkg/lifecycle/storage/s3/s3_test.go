package s3

import (
	"context"
	"errors"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EGF2/file/pkg/lifecycle"
)

type fixedKeys struct{ key string }

func (k fixedKeys) GenerateKey() string { return k.key }

func newTestBackend(t *testing.T, config Config) *Backend {
	t.Helper()
	if config.Bucket == "" {
		config.Bucket = "test-bucket"
	}
	config.AccessKeyID = "test-key"
	config.SecretAccessKey = "test-secret"
	backend, err := New(context.Background(), config)
	require.NoError(t, err)
	return backend
}

func TestS3Backend_BasicConfiguration(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(context.Background(), Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("Defaults", func(t *testing.T) {
		backend := newTestBackend(t, Config{})
		assert.Equal(t, 900*time.Second, backend.presignDuration)
		assert.Equal(t, "AES256", backend.config.SSEAlgorithm)
		assert.Equal(t, "public-read", backend.config.ACL)
		assert.Equal(t, "us-east-1", backend.config.Region)
		assert.NotEmpty(t, backend.GenerateKey())
	})

	t.Run("CustomPresignDuration", func(t *testing.T) {
		backend := newTestBackend(t, Config{PresignDuration: 60})
		assert.Equal(t, 60*time.Second, backend.presignDuration)
	})

	t.Run("InvalidSSE", func(t *testing.T) {
		_, err := New(context.Background(), Config{Bucket: "b", SSEAlgorithm: "rot13"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid SSE")
	})
}

func TestS3Backend_UploadURLRoundTrip(t *testing.T) {
	ctx := context.Background()

	t.Run("PathStyleEndpoint", func(t *testing.T) {
		backend := newTestBackend(t, Config{
			Endpoint:     "http://127.0.0.1:4444",
			UsePathStyle: true,
			Keys:         fixedKeys{key: "2024-42/abc"},
		})

		key := backend.GenerateKey()
		uploadURL, err := backend.GetUploadURL(ctx, key, "image/png")
		require.NoError(t, err)

		u, err := url.Parse(uploadURL)
		require.NoError(t, err)
		assert.Equal(t, "/test-bucket/2024-42/abc", u.Path)
		assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
		assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))

		downloadURL := backend.GetDownloadURL(uploadURL)
		assert.Equal(t, "http://127.0.0.1:4444/test-bucket/2024-42/abc", downloadURL)

		bucket, parsedKey, err := lifecycle.ParseObjectURL(downloadURL)
		require.NoError(t, err)
		assert.Equal(t, "test-bucket", bucket)
		assert.Equal(t, key, parsedKey)
	})

	t.Run("VirtualHosted", func(t *testing.T) {
		backend := newTestBackend(t, Config{
			Region: "eu-west-1",
			Keys:   fixedKeys{key: "2024-42/abc"},
		})

		uploadURL, err := backend.GetUploadURL(ctx, backend.GenerateKey(), "image/jpeg")
		require.NoError(t, err)

		downloadURL := backend.GetDownloadURL(uploadURL)
		assert.False(t, strings.Contains(downloadURL, "?"))

		bucket, key, err := lifecycle.ParseObjectURL(downloadURL)
		require.NoError(t, err)
		assert.Equal(t, "test-bucket", bucket)
		assert.Equal(t, "2024-42/abc", key)
	})
}

func TestDownloadURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"signed", "https://s/b/2024-10/k?X-Amz-Signature=x&a=b", "https://s/b/2024-10/k"},
		{"unsigned", "https://s/b/2024-10/k", "https://s/b/2024-10/k"},
		{"only first question mark", "https://s/b/k?x=1?y=2", "https://s/b/k"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DownloadURL(tt.input))
		})
	}
}

func TestAPIErrorCode(t *testing.T) {
	err := &smithy.GenericAPIError{Code: "NoSuchKey", Message: "gone"}
	assert.Equal(t, "NoSuchKey", apiErrorCode(err))
	assert.Equal(t, "NoSuchKey", apiErrorCode(errors.Join(errors.New("wrapped"), err)))
	assert.Equal(t, "", apiErrorCode(errors.New("plain")))
}

// TestS3Backend_Integration runs against a real S3-compatible endpoint
// (e.g. MinIO or localstack) when TEST_S3_ENDPOINT is set.
func TestS3Backend_Integration(t *testing.T) {
	endpoint := os.Getenv("TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_S3_ENDPOINT not set")
	}
	ctx := context.Background()

	backend := newTestBackend(t, Config{
		Bucket:                 "lifecycle-test",
		Endpoint:               endpoint,
		UsePathStyle:           true,
		SSEAlgorithm:           "none",
		ACL:                    "private",
		CreateBucketIfNotExist: true,
	})

	key := backend.GenerateKey()
	require.NoError(t, backend.PutObject(ctx, key, "text/plain", []byte("hello")))
	require.NoError(t, backend.DeleteObject(ctx, backend.Bucket(), key))
	// deleting again is not an error
	require.NoError(t, backend.DeleteObject(ctx, backend.Bucket(), key))
}
