package lifecycle

import (
	"context"
	"image"
)

// MetadataStore defines the entity persistence consumed by the pipeline
type MetadataStore interface {
	// CreateObject stores a new entity and assigns its id
	CreateObject(ctx context.Context, doc Document) (*Entity, error)

	// GetObject returns an entity or ErrObjectNotFound
	GetObject(ctx context.Context, id string) (*Entity, error)

	// UpdateObject merges patch into the stored entity
	UpdateObject(ctx context.Context, id string, patch Document) (*Entity, error)

	// DeleteObject removes an entity
	DeleteObject(ctx context.Context, id string) error

	// GetObjectType returns the object_type of an entity
	GetObjectType(ctx context.Context, id string) (string, error)
}

// TypeResolver resolves entity ids to their object type. MetadataStore
// satisfies it; repo/cached wraps it with an LRU.
type TypeResolver interface {
	GetObjectType(ctx context.Context, id string) (string, error)
}

// SearchIndex defines filtered, cursor-paginated entity queries
type SearchIndex interface {
	Search(ctx context.Context, query SearchQuery) (*SearchResult, error)
}

// ObjectStore defines the object storage operations consumed by the pipeline
type ObjectStore interface {
	// GenerateKey returns a fresh time-bucketed, collision-resistant key
	GenerateKey() string

	// GetUploadURL returns a short-lived pre-signed URL for writing key
	GetUploadURL(ctx context.Context, key, mimeType string) (string, error)

	// GetDownloadURL strips the query and signature from an upload URL
	GetDownloadURL(uploadURL string) string

	// PutObject writes bytes under key
	PutObject(ctx context.Context, key, mimeType string, data []byte) error

	// DeleteObject removes key from bucket
	DeleteObject(ctx context.Context, bucket, key string) error
}

// ImageBuffer is a decoded origin image together with its encoded source.
type ImageBuffer struct {
	Image  image.Image
	Format string // decoder name, e.g. "jpeg", "png"
	Raw    []byte
}

// ImageTransformer defines the image primitives used for derivatives
type ImageTransformer interface {
	// FetchAndDecode retrieves and decodes the image at url
	FetchAndDecode(ctx context.Context, url string) (*ImageBuffer, error)

	// ResizeCropCenter scales buf to cover width x height and crops the
	// centre to exactly that box, returning the encoded bytes
	ResizeCropCenter(buf *ImageBuffer, width, height int) ([]byte, error)

	// IntrinsicSize reports the origin dimensions
	IntrinsicSize(buf *ImageBuffer) (Dimensions, error)
}
