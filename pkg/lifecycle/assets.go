package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAssetRequest indicates a creation request failed validation
var ErrInvalidAssetRequest = errors.New("invalid asset request")

// CreateAssetRequest describes a new hosted asset.
type CreateAssetRequest struct {
	User     string
	Title    string
	MimeType string
	Size     ByteSize
	Resizes  []Dimensions
}

// CreatedAsset is a freshly created asset together with its upload URL.
// The upload URL is never persisted.
type CreatedAsset struct {
	Entity    *Entity
	Asset     *Asset
	UploadURL string
}

// Validate checks the request before any collaborator is called.
func (r CreateAssetRequest) Validate() error {
	if r.MimeType == "" {
		return fmt.Errorf("%w: 'mime_type' parameter required", ErrInvalidAssetRequest)
	}
	if len(r.Resizes) > 0 && !strings.HasPrefix(r.MimeType, "image/") {
		return fmt.Errorf("%w: 'mime_type' must be image type", ErrInvalidAssetRequest)
	}
	for _, d := range r.Resizes {
		if d.Width <= 0 || d.Height <= 0 {
			return fmt.Errorf("%w: resize %s must have positive dimensions", ErrInvalidAssetRequest, d)
		}
	}
	return nil
}

// AssetCreator registers new hosted assets: it reserves an object key,
// pre-signs the upload and stores the standalone record.
type AssetCreator struct {
	store   MetadataStore
	objects ObjectStore
}

// NewAssetCreator creates an asset creator.
func NewAssetCreator(store MetadataStore, objects ObjectStore) *AssetCreator {
	return &AssetCreator{store: store, objects: objects}
}

// Create validates req and stores a new asset. The asset starts standalone
// and not uploaded; the client PUTs the bytes to UploadURL.
func (c *AssetCreator) Create(ctx context.Context, req CreateAssetRequest) (*CreatedAsset, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := c.objects.GenerateKey()
	uploadURL, err := c.objects.GetUploadURL(ctx, key, req.MimeType)
	if err != nil {
		return nil, classify(err, func(err error) error { return &StorageError{Key: key, Op: "presign", Err: err} })
	}

	resizes := make([]any, 0, len(req.Resizes))
	for _, d := range req.Resizes {
		resizes = append(resizes, map[string]any{
			"dimensions": map[string]any{"width": d.Width, "height": d.Height},
		})
	}
	doc := Document{
		"object_type": ObjectTypeFile,
		"title":       req.Title,
		"mime_type":   req.MimeType,
		"hosted":      true,
		"resizes":     resizes,
		"url":         c.objects.GetDownloadURL(uploadURL),
		"size":        int64(req.Size),
		"standalone":  true,
		"uploaded":    false,
	}
	if req.User != "" {
		doc["user"] = req.User
	}

	entity, err := c.store.CreateObject(ctx, doc)
	if err != nil {
		return nil, classify(err, func(err error) error { return &MetadataError{Op: "create", Err: err} })
	}
	asset, err := entity.Asset()
	if err != nil {
		return nil, &MetadataError{ID: entity.ID, Op: "decode", Err: err}
	}
	return &CreatedAsset{Entity: entity, Asset: asset, UploadURL: uploadURL}, nil
}
