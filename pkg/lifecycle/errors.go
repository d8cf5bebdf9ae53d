package lifecycle

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrObjectNotFound indicates an entity does not exist in the metadata store
	ErrObjectNotFound = errors.New("object not found")

	// ErrNotAnAsset indicates an entity was expected to be a file asset but is not
	ErrNotAnAsset = errors.New("entity is not a file asset")

	// ErrMissingCollaborator indicates a pipeline was built without a required dependency
	ErrMissingCollaborator = errors.New("missing collaborator")
)

// ErrorKind classifies lifecycle failures for logging and metrics.
type ErrorKind string

// Error kinds (typed).
const (
	KindFetch              ErrorKind = "fetch"
	KindTransform          ErrorKind = "transform"
	KindStorage            ErrorKind = "storage"
	KindMetadata           ErrorKind = "metadata"
	KindMalformedReference ErrorKind = "malformed_reference"
	KindUnknown            ErrorKind = "unknown"
)

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) ErrorKind {
	var k interface{ Kind() ErrorKind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// FetchError represents a failure to retrieve or decode an origin image
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error   { return e.Err }
func (e *FetchError) Kind() ErrorKind { return KindFetch }

// TransformError represents a resize or crop failure
type TransformError struct {
	Dimensions Dimensions
	Err        error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform to %s failed: %v", e.Dimensions, e.Err)
}

func (e *TransformError) Unwrap() error   { return e.Err }
func (e *TransformError) Kind() ErrorKind { return KindTransform }

// StorageError represents an object storage upload or delete failure
type StorageError struct {
	Bucket string
	Key    string
	Op     string
	Err    error
}

func (e *StorageError) Error() string {
	if e.Bucket != "" {
		return fmt.Sprintf("storage operation %s failed for key %s in bucket %s: %v", e.Op, e.Key, e.Bucket, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error   { return e.Err }
func (e *StorageError) Kind() ErrorKind { return KindStorage }

// MetadataError represents a metadata store read or write failure
type MetadataError struct {
	ID  string
	Op  string
	Err error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("metadata operation %s failed for %s: %v", e.Op, e.ID, e.Err)
}

func (e *MetadataError) Unwrap() error   { return e.Err }
func (e *MetadataError) Kind() ErrorKind { return KindMetadata }

// MalformedReferenceError represents a stored URL that cannot be mapped back
// to a bucket and key
type MalformedReferenceError struct {
	URL    string
	Reason string
}

func (e *MalformedReferenceError) Error() string {
	return fmt.Sprintf("malformed storage reference %q: %s", e.URL, e.Reason)
}

func (e *MalformedReferenceError) Kind() ErrorKind { return KindMalformedReference }
