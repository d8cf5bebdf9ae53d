package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/EGF2/file/pkg/lifecycle"
	"github.com/EGF2/file/pkg/lifecycle/objectkey"
)

// ErrInjected is returned by operations made to fail with FailOn
var ErrInjected = errors.New("injected failure")

// Object is a stored object
type Object struct {
	Bucket   string
	Key      string
	MimeType string
	Data     []byte
}

// Op names a backend operation for FailOn
type Op string

const (
	OpPresign Op = "presign"
	OpPut     Op = "put"
	OpDelete  Op = "delete"
)

// Backend is an in-memory implementation of lifecycle.ObjectStore. It serves
// fake URLs of the form "<base>/<bucket>/<key>" and records every call.
type Backend struct {
	mu      sync.RWMutex
	base    string
	bucket  string
	keys    objectkey.Generator
	objects map[string]*Object // bucket + "/" + key
	deletes []string
	calls   map[Op]int
	fail    map[Op]func(key string) bool
}

var _ lifecycle.ObjectStore = (*Backend)(nil)

// New creates a new in-memory storage backend
func New(bucket string) *Backend {
	if bucket == "" {
		bucket = "memory"
	}
	return &Backend{
		base:    "https://memory.local",
		bucket:  bucket,
		keys:    objectkey.NewWeeklyGenerator(),
		objects: make(map[string]*Object),
		calls:   make(map[Op]int),
		fail:    make(map[Op]func(string) bool),
	}
}

// WithKeys replaces the key generator
func (b *Backend) WithKeys(keys objectkey.Generator) *Backend {
	b.keys = keys
	return b
}

// FailOn makes op fail for every key matching match (nil matches all).
func (b *Backend) FailOn(op Op, match func(key string) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if match == nil {
		match = func(string) bool { return true }
	}
	b.fail[op] = match
}

// Bucket returns the bucket receiving new objects
func (b *Backend) Bucket() string {
	return b.bucket
}

func (b *Backend) GenerateKey() string {
	return b.keys.GenerateKey()
}

func (b *Backend) GetUploadURL(ctx context.Context, key, mimeType string) (string, error) {
	if err := b.record(OpPresign, key); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s?signature=%s", b.base, b.bucket, key, uuid.NewString()), nil
}

func (b *Backend) GetDownloadURL(uploadURL string) string {
	u, _, _ := strings.Cut(uploadURL, "?")
	return u
}

// URL returns the download URL of a key in the default bucket
func (b *Backend) URL(key string) string {
	return fmt.Sprintf("%s/%s/%s", b.base, b.bucket, key)
}

func (b *Backend) PutObject(ctx context.Context, key, mimeType string, data []byte) error {
	if err := b.record(OpPut, key); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[b.bucket+"/"+key] = &Object{
		Bucket:   b.bucket,
		Key:      key,
		MimeType: mimeType,
		Data:     append([]byte(nil), data...),
	}
	return nil
}

func (b *Backend) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := b.record(OpDelete, key); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, bucket+"/"+key)
	b.deletes = append(b.deletes, bucket+"/"+key)
	return nil
}

// Object returns a copy of a stored object
func (b *Backend) Object(bucket, key string) (*Object, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[bucket+"/"+key]
	if !ok {
		return nil, false
	}
	cp := *obj
	cp.Data = append([]byte(nil), obj.Data...)
	return &cp, true
}

// Objects returns the number of stored objects
func (b *Backend) Objects() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

// Deletes returns every "<bucket>/<key>" passed to DeleteObject, in order
func (b *Backend) Deletes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.deletes...)
}

// Calls returns how many times op was attempted
func (b *Backend) Calls(op Op) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.calls[op]
}

func (b *Backend) record(op Op, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[op]++
	if match, ok := b.fail[op]; ok && match(key) {
		return fmt.Errorf("%s %s: %w", op, key, ErrInjected)
	}
	return nil
}
