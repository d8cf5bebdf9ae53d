package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/EGF2/file/pkg/lifecycle"
	"github.com/EGF2/file/pkg/lifecycle/imaging"
	"github.com/EGF2/file/pkg/lifecycle/repo/cached"
	"github.com/EGF2/file/pkg/lifecycle/repo/memory"
	repopg "github.com/EGF2/file/pkg/lifecycle/repo/postgres"
	memorystorage "github.com/EGF2/file/pkg/lifecycle/storage/memory"
	s3storage "github.com/EGF2/file/pkg/lifecycle/storage/s3"
)

// Runtime is a built pipeline together with the resources it owns
type Runtime struct {
	Pipeline *lifecycle.Pipeline
	Config   *ServerConfig

	ready   func(ctx context.Context) error
	closers []func()
}

// Ready reports whether backing services are reachable
func (r *Runtime) Ready(ctx context.Context) error {
	if r.ready == nil {
		return nil
	}
	return r.ready(ctx)
}

// Close releases pools and connections
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// BuildPipeline creates the metadata store, object store and image
// transformer named by the configuration and wires them into a pipeline.
//
// With the in-memory metadata store every write is published straight to
// the dispatcher, so a single process exercises the whole lifecycle.
func (c *ServerConfig) BuildPipeline(ctx context.Context, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{Config: c}

	store, search, memRepo, err := c.buildRepository(ctx, logger, rt)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	objects, err := c.buildObjectStore(ctx)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build object store: %w", err)
	}

	options := []lifecycle.Option{
		lifecycle.WithMetadataStore(store),
		lifecycle.WithSearchIndex(search),
		lifecycle.WithObjectStore(objects),
		lifecycle.WithImageTransformer(imaging.New(imaging.Config{
			HTTPClient:  &http.Client{Timeout: c.Images.FetchTimeout},
			MaxBytes:    c.Images.MaxBytes,
			JPEGQuality: c.Images.JPEGQuality,
		})),
		lifecycle.WithLogger(logger),
		lifecycle.WithCollectorConfig(c.CollectorConfig()),
		lifecycle.WithAsyncDispatch(c.AsyncDispatch),
	}
	if c.TypeCache.Size > 0 {
		options = append(options, lifecycle.WithTypeResolver(cached.NewTypeResolver(store, c.TypeCache.Size, c.TypeCache.TTL)))
	}

	p, err := lifecycle.New(options...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Pipeline = p

	if memRepo != nil {
		dispatcher := p.Dispatcher()
		memRepo.SetPublisher(func(ctx context.Context, ev *lifecycle.ChangeEvent) {
			dispatcher.Dispatch(ctx, ev)
		})
	}

	return rt, nil
}

// buildRepository creates the metadata store and search index. The memory
// repository is also returned so it can be connected to the dispatcher.
func (c *ServerConfig) buildRepository(ctx context.Context, logger *slog.Logger, rt *Runtime) (lifecycle.MetadataStore, lifecycle.SearchIndex, *memory.Repository, error) {
	dbType, err := c.DatabaseType()
	if err != nil {
		return nil, nil, nil, err
	}

	switch dbType {
	case "memory":
		repo := memory.New()
		return repo, repo, repo, nil
	case "postgres":
		if c.AutoMigrate {
			if err := repopg.Migrate(c.DatabaseURL, logger); err != nil {
				return nil, nil, nil, err
			}
		}
		pool, err := repopg.Connect(ctx, c.DatabaseURL, repopg.ConnectOptions{}, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		rt.ready = pool.Ping
		repo := repopg.NewWithPool(pool)
		return repo, repo, nil, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// buildObjectStore creates the object store from StorageURL
func (c *ServerConfig) buildObjectStore(ctx context.Context) (lifecycle.ObjectStore, error) {
	storageType, err := c.StorageType()
	if err != nil {
		return nil, err
	}

	switch storageType {
	case "memory":
		bucket := strings.TrimPrefix(strings.TrimPrefix(c.StorageURL, "memory"), "://")
		return memorystorage.New(bucket), nil
	case "s3":
		u, err := url.Parse(c.StorageURL)
		if err != nil {
			return nil, err
		}
		s3Config := s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 u.Host,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			PresignDuration:        c.S3.PresignDuration,
			SSEAlgorithm:           c.S3.SSEAlgorithm,
			SSEKMSKeyID:            c.S3.SSEKMSKeyID,
			ACL:                    c.S3.ACL,
			CreateBucketIfNotExist: c.S3.CreateBucketIfNotExist,
		}
		if region := u.Query().Get("region"); region != "" {
			s3Config.Region = region
		}
		if endpoint := u.Query().Get("endpoint"); endpoint != "" {
			s3Config.Endpoint = endpoint
			s3Config.UsePathStyle = true
		}
		return s3storage.New(ctx, s3Config)
	default:
		return nil, errors.New("unsupported storage type: " + storageType)
	}
}
