package lifecycle

import (
	"fmt"
	"log/slog"
)

// Pipeline wires the lifecycle handlers to one set of collaborators. It is
// the explicit context object passed to the HTTP surface and the CLI.
type Pipeline struct {
	store   MetadataStore
	search  SearchIndex
	objects ObjectStore
	images  ImageTransformer
	types   TypeResolver
	logger  *slog.Logger

	collectorConfig CollectorConfig
	async           bool

	orchestrator *Orchestrator
	tracker      *Tracker
	cascade      *Cascade
	collector    *Collector
	dispatcher   *Dispatcher
	creator      *AssetCreator
}

// Option represents a functional option for configuring the pipeline
type Option func(*Pipeline)

// WithMetadataStore sets the entity store
func WithMetadataStore(store MetadataStore) Option {
	return func(p *Pipeline) {
		p.store = store
	}
}

// WithSearchIndex sets the search index used by the garbage collector
func WithSearchIndex(search SearchIndex) Option {
	return func(p *Pipeline) {
		p.search = search
	}
}

// WithObjectStore sets the object storage backend
func WithObjectStore(objects ObjectStore) Option {
	return func(p *Pipeline) {
		p.objects = objects
	}
}

// WithImageTransformer sets the image primitives
func WithImageTransformer(images ImageTransformer) Option {
	return func(p *Pipeline) {
		p.images = images
	}
}

// WithTypeResolver overrides entity type lookups, e.g. with a cache
func WithTypeResolver(types TypeResolver) Option {
	return func(p *Pipeline) {
		p.types = types
	}
}

// WithLogger sets the base logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithCollectorConfig configures the garbage collector
func WithCollectorConfig(cfg CollectorConfig) Option {
	return func(p *Pipeline) {
		p.collectorConfig = cfg
	}
}

// WithAsyncDispatch makes Dispatch return before the handler finishes
func WithAsyncDispatch(async bool) Option {
	return func(p *Pipeline) {
		p.async = async
	}
}

// New creates a pipeline with the given options.
func New(options ...Option) (*Pipeline, error) {
	p := &Pipeline{}
	for _, option := range options {
		option(p)
	}

	switch {
	case p.store == nil:
		return nil, fmt.Errorf("%w: metadata store is required", ErrMissingCollaborator)
	case p.search == nil:
		return nil, fmt.Errorf("%w: search index is required", ErrMissingCollaborator)
	case p.objects == nil:
		return nil, fmt.Errorf("%w: object store is required", ErrMissingCollaborator)
	case p.images == nil:
		return nil, fmt.Errorf("%w: image transformer is required", ErrMissingCollaborator)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	p.orchestrator = NewOrchestrator(p.store, p.objects, p.images, p.logger)
	p.tracker = NewTracker(p.store, p.types, p.logger)
	p.cascade = NewCascade(p.objects, p.logger)
	p.collector = NewCollector(p.store, p.search, p.cascade, p.collectorConfig, p.logger)
	p.dispatcher = NewDispatcher(p.orchestrator, p.tracker, p.cascade, p.async, p.logger)
	p.creator = NewAssetCreator(p.store, p.objects)
	return p, nil
}

func (p *Pipeline) Orchestrator() *Orchestrator { return p.orchestrator }
func (p *Pipeline) Tracker() *Tracker           { return p.tracker }
func (p *Pipeline) Cascade() *Cascade           { return p.cascade }
func (p *Pipeline) Collector() *Collector       { return p.collector }
func (p *Pipeline) Dispatcher() *Dispatcher     { return p.dispatcher }
func (p *Pipeline) Assets() *AssetCreator       { return p.creator }
func (p *Pipeline) Store() MetadataStore        { return p.store }
func (p *Pipeline) Objects() ObjectStore        { return p.objects }
func (p *Pipeline) Logger() *slog.Logger        { return p.logger }
