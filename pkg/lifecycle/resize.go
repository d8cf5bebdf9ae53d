package lifecycle

import (
	"context"
	"errors"
	"log/slog"

	"github.com/EGF2/file/pkg/lifecycle/task"
)

// Orchestrator produces the missing resized derivatives of an uploaded image
// asset and persists them together with the origin dimensions.
//
// Only one orchestrator may run cluster-wide: two passes over the same asset
// would both generate derivatives and race on the final metadata write.
type Orchestrator struct {
	store   MetadataStore
	objects ObjectStore
	images  ImageTransformer
	logger  *slog.Logger
}

// NewOrchestrator creates a resize orchestrator.
func NewOrchestrator(store MetadataStore, objects ObjectStore, images ImageTransformer, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		objects: objects,
		images:  images,
		logger:  logger.With("component", "resize"),
	}
}

// Triggered reports whether an event should start a resize pass and returns
// the decoded asset when it does.
func (o *Orchestrator) Triggered(ev *ChangeEvent) (*Asset, bool) {
	if ev.Method != MethodUpdate || !ev.Object || ev.Current == nil || ev.Current.ObjectType != ObjectTypeFile {
		return nil, false
	}
	asset, err := ev.Current.Asset()
	if err != nil {
		o.logger.Error("Failed to decode file", "file_id", ev.Current.ID, "error", err)
		return nil, false
	}
	if !asset.Uploaded || !asset.HasResizes() {
		return nil, false
	}
	return asset, true
}

// Handle runs one resize pass. It is a no-op when every derivative already
// has a URL. Derivatives are produced concurrently and the pass persists
// nothing unless all of them succeed.
func (o *Orchestrator) Handle(ctx context.Context, asset *Asset) error {
	logger := o.logger.With("file_id", asset.ID)

	if asset.ResizeComplete() {
		resizePassesTotal.WithLabelValues("skipped").Inc()
		logger.Debug("Resizes already complete")
		return nil
	}

	origin, err := o.images.FetchAndDecode(ctx, asset.URL)
	if err != nil {
		err = classify(err, func(err error) error { return &FetchError{URL: asset.URL, Err: err} })
		o.fail(logger, "Failed to fetch origin image", err)
		return err
	}

	results := task.Map(ctx, asset.Resizes, func(ctx context.Context, spec DerivativeSpec) (DerivativeSpec, error) {
		if spec.Resolved() {
			return spec, nil
		}
		return o.produce(ctx, asset, origin, spec)
	})
	if err := task.FirstError(results); err != nil {
		for _, r := range results {
			if r.Err != nil {
				logger.Error("Failed to produce derivative",
					"dimensions", asset.Resizes[r.Index].Dimensions.String(),
					"kind", KindOf(r.Err),
					"error", r.Err)
			}
		}
		o.fail(logger, "Resize pass aborted, nothing persisted", err)
		return err
	}
	resizes := task.Values(results)

	dims, err := o.images.IntrinsicSize(origin)
	if err != nil {
		err = classify(err, func(err error) error { return &TransformError{Err: err} })
		o.fail(logger, "Failed to read origin dimensions", err)
		return err
	}

	patch := Document{"dimensions": dims, "resizes": resizes}
	if _, err := o.store.UpdateObject(ctx, asset.ID, patch); err != nil {
		err = classify(err, func(err error) error { return &MetadataError{ID: asset.ID, Op: "update", Err: err} })
		o.fail(logger, "Failed to persist resizes", err)
		return err
	}

	resizePassesTotal.WithLabelValues("completed").Inc()
	logger.Info("File resized", "derivatives", asset.PendingResizes(), "dimensions", dims.String())
	return nil
}

// produce creates one derivative and returns the spec with its URL set.
func (o *Orchestrator) produce(ctx context.Context, asset *Asset, origin *ImageBuffer, spec DerivativeSpec) (DerivativeSpec, error) {
	d := spec.Dimensions
	if d.Width <= 0 || d.Height <= 0 {
		return spec, &TransformError{Dimensions: d, Err: errors.New("dimensions must be positive")}
	}

	key := o.objects.GenerateKey()
	uploadURL, err := o.objects.GetUploadURL(ctx, key, asset.MimeType)
	if err != nil {
		return spec, classify(err, func(err error) error { return &StorageError{Key: key, Op: "presign", Err: err} })
	}

	data, err := o.images.ResizeCropCenter(origin, d.Width, d.Height)
	if err != nil {
		return spec, classify(err, func(err error) error { return &TransformError{Dimensions: d, Err: err} })
	}

	if err := o.objects.PutObject(ctx, key, asset.MimeType, data); err != nil {
		return spec, classify(err, func(err error) error { return &StorageError{Key: key, Op: "put", Err: err} })
	}

	spec.URL = o.objects.GetDownloadURL(uploadURL)
	derivativesProducedTotal.Inc()
	return spec, nil
}

func (o *Orchestrator) fail(logger *slog.Logger, msg string, err error) {
	resizePassesTotal.WithLabelValues("failed").Inc()
	recordFailure("resize", err)
	logger.Error(msg, "kind", KindOf(err), "error", err)
}

// classify keeps an already classified error and wraps anything else.
func classify(err error, wrap func(error) error) error {
	if KindOf(err) != KindUnknown {
		return err
	}
	return wrap(err)
}
