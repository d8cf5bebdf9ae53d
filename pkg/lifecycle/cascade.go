package lifecycle

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// virtualHostSuffix matches the S3 endpoint part of a virtual-hosted bucket
// host, e.g. "bucket.s3.amazonaws.com" or "bucket.s3.eu-west-1.amazonaws.com".
var virtualHostSuffix = regexp.MustCompile(`\.s3([.-][a-z0-9-]+)?\.amazonaws\.com$`)

// CascadeResult summarizes one cascade.
type CascadeResult struct {
	Deleted int
	Failed  int
}

// Cascade removes the primary object and every derivative of a deleted
// asset from object storage. Deletes are independent and best-effort.
type Cascade struct {
	objects ObjectStore
	logger  *slog.Logger
}

// NewCascade creates a deletion cascade.
func NewCascade(objects ObjectStore, logger *slog.Logger) *Cascade {
	return &Cascade{
		objects: objects,
		logger:  logger.With("component", "cascade"),
	}
}

// Triggered reports whether an event is an asset deletion and returns the
// asset's last known state.
func (c *Cascade) Triggered(ev *ChangeEvent) (*Asset, bool) {
	if ev.Method != MethodDelete || !ev.Object || ev.Previous == nil || ev.Previous.ObjectType != ObjectTypeFile {
		return nil, false
	}
	asset, err := ev.Previous.Asset()
	if err != nil {
		c.logger.Error("Failed to decode deleted file", "file_id", ev.Previous.ID, "error", err)
		return nil, false
	}
	return asset, true
}

// Handle issues one storage delete per primary and resolved derivative URL.
func (c *Cascade) Handle(ctx context.Context, asset *Asset) CascadeResult {
	var res CascadeResult
	logger := c.logger.With("file_id", asset.ID)

	for _, u := range asset.StorageURLs() {
		bucket, key, err := ParseObjectURL(u)
		if err != nil {
			res.Failed++
			cascadeDeletesTotal.WithLabelValues("malformed").Inc()
			recordFailure("cascade", err)
			logger.Error("Skipping undeletable URL", "url", u, "error", err)
			continue
		}
		if err := c.objects.DeleteObject(ctx, bucket, key); err != nil {
			err = classify(err, func(err error) error { return &StorageError{Bucket: bucket, Key: key, Op: "delete", Err: err} })
			res.Failed++
			cascadeDeletesTotal.WithLabelValues("failed").Inc()
			recordFailure("cascade", err)
			logger.Error("Failed to delete object", "bucket", bucket, "key", key, "error", err)
			continue
		}
		res.Deleted++
		cascadeDeletesTotal.WithLabelValues("deleted").Inc()
		logger.Info("File deleted", "bucket", bucket, "key", key)
	}
	return res
}

// ParseObjectURL maps a stored object URL back to its bucket and key. The
// key is the last two path segments ("<time-bucket>/<id>"). The bucket is
// the segment before them or, for virtual-hosted URLs, the host without its
// S3 endpoint suffix.
func ParseObjectURL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", &MalformedReferenceError{URL: raw, Reason: err.Error()}
	}
	if u.Host == "" {
		return "", "", &MalformedReferenceError{URL: raw, Reason: "missing host"}
	}

	var segs []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) < 2 {
		return "", "", &MalformedReferenceError{URL: raw, Reason: "path has fewer than two segments"}
	}
	key = segs[len(segs)-2] + "/" + segs[len(segs)-1]

	if len(segs) >= 3 {
		return segs[len(segs)-3], key, nil
	}
	host := u.Hostname()
	if loc := virtualHostSuffix.FindStringIndex(host); loc != nil && loc[0] > 0 {
		return host[:loc[0]], key, nil
	}
	return "", "", &MalformedReferenceError{URL: raw, Reason: "cannot derive bucket"}
}
