package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/render"

	"github.com/EGF2/file/pkg/lifecycle"
)

// UserHeader carries the caller identity set by the fronting gateway
const UserHeader = "X-User-ID"

// FilesHandler creates hosted assets
type FilesHandler struct {
	assets *lifecycle.AssetCreator
	kinds  func(kind string) []lifecycle.Dimensions
	logger *slog.Logger
}

func NewFilesHandler(assets *lifecycle.AssetCreator, kinds func(string) []lifecycle.Dimensions, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{assets: assets, kinds: kinds, logger: logger}
}

// NewFile creates an asset record from query parameters (mime_type, title,
// size, kind) and returns it with a pre-signed upload_url
func (h *FilesHandler) NewFile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var size int64
	if s := q.Get("size"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "'size' must be a non-negative integer")
			return
		}
		size = n
	}

	created, err := h.assets.Create(r.Context(), lifecycle.CreateAssetRequest{
		User:     r.Header.Get(UserHeader),
		Title:    q.Get("title"),
		MimeType: q.Get("mime_type"),
		Size:     lifecycle.ByteSize(size),
		Resizes:  h.kinds(q.Get("kind")),
	})
	if err != nil {
		if errors.Is(err, lifecycle.ErrInvalidAssetRequest) {
			writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		h.logger.Error("Failed to create file", "kind", lifecycle.KindOf(err), "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to create file")
		return
	}

	resp := make(map[string]any, len(created.Entity.Doc)+1)
	for k, v := range created.Entity.Doc {
		resp[k] = v
	}
	resp["upload_url"] = created.UploadURL
	render.JSON(w, r, resp)
}
