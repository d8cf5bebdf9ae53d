// Package imaging implements lifecycle.ImageTransformer: it downloads an
// origin image over HTTP, scales it to cover a target box and crops the
// centre, re-encoding in the origin's format where an encoder exists.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/nfnt/resize"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/EGF2/file/pkg/lifecycle"
)

// ErrTooLarge indicates the origin exceeded Config.MaxBytes
var ErrTooLarge = errors.New("image exceeds size limit")

// Config options for the transformer
type Config struct {
	HTTPClient  *http.Client // default: 60s timeout
	MaxBytes    int64        // default: 50 MiB
	JPEGQuality int          // default: 85
}

// Transformer is the default lifecycle.ImageTransformer
type Transformer struct {
	client   *http.Client
	maxBytes int64
	quality  int
}

var _ lifecycle.ImageTransformer = (*Transformer)(nil)

func New(config Config) *Transformer {
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = 50 << 20
	}
	if config.JPEGQuality <= 0 || config.JPEGQuality > 100 {
		config.JPEGQuality = 85
	}
	return &Transformer{
		client:   config.HTTPClient,
		maxBytes: config.MaxBytes,
		quality:  config.JPEGQuality,
	}
}

// FetchAndDecode downloads url and decodes it with any registered codec
func (t *Transformer) FetchAndDecode(ctx context.Context, url string) (*lifecycle.ImageBuffer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(raw)) > t.maxBytes {
		return nil, ErrTooLarge
	}
	return Decode(raw)
}

// Decode decodes raw image bytes
func Decode(raw []byte) (*lifecycle.ImageBuffer, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return &lifecycle.ImageBuffer{Image: img, Format: format, Raw: raw}, nil
}

// ResizeCropCenter scales the image so it covers width x height, keeping the
// aspect ratio, then crops the centre to exactly that box
func (t *Transformer) ResizeCropCenter(buf *lifecycle.ImageBuffer, width, height int) ([]byte, error) {
	if buf == nil || buf.Image == nil {
		return nil, errors.New("no image")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid box %dx%d", width, height)
	}

	cropped := FillCenter(buf.Image, width, height)

	var out bytes.Buffer
	if err := t.encode(&out, cropped, buf.Format); err != nil {
		return nil, fmt.Errorf("encode %s: %w", buf.Format, err)
	}
	return out.Bytes(), nil
}

// IntrinsicSize returns the origin dimensions
func (t *Transformer) IntrinsicSize(buf *lifecycle.ImageBuffer) (lifecycle.Dimensions, error) {
	if buf == nil || buf.Image == nil {
		return lifecycle.Dimensions{}, errors.New("no image")
	}
	b := buf.Image.Bounds()
	return lifecycle.Dimensions{Width: b.Dx(), Height: b.Dy()}, nil
}

// FillCenter returns img scaled to cover width x height and cropped to it
func FillCenter(img image.Image, width, height int) image.Image {
	src := img.Bounds()
	scale := math.Max(float64(width)/float64(src.Dx()), float64(height)/float64(src.Dy()))
	scaledW := max(width, int(math.Ceil(float64(src.Dx())*scale)))
	scaledH := max(height, int(math.Ceil(float64(src.Dy())*scale)))

	scaled := resize.Resize(uint(scaledW), uint(scaledH), img, resize.Lanczos3)

	sb := scaled.Bounds()
	offset := image.Pt(sb.Min.X+(sb.Dx()-width)/2, sb.Min.Y+(sb.Dy()-height)/2)

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), scaled, offset, draw.Src)
	return dst
}

// encode writes img in format. Formats without an encoder (webp) fall back
// to png.
func (t *Transformer) encode(w io.Writer, img image.Image, format string) error {
	switch format {
	case "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: t.quality})
	case "gif":
		return gif.Encode(w, img, nil)
	case "bmp":
		return bmp.Encode(w, img)
	case "tiff":
		return tiff.Encode(w, img, nil)
	default:
		return png.Encode(w, img)
	}
}
