package imaging_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EGF2/file/pkg/lifecycle"
	"github.com/EGF2/file/pkg/lifecycle/imaging"
)

// stripes returns a w x h image whose left half is red and right half blue
func stripes(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= w/2 {
				c = color.RGBA{B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func serve(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/image" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTransformer_FetchAndDecode(t *testing.T) {
	srv := serve(t, encodePNG(t, stripes(500, 120)))
	tr := imaging.New(imaging.Config{})
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		buf, err := tr.FetchAndDecode(ctx, srv.URL+"/image")
		require.NoError(t, err)
		assert.Equal(t, "png", buf.Format)
		assert.NotEmpty(t, buf.Raw)

		dims, err := tr.IntrinsicSize(buf)
		require.NoError(t, err)
		assert.Equal(t, lifecycle.Dimensions{Width: 500, Height: 120}, dims)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := tr.FetchAndDecode(ctx, srv.URL+"/missing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("too large", func(t *testing.T) {
		small := imaging.New(imaging.Config{MaxBytes: 16})
		_, err := small.FetchAndDecode(ctx, srv.URL+"/image")
		assert.ErrorIs(t, err, imaging.ErrTooLarge)
	})
}

func TestTransformer_FetchAndDecode_NotAnImage(t *testing.T) {
	srv := serve(t, []byte("definitely not an image"))
	_, err := imaging.New(imaging.Config{}).FetchAndDecode(context.Background(), srv.URL+"/image")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode image")
}

func TestTransformer_ResizeCropCenter(t *testing.T) {
	tr := imaging.New(imaging.Config{})

	tests := []struct {
		name   string
		raw    []byte
		format string
		width  int
		height int
	}{
		{"wide png to square", encodePNG(t, stripes(500, 120)), "png", 64, 64},
		{"wide png to wide box", encodePNG(t, stripes(500, 120)), "png", 200, 50},
		{"tall jpeg to wide box", encodeJPEG(t, stripes(90, 300)), "jpeg", 120, 40},
		{"upscale", encodePNG(t, stripes(10, 10)), "png", 100, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := imaging.Decode(tt.raw)
			require.NoError(t, err)

			out, err := tr.ResizeCropCenter(buf, tt.width, tt.height)
			require.NoError(t, err)

			img, format, err := image.Decode(bytes.NewReader(out))
			require.NoError(t, err)
			assert.Equal(t, tt.format, format)
			assert.Equal(t, tt.width, img.Bounds().Dx())
			assert.Equal(t, tt.height, img.Bounds().Dy())
		})
	}
}

func TestFillCenter_KeepsCentre(t *testing.T) {
	// 400x100 scaled to cover 100x100 becomes 400x100, cropped to x in [150,250)
	out := imaging.FillCenter(stripes(400, 100), 100, 100)
	require.Equal(t, image.Rect(0, 0, 100, 100), out.Bounds())

	r, _, b, _ := out.At(10, 50).RGBA()
	assert.Greater(t, r, b, "left side of the crop is red")
	r, _, b, _ = out.At(90, 50).RGBA()
	assert.Greater(t, b, r, "right side of the crop is blue")
}

func TestTransformer_InvalidInput(t *testing.T) {
	tr := imaging.New(imaging.Config{})

	_, err := tr.ResizeCropCenter(nil, 10, 10)
	assert.Error(t, err)

	buf, err := imaging.Decode(encodePNG(t, stripes(10, 10)))
	require.NoError(t, err)
	_, err = tr.ResizeCropCenter(buf, 0, 10)
	assert.Error(t, err)

	_, err = tr.IntrinsicSize(&lifecycle.ImageBuffer{})
	assert.Error(t, err)
}
