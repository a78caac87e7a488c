package util

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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nhttp "github.com/chaos-io/cutout/util/http"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeImage(t *testing.T) {
	t.Parallel()

	img, format, err := DecodeImage(encodePNG(t, 3, 2))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())

	rgba := image.NewRGBA(image.Rect(0, 0, 4, 4))
	rgba.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, rgba, nil))
	_, format, err = DecodeImage(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	_, _, err = DecodeImage([]byte("not an image"))
	assert.ErrorIs(t, err, image.ErrFormat)
}

func TestDownloadImage(t *testing.T) {
	t.Parallel()

	pngData := encodePNG(t, 2, 2)
	mux := http.NewServeMux()
	mux.HandleFunc("/bg.png", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "image/*", r.Header.Get("Accept"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write(pngData)
	})
	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
			_, _ = w.Write(pngData)
		case <-r.Context().Done():
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cli := nhttp.NewHTTPClient()
	ctx := context.Background()

	got, err := DownloadImage(ctx, cli, server.URL+"/bg.png", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, pngData, got)

	got, err = DownloadImage(ctx, cli, server.URL+"/bg.png", int64(len(pngData)), time.Second)
	require.NoError(t, err)
	assert.Equal(t, pngData, got)

	_, err = DownloadImage(ctx, cli, server.URL+"/text", 0, 0)
	assert.ErrorIs(t, err, image.ErrFormat)

	_, err = DownloadImage(ctx, cli, server.URL+"/missing", 0, 0)
	assert.ErrorContains(t, err, "HTTP request failed with status 404")

	_, err = DownloadImage(ctx, cli, server.URL+"/bg.png", 8, 0)
	assert.ErrorIs(t, err, nhttp.ErrResponseTooLarge)

	_, err = DownloadImage(ctx, cli, server.URL+"/slow", 0, 50*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = DownloadImage(ctx, cli, "ftp://example.com/bg.png", 0, 0)
	assert.ErrorIs(t, err, nhttp.ErrUnsupportedScheme)
}

func TestDownloadImage_PublicClientRefusesLoopback(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(encodePNG(t, 1, 1))
	}))
	defer server.Close()

	_, err := DownloadImage(context.Background(), nhttp.NewPublicHTTPClient(), server.URL, 0, 0)
	assert.ErrorIs(t, err, nhttp.ErrForbiddenAddress)
}
