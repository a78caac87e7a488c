package session

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	opaque = color.NRGBA{R: 0x20, G: 0x40, B: 0x60, A: 0xff}
	red    = color.NRGBA{R: 0xff, A: 0xff}
)

// testPNG is a w x h opaque image; holes become fully transparent.
func testPNG(t *testing.T, w, h int, holes ...image.Point) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, opaque)
		}
	}
	for _, p := range holes {
		img.SetNRGBA(p.X, p.Y, color.NRGBA{})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeRemover struct {
	out     []byte
	err     error
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (f *fakeRemover) Remove(ctx context.Context, data []byte) ([]byte, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.out, f.err
}

func defaultPolicy() Policy {
	return Policy{
		MaxFileSize:  MaxFileSize,
		AllowedTypes: []string{"image/png", "image/jpeg", "image/webp"},
	}
}
