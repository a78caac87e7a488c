// Package composite flattens a background-removed subject over a chosen background.
package composite

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/chaos-io/cutout/util"
)

var ErrNoSubject = errors.New("no subject image")

// Composite renders subject over bg. The output always has the subject's
// dimensions with its origin at (0,0), and identical inputs give identical pixels.
func Composite(subject image.Image, bg Background) (*image.NRGBA, error) {
	if subject == nil {
		return nil, ErrNoSubject
	}

	switch bg.Mode {
	case ModeTransparent:
		return cloneNRGBA(subject), nil

	case ModeColor:
		c, err := ParseColor(bg.Color)
		if err != nil {
			return nil, err
		}
		dst := newCanvas(subject)
		draw.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
		drawSubject(dst, subject)
		return dst, nil

	case ModeImage:
		if len(bg.Image) == 0 {
			return cloneNRGBA(subject), nil
		}
		// The background is fully decoded before anything is drawn so it always
		// ends up under the subject.
		bgImg, _, err := util.DecodeImage(bg.Image)
		if err != nil {
			return nil, fmt.Errorf("decode background: %w", err)
		}
		dst := newCanvas(subject)
		drawCover(dst, bgImg)
		drawSubject(dst, subject)
		return dst, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, bg.Mode)
	}
}

// Render decodes an encoded subject, composites it and returns PNG bytes.
func Render(subject []byte, bg Background) ([]byte, error) {
	if len(subject) == 0 {
		return nil, ErrNoSubject
	}
	img, _, err := util.DecodeImage(subject)
	if err != nil {
		return nil, fmt.Errorf("decode subject: %w", err)
	}

	out, err := Composite(img, bg)
	if err != nil {
		return nil, err
	}
	return EncodePNG(out)
}

func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func newCanvas(subject image.Image) *image.NRGBA {
	b := subject.Bounds()
	return image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
}

// drawSubject draws the subject unscaled, anchored at the top-left corner.
func drawSubject(dst *image.NRGBA, subject image.Image) {
	draw.Draw(dst, dst.Bounds(), subject, subject.Bounds().Min, draw.Over)
}

// drawCover scales bg uniformly so it fills dst, centered, cropping overflow.
func drawCover(dst *image.NRGBA, bg image.Image) {
	dr := coverRect(dst.Bounds().Dx(), dst.Bounds().Dy(), bg.Bounds().Dx(), bg.Bounds().Dy())
	xdraw.CatmullRom.Scale(dst, dr, bg, bg.Bounds(), xdraw.Src, nil)
}

// coverRect is where a bw x bh image lands when cover-fitted onto a w x h
// canvas: scaled by max(w/bw, h/bh) and centered, so it contains the canvas.
func coverRect(w, h, bw, bh int) image.Rectangle {
	if bw <= 0 || bh <= 0 {
		return image.Rect(0, 0, w, h)
	}
	scale := math.Max(float64(w)/float64(bw), float64(h)/float64(bh))
	sw := max(w, int(math.Round(float64(bw)*scale)))
	sh := max(h, int(math.Round(float64(bh)*scale)))

	x := (w - sw) / 2
	y := (h - sh) / 2
	return image.Rect(x, y, x+sw, y+sh)
}
