// Package rembg removes image backgrounds through a remote inference model.
package rembg

import (
	"context"
)

// Remover takes an encoded image (raw bytes or a base64 data URI) and returns
// a PNG whose background has been replaced by transparency.
type Remover interface {
	Remove(ctx context.Context, data []byte) ([]byte, error)
}
