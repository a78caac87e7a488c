package rembg

import "errors"

var (
	// ErrConfiguration is fatal: no removal can succeed until credentials are provided.
	ErrConfiguration     = errors.New("rembg: api key not configured")
	ErrEmptyResponse     = errors.New("rembg: no response from model")
	ErrNoImageInResponse = errors.New("rembg: could not find image in model response")
	ErrTransport         = errors.New("rembg: request failed")
	ErrInvalidInput      = errors.New("rembg: invalid input image")
)
