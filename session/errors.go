package session

import "errors"

var (
	ErrFileTooLarge      = errors.New("file too large")
	ErrUnsupportedImage  = errors.New("unsupported image")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrBusy              = errors.New("background removal in progress")
	ErrNotReady          = errors.New("session has no processed image")
	ErrNoImage           = errors.New("session has no image")
	ErrStaleResult       = errors.New("removal result no longer matches session")
	ErrSessionNotFound   = errors.New("session not found")
)

// User-facing messages recorded on the session.
const (
	MsgFileTooLarge     = "File is too large. Max size is 10MB."
	MsgUnsupportedImage = "Unsupported image. Upload a JPG, PNG or WEBP file."
	MsgRemovalFailed    = "Background removal failed. Please try again."
	MsgNotConfigured    = "Background removal is not configured. Set the API key and restart the service."
)
