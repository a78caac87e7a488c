package http

import (
	"context"
	"time"
)

type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam describes one outbound request whose body is read raw.
type RequestParam struct {
	RequestURI string
	// Method defaults to GET.
	Method string
	Header map[string]string
	// Response receives the raw body when non-nil.
	Response *[]byte

	// MaxResponseSize caps the body read; zero means unlimited.
	MaxResponseSize int64
	// Timeout bounds the whole request on top of ctx; zero means none.
	Timeout time.Duration
}
