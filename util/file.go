package util

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	_ "golang.org/x/image/webp"

	nhttp "github.com/chaos-io/cutout/util/http"
)

// DecodeImage decodes PNG, JPEG or WebP bytes and reports the format name.
func DecodeImage(data []byte) (image.Image, string, error) {
	return image.Decode(bytes.NewReader(data))
}

const userAgent = "cutout/1.0"

// DownloadImage fetches url and returns the raw body once it is known to decode.
// maxSize <= 0 disables the size cap and timeout <= 0 leaves only ctx and the
// client's own deadline.
func DownloadImage(ctx context.Context, cli nhttp.IClient, url string, maxSize int64, timeout time.Duration) ([]byte, error) {
	var data []byte
	err := cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: url,
		Method:     http.MethodGet,
		Header: map[string]string{
			"Accept":     "image/*",
			"User-Agent": userAgent,
		},
		Response:        &data,
		MaxResponseSize: maxSize,
		Timeout:         timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return data, nil
}
